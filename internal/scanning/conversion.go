package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"net/http"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// heicBrands are the ftyp brands written by phone cameras
var heicBrands = map[string]bool{
	"heic": true,
	"heix": true,
	"heif": true,
	"mif1": true,
	"msf1": true,
}

// sniffContentType returns the declared content type, falling back to detection from the bytes
func sniffContentType(data []byte, declared string) string {
	mimeType := strings.ToLower(strings.TrimSpace(declared))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if mimeType != "" && mimeType != "application/octet-stream" {
		return mimeType
	}
	if isHEIC(data) {
		return "image/heic"
	}
	return http.DetectContentType(data)
}

// isHEIC checks the ftyp box at offset 4
func isHEIC(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	return heicBrands[string(data[8:12])]
}

// renderPDFPage renders the first page of a PDF, e.g. a scanned meter reading card
func renderPDFPage(data []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

func decodeImage(data []byte, mimeType string) (image.Image, error) {
	switch {
	case mimeType == "application/pdf":
		return renderPDFPage(data)
	case isHEIC(data) || strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif"):
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC image: %w", err)
		}
		return img, nil
	default:
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding %s image (supported: JPEG, PNG, GIF, HEIC, PDF): %w", mimeType, err)
		}
		return img, nil
	}
}

// prepareImage turns an uploaded meter photo into PNG bytes for the vision backends
func prepareImage(data []byte, contentType string) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image")
	}

	mimeType := sniffContentType(data, contentType)
	if mimeType == "image/png" && !isHEIC(data) {
		return data, nil
	}

	img, err := decodeImage(data, mimeType)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

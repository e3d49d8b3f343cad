package reading

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/zombor/meter-tracker/internal/common"
)

// 50MB covers full resolution phone photos
const maxUploadSize = int64(50 << 20)

// corsError writes a plain text error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// statusFor maps pipeline error kinds to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrImageNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrNoStructuredResult),
		errors.Is(err, common.ErrParse),
		errors.Is(err, common.ErrMapping):
		return http.StatusUnprocessableEntity
	case errors.Is(err, common.ErrBackendUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	message := err.Error()
	if code == http.StatusInternalServerError {
		message = "Internal server error"
	}
	writeJSON(w, code, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type scanRequest struct {
	Image       string `json:"image"`
	ContentType string `json:"content_type"`
	MeterType   string `json:"meter_type"`
}

// decodeImage accepts raw base64 or a data URL such as data:image/jpeg;base64,...
func decodeImage(image, contentType string) ([]byte, string, error) {
	image = strings.TrimSpace(image)
	if rest, ok := strings.CutPrefix(image, "data:"); ok {
		header, payload, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(header, ";base64") {
			return nil, "", fmt.Errorf("%w: unsupported data URL", ErrInvalidInput)
		}
		if contentType == "" {
			contentType = strings.TrimSuffix(header, ";base64")
		}
		image = payload
	}

	data, err := base64.StdEncoding.DecodeString(image)
	if err != nil {
		return nil, "", fmt.Errorf("%w: image is not valid base64", ErrInvalidInput)
	}
	return data, contentType, nil
}

// contentTypeFromFilename guesses the type of uploads sent without one
func contentTypeFromFilename(filename string) string {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		if ct := mime.TypeByExtension(ext); ct != "" {
			return ct
		}
		return "application/octet-stream"
	}
}

// readCapture reads either a multipart upload or a JSON body with a base64 image
func readCapture(r *http.Request) (Capture, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			return Capture{}, fmt.Errorf("%w: error parsing form: %v", ErrInvalidInput, err)
		}
		f, header, err := r.FormFile("file")
		if err != nil {
			return Capture{}, fmt.Errorf("%w: no file provided", ErrInvalidInput)
		}
		defer f.Close()

		data, err := io.ReadAll(f)
		if err != nil {
			return Capture{}, fmt.Errorf("reading upload: %w", err)
		}

		contentType := header.Header.Get("Content-Type")
		if contentType == "" || contentType == "application/octet-stream" {
			contentType = contentTypeFromFilename(header.Filename)
		}
		return Capture{
			Image:       data,
			ContentType: strings.ToLower(strings.TrimSpace(contentType)),
			MeterType:   r.FormValue("meter_type"),
		}, nil
	}

	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return Capture{}, fmt.Errorf("%w: invalid request body", ErrInvalidInput)
	}
	data, contentType, err := decodeImage(req.Image, req.ContentType)
	if err != nil {
		return Capture{}, err
	}
	return Capture{Image: data, ContentType: contentType, MeterType: req.MeterType}, nil
}

// handleScan runs the reading pipeline on an uploaded photo
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	capture, err := readCapture(r)
	if err != nil {
		slog.Error("Error reading capture", "error", err)
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.scanTimeout)
	defer cancel()

	record, err := s.service.ProcessCapture(ctx, capture)
	if err != nil {
		slog.Error("Error processing capture", "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, record)
}

// handleLatestReadings returns the newest reading of every meter
func (s *Server) handleLatestReadings(w http.ResponseWriter, r *http.Request) {
	records, err := s.service.LatestReadings(r.Context())
	if err != nil {
		slog.Error("Error listing latest readings", "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleLatestReading returns the newest reading of one meter
func (s *Server) handleLatestReading(w http.ResponseWriter, r *http.Request) {
	meterNumber := r.PathValue("meter")
	record, found, err := s.service.LatestReading(r.Context(), meterNumber)
	if err != nil {
		slog.Error("Error getting latest reading", "meter_number", meterNumber, "error", err)
		writeError(w, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no reading for meter " + meterNumber})
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleCaptureImage returns the archived photo of a capture
func (s *Server) handleCaptureImage(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.CaptureImage(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	if _, err := w.Write(data); err != nil {
		slog.Error("Error writing capture image", "capture_id", r.PathValue("id"), "error", err)
	}
}

type priceRequest struct {
	BasePrice float64 `json:"basePrice"`
	WorkPrice float64 `json:"workPrice"`
	Provider  string  `json:"provider"`
	Type      string  `json:"type"`
	ValidFrom string  `json:"validFrom"`
}

// parseValidFrom accepts a date or an RFC 3339 timestamp; empty means now
func parseValidFrom(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return now, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: validFrom must be YYYY-MM-DD or RFC 3339", ErrInvalidInput)
}

// handleSavePrice stores a tariff
func (s *Server) handleSavePrice(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid request body", ErrInvalidInput))
		return
	}

	utilityType, err := ParseUtilityType(req.Type)
	if err != nil {
		writeError(w, err)
		return
	}
	validFrom, err := parseValidFrom(req.ValidFrom, s.service.timeSource.Now())
	if err != nil {
		writeError(w, err)
		return
	}

	price := UtilityPrice{
		BasePrice: req.BasePrice,
		WorkPrice: req.WorkPrice,
		Provider:  strings.TrimSpace(req.Provider),
		Type:      utilityType,
		ValidFrom: validFrom,
	}
	if err := s.service.SavePrice(r.Context(), price); err != nil {
		slog.Error("Error saving price", "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, price)
}

// handleCurrentPrice returns the price currently in effect for a utility type
func (s *Server) handleCurrentPrice(w http.ResponseWriter, r *http.Request) {
	utilityType, err := ParseUtilityType(r.PathValue("type"))
	if err != nil {
		writeError(w, err)
		return
	}

	price, found, err := s.service.CurrentPrice(r.Context(), utilityType)
	if err != nil {
		slog.Error("Error getting current price", "type", utilityType, "error", err)
		writeError(w, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no price for " + string(utilityType)})
		return
	}
	writeJSON(w, http.StatusOK, price)
}

// handleMeterTypes lists the registered meter profiles
func (s *Server) handleMeterTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.MeterTypes())
}

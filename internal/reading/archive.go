package reading

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// ErrImageNotFound is returned when no archived image exists for a capture
var ErrImageNotFound = errors.New("capture image not found")

// Archive defines the interface for capture image storage
type Archive interface {
	// Save stores the image of a capture and returns its file name
	Save(captureID string, contentType string, data []byte) (string, error)

	// Get returns the image of a capture and its content type
	Get(captureID string) ([]byte, string, error)

	// Delete removes the image stored under name
	Delete(name string) error
}

// LocalArchive implements the Archive interface using local filesystem
type LocalArchive struct {
	basePath string
}

// NewLocalArchive creates the archive directory if needed
func NewLocalArchive(basePath string) (*LocalArchive, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}
	return &LocalArchive{basePath: basePath}, nil
}

func extensionFor(contentType string) string {
	switch ct := strings.ToLower(strings.TrimSpace(contentType)); ct {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/heic", "image/heif":
		return ".heic"
	case "":
		return ".bin"
	default:
		if exts, err := mime.ExtensionsByType(ct); err == nil && len(exts) > 0 {
			return exts[0]
		}
		return ".bin"
	}
}

// Save writes the image as <captureID><ext>
func (l *LocalArchive) Save(captureID string, contentType string, data []byte) (string, error) {
	if captureID == "" || strings.ContainsAny(captureID, `/\.`) {
		return "", fmt.Errorf("invalid capture id %q", captureID)
	}
	name := captureID + extensionFor(contentType)
	if err := os.WriteFile(filepath.Join(l.basePath, name), data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return name, nil
}

// Get finds the image saved for captureID
func (l *LocalArchive) Get(captureID string) ([]byte, string, error) {
	if captureID == "" || strings.ContainsAny(captureID, `/\.*?[`) {
		return nil, "", ErrImageNotFound
	}
	matches, err := filepath.Glob(filepath.Join(l.basePath, captureID+".*"))
	if err != nil || len(matches) == 0 {
		return nil, "", ErrImageNotFound
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		return nil, "", fmt.Errorf("reading file: %w", err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(matches[0]))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return data, contentType, nil
}

// Delete removes a file from the archive
func (l *LocalArchive) Delete(name string) error {
	if err := os.Remove(filepath.Join(l.basePath, filepath.Base(name))); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}

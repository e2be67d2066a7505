package filestore

import (
	"context"
	"regexp"
	"strings"
)

const fallbackFilename = "document.bin"

// Storage persists uploaded originals. Location is opaque to callers and is
// what gets stored on the document row.
type Storage interface {
	Save(ctx context.Context, documentID, filename, contentType string, data []byte) (SavedFile, error)
	ReadFile(ctx context.Context, location string) ([]byte, error)
}

type SavedFile struct {
	Location string
	Size     int64
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// SanitizeFilename replaces anything outside [a-zA-Z0-9._-] and trims
// leading/trailing dots and underscores.
func SanitizeFilename(name string) string {
	cleaned := unsafeFilenameChars.ReplaceAllString(name, "_")
	cleaned = strings.Trim(cleaned, "._")
	if cleaned == "" {
		return fallbackFilename
	}
	return cleaned
}

// ObjectName is the per-document storage name: "<documentID>_<sanitized>".
func ObjectName(documentID, filename string) string {
	return documentID + "_" + SanitizeFilename(filename)
}

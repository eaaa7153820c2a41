package domain

import (
	"errors"
	"path/filepath"
	"strings"
)

// Validation sentinels.
var (
	ErrEmptyDocID      = errors.New("empty document id")
	ErrEmptyQuery      = errors.New("empty query")
	ErrQueryTooLong    = errors.New("query too long")
	ErrUnsupportedFile = errors.New("unsupported file type")
)

// MaxQueryLen bounds a chat query; anything longer is rejected before it
// reaches the embedding endpoint.
const MaxQueryLen = 8192

// allowedExtensions are the upload formats Deskmate can extract text from.
var allowedExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// ValidateQuery checks a chat query before embedding and generation.
func ValidateQuery(q string) error {
	q = strings.TrimSpace(q)
	if q == "" {
		return ErrEmptyQuery
	}
	if len(q) > MaxQueryLen {
		return ErrQueryTooLong
	}
	return nil
}

// ValidateUpload checks a filename against the extraction allow-list.
func ValidateUpload(filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return ErrUnsupportedFile
	}
	return nil
}

// ValidateIngest checks the inputs handed to the ingestion pipeline.
func ValidateIngest(docID, filename string) error {
	if strings.TrimSpace(docID) == "" {
		return ErrEmptyDocID
	}
	return ValidateUpload(filename)
}

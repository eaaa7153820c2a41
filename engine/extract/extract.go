// Package extract turns uploaded files into plain text for ingestion.
// Text files are decoded as best-effort UTF-8; images are described by the
// vision model so their content becomes searchable too.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

// Describer produces a textual description of an image.
type Describer interface {
	Describe(ctx context.Context, image []byte) (string, error)
}

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// Extractor dispatches on file extension.
type Extractor struct {
	vision Describer
	logger *slog.Logger
}

func New(vision Describer, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{vision: vision, logger: logger}
}

// Text extracts plain text from the raw file contents. Unknown extensions
// are treated as text. Extraction never fails hard: image description
// errors come back as an explanatory placeholder so the upload still lands.
func (e *Extractor) Text(ctx context.Context, filename string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(filename))

	if imageExtensions[ext] {
		return e.describeImage(ctx, filename, data)
	}
	return decodeText(data)
}

func (e *Extractor) describeImage(ctx context.Context, filename string, data []byte) string {
	if e.vision == nil {
		return fmt.Sprintf("[Image: %s. Description unavailable: no vision model configured]", filename)
	}
	desc, err := e.vision.Describe(ctx, data)
	if err != nil {
		e.logger.Warn("image description failed", "file", filename, "error", err)
		return fmt.Sprintf("[Image: %s. Description unavailable: %v]", filename, err)
	}
	return fmt.Sprintf("[Image: %s]\n%s", filename, desc)
}

// decodeText interprets the bytes as UTF-8, replacing invalid sequences
// with the replacement rune instead of failing.
func decodeText(data []byte) string {
	return strings.ToValidUTF8(string(data), "�")
}

// Package raster renders PDF pages to normalized JPEG images.
package raster

import (
	"context"
	"fmt"
	"strings"

	"github.com/cieplik206/dokumenty/config"
)

// Page is one rendered page on disk. Number is 1-based.
type Page struct {
	Number int
	Path   string
}

// Backend renders the first pages of a PDF file into a directory.
type Backend interface {
	Name() string
	PageCount(ctx context.Context, pdfPath string) (int, error)
	// Render writes pages 1..pages into outDir and returns them in page order.
	Render(ctx context.Context, pdfPath, outDir string, pages int) ([]Page, error)
}

const (
	BackendFitz     = "fitz"
	BackendPdftoppm = "pdftoppm"
)

// NewBackend builds the backend named in cfg. The pdftoppm backend is built
// even when tool is unresolved and reports the missing binary on use.
func NewBackend(cfg config.RasterConfig, tool Toolchain) (Backend, error) {
	switch strings.ToLower(cfg.Backend) {
	case BackendPdftoppm, "":
		return NewPopplerBackend(tool, cfg.DPI, cfg.JPEGQuality), nil
	case BackendFitz:
		return NewFitzBackend(cfg.DPI, cfg.JPEGQuality), nil
	default:
		return nil, fmt.Errorf("unsupported raster backend: %s", cfg.Backend)
	}
}

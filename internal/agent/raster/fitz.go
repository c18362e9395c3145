package raster

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
)

// FitzBackend renders in process with MuPDF.
type FitzBackend struct {
	dpi     int
	quality int
}

func NewFitzBackend(dpi, quality int) *FitzBackend {
	return &FitzBackend{dpi: dpi, quality: quality}
}

func (b *FitzBackend) Name() string { return BackendFitz }

func (b *FitzBackend) PageCount(ctx context.Context, pdfPath string) (int, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer doc.Close()
	return doc.NumPage(), nil
}

// Render checks ctx between pages; a single page render is not interruptible.
func (b *FitzBackend) Render(ctx context.Context, pdfPath, outDir string, pages int) ([]Page, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer doc.Close()

	if n := doc.NumPage(); pages > n {
		pages = n
	}
	out := make([]Page, 0, pages)
	for i := 0; i < pages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := doc.ImageDPI(i, float64(b.dpi))
		if err != nil {
			return nil, fmt.Errorf("failed to render page %d: %w", i+1, err)
		}
		path := filepath.Join(outDir, fmt.Sprintf("%s-%02d.jpg", outputPrefix, i+1))
		if err := imaging.Save(img, path, imaging.JPEGQuality(b.quality)); err != nil {
			return nil, fmt.Errorf("failed to write page %d: %w", i+1, err)
		}
		out = append(out, Page{Number: i + 1, Path: path})
	}
	return out, nil
}

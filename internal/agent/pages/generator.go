// Package pages turns PDF attachments into persisted page images.
package pages

import (
	"context"
	"fmt"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/cieplik206/dokumenty/internal/agent/raster"
	"github.com/cieplik206/dokumenty/internal/media"
	"github.com/cieplik206/dokumenty/internal/models"
	"github.com/cieplik206/dokumenty/pkg/logger"
)

type Generator struct {
	media      *media.Library
	rasterizer *raster.Rasterizer
	logger     logger.Logger
}

func NewGenerator(lib *media.Library, rasterizer *raster.Rasterizer, log logger.Logger) *Generator {
	return &Generator{
		media:      lib,
		rasterizer: rasterizer,
		logger:     log.Named("pages"),
	}
}

// EnsurePages returns up to limit page images of a PDF source owned by owner,
// rendering and storing them on first use. Non-PDF sources yield no pages.
func (g *Generator) EnsurePages(ctx context.Context, owner models.Owner, source *models.Media, limit int) ([]*models.Media, error) {
	if limit <= 0 || source == nil || !source.IsPDF() {
		return []*models.Media{}, nil
	}

	existing, err := g.Existing(ctx, owner, source.ID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		if len(existing) > limit {
			existing = existing[:limit]
		}
		return existing, nil
	}

	dir, err := os.MkdirTemp("", "intake-source-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create download dir: %w", err)
	}
	defer os.RemoveAll(dir)

	pdfPath, err := g.media.Download(ctx, source, dir)
	if err != nil {
		return nil, err
	}

	res, err := g.rasterizer.Rasterize(ctx, pdfPath, limit)
	if err != nil {
		return nil, err
	}
	defer res.Cleanup()

	stem := Slug(strings.TrimSuffix(source.FileName, path.Ext(source.FileName)))
	stored := make([]*models.Media, 0, len(res.Pages))
	for _, page := range res.Pages {
		m, err := g.storePage(ctx, owner, source, stem, page)
		if err != nil {
			g.rollback(ctx, stored)
			return nil, err
		}
		stored = append(stored, m)
	}

	g.logger.Info("Generated pdf pages",
		logger.Int64("sourceMediaId", source.ID),
		logger.String("owner", string(owner.Type)),
		logger.Int64("ownerId", owner.ID),
		logger.Int("pages", len(stored)),
	)
	return stored, nil
}

// Existing lists the stored pages of source, sorted by page number.
func (g *Generator) Existing(ctx context.Context, owner models.Owner, sourceID int64) ([]*models.Media, error) {
	all, err := g.media.List(ctx, owner, models.CollectionPages)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Media, 0, len(all))
	for _, m := range all {
		if m.Properties.SourceMediaID == sourceID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Properties.Page < out[j].Properties.Page })
	return out, nil
}

func (g *Generator) storePage(ctx context.Context, owner models.Owner, source *models.Media, stem string, page raster.Page) (*models.Media, error) {
	f, err := os.Open(page.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open page %d: %w", page.Number, err)
	}
	defer f.Close()

	return g.media.Add(ctx, media.Upload{
		Owner:      owner,
		Collection: models.CollectionPages,
		FileName:   fmt.Sprintf("%s-%02d.jpg", stem, page.Number),
		MimeType:   "image/jpeg",
		Properties: models.MediaProperties{SourceMediaID: source.ID, Page: page.Number},
		Body:       f,
		Thumbnail:  true,
	})
}

func (g *Generator) rollback(ctx context.Context, stored []*models.Media) {
	for _, m := range stored {
		if err := g.media.Delete(context.WithoutCancel(ctx), m); err != nil {
			g.logger.Warn("Failed to remove partial page", logger.Int64("mediaId", m.ID), logger.Error(err))
		}
	}
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slug lowercases s and joins its alphanumeric runs with dashes.
func Slug(s string) string {
	s = strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
	if s == "" {
		return "page"
	}
	return s
}

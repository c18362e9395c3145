package raster

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"

	"github.com/cieplik206/dokumenty/config"
	"github.com/cieplik206/dokumenty/internal/apperr"
	"github.com/cieplik206/dokumenty/pkg/logger"
)

// ErrNoPages is returned when rendering produced nothing usable.
var ErrNoPages = errors.New("no usable pages")

// Rasterizer renders a capped number of pages with a Backend and normalizes
// them to 8-bit JPEG.
type Rasterizer struct {
	backend  Backend
	maxPages int
	quality  int
	timeout  time.Duration
	logger   logger.Logger
}

func NewRasterizer(backend Backend, maxPages int, cfg config.RasterConfig, log logger.Logger) *Rasterizer {
	return &Rasterizer{
		backend:  backend,
		maxPages: maxPages,
		quality:  cfg.JPEGQuality,
		timeout:  cfg.RenderTimeout,
		logger:   log.Named("raster"),
	}
}

func (r *Rasterizer) Backend() Backend { return r.backend }

// Result holds rendered pages in a temp dir owned by the result.
type Result struct {
	Dir   string
	Pages []Page
}

// Cleanup removes the temp dir.
func (res *Result) Cleanup() {
	if res != nil && res.Dir != "" {
		os.RemoveAll(res.Dir)
		res.Dir = ""
	}
}

// Limit caps limit at the page count and the configured maximum.
func (r *Rasterizer) Limit(count, limit int) int {
	return min(count, r.maxPages, limit)
}

// Rasterize renders up to limit pages of pdfPath. A cap below one yields an
// empty result. When the page count fails the backend still renders up to
// the cap, and the source is reported unreadable only if that fails too.
// On success the caller owns the result and must Cleanup.
func (r *Rasterizer) Rasterize(ctx context.Context, pdfPath string, limit int) (*Result, error) {
	if limit <= 0 {
		return &Result{}, nil
	}

	// A failed count is not final: pdftoppm repairs files the counter rejects
	// and stops at the last page on its own.
	count, countErr := r.backend.PageCount(ctx, pdfPath)
	pages := r.Limit(count, limit)
	if countErr != nil {
		r.logger.Warn("Could not count pdf pages, rendering up to the cap",
			logger.String("backend", r.backend.Name()),
			logger.String("file", filepath.Base(pdfPath)),
			logger.Error(countErr),
		)
		count = -1
		pages = min(r.maxPages, limit)
	}
	if pages < 1 {
		return &Result{}, nil
	}

	dir, err := os.MkdirTemp("", "intake-pages-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create render dir: %w", err)
	}
	res := &Result{Dir: dir}
	ok := false
	defer func() {
		if !ok {
			res.Cleanup()
		}
	}()

	renderCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		renderCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	rendered, err := r.backend.Render(renderCtx, pdfPath, dir, pages)
	if err != nil {
		if errors.Is(renderCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, apperr.ErrTimeout) {
			err = apperr.Wrap(apperr.ErrTimeout, r.backend.Name(), "rendering timed out", err)
		}
		if countErr != nil && !errors.Is(err, apperr.ErrTimeout) && !errors.Is(err, apperr.ErrDependencyMissing) {
			err = apperr.Wrap(apperr.ErrSourceUnreadable, "render pages", filepath.Base(pdfPath), errors.Join(countErr, err))
		}
		return nil, err
	}
	if len(rendered) > pages {
		rendered = rendered[:pages]
	}

	res.Pages, err = r.normalize(ctx, rendered)
	if err != nil {
		return nil, err
	}
	if len(res.Pages) == 0 {
		if countErr != nil {
			return nil, apperr.Wrap(apperr.ErrSourceUnreadable, "render pages", filepath.Base(pdfPath), countErr)
		}
		return nil, ErrNoPages
	}

	r.logger.Debug("Rendered pdf",
		logger.String("backend", r.backend.Name()),
		logger.String("file", filepath.Base(pdfPath)),
		logger.Int("pageCount", count),
		logger.Int("rendered", len(res.Pages)),
		logger.Duration("took", time.Since(start)),
	)
	ok = true
	return res, nil
}

// normalize rewrites each page in place as 8-bit RGB JPEG. Pages that cannot
// be decoded are dropped.
func (r *Rasterizer) normalize(ctx context.Context, pages []Page) ([]Page, error) {
	keep := make([]bool, len(pages))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, page := range pages {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := imaging.Open(page.Path)
			if err != nil {
				r.logger.Warn("Dropping unreadable page", logger.Int("page", page.Number), logger.Error(err))
				return nil
			}
			if err := imaging.Save(imaging.Clone(img), page.Path, imaging.JPEGQuality(r.quality)); err != nil {
				return fmt.Errorf("failed to normalize page %d: %w", page.Number, err)
			}
			keep[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Page, 0, len(pages))
	for i, page := range pages {
		if keep[i] {
			out = append(out, page)
		}
	}
	return out, nil
}

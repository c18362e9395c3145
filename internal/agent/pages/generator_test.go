package pages

import (
	"context"
	"fmt"
	"image/color"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cieplik206/dokumenty/config"
	"github.com/cieplik206/dokumenty/internal/agent/raster"
	"github.com/cieplik206/dokumenty/internal/apperr"
	"github.com/cieplik206/dokumenty/internal/media"
	"github.com/cieplik206/dokumenty/internal/models"
	"github.com/cieplik206/dokumenty/internal/repository"
	"github.com/cieplik206/dokumenty/pkg/logger"
	"github.com/cieplik206/dokumenty/pkg/storage/local"
)

type stubBackend struct {
	count   int
	renders int
}

func (s *stubBackend) Name() string { return "stub" }

func (s *stubBackend) PageCount(ctx context.Context, pdfPath string) (int, error) {
	return s.count, nil
}

func (s *stubBackend) Render(ctx context.Context, pdfPath, outDir string, pages int) ([]raster.Page, error) {
	s.renders++
	out := make([]raster.Page, 0, pages)
	for i := 1; i <= pages; i++ {
		p := filepath.Join(outDir, fmt.Sprintf("page-%d.jpg", i))
		if err := imaging.Save(imaging.New(300, 400, color.White), p); err != nil {
			return nil, err
		}
		out = append(out, raster.Page{Number: i, Path: p})
	}
	return out, nil
}

type fixture struct {
	gen     *Generator
	lib     *media.Library
	backend *stubBackend
}

func newFixture(t *testing.T, pageCount int) *fixture {
	t.Helper()
	log := logger.NewTestLogger()
	store, err := local.NewLocalStorage(t.TempDir(), log)
	require.NoError(t, err)
	lib := media.NewLibrary(repository.NewMemoryStore(), store, media.Options{}, log)
	backend := &stubBackend{count: pageCount}
	r := raster.NewRasterizer(backend, 10, config.RasterConfig{JPEGQuality: 70, RenderTimeout: time.Minute}, log)
	return &fixture{gen: NewGenerator(lib, r, log), lib: lib, backend: backend}
}

func (f *fixture) addPDF(t *testing.T, owner models.Owner, name string) *models.Media {
	t.Helper()
	m, err := f.lib.Add(context.Background(), media.Upload{
		Owner:      owner,
		Collection: models.CollectionScans,
		FileName:   name,
		MimeType:   "application/pdf",
		Body:       strings.NewReader("%PDF-1.4 stub"),
	})
	require.NoError(t, err)
	return m
}

func TestEnsurePagesGeneratesOnce(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	owner := models.IntakeOwner(1)
	src := f.addPDF(t, owner, "Bank Statement.pdf")

	pages, err := f.gen.EnsurePages(ctx, owner, src, 10)
	require.NoError(t, err)
	require.Len(t, pages, 3)
	for i, p := range pages {
		assert.Equal(t, fmt.Sprintf("bank-statement-%02d.jpg", i+1), p.FileName)
		assert.Equal(t, "image/jpeg", p.MimeType)
		assert.Equal(t, models.MediaProperties{SourceMediaID: src.ID, Page: i + 1}, p.Properties)
		_, ok := p.ConversionKey(models.ConversionThumb)
		assert.True(t, ok)
	}

	again, err := f.gen.EnsurePages(ctx, owner, src, 2)
	require.NoError(t, err)
	require.Len(t, again, 2)
	assert.Equal(t, pages[0].ID, again[0].ID)
	assert.Equal(t, 1, f.backend.renders)
}

func TestEnsurePagesLimitAndNonPDF(t *testing.T) {
	f := newFixture(t, 8)
	ctx := context.Background()
	owner := models.IntakeOwner(1)
	src := f.addPDF(t, owner, "scan.pdf")

	pages, err := f.gen.EnsurePages(ctx, owner, src, 0)
	require.NoError(t, err)
	assert.Empty(t, pages)

	img := &models.Media{ID: 99, MimeType: "image/png", FileName: "a.png"}
	pages, err = f.gen.EnsurePages(ctx, owner, img, 5)
	require.NoError(t, err)
	assert.Empty(t, pages)

	pages, err = f.gen.EnsurePages(ctx, owner, src, 4)
	require.NoError(t, err)
	assert.Len(t, pages, 4)
}

func TestEnsurePagesMissingSource(t *testing.T) {
	f := newFixture(t, 1)
	src := &models.Media{ID: 5, MimeType: "application/pdf", FileName: "gone.pdf", StorageKey: "media/none/gone.pdf"}

	_, err := f.gen.EnsurePages(context.Background(), models.IntakeOwner(1), src, 3)
	assert.ErrorIs(t, err, apperr.ErrSourceUnreadable)
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "faktura-vat-2024", Slug("Faktura VAT (2024)"))
	assert.Equal(t, "page", Slug("___"))
}

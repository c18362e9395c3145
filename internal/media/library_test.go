package media

import (
	"bytes"
	"context"
	"image/color"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cieplik206/dokumenty/config"
	"github.com/cieplik206/dokumenty/internal/apperr"
	"github.com/cieplik206/dokumenty/internal/models"
	"github.com/cieplik206/dokumenty/internal/repository"
	"github.com/cieplik206/dokumenty/pkg/logger"
	"github.com/cieplik206/dokumenty/pkg/storage/local"
)

func newTestLibrary(t *testing.T) (*Library, *repository.MemoryStore) {
	t.Helper()
	log := logger.NewTestLogger()
	store, err := local.NewLocalStorage(t.TempDir(), log)
	require.NoError(t, err)
	repo := repository.NewMemoryStore()
	lib := NewLibrary(repo, store, Options{
		Thumbnail:     config.ThumbnailConfig{Width: 150, Height: 200, Quality: 80},
		PublicBaseURL: "http://localhost:8080/",
	}, log)
	return lib, repo
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := imaging.New(w, h, color.NRGBA{R: 200, G: 10, B: 10, A: 255})
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return buf.Bytes()
}

func TestAddImageCreatesThumbnail(t *testing.T) {
	lib, _ := newTestLibrary(t)
	ctx := context.Background()

	m, err := lib.Add(ctx, Upload{
		Owner:      models.IntakeOwner(1),
		Collection: models.CollectionScans,
		FileName:   "../receipt photo.png",
		Body:       bytes.NewReader(pngBytes(t, 600, 400)),
		Thumbnail:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, "image/png", m.MimeType)
	assert.Equal(t, "receipt-photo.png", m.FileName)

	rc, err := lib.Open(ctx, m, models.ConversionThumb)
	require.NoError(t, err)
	defer rc.Close()
	img, err := imaging.Decode(rc)
	require.NoError(t, err)
	assert.LessOrEqual(t, img.Bounds().Dx(), 150)
	assert.LessOrEqual(t, img.Bounds().Dy(), 200)

	stored, err := lib.Get(ctx, m.ID)
	require.NoError(t, err)
	_, ok := stored.ConversionKey(models.ConversionThumb)
	assert.True(t, ok)
}

func TestAddNonImageSkipsThumbnail(t *testing.T) {
	lib, _ := newTestLibrary(t)
	m, err := lib.Add(context.Background(), Upload{
		Owner:      models.IntakeOwner(1),
		Collection: models.CollectionScans,
		FileName:   "scan.pdf",
		MimeType:   "application/pdf",
		Body:       strings.NewReader("%PDF-1.4"),
		Thumbnail:  true,
	})
	require.NoError(t, err)
	assert.Empty(t, m.Conversions)

	_, err = lib.Open(context.Background(), m, models.ConversionThumb)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMoveClearAndDownload(t *testing.T) {
	lib, _ := newTestLibrary(t)
	ctx := context.Background()
	intake := models.IntakeOwner(3)
	doc := models.DocumentOwner(9)

	m, err := lib.Add(ctx, Upload{Owner: intake, Collection: models.CollectionScans, FileName: "a.txt", Body: strings.NewReader("hello")})
	require.NoError(t, err)

	path, err := lib.Download(ctx, m, t.TempDir())
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	n, err := lib.Move(ctx, intake, doc, models.CollectionScans)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, lib.Clear(ctx, doc, models.CollectionScans))
	left, err := lib.List(ctx, doc, "")
	require.NoError(t, err)
	assert.Empty(t, left)

	_, err = lib.Load(ctx, m)
	assert.ErrorIs(t, err, apperr.ErrSourceUnreadable)
}

func TestURLFallsBackToSignedMediaEndpoint(t *testing.T) {
	lib, _ := newTestLibrary(t)
	now := time.Unix(1_700_000_000, 0)
	lib.now = func() time.Time { return now }
	m := &models.Media{ID: 42, StorageKey: "media/x/a.jpg", Conversions: map[string]string{"thumb": "media/x/conversions/a-thumb.jpg"}}

	full, err := url.Parse(lib.URL(context.Background(), m, ""))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/api/v1/media/42", full.Scheme+"://"+full.Host+full.Path)
	q := full.Query()
	assert.False(t, q.Has(ParamConversion))
	assert.Equal(t, "1700000900", q.Get(ParamExpires))
	assert.NoError(t, lib.Verify(42, "", q.Get(ParamExpires), q.Get(ParamSignature)))

	thumb, err := url.Parse(lib.URL(context.Background(), m, models.ConversionThumb))
	require.NoError(t, err)
	tq := thumb.Query()
	assert.Equal(t, models.ConversionThumb, tq.Get(ParamConversion))
	assert.NoError(t, lib.Verify(42, models.ConversionThumb, tq.Get(ParamExpires), tq.Get(ParamSignature)))

	assert.Empty(t, lib.URL(context.Background(), &models.Media{ID: 1}, models.ConversionThumb))
}

func TestVerifyRejectsForgedLinks(t *testing.T) {
	lib, _ := newTestLibrary(t)
	now := time.Unix(1_700_000_000, 0)
	lib.now = func() time.Time { return now }
	m := &models.Media{ID: 42, StorageKey: "media/x/a.jpg", Conversions: map[string]string{"thumb": "media/x/conversions/a-thumb.jpg"}}
	signed, err := url.Parse(lib.URL(context.Background(), m, ""))
	require.NoError(t, err)
	exp, sig := signed.Query().Get(ParamExpires), signed.Query().Get(ParamSignature)

	cases := []struct {
		name       string
		id         int64
		conversion string
		expires    string
		signature  string
	}{
		{"unsigned", 42, "", "", ""},
		{"other id", 43, "", exp, sig},
		{"other conversion", 42, models.ConversionThumb, exp, sig},
		{"extended expiry", 42, "", "1800000000", sig},
		{"garbage expiry", 42, "", "soon", sig},
		{"tampered signature", 42, "", exp, strings.Repeat("0", len(sig))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, lib.Verify(tc.id, tc.conversion, tc.expires, tc.signature), apperr.ErrNotFound)
		})
	}

	lib.now = func() time.Time { return now.Add(time.Hour) }
	assert.ErrorIs(t, lib.Verify(42, "", exp, sig), apperr.ErrNotFound, "expired link")
}

func TestSigningKeySharedAcrossLibraries(t *testing.T) {
	log := logger.NewTestLogger()
	store, err := local.NewLocalStorage(t.TempDir(), log)
	require.NoError(t, err)
	key := []byte("shared-secret")
	issuer := NewLibrary(repository.NewMemoryStore(), store, Options{SigningKey: key}, log)
	checker := NewLibrary(repository.NewMemoryStore(), store, Options{SigningKey: key}, log)
	stranger := NewLibrary(repository.NewMemoryStore(), store, Options{}, log)

	u, err := url.Parse(issuer.URL(context.Background(), &models.Media{ID: 7, StorageKey: "k"}, ""))
	require.NoError(t, err)
	q := u.Query()
	assert.NoError(t, checker.Verify(7, "", q.Get(ParamExpires), q.Get(ParamSignature)))
	assert.ErrorIs(t, stranger.Verify(7, "", q.Get(ParamExpires), q.Get(ParamSignature)), apperr.ErrNotFound)
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "scan.pdf", SafeName("C:\\Users\\me\\scan.pdf"))
	assert.Equal(t, "file", SafeName("../.."))
	assert.Equal(t, "a-b.jpg", SafeName("a b.jpg"))
}

func TestConversionKey(t *testing.T) {
	assert.Equal(t, "media/u/conversions/a-thumb.jpg", conversionKey("media/u/a.png", "thumb"))
}

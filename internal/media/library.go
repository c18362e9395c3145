// Package media stores attachments: blobs in pkg/storage, records in the
// repository, grouped by owner and collection.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/cieplik206/dokumenty/config"
	"github.com/cieplik206/dokumenty/internal/apperr"
	"github.com/cieplik206/dokumenty/internal/models"
	"github.com/cieplik206/dokumenty/internal/repository"
	"github.com/cieplik206/dokumenty/pkg/logger"
	"github.com/cieplik206/dokumenty/pkg/storage"
)

// Upload describes a new attachment.
type Upload struct {
	Owner      models.Owner
	Collection string
	FileName   string
	// MimeType is sniffed from the content when empty.
	MimeType   string
	Properties models.MediaProperties
	Body       io.Reader
	// Thumbnail requests a thumb conversion for image uploads.
	Thumbnail bool
}

type Options struct {
	Thumbnail     config.ThumbnailConfig
	PublicBaseURL string
	// PresignExpiry also bounds how long media endpoint links stay valid.
	PresignExpiry time.Duration
	// SigningKey signs media endpoint links. A random key is used when
	// empty, which invalidates links on restart.
	SigningKey []byte
}

type Library struct {
	repo    repository.MediaRepository
	storage storage.Storage
	opts    Options
	signer  urlSigner
	now     func() time.Time
	logger  logger.Logger
}

func NewLibrary(repo repository.MediaRepository, store storage.Storage, opts Options, log logger.Logger) *Library {
	if opts.Thumbnail.Width <= 0 || opts.Thumbnail.Height <= 0 {
		opts.Thumbnail = config.DefaultIntakeConfig().Thumbnail
	}
	if opts.PresignExpiry <= 0 {
		opts.PresignExpiry = 15 * time.Minute
	}
	return &Library{
		repo:    repo,
		storage: store,
		opts:    opts,
		signer:  newURLSigner(opts.SigningKey),
		now:     time.Now,
		logger:  log.Named("media"),
	}
}

// Add stores the blob and records it. Thumbnail failures are logged only.
func (l *Library) Add(ctx context.Context, u Upload) (*models.Media, error) {
	data, err := io.ReadAll(u.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	mimeType := u.MimeType
	if mimeType == "" {
		mimeType = mimetype.Detect(data).String()
	}
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}

	name := SafeName(u.FileName)
	key, err := l.storage.Store(ctx, bytes.NewReader(data), blobKey(name))
	if err != nil {
		return nil, err
	}

	m := &models.Media{
		Owner:      u.Owner,
		Collection: u.Collection,
		FileName:   name,
		MimeType:   mimeType,
		Size:       int64(len(data)),
		StorageKey: key,
		Properties: u.Properties,
	}
	if err := l.repo.AddMedia(ctx, m); err != nil {
		if derr := l.storage.Delete(ctx, key); derr != nil {
			l.logger.Warn("Failed to remove orphaned blob", logger.String("key", key), logger.Error(derr))
		}
		return nil, fmt.Errorf("failed to record media: %w", err)
	}

	if u.Thumbnail && m.IsImage() {
		if err := l.addThumbnail(ctx, m, data); err != nil {
			l.logger.Warn("Thumbnail generation failed",
				logger.Int64("mediaId", m.ID),
				logger.String("file", m.FileName),
				logger.Error(err),
			)
		}
	}

	l.logger.Debug("Media added",
		logger.Int64("mediaId", m.ID),
		logger.String("owner", string(m.Owner.Type)),
		logger.Int64("ownerId", m.Owner.ID),
		logger.String("collection", m.Collection),
		logger.Int64("size", m.Size),
	)
	return m, nil
}

// Thumbnail renders the thumb conversion of an existing image attachment.
func (l *Library) Thumbnail(ctx context.Context, m *models.Media) error {
	if !m.IsImage() {
		return nil
	}
	data, err := l.Load(ctx, m)
	if err != nil {
		return err
	}
	return l.addThumbnail(ctx, m, data)
}

func (l *Library) addThumbnail(ctx context.Context, m *models.Media, data []byte) error {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}
	thumb := imaging.Fit(img, l.opts.Thumbnail.Width, l.opts.Thumbnail.Height, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(l.opts.Thumbnail.Quality)); err != nil {
		return fmt.Errorf("failed to encode thumbnail: %w", err)
	}

	key, err := l.storage.Store(ctx, &buf, conversionKey(m.StorageKey, models.ConversionThumb))
	if err != nil {
		return err
	}
	if err := l.repo.SetConversion(ctx, m.ID, models.ConversionThumb, key); err != nil {
		return err
	}
	if m.Conversions == nil {
		m.Conversions = make(map[string]string)
	}
	m.Conversions[models.ConversionThumb] = key
	return nil
}

func (l *Library) Get(ctx context.Context, id int64) (*models.Media, error) {
	return l.repo.GetMedia(ctx, id)
}

// List returns the owner's attachments in id order. An empty collection lists all.
func (l *Library) List(ctx context.Context, owner models.Owner, collection string) ([]*models.Media, error) {
	return l.repo.ListMedia(ctx, owner, collection)
}

// Open streams the attachment or one of its conversions.
func (l *Library) Open(ctx context.Context, m *models.Media, conversion string) (io.ReadCloser, error) {
	key := m.StorageKey
	if conversion != "" {
		var ok bool
		if key, ok = m.ConversionKey(conversion); !ok {
			return nil, fmt.Errorf("media %d has no %s conversion: %w", m.ID, conversion, apperr.ErrNotFound)
		}
	}
	return l.storage.Get(ctx, key)
}

// Load reads the whole attachment into memory.
func (l *Library) Load(ctx context.Context, m *models.Media) ([]byte, error) {
	rc, err := l.Open(ctx, m, "")
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrSourceUnreadable, "load media", m.FileName, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrSourceUnreadable, "load media", m.FileName, err)
	}
	return data, nil
}

// Download copies the attachment into dir and returns the file path.
func (l *Library) Download(ctx context.Context, m *models.Media, dir string) (string, error) {
	rc, err := l.Open(ctx, m, "")
	if err != nil {
		return "", apperr.Wrap(apperr.ErrSourceUnreadable, "download media", m.FileName, err)
	}
	defer rc.Close()

	dst := filepath.Join(dir, fmt.Sprintf("%d-%s", m.ID, SafeName(m.FileName)))
	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("failed to create download file: %w", err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		return "", apperr.Wrap(apperr.ErrSourceUnreadable, "download media", m.FileName, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return dst, nil
}

// Move reassigns a collection to another owner.
func (l *Library) Move(ctx context.Context, from, to models.Owner, collection string) (int64, error) {
	n, err := l.repo.MoveMedia(ctx, from, to, collection)
	if err != nil {
		return 0, fmt.Errorf("failed to move %s: %w", collection, err)
	}
	return n, nil
}

// Clear deletes every attachment of the owner's collection.
func (l *Library) Clear(ctx context.Context, owner models.Owner, collection string) error {
	items, err := l.repo.ListMedia(ctx, owner, collection)
	if err != nil {
		return err
	}
	var errs []error
	for _, m := range items {
		if err := l.Delete(ctx, m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Delete removes the record first, then its blobs. Blob failures are logged.
func (l *Library) Delete(ctx context.Context, m *models.Media) error {
	if err := l.repo.DeleteMedia(ctx, m.ID); err != nil {
		return fmt.Errorf("failed to delete media %d: %w", m.ID, err)
	}
	keys := []string{m.StorageKey}
	for _, key := range m.Conversions {
		keys = append(keys, key)
	}
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := l.storage.Delete(ctx, key); err != nil {
			l.logger.Warn("Failed to delete blob", logger.String("key", key), logger.Error(err))
		}
	}
	return nil
}

// URL returns a download URL for the attachment or a conversion. Backends
// that presign get a direct link; the rest get a signed, expiring link to the
// media endpoint.
func (l *Library) URL(ctx context.Context, m *models.Media, conversion string) string {
	key := m.StorageKey
	if conversion != "" {
		var ok bool
		if key, ok = m.ConversionKey(conversion); !ok {
			return ""
		}
	}
	if p, ok := l.storage.(storage.Presigner); ok {
		u, err := p.PresignGet(ctx, key, l.opts.PresignExpiry)
		if err == nil {
			return u
		}
		l.logger.Warn("Presign failed, using media endpoint", logger.Int64("mediaId", m.ID), logger.Error(err))
	}
	return fmt.Sprintf("%s/api/v1/media/%d?%s",
		strings.TrimRight(l.opts.PublicBaseURL, "/"), m.ID,
		l.signer.query(m.ID, conversion, l.now().Add(l.opts.PresignExpiry)))
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SafeName reduces a client file name to a storage-safe base name.
func SafeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Trim(unsafeChars.ReplaceAllString(name, "-"), "-.")
	if name == "" {
		return "file"
	}
	return name
}

func blobKey(name string) string {
	return fmt.Sprintf("media/%s/%s", uuid.NewString(), name)
}

func conversionKey(key, conversion string) string {
	dir, file := path.Split(key)
	stem := strings.TrimSuffix(file, path.Ext(file))
	return fmt.Sprintf("%sconversions/%s-%s.jpg", dir, stem, conversion)
}

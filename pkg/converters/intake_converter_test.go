package converters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/color"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cieplik206/dokumenty/internal/media"
	"github.com/cieplik206/dokumenty/internal/models"
	"github.com/cieplik206/dokumenty/internal/repository"
	"github.com/cieplik206/dokumenty/pkg/logger"
	"github.com/cieplik206/dokumenty/pkg/storage/local"
)

func newTestConverter(t *testing.T) (*IntakeConverter, *media.Library) {
	t.Helper()
	log := logger.NewTestLogger()
	blobs, err := local.NewLocalStorage(t.TempDir(), log)
	require.NoError(t, err)
	lib := media.NewLibrary(repository.NewMemoryStore(), blobs, media.Options{PublicBaseURL: "http://app"}, log)
	return NewIntakeConverter(lib, log), lib
}

func addMedia(t *testing.T, lib *media.Library, owner models.Owner, collection, name, mime string, page int) *models.Media {
	t.Helper()
	body := []byte("%PDF-1.4")
	if mime != "application/pdf" {
		var buf bytes.Buffer
		require.NoError(t, imaging.Encode(&buf, imaging.New(6, 6, color.White), imaging.JPEG))
		body = buf.Bytes()
	}
	m, err := lib.Add(context.Background(), media.Upload{
		Owner:      owner,
		Collection: collection,
		FileName:   name,
		MimeType:   mime,
		Properties: models.MediaProperties{Page: page},
		Body:       bytes.NewReader(body),
		Thumbnail:  true,
	})
	require.NoError(t, err)
	return m
}

func TestConvertUsesPagesInOrder(t *testing.T) {
	c, lib := newTestConverter(t)
	owner := models.IntakeOwner(1)
	scan := addMedia(t, lib, owner, models.CollectionScans, "a.pdf", "application/pdf", 0)
	p2 := addMedia(t, lib, owner, models.CollectionPages, "a-02.jpg", "image/jpeg", 2)
	p1 := addMedia(t, lib, owner, models.CollectionPages, "a-01.jpg", "image/jpeg", 1)

	fields := &models.Fields{}
	fields.Set(models.FieldTitle, json.RawMessage(`"Invoice"`))
	in := &models.Intake{ID: 1, Status: models.IntakeDone, OriginalName: "a.pdf", Fields: fields}

	view, err := c.Convert(context.Background(), in)
	require.NoError(t, err)

	require.Len(t, view.Pages, 2)
	assert.Equal(t, p1.ID, view.Pages[0].ID)
	assert.Equal(t, 1, view.Pages[0].Page)
	assert.Equal(t, p2.ID, view.Pages[1].ID)
	assert.True(t, strings.HasPrefix(view.Pages[0].URL, fmt.Sprintf("http://app/api/v1/media/%d?expires=", p1.ID)))
	require.NotNil(t, view.Pages[0].ThumbURL)
	assert.True(t, strings.HasPrefix(*view.Pages[0].ThumbURL, fmt.Sprintf("http://app/api/v1/media/%d?conversion=thumb&expires=", p1.ID)))
	assert.Equal(t, view.Pages[0].ThumbURL, view.PreviewURL)
	assert.Equal(t, view.Pages[0].URL, *view.PreviewFullURL)

	assert.Equal(t, 1, view.ScansCount)
	assert.Equal(t, scan.Size, view.ScansSize)
	require.NotNil(t, view.Title)
	assert.Equal(t, "Invoice", *view.Title)
	assert.Nil(t, view.StorageType)
}

func TestConvertFallsBackToDocumentMedia(t *testing.T) {
	c, lib := newTestConverter(t)
	docID := int64(50)
	img := addMedia(t, lib, models.DocumentOwner(docID), models.CollectionScans, "photo.jpg", "image/jpeg", 0)
	addMedia(t, lib, models.DocumentOwner(docID), models.CollectionScans, "other.pdf", "application/pdf", 0)

	in := &models.Intake{ID: 2, Status: models.IntakeFinalized, DocumentID: &docID, StorageType: models.StorageElectronic}
	view, err := c.Convert(context.Background(), in)
	require.NoError(t, err)

	require.Len(t, view.Pages, 1)
	assert.Equal(t, img.ID, view.Pages[0].ID)
	assert.Equal(t, 1, view.Pages[0].Page)
	assert.Equal(t, 2, view.ScansCount)
	require.NotNil(t, view.StorageType)
	assert.Equal(t, "electronic", *view.StorageType)
}

func TestConvertWithoutMedia(t *testing.T) {
	c, _ := newTestConverter(t)
	view, err := c.Convert(context.Background(), &models.Intake{ID: 3, Status: models.IntakeUploaded})
	require.NoError(t, err)

	data, err := json.Marshal(view)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"pages":[]`)
	assert.Contains(t, string(data), `"preview_url":null`)
	assert.Contains(t, string(data), `"fields":null`)
	assert.Nil(t, view.Title)
}

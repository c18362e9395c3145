// Package converters shapes intakes into their API representation.
package converters

import (
	"context"
	"sort"
	"time"

	"github.com/cieplik206/dokumenty/internal/media"
	"github.com/cieplik206/dokumenty/internal/models"
	"github.com/cieplik206/dokumenty/pkg/logger"
)

// PageView is one preview image of an intake.
type PageView struct {
	ID       int64   `json:"id"`
	Page     int     `json:"page"`
	URL      string  `json:"url"`
	ThumbURL *string `json:"thumb_url"`
}

// IntakeView is the polling representation of an intake.
type IntakeView struct {
	ID               int64                   `json:"id"`
	Status           models.IntakeStatus     `json:"status"`
	DocumentID       *int64                  `json:"document_id"`
	OriginalName     string                  `json:"original_name"`
	Title            *string                 `json:"title"`
	StorageType      *string                 `json:"storage_type"`
	PreviewURL       *string                 `json:"preview_url"`
	PreviewFullURL   *string                 `json:"preview_full_url"`
	Pages            []PageView              `json:"pages"`
	ScansCount       int                     `json:"scans_count"`
	ScansSize        int64                   `json:"scans_size"`
	Fields           *models.Fields          `json:"fields"`
	ExtractedText    *string                 `json:"extracted_text"`
	ExtractedContent models.ExtractedContent `json:"extracted_content"`
	Metadata         models.AIMetadata       `json:"metadata"`
	ErrorMessage     *string                 `json:"error_message"`
	StartedAt        *time.Time              `json:"started_at"`
	FinishedAt       *time.Time              `json:"finished_at"`
	FinalizedAt      *time.Time              `json:"finalized_at"`
	CreatedAt        time.Time               `json:"created_at"`
}

type IntakeConverter struct {
	media  *media.Library
	logger logger.Logger
}

func NewIntakeConverter(lib *media.Library, log logger.Logger) *IntakeConverter {
	return &IntakeConverter{media: lib, logger: log.Named("converter")}
}

// Convert builds the view of one intake. Attachments already moved to the
// produced document are looked up there.
func (c *IntakeConverter) Convert(ctx context.Context, in *models.Intake) (*IntakeView, error) {
	view := &IntakeView{
		ID:               in.ID,
		Status:           in.Status,
		DocumentID:       in.DocumentID,
		OriginalName:     in.OriginalName,
		Title:            in.Fields.OptionalString(models.FieldTitle),
		Fields:           in.Fields,
		ExtractedText:    in.ExtractedText,
		ExtractedContent: in.ExtractedContent,
		Metadata:         in.AIMetadata,
		ErrorMessage:     in.ErrorMessage,
		StartedAt:        in.StartedAt,
		FinishedAt:       in.FinishedAt,
		FinalizedAt:      in.FinalizedAt,
		CreatedAt:        in.CreatedAt,
		Pages:            []PageView{},
	}
	if in.StorageType != "" {
		st := string(in.StorageType)
		view.StorageType = &st
	}

	owners := []models.Owner{models.IntakeOwner(in.ID)}
	if in.DocumentID != nil {
		owners = append(owners, models.DocumentOwner(*in.DocumentID))
	}

	scans, err := c.firstNonEmpty(ctx, owners, models.CollectionScans)
	if err != nil {
		return nil, err
	}
	view.ScansCount = len(scans)
	for _, s := range scans {
		view.ScansSize += s.Size
	}

	preview, err := c.previewMedia(ctx, owners)
	if err != nil {
		return nil, err
	}
	for i, m := range preview {
		view.Pages = append(view.Pages, c.pageView(ctx, m, i))
	}
	if len(view.Pages) > 0 {
		first := view.Pages[0]
		view.PreviewURL = first.ThumbURL
		view.PreviewFullURL = &first.URL
	}
	return view, nil
}

// ConvertAll converts intakes in order.
func (c *IntakeConverter) ConvertAll(ctx context.Context, intakes []*models.Intake) ([]*IntakeView, error) {
	out := make([]*IntakeView, 0, len(intakes))
	for _, in := range intakes {
		v, err := c.Convert(ctx, in)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// previewMedia prefers generated pages, then image scans, each looked up on
// the intake before the document.
func (c *IntakeConverter) previewMedia(ctx context.Context, owners []models.Owner) ([]*models.Media, error) {
	generated, err := c.firstNonEmpty(ctx, owners, models.CollectionPages)
	if err != nil {
		return nil, err
	}
	if len(generated) > 0 {
		sort.SliceStable(generated, func(i, j int) bool {
			return generated[i].Properties.Page < generated[j].Properties.Page
		})
		return generated, nil
	}

	for _, owner := range owners {
		scans, err := c.media.List(ctx, owner, models.CollectionScans)
		if err != nil {
			return nil, err
		}
		images := scans[:0]
		for _, s := range scans {
			if s.IsImage() {
				images = append(images, s)
			}
		}
		if len(images) > 0 {
			return images, nil
		}
	}
	return nil, nil
}

func (c *IntakeConverter) firstNonEmpty(ctx context.Context, owners []models.Owner, collection string) ([]*models.Media, error) {
	for _, owner := range owners {
		items, err := c.media.List(ctx, owner, collection)
		if err != nil {
			return nil, err
		}
		if len(items) > 0 {
			return items, nil
		}
	}
	return nil, nil
}

func (c *IntakeConverter) pageView(ctx context.Context, m *models.Media, index int) PageView {
	page := m.Properties.Page
	if page <= 0 {
		page = index + 1
	}
	pv := PageView{ID: m.ID, Page: page, URL: c.media.URL(ctx, m, "")}
	if _, ok := m.ConversionKey(models.ConversionThumb); ok {
		if thumb := c.media.URL(ctx, m, models.ConversionThumb); thumb != pv.URL {
			pv.ThumbURL = &thumb
		}
	}
	return pv
}

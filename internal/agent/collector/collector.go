// Package collector gathers the images sent to the vision model.
package collector

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/cieplik206/dokumenty/internal/agent/pages"
	"github.com/cieplik206/dokumenty/internal/agent/raster"
	"github.com/cieplik206/dokumenty/internal/agent/vision"
	"github.com/cieplik206/dokumenty/internal/apperr"
	"github.com/cieplik206/dokumenty/internal/media"
	"github.com/cieplik206/dokumenty/internal/models"
	"github.com/cieplik206/dokumenty/pkg/logger"
)

const mimePDF = "application/pdf"

// FilePart is a client supplied file reference. URL is a data URI or a
// remote URL.
type FilePart struct {
	MediaType string `json:"mediaType"`
	URL       string `json:"url"`
}

type Collector struct {
	media      *media.Library
	pages      *pages.Generator
	rasterizer *raster.Rasterizer
	maxImages  int
	logger     logger.Logger
}

func New(lib *media.Library, gen *pages.Generator, rasterizer *raster.Rasterizer, maxImages int, log logger.Logger) *Collector {
	return &Collector{
		media:      lib,
		pages:      gen,
		rasterizer: rasterizer,
		maxImages:  maxImages,
		logger:     log.Named("collector"),
	}
}

// BuildImages loads the intake's scans in upload order: images as is, PDFs
// as their page images, until the image budget is spent.
func (c *Collector) BuildImages(ctx context.Context, intake *models.Intake) ([]vision.Image, error) {
	owner := models.IntakeOwner(intake.ID)
	scans, err := c.media.List(ctx, owner, models.CollectionScans)
	if err != nil {
		return nil, err
	}

	images := make([]vision.Image, 0, c.maxImages)
	for _, scan := range scans {
		if len(images) >= c.maxImages {
			break
		}
		if scan.MimeType == "" || scan.StorageKey == "" {
			continue
		}

		switch {
		case scan.IsImage():
			data, err := c.media.Load(ctx, scan)
			if err != nil {
				return nil, err
			}
			images = append(images, vision.Image{MediaType: scan.MimeType, Data: data})

		case scan.IsPDF():
			pageMedia, err := c.pages.EnsurePages(ctx, owner, scan, c.maxImages-len(images))
			if err != nil {
				return nil, err
			}
			for _, page := range pageMedia {
				if len(images) >= c.maxImages {
					break
				}
				data, err := c.media.Load(ctx, page)
				if err != nil {
					return nil, err
				}
				images = append(images, vision.Image{MediaType: page.MimeType, Data: data})
			}

		default:
			c.logger.Debug("Skipping unsupported scan",
				logger.Int64("mediaId", scan.ID),
				logger.String("mimeType", scan.MimeType),
			)
		}
	}
	return images, nil
}

// BuildFromParts builds images from client file parts without persisting
// anything. PDFs must arrive as data URIs and are rendered transiently.
func (c *Collector) BuildFromParts(ctx context.Context, parts []FilePart) ([]vision.Image, error) {
	images := make([]vision.Image, 0, c.maxImages)
	for _, part := range parts {
		if len(images) >= c.maxImages {
			break
		}
		mediaType := strings.TrimSpace(part.MediaType)
		rawURL := strings.TrimSpace(part.URL)
		if mediaType == "" || rawURL == "" {
			continue
		}

		switch {
		case strings.HasPrefix(mediaType, "image/"):
			img, err := imageFromURL(rawURL, mediaType)
			if err != nil {
				return nil, err
			}
			images = append(images, img)

		case mediaType == mimePDF:
			pageImages, err := c.imagesFromPDF(ctx, rawURL, c.maxImages-len(images))
			if err != nil {
				return nil, err
			}
			images = append(images, pageImages...)
		}
	}
	return images, nil
}

func imageFromURL(rawURL, mediaType string) (vision.Image, error) {
	if !strings.HasPrefix(rawURL, "data:") {
		return vision.Image{MediaType: mediaType, URL: rawURL}, nil
	}
	mimeType, data, err := ParseDataURI(rawURL)
	if err != nil {
		return vision.Image{}, err
	}
	if mimeType == "" {
		mimeType = mediaType
	}
	return vision.Image{MediaType: mimeType, Data: data}, nil
}

func (c *Collector) imagesFromPDF(ctx context.Context, rawURL string, limit int) ([]vision.Image, error) {
	if limit <= 0 {
		return nil, nil
	}
	if !strings.HasPrefix(rawURL, "data:") {
		return nil, apperr.Invalid("files", "PDF files must be sent as data URLs")
	}
	mimeType, data, err := ParseDataURI(rawURL)
	if err != nil {
		return nil, err
	}
	if mimeType != "" && mimeType != mimePDF {
		return nil, apperr.Invalid("files", "data URL type %s does not match application/pdf", mimeType)
	}

	dir, err := os.MkdirTemp("", "intake-part-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	pdfPath := filepath.Join(dir, "part.pdf")
	if err := os.WriteFile(pdfPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write pdf: %w", err)
	}

	res, err := c.rasterizer.Rasterize(ctx, pdfPath, limit)
	if err != nil {
		return nil, err
	}
	defer res.Cleanup()

	images := make([]vision.Image, 0, len(res.Pages))
	for _, page := range res.Pages {
		pageData, err := os.ReadFile(page.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read page %d: %w", page.Number, err)
		}
		images = append(images, vision.Image{MediaType: "image/jpeg", Data: pageData})
	}
	return images, nil
}

// ParseDataURI splits "data:[<mime>][;base64],<payload>" and decodes the
// payload. The mime type is empty when the URI omits it.
func ParseDataURI(s string) (string, []byte, error) {
	meta, payload, ok := strings.Cut(s, ",")
	if !ok || !strings.HasPrefix(meta, "data:") {
		return "", nil, apperr.Invalid("files", "malformed data URL")
	}

	params := strings.Split(strings.TrimPrefix(meta, "data:"), ";")
	mimeType := strings.ToLower(strings.TrimSpace(params[0]))
	isBase64 := false
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			isBase64 = true
		}
	}

	if isBase64 {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			if data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "=")); err != nil {
				return "", nil, apperr.Invalid("files", "data URL payload is not valid base64")
			}
		}
		return mimeType, data, nil
	}

	decoded, err := url.PathUnescape(payload)
	if err != nil {
		return "", nil, apperr.Invalid("files", "data URL payload is not valid percent-encoding")
	}
	return mimeType, []byte(decoded), nil
}

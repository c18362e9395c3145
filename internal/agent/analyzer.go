// Package agent runs the vision analysis of an intake: it collects the page
// images, prompts the model and decodes its NDJSON answer.
package agent

import (
	"context"
	"time"

	"github.com/cieplik206/dokumenty/internal/agent/collector"
	"github.com/cieplik206/dokumenty/internal/agent/ndjson"
	"github.com/cieplik206/dokumenty/internal/agent/prompt"
	"github.com/cieplik206/dokumenty/internal/agent/vision"
	"github.com/cieplik206/dokumenty/internal/apperr"
	"github.com/cieplik206/dokumenty/internal/models"
	"github.com/cieplik206/dokumenty/pkg/logger"
)

// NoImagesMessage is reported when an intake has nothing the model can read.
const NoImagesMessage = "no supported images found"

// Analysis is the decoded outcome of one model call.
type Analysis struct {
	Result ndjson.Result
	Raw    string
	Images int
	Model  string
}

type Analyzer struct {
	collector *collector.Collector
	client    vision.Client
	maxTokens int
	timeout   time.Duration
	logger    logger.Logger
}

func NewAnalyzer(c *collector.Collector, client vision.Client, maxTokens int, timeout time.Duration, log logger.Logger) *Analyzer {
	return &Analyzer{
		collector: c,
		client:    client,
		maxTokens: maxTokens,
		timeout:   timeout,
		logger:    log.Named("analyzer"),
	}
}

// Analyze runs the model over the intake's scans.
func (a *Analyzer) Analyze(ctx context.Context, intake *models.Intake, categories []models.Category) (*Analysis, error) {
	images, err := a.collector.BuildImages(ctx, intake)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, apperr.Invalid("scans", NoImagesMessage)
	}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	resp, err := a.client.Complete(ctx, a.request(images, categories))
	if err != nil {
		return nil, err
	}

	a.logger.Info("Model answered",
		logger.Int64("intakeId", intake.ID),
		logger.Int("images", len(images)),
		logger.String("model", resp.Model),
		logger.Duration("took", time.Since(start)),
	)
	return &Analysis{
		Result: ndjson.Parse(resp.Text),
		Raw:    resp.Text,
		Images: len(images),
		Model:  resp.Model,
	}, nil
}

// Stream runs the model over client file parts and hands every text delta
// to onDelta as it arrives. Nothing is persisted.
func (a *Analyzer) Stream(ctx context.Context, parts []collector.FilePart, categories []models.Category, onDelta vision.DeltaFunc) (*Analysis, error) {
	images, err := a.collector.BuildFromParts(ctx, parts)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, apperr.Invalid("scans", NoImagesMessage)
	}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	resp, err := a.client.Stream(ctx, a.request(images, categories), onDelta)
	if err != nil {
		return nil, err
	}
	return &Analysis{
		Result: ndjson.Parse(resp.Text),
		Raw:    resp.Text,
		Images: len(images),
		Model:  resp.Model,
	}, nil
}

func (a *Analyzer) request(images []vision.Image, categories []models.Category) vision.Request {
	return vision.Request{
		System:    prompt.System(),
		User:      prompt.User(categories),
		Images:    images,
		MaxTokens: a.maxTokens,
	}
}

func (a *Analyzer) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.timeout)
}

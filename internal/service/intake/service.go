// Package intake orchestrates the intake lifecycle: upload, analysis runs,
// polling, finalization and deletion.
package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cieplik206/dokumenty/config"
	"github.com/cieplik206/dokumenty/internal/agent"
	"github.com/cieplik206/dokumenty/internal/agent/collector"
	"github.com/cieplik206/dokumenty/internal/agent/pages"
	"github.com/cieplik206/dokumenty/internal/agent/vision"
	"github.com/cieplik206/dokumenty/internal/apperr"
	"github.com/cieplik206/dokumenty/internal/media"
	"github.com/cieplik206/dokumenty/internal/models"
	"github.com/cieplik206/dokumenty/internal/repository"
	"github.com/cieplik206/dokumenty/pkg/logger"
	"github.com/cieplik206/dokumenty/pkg/queue"
)

const (
	notStartableMessage = "Analysis can only be started for new scans."
	notRetryableMessage = "Only failed or incomplete analyses can be retried."
	notFinishedMessage  = "Analysis has not finished yet."
	finalizedMessage    = "Finalized intakes cannot be deleted."
)

// UploadFile is one scan received from the client.
type UploadFile struct {
	Name     string
	MimeType string
	Body     io.Reader
}

type Service struct {
	store      repository.Store
	media      *media.Library
	pages      *pages.Generator
	analyzer   *agent.Analyzer
	dispatcher queue.Dispatcher
	cfg        *config.IntakeConfig
	logger     logger.Logger
	now        func() time.Time
}

func NewService(
	store repository.Store,
	lib *media.Library,
	comps *agent.Components,
	dispatcher queue.Dispatcher,
	cfg *config.IntakeConfig,
	log logger.Logger,
) *Service {
	if cfg == nil {
		cfg = config.DefaultIntakeConfig()
	}
	return &Service{
		store:      store,
		media:      lib,
		pages:      comps.Pages,
		analyzer:   comps.Analyzer,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     log.Named("intake"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Media exposes the attachment library backing the service.
func (s *Service) Media() *media.Library { return s.media }

// Upload creates one intake per file and stores the file as its scan. Page
// images of PDFs are generated right away; a failure there only costs the
// preview and is retried when the intake is analyzed.
func (s *Service) Upload(ctx context.Context, userID int64, files []UploadFile) ([]*models.Intake, error) {
	log := logger.FromContext(ctx, s.logger)
	out := make([]*models.Intake, 0, len(files))

	for _, f := range files {
		in := &models.Intake{
			UserID:       userID,
			Status:       models.IntakeUploaded,
			OriginalName: f.Name,
		}
		if err := s.store.CreateIntake(ctx, in); err != nil {
			return out, fmt.Errorf("failed to create intake: %w", err)
		}

		owner := models.IntakeOwner(in.ID)
		scan, err := s.media.Add(ctx, media.Upload{
			Owner:      owner,
			Collection: models.CollectionScans,
			FileName:   f.Name,
			MimeType:   f.MimeType,
			Body:       f.Body,
			Thumbnail:  true,
		})
		if err != nil {
			if delErr := s.store.DeleteIntake(context.WithoutCancel(ctx), in.ID); delErr != nil {
				log.Warn("Failed to drop intake after upload error",
					logger.Int64("intakeId", in.ID),
					logger.Error(delErr),
				)
			}
			return out, fmt.Errorf("failed to store scan %s: %w", f.Name, err)
		}

		if scan.IsPDF() {
			if _, err := s.pages.EnsurePages(ctx, owner, scan, s.cfg.MaxPDFPages); err != nil {
				log.Warn("Page generation failed",
					logger.Int64("intakeId", in.ID),
					logger.Int64("mediaId", scan.ID),
					logger.Error(err),
				)
			}
		}

		log.Info("Intake uploaded",
			logger.Int64("intakeId", in.ID),
			logger.String("file", f.Name),
			logger.String("mimeType", scan.MimeType),
			logger.Int64("size", scan.Size),
		)
		out = append(out, in)
	}
	return out, nil
}

// List returns the user's intakes with the given ids. No ids, no intakes.
func (s *Service) List(ctx context.Context, userID int64, ids []int64) ([]*models.Intake, error) {
	if len(ids) == 0 {
		return []*models.Intake{}, nil
	}
	return s.store.ListIntakes(ctx, userID, ids)
}

// Get loads an intake owned by userID. Other users' intakes do not exist.
func (s *Service) Get(ctx context.Context, userID, id int64) (*models.Intake, error) {
	in, err := s.store.GetIntake(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.UserID != userID {
		return nil, fmt.Errorf("intake %d: %w", id, apperr.ErrNotFound)
	}
	return in, nil
}

// Document loads the document linked to an intake, if any.
func (s *Service) Document(ctx context.Context, in *models.Intake) (*models.Document, error) {
	if in.DocumentID == nil {
		return nil, nil
	}
	doc, err := s.store.GetDocument(ctx, *in.DocumentID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	return doc, err
}

// Start queues the first analysis run of an uploaded intake.
func (s *Service) Start(ctx context.Context, userID, id int64) (*models.Intake, error) {
	return s.enqueue(ctx, userID, id, repository.QueueStart)
}

// Retry queues a new run of a failed or document-less intake.
func (s *Service) Retry(ctx context.Context, userID, id int64) (*models.Intake, error) {
	return s.enqueue(ctx, userID, id, repository.QueueRetry)
}

func (s *Service) enqueue(ctx context.Context, userID, id int64, mode repository.QueueMode) (*models.Intake, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}

	in, err := s.store.QueueIntake(ctx, id, mode)
	if errors.Is(err, apperr.ErrConflict) {
		if mode == repository.QueueRetry {
			return nil, apperr.Conflict(notRetryableMessage)
		}
		return nil, apperr.Conflict(notStartableMessage)
	}
	if err != nil {
		return nil, err
	}

	if err := s.dispatcher.DispatchIntake(ctx, id); err != nil {
		failCtx := context.WithoutCancel(ctx)
		if _, markErr := s.store.MarkFailed(failCtx, id, apperr.UserMessage(err), s.now()); markErr != nil {
			s.logger.Error("Failed to mark undispatched intake",
				logger.Int64("intakeId", id),
				logger.Error(markErr),
			)
		}
		return nil, fmt.Errorf("failed to dispatch intake %d: %w", id, err)
	}
	return in, nil
}

// Categories returns the classification vocabulary.
func (s *Service) Categories(ctx context.Context) ([]models.Category, error) {
	return s.store.ListCategories(ctx)
}

// Stream analyzes client supplied files without persisting anything and
// forwards the model output as it arrives.
func (s *Service) Stream(ctx context.Context, parts []collector.FilePart, onDelta vision.DeltaFunc) (*agent.Analysis, error) {
	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	return s.analyzer.Stream(ctx, parts, categories, onDelta)
}

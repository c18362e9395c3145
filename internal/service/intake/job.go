package intake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cieplik206/dokumenty/internal/apperr"
	"github.com/cieplik206/dokumenty/internal/models"
	"github.com/cieplik206/dokumenty/pkg/logger"
)

var movedCollections = []string{models.CollectionScans, models.CollectionPages}

// HandleIntake executes one analysis run. It is a no-op for intakes that
// are gone, done or finalized. Any failure is recorded on the intake and
// returned.
func (s *Service) HandleIntake(ctx context.Context, id int64) error {
	log := s.logger.With(logger.Int64("intakeId", id))

	claimed, err := s.store.MarkProcessing(ctx, id, s.now())
	if errors.Is(err, apperr.ErrNotFound) {
		log.Warn("Intake vanished before processing")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to claim intake %d: %w", id, err)
	}
	if !claimed {
		log.Info("Intake already settled, skipping run")
		return nil
	}

	start := time.Now()
	if err := s.run(ctx, id); err != nil {
		s.recordFailure(context.WithoutCancel(ctx), id, err)
		log.Error("Intake analysis failed",
			logger.Duration("took", time.Since(start)),
			logger.Error(err),
		)
		return err
	}
	log.Info("Intake analysis finished", logger.Duration("took", time.Since(start)))
	return nil
}

func (s *Service) run(ctx context.Context, id int64) error {
	in, err := s.store.GetIntake(ctx, id)
	if err != nil {
		return err
	}

	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return fmt.Errorf("failed to load categories: %w", err)
	}

	analysis, err := s.analyzer.Analyze(ctx, in, categories)
	if err != nil {
		return err
	}
	res := analysis.Result

	doc := buildDraft(in, res, categories)
	if existing, err := s.Document(ctx, in); err != nil {
		return err
	} else if existing != nil {
		doc.ID = existing.ID
	}
	created := doc.ID == 0
	if err := s.store.SaveDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}

	from, to := models.IntakeOwner(in.ID), models.DocumentOwner(doc.ID)
	for _, collection := range movedCollections {
		if _, err := s.media.Move(ctx, from, to, collection); err != nil {
			s.rollbackDraft(context.WithoutCancel(ctx), in.ID, doc.ID, created)
			return err
		}
	}

	err = s.store.MarkDone(ctx, in.ID, models.AnalysisResult{
		DocumentID:       doc.ID,
		Fields:           res.Fields,
		ExtractedText:    res.ExtractedText,
		ExtractedContent: res.ExtractedContent,
		AIMetadata:       res.Metadata,
	}, s.now())
	if err != nil {
		s.rollbackDraft(context.WithoutCancel(ctx), in.ID, doc.ID, created)
		return fmt.Errorf("failed to record analysis: %w", err)
	}

	s.logger.Info("Intake analyzed",
		logger.Int64("intakeId", in.ID),
		logger.Int64("documentId", doc.ID),
		logger.Int("images", analysis.Images),
		logger.String("documentType", res.ExtractedContent.DocumentType()),
		logger.String("language", res.Metadata.Language()),
		logger.Int("warnings", len(res.Metadata.Warnings())),
	)
	return nil
}

// rollbackDraft returns the attachments to the intake and drops a document
// this run created, so a retry starts from the same state.
func (s *Service) rollbackDraft(ctx context.Context, intakeID, docID int64, created bool) {
	from, to := models.DocumentOwner(docID), models.IntakeOwner(intakeID)
	for _, collection := range movedCollections {
		if _, err := s.media.Move(ctx, from, to, collection); err != nil {
			s.logger.Error("Failed to return media to intake",
				logger.Int64("intakeId", intakeID),
				logger.String("collection", collection),
				logger.Error(err),
			)
		}
	}
	if !created {
		return
	}
	if err := s.store.DeleteDocument(ctx, docID); err != nil {
		s.logger.Error("Failed to drop draft document",
			logger.Int64("documentId", docID),
			logger.Error(err),
		)
	}
}

func (s *Service) recordFailure(ctx context.Context, id int64, cause error) {
	recorded, err := s.store.MarkFailed(ctx, id, apperr.UserMessage(cause), s.now())
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		s.logger.Error("Failed to record intake failure",
			logger.Int64("intakeId", id),
			logger.Error(err),
		)
		return
	}
	if !recorded {
		s.logger.Debug("Failure not recorded, intake already settled", logger.Int64("intakeId", id))
	}
}

// FailJob records a run failure reported by the queue, such as a timeout.
// Done and finalized intakes are left alone.
func (s *Service) FailJob(ctx context.Context, id int64, cause error) {
	s.recordFailure(ctx, id, cause)
}

// FailBusy fails a queued intake whose run could not take the lease, so the
// user can retry instead of waiting on a task that was dropped. An intake a
// live run already claimed is left alone.
func (s *Service) FailBusy(ctx context.Context, id int64) bool {
	recorded, err := s.store.FailQueued(ctx, id, apperr.BusyMessage, s.now())
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		s.logger.Error("Failed to record busy intake",
			logger.Int64("intakeId", id),
			logger.Error(err),
		)
		return false
	}
	return recorded
}

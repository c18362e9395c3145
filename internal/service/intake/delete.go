package intake

import (
	"context"
	"errors"
	"fmt"

	"github.com/cieplik206/dokumenty/internal/apperr"
	"github.com/cieplik206/dokumenty/internal/models"
	"github.com/cieplik206/dokumenty/pkg/logger"
)

// Delete removes an intake with its attachments and, when still a draft,
// the document it produced. Finalized intakes are kept.
func (s *Service) Delete(ctx context.Context, userID, id int64) error {
	in, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	return s.delete(ctx, in)
}

// DeleteBulk deletes the user's intakes among ids and returns the ids it
// left in place: unknown, foreign or finalized intakes.
func (s *Service) DeleteBulk(ctx context.Context, userID int64, ids []int64) ([]int64, error) {
	skipped := make([]int64, 0)
	if len(ids) == 0 {
		return skipped, nil
	}

	intakes, err := s.store.ListIntakes(ctx, userID, ids)
	if err != nil {
		return nil, err
	}
	found := make(map[int64]*models.Intake, len(intakes))
	for _, in := range intakes {
		found[in.ID] = in
	}

	var errs []error
	for _, id := range ids {
		in, ok := found[id]
		if !ok {
			skipped = append(skipped, id)
			continue
		}
		delete(found, id)
		if err := s.delete(ctx, in); err != nil {
			if errors.Is(err, apperr.ErrConflict) {
				skipped = append(skipped, id)
				continue
			}
			errs = append(errs, err)
		}
	}
	return skipped, errors.Join(errs...)
}

func (s *Service) delete(ctx context.Context, in *models.Intake) error {
	if in.Status == models.IntakeFinalized {
		return apperr.Conflict(finalizedMessage)
	}

	doc, err := s.Document(ctx, in)
	if err != nil {
		return err
	}
	if doc != nil && doc.Status == models.DocumentDraft {
		if err := s.media.Clear(ctx, models.DocumentOwner(doc.ID), ""); err != nil {
			return fmt.Errorf("failed to clear document media: %w", err)
		}
		if err := s.store.DeleteDocument(ctx, doc.ID); err != nil {
			return fmt.Errorf("failed to delete document %d: %w", doc.ID, err)
		}
	}

	if err := s.media.Clear(ctx, models.IntakeOwner(in.ID), ""); err != nil {
		return fmt.Errorf("failed to clear intake media: %w", err)
	}
	if err := s.store.DeleteIntake(ctx, in.ID); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return apperr.Conflict(finalizedMessage)
		}
		return err
	}

	s.logger.Info("Intake deleted",
		logger.Int64("intakeId", in.ID),
		logger.String("status", string(in.Status)),
	)
	return nil
}

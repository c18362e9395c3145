package intake

import (
	"context"
	"errors"
	"fmt"

	"github.com/cieplik206/dokumenty/internal/apperr"
	"github.com/cieplik206/dokumenty/internal/models"
	"github.com/cieplik206/dokumenty/pkg/logger"
)

// FinalizeInput is the filing decision for a finished intake.
type FinalizeInput struct {
	StorageType string `json:"storage_type"`
	BinderID    *int64 `json:"binder_id"`
}

// Finalize files the intake's document as paper (in a binder) or electronic
// and closes the intake.
func (s *Service) Finalize(ctx context.Context, userID, id int64, input FinalizeInput) (*models.Intake, error) {
	storageType, binderID, err := s.validateFinalize(ctx, input)
	if err != nil {
		return nil, err
	}

	in, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if in.Status != models.IntakeDone || in.DocumentID == nil {
		return nil, apperr.Conflict(notFinishedMessage)
	}

	out, err := s.store.FinalizeIntake(ctx, id, storageType, binderID, s.now())
	if errors.Is(err, apperr.ErrConflict) {
		return nil, apperr.Conflict(notFinishedMessage)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to finalize intake %d: %w", id, err)
	}

	s.logger.Info("Intake finalized",
		logger.Int64("intakeId", id),
		logger.Int64("documentId", *out.DocumentID),
		logger.String("storageType", string(storageType)),
	)
	return out, nil
}

func (s *Service) validateFinalize(ctx context.Context, input FinalizeInput) (models.StorageType, *int64, error) {
	storageType := models.StorageType(input.StorageType)
	switch {
	case input.StorageType == "":
		return "", nil, apperr.Invalid("storage_type", "The storage type is required.")
	case !storageType.Valid():
		return "", nil, apperr.Invalid("storage_type", "The storage type must be paper or electronic.")
	case storageType == models.StorageElectronic:
		return storageType, nil, nil
	}

	if input.BinderID == nil {
		return "", nil, apperr.Invalid("binder_id", "A binder is required for paper storage.")
	}
	if _, err := s.store.GetBinder(ctx, *input.BinderID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return "", nil, apperr.Invalid("binder_id", "The selected binder does not exist.")
		}
		return "", nil, err
	}
	binderID := *input.BinderID
	return storageType, &binderID, nil
}

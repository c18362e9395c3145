// Package repository persists intakes, documents, attachments and the
// reference data they point at. Every intake status change is a conditional
// update on the current status, so concurrent callers cannot both win.
package repository

import (
	"context"
	"time"

	"github.com/cieplik206/dokumenty/internal/models"
)

// QueueMode selects which states may move to queued.
type QueueMode int

const (
	// QueueStart accepts uploaded intakes only.
	QueueStart QueueMode = iota
	// QueueRetry accepts failed intakes and done intakes without a document.
	QueueRetry
)

// IntakeRepository stores intakes. Conditional transitions report
// apperr.ErrConflict when the intake is not in an accepted state and
// apperr.ErrNotFound when it does not exist.
type IntakeRepository interface {
	CreateIntake(ctx context.Context, intake *models.Intake) error
	GetIntake(ctx context.Context, id int64) (*models.Intake, error)
	// ListIntakes returns the user's intakes, newest first. A nil ids slice
	// lists all of them.
	ListIntakes(ctx context.Context, userID int64, ids []int64) ([]*models.Intake, error)

	// QueueIntake clears previous analysis output and sets status queued.
	QueueIntake(ctx context.Context, id int64, mode QueueMode) (*models.Intake, error)
	// MarkProcessing claims the intake for a job run. It returns false,
	// without error, when the intake is already done or finalized.
	MarkProcessing(ctx context.Context, id int64, at time.Time) (bool, error)
	// MarkDone records a successful run of a processing intake.
	MarkDone(ctx context.Context, id int64, result models.AnalysisResult, at time.Time) error
	// MarkFailed records a failed run unless the intake is done or finalized,
	// in which case it returns false.
	MarkFailed(ctx context.Context, id int64, message string, at time.Time) (bool, error)
	// FailQueued fails an intake that no run has claimed yet. It returns
	// false when the intake is in any other state.
	FailQueued(ctx context.Context, id int64, message string, at time.Time) (bool, error)
	// FinalizeIntake files the linked document and closes a done intake in
	// one transaction. binderID must be nil for electronic storage.
	FinalizeIntake(ctx context.Context, id int64, storageType models.StorageType, binderID *int64, at time.Time) (*models.Intake, error)
	// DeleteIntake removes an intake that is not finalized.
	DeleteIntake(ctx context.Context, id int64) error
}

// DocumentRepository stores documents.
type DocumentRepository interface {
	// SaveDocument inserts a document with a zero ID, otherwise updates it.
	SaveDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id int64) (*models.Document, error)
	DeleteDocument(ctx context.Context, id int64) error
}

// MediaRepository stores attachment records. Listing is in ID order.
type MediaRepository interface {
	AddMedia(ctx context.Context, m *models.Media) error
	GetMedia(ctx context.Context, id int64) (*models.Media, error)
	// ListMedia lists an owner's attachments; an empty collection lists all.
	ListMedia(ctx context.Context, owner models.Owner, collection string) ([]*models.Media, error)
	// MoveMedia transfers a collection to another owner and reports how
	// many records moved.
	MoveMedia(ctx context.Context, from, to models.Owner, collection string) (int64, error)
	SetConversion(ctx context.Context, id int64, name, key string) error
	DeleteMedia(ctx context.Context, id int64) error
}

// ReferenceRepository reads categories and binders.
type ReferenceRepository interface {
	// ListCategories returns all categories ordered by name.
	ListCategories(ctx context.Context) ([]models.Category, error)
	GetBinder(ctx context.Context, id int64) (*models.Binder, error)
}

// Store is everything the intake pipeline persists.
type Store interface {
	IntakeRepository
	DocumentRepository
	MediaRepository
	ReferenceRepository
}

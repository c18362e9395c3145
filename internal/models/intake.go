package models

import (
	"time"
)

// IntakeStatus is the lifecycle state of an intake.
type IntakeStatus string

const (
	IntakeUploaded   IntakeStatus = "uploaded"
	IntakeQueued     IntakeStatus = "queued"
	IntakeProcessing IntakeStatus = "processing"
	IntakeDone       IntakeStatus = "done"
	IntakeFailed     IntakeStatus = "failed"
	IntakeFinalized  IntakeStatus = "finalized"
)

// StorageType is the filing decision taken on finalize.
type StorageType string

const (
	StoragePaper      StorageType = "paper"
	StorageElectronic StorageType = "electronic"
)

// Valid reports whether s is a known storage type.
func (s StorageType) Valid() bool {
	return s == StoragePaper || s == StorageElectronic
}

// Intake is one in-flight analysis unit wrapping uploaded scans until they
// become a filed Document.
type Intake struct {
	ID               int64            `json:"id"`
	UserID           int64            `json:"user_id"`
	Status           IntakeStatus     `json:"status"`
	DocumentID       *int64           `json:"document_id"`
	OriginalName     string           `json:"original_name"`
	StorageType      StorageType      `json:"storage_type,omitempty"`
	Fields           *Fields          `json:"fields"`
	ExtractedText    *string          `json:"extracted_text"`
	ExtractedContent ExtractedContent `json:"extracted_content"`
	AIMetadata       AIMetadata       `json:"ai_metadata"`
	ErrorMessage     *string          `json:"error_message"`
	StartedAt        *time.Time       `json:"started_at"`
	FinishedAt       *time.Time       `json:"finished_at"`
	FinalizedAt      *time.Time       `json:"finalized_at"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// CanStart reports whether the first analysis run may be queued.
func (i *Intake) CanStart() bool {
	return i.Status == IntakeUploaded
}

// CanRetry reports whether a new analysis run may be queued.
func (i *Intake) CanRetry() bool {
	return i.Status == IntakeFailed || (i.Status == IntakeDone && i.DocumentID == nil)
}

// Settled reports whether a job must leave the intake alone.
func (i *Intake) Settled() bool {
	return i.Status == IntakeDone || i.Status == IntakeFinalized
}

// ResetAnalysis clears every output of a previous run.
func (i *Intake) ResetAnalysis() {
	i.Fields = nil
	i.ExtractedText = nil
	i.ExtractedContent = nil
	i.AIMetadata = nil
	i.ErrorMessage = nil
	i.StartedAt = nil
	i.FinishedAt = nil
}

// AnalysisResult is what a successful run writes onto the intake.
type AnalysisResult struct {
	DocumentID       int64
	Fields           *Fields
	ExtractedText    *string
	ExtractedContent ExtractedContent
	AIMetadata       AIMetadata
}

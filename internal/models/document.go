package models

import (
	"time"
)

// DocumentStatus tracks whether a document still awaits its filing decision.
type DocumentStatus string

const (
	DocumentDraft DocumentStatus = "draft"
	DocumentReady DocumentStatus = "ready"
)

// Document is the filed record produced by a finished intake. A nil BinderID
// on a ready document means electronic storage.
type Document struct {
	ID               int64            `json:"id"`
	UserID           int64            `json:"user_id"`
	Title            string           `json:"title"`
	ReferenceNumber  *string          `json:"reference_number"`
	Issuer           *string          `json:"issuer"`
	CategoryID       *int64           `json:"category_id"`
	DocumentDate     *time.Time       `json:"document_date"`
	ReceivedAt       *time.Time       `json:"received_at"`
	Notes            *string          `json:"notes"`
	Tags             *string          `json:"tags"`
	ExtractedContent ExtractedContent `json:"extracted_content"`
	AIMetadata       AIMetadata       `json:"ai_metadata"`
	Status           DocumentStatus   `json:"status"`
	BinderID         *int64           `json:"binder_id"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Category is part of the classification vocabulary sent to the model.
type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Binder is a physical storage location for paper documents.
type Binder struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Location  string `json:"location"`
	SortOrder int    `json:"sort_order"`
}

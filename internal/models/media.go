package models

import (
	"strings"
	"time"
)

// OwnerType names the entity an attachment belongs to.
type OwnerType string

const (
	OwnerIntake   OwnerType = "intake"
	OwnerDocument OwnerType = "document"
)

// Owner identifies the entity holding a set of attachments.
type Owner struct {
	Type OwnerType `json:"type"`
	ID   int64     `json:"id"`
}

func IntakeOwner(id int64) Owner   { return Owner{Type: OwnerIntake, ID: id} }
func DocumentOwner(id int64) Owner { return Owner{Type: OwnerDocument, ID: id} }

const (
	CollectionScans = "scans"
	CollectionPages = "pages"
)

// ConversionThumb is the derived preview image of an attachment.
const ConversionThumb = "thumb"

// MediaProperties are custom properties stored with an attachment.
// Generated pages carry the scan they came from and their 1-based number.
type MediaProperties struct {
	SourceMediaID int64 `json:"source_media_id,omitempty"`
	Page          int   `json:"page,omitempty"`
}

// Media is a stored attachment. Iteration order is ID order.
type Media struct {
	ID          int64             `json:"id"`
	Owner       Owner             `json:"owner"`
	Collection  string            `json:"collection"`
	FileName    string            `json:"file_name"`
	MimeType    string            `json:"mime_type"`
	Size        int64             `json:"size"`
	StorageKey  string            `json:"storage_key"`
	Properties  MediaProperties   `json:"properties"`
	Conversions map[string]string `json:"conversions,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

func (m *Media) IsImage() bool {
	return strings.HasPrefix(m.MimeType, "image/")
}

func (m *Media) IsPDF() bool {
	return m.MimeType == "application/pdf"
}

// ConversionKey returns the storage key of a derived conversion.
func (m *Media) ConversionKey(name string) (string, bool) {
	key, ok := m.Conversions[name]
	return key, ok && key != ""
}

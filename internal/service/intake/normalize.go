package intake

import (
	"bytes"
	"encoding/json"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cieplik206/dokumenty/internal/agent/ndjson"
	"github.com/cieplik206/dokumenty/internal/models"
)

const (
	fieldReferenceNumber = "reference_number"
	fieldIssuer          = "issuer"

	defaultTitle = "Document"
	dateLayout   = "2006-01-02"
)

// buildDraft maps model output onto a draft document.
func buildDraft(in *models.Intake, res ndjson.Result, categories []models.Category) *models.Document {
	f := res.Fields
	return &models.Document{
		UserID:           in.UserID,
		Title:            resolveTitle(f, in.OriginalName),
		ReferenceNumber:  f.OptionalString(fieldReferenceNumber),
		Issuer:           f.OptionalString(fieldIssuer),
		CategoryID:       resolveCategory(f, categories),
		DocumentDate:     parseDate(f.String(models.FieldDocumentDate)),
		ReceivedAt:       parseDate(f.String(models.FieldReceivedAt)),
		Notes:            f.OptionalString(models.FieldNotes),
		Tags:             joinTags(f),
		ExtractedContent: res.ExtractedContent,
		AIMetadata:       res.Metadata,
		Status:           models.DocumentDraft,
	}
}

// resolveTitle falls back to the uploaded file name without extension, then
// to a fixed title.
func resolveTitle(f *models.Fields, originalName string) string {
	if title := strings.TrimSpace(f.String(models.FieldTitle)); title != "" {
		return title
	}
	name := filepath.Base(strings.TrimSpace(originalName))
	if stem := strings.TrimSuffix(name, filepath.Ext(name)); stem != "" && stem != "." && stem != "/" {
		return stem
	}
	return defaultTitle
}

// joinTags flattens a tag list, or the values of a tag object, into ", "
// separated text, keeping only non-empty strings. Null stays null and other
// scalars are kept as written.
func joinTags(f *models.Fields) *string {
	raw, ok := f.Get(models.FieldTags)
	if !ok {
		return nil
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	switch raw[0] {
	case '[', '{':
		values, err := collectionValues(raw)
		if err != nil {
			return nil
		}
		tags := make([]string, 0, len(values))
		for _, v := range values {
			var s string
			if json.Unmarshal(v, &s) == nil && s != "" {
				tags = append(tags, s)
			}
		}
		joined := strings.Join(tags, ", ")
		return &joined
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		return &s
	default:
		text := string(raw)
		return &text
	}
}

// collectionValues returns the elements of a JSON array, or the values of a
// JSON object in document order.
func collectionValues(raw json.RawMessage) ([]json.RawMessage, error) {
	var list []json.RawMessage
	if raw[0] == '[' {
		err := json.Unmarshal(raw, &list)
		return list, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	for dec.More() {
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		list = append(list, v)
	}
	return list, nil
}

// resolveCategory accepts an integral number, or a string holding one, that
// names a category of this run.
func resolveCategory(f *models.Fields, categories []models.Category) *int64 {
	raw, ok := f.Get(models.FieldCategoryID)
	if !ok {
		return nil
	}
	id, ok := integral(raw)
	if !ok {
		return nil
	}
	for _, c := range categories {
		if c.ID == id {
			return &id
		}
	}
	return nil
}

func integral(raw json.RawMessage) (int64, bool) {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		raw = json.RawMessage(strings.TrimSpace(text))
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil || dec.More() {
		return 0, false
	}
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		return i, true
	}
	v, err := n.Float64()
	if err != nil || v != math.Trunc(v) || math.Abs(v) > math.MaxInt64 {
		return 0, false
	}
	return int64(v), true
}

// parseDate reads a calendar date. A longer timestamp contributes its date
// part; anything unparseable is dropped.
func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if len(s) < len(dateLayout) {
		return nil
	}
	t, err := time.Parse(dateLayout, s[:len(dateLayout)])
	if err != nil {
		return nil
	}
	return &t
}

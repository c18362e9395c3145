// Package prompt holds the instructions that make the vision model answer in
// the line-delimited record protocol understood by package ndjson.
package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cieplik206/dokumenty/internal/models"
)

// Limits communicated to the model. The parser does not enforce them.
const (
	MaxExtractedTextChars = 4000
	MaxSummaryChars       = 600
	MaxKeyPoints          = 8
	MaxSearchTextChars    = 1000
)

var systemPrompt = fmt.Sprintf(`You extract data from scanned documents. Answer only as NDJSON: exactly one JSON object per line.
Every line must be valid JSON. Do not add any other text and do not use code fences.
Allowed record types:
- {"type":"field","key":"%s","value":...}
- {"type":"extracted_text","value":"..."}
- {"type":"extracted_content","value":{...}}
- {"type":"metadata","value":{...}}
- {"type":"done"}

Set unknown field values to null. Write dates as YYYY-MM-DD. Write tags as an array of strings without #.
Length limits:
- extracted_text: at most %d characters (cut it if longer).
- extracted_content.summary: at most %d characters.
- extracted_content.key_points: at most %d items.
- extracted_content.search_text: at most %d characters.

The title must describe the document: its type, the key party or subject and the date when known,
for example "Electricity invoice - PGE - 2024-03". Never copy a heading from the document verbatim.`,
	strings.Join(models.KnownFields, "|"),
	MaxExtractedTextChars,
	MaxSummaryChars,
	MaxKeyPoints,
	MaxSearchTextChars,
)

// System returns the fixed system instruction.
func System() string {
	return systemPrompt
}

type categoryPayload struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// User returns the per-run instruction carrying the category vocabulary.
func User(categories []models.Category) string {
	payload := make([]categoryPayload, 0, len(categories))
	for _, c := range categories {
		payload = append(payload, categoryPayload{ID: c.ID, Name: c.Name, Description: c.Description})
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Encoding a slice of plain structs cannot fail.
	_ = enc.Encode(payload)

	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the attached document images and fill in the data. Available categories: %s\n", strings.TrimSpace(buf.String()))
	b.WriteString("If no category matches, return category_id = null and propose one in category_name_new.\n")
	b.WriteString("Emit the records in this order:\n")
	step := 1
	for _, key := range models.KnownFields {
		fmt.Fprintf(&b, "%d) field: %s\n", step, key)
		step++
	}
	fmt.Fprintf(&b, "%d) extracted_text\n", step)
	fmt.Fprintf(&b, "%d) extracted_content (contains: summary, key_points, document_type, entities, dates, amounts, keywords, search_text)\n", step+1)
	fmt.Fprintf(&b, "%d) metadata (e.g. confidence 0-1, language, warnings)\n", step+2)
	fmt.Fprintf(&b, "%d) done", step+3)
	return b.String()
}

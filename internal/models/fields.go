package models

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
)

// Recognized field keys of the extraction protocol.
const (
	FieldTitle           = "title"
	FieldNotes           = "notes"
	FieldCategoryID      = "category_id"
	FieldCategoryName    = "category_name"
	FieldCategoryNameNew = "category_name_new"
	FieldDocumentDate    = "document_date"
	FieldReceivedAt      = "received_at"
	FieldTags            = "tags"
)

// KnownFields lists the recognized keys in emission order.
var KnownFields = []string{
	FieldTitle,
	FieldNotes,
	FieldCategoryID,
	FieldCategoryName,
	FieldCategoryNameNew,
	FieldDocumentDate,
	FieldReceivedAt,
	FieldTags,
}

var jsonNull = json.RawMessage("null")

// Fields holds extracted field values. Each value is kept as raw JSON so an
// absent key (nil) stays distinct from an explicit null. Keys outside the
// recognized set go to Extra and survive a round trip unchanged.
type Fields struct {
	Title           json.RawMessage
	Notes           json.RawMessage
	CategoryID      json.RawMessage
	CategoryName    json.RawMessage
	CategoryNameNew json.RawMessage
	DocumentDate    json.RawMessage
	ReceivedAt      json.RawMessage
	Tags            json.RawMessage
	Extra           map[string]json.RawMessage
}

func (f *Fields) slot(key string) *json.RawMessage {
	switch key {
	case FieldTitle:
		return &f.Title
	case FieldNotes:
		return &f.Notes
	case FieldCategoryID:
		return &f.CategoryID
	case FieldCategoryName:
		return &f.CategoryName
	case FieldCategoryNameNew:
		return &f.CategoryNameNew
	case FieldDocumentDate:
		return &f.DocumentDate
	case FieldReceivedAt:
		return &f.ReceivedAt
	case FieldTags:
		return &f.Tags
	}
	return nil
}

// Set stores value under key. An empty value is stored as JSON null.
func (f *Fields) Set(key string, value json.RawMessage) {
	if len(bytes.TrimSpace(value)) == 0 {
		value = jsonNull
	}
	value = append(json.RawMessage(nil), value...)
	if p := f.slot(key); p != nil {
		*p = value
		return
	}
	if f.Extra == nil {
		f.Extra = make(map[string]json.RawMessage)
	}
	f.Extra[key] = value
}

// Get returns the raw value for key and whether the key was present.
func (f *Fields) Get(key string) (json.RawMessage, bool) {
	if f == nil {
		return nil, false
	}
	if p := f.slot(key); p != nil {
		return *p, *p != nil
	}
	v, ok := f.Extra[key]
	return v, ok
}

// Has reports whether key was present.
func (f *Fields) Has(key string) bool {
	_, ok := f.Get(key)
	return ok
}

// Len counts present keys.
func (f *Fields) Len() int {
	return len(f.Map())
}

// Keys returns the present keys, sorted.
func (f *Fields) Keys() []string {
	m := f.Map()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Map flattens the fields into one key/value map.
func (f *Fields) Map() map[string]json.RawMessage {
	out := make(map[string]json.RawMessage)
	if f == nil {
		return out
	}
	for _, key := range KnownFields {
		if v := *f.slot(key); v != nil {
			out[key] = v
		}
	}
	for k, v := range f.Extra {
		out[k] = v
	}
	return out
}

// String decodes key as a JSON string. Non-strings and null yield "".
func (f *Fields) String(key string) string {
	raw, ok := f.Get(key)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// OptionalString returns the trimmed string value of key or nil when it is
// absent, null, not a string, or blank.
func (f *Fields) OptionalString(key string) *string {
	s := strings.TrimSpace(f.String(key))
	if s == "" {
		return nil
	}
	return &s
}

// Decode unmarshals the raw value of key into dst. Absent keys leave dst alone.
func (f *Fields) Decode(key string, dst any) error {
	raw, ok := f.Get(key)
	if !ok {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func (f *Fields) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Map())
}

func (f *Fields) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*f = Fields{}
	for k, v := range m {
		f.Set(k, v)
	}
	return nil
}

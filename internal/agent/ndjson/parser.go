// Package ndjson decodes the line-delimited record protocol emitted by the
// extraction model. Decoding never fails on bad model output: lines that are
// not JSON objects, or records of an unknown type, are dropped.
package ndjson

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/cieplik206/dokumenty/internal/models"
)

// Record types of the protocol.
const (
	TypeField            = "field"
	TypeExtractedText    = "extracted_text"
	TypeExtractedContent = "extracted_content"
	TypeMetadata         = "metadata"
	TypeDone             = "done"
)

const (
	initialBufferSize = 64 * 1024
	maxLineSize       = 16 * 1024 * 1024
)

var null = json.RawMessage("null")

// Record is one decoded protocol line. Value is already normalized: a value
// of the wrong JSON kind for its record type is replaced by null.
type Record struct {
	Type  string          `json:"type"`
	Key   string          `json:"key,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Result is the accumulated outcome of a response. Fields is nil when no
// field record was seen.
type Result struct {
	Fields           *models.Fields
	ExtractedText    *string
	ExtractedContent models.ExtractedContent
	Metadata         models.AIMetadata
}

// Empty reports whether nothing usable was decoded.
func (r Result) Empty() bool {
	return r.Fields == nil && r.ExtractedText == nil && r.ExtractedContent == nil && r.Metadata == nil
}

// Decoder reads records one line at a time.
type Decoder struct {
	scanner *bufio.Scanner
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, initialBufferSize), maxLineSize)
	scanner.Split(scanLines)
	return &Decoder{scanner: scanner}
}

// Next returns the next valid record, or io.EOF once the input is exhausted.
func (d *Decoder) Next() (Record, error) {
	for d.scanner.Scan() {
		line := bytes.TrimSpace(d.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if rec, ok := decodeRecord(line); ok {
			return rec, nil
		}
	}
	if err := d.scanner.Err(); err != nil {
		return Record{}, err
	}
	return Record{}, io.EOF
}

// Builder folds records into a Result. Later records win.
type Builder struct {
	result Result
}

// Add applies rec to the result.
func (b *Builder) Add(rec Record) {
	switch rec.Type {
	case TypeField:
		if b.result.Fields == nil {
			b.result.Fields = &models.Fields{}
		}
		b.result.Fields.Set(rec.Key, rec.Value)
	case TypeExtractedText:
		var s string
		if err := json.Unmarshal(rec.Value, &s); err == nil && !isNull(rec.Value) {
			b.result.ExtractedText = &s
		} else {
			b.result.ExtractedText = nil
		}
	case TypeExtractedContent:
		b.result.ExtractedContent = decodeObject(rec.Value)
	case TypeMetadata:
		b.result.Metadata = decodeObject(rec.Value)
	}
}

// Result returns the accumulated result.
func (b *Builder) Result() Result {
	return b.result
}

// Parse decodes a complete model response.
func Parse(raw string) Result {
	res, _ := ParseReader(strings.NewReader(raw))
	return res
}

// ParseReader decodes records from r until EOF. The returned Result holds
// everything decoded before a read error.
func ParseReader(r io.Reader) (Result, error) {
	var b Builder
	dec := NewDecoder(r)
	for {
		rec, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return b.Result(), nil
		}
		if err != nil {
			return b.Result(), err
		}
		b.Add(rec)
	}
}

func decodeRecord(line []byte) (Record, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(line, &obj); err != nil || obj == nil {
		return Record{}, false
	}

	var typ string
	if err := json.Unmarshal(obj["type"], &typ); err != nil {
		return Record{}, false
	}

	value := obj["value"]
	if len(value) == 0 {
		value = null
	}

	switch typ {
	case TypeField:
		var key string
		if err := json.Unmarshal(obj["key"], &key); err != nil || key == "" {
			return Record{}, false
		}
		return Record{Type: typ, Key: key, Value: value}, true
	case TypeExtractedText:
		if !isString(value) {
			value = null
		}
		return Record{Type: typ, Value: value}, true
	case TypeExtractedContent, TypeMetadata:
		if decodeObject(value) == nil {
			value = null
		}
		return Record{Type: typ, Value: value}, true
	case TypeDone:
		return Record{Type: typ}, true
	}
	return Record{}, false
}

// decodeObject returns value as a map, or nil when it is not a JSON object.
// Numbers keep their literal form.
func decodeObject(value json.RawMessage) map[string]any {
	if len(value) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(value))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil
	}
	return m
}

func isString(value json.RawMessage) bool {
	var s string
	return json.Unmarshal(value, &s) == nil && !isNull(value)
}

func isNull(value json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(value), null)
}

// scanLines is bufio.ScanLines extended to treat a lone '\r' as a line break.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		if i+1 < len(data) {
			if data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
			return i + 1, data[:i], nil
		}
		if atEOF {
			return i + 1, data[:i], nil
		}
		// '\r' at the end of the buffer: wait to see whether '\n' follows.
		return 0, nil, nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

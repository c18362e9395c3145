package ndjson

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cieplik206/dokumenty/internal/models"
)

func TestParseTitleAndDone(t *testing.T) {
	res := Parse("{\"type\":\"field\",\"key\":\"title\",\"value\":\"Invoice A\"}\n{\"type\":\"done\"}")

	require.NotNil(t, res.Fields)
	out, err := json.Marshal(res.Fields)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Invoice A"}`, string(out))
	assert.Nil(t, res.ExtractedText)
	assert.Nil(t, res.ExtractedContent)
	assert.Nil(t, res.Metadata)
}

func TestParseGarbageYieldsEmptyResult(t *testing.T) {
	inputs := []string{
		"",
		"not json at all",
		"```json\n[1,2,3]\n\"string\"\n42\nnull\n{broken",
		`{"type":"unknown","value":1}`,
		`{"type":"field","value":"no key"}`,
		`{"type":"field","key":42,"value":"numeric key"}`,
		`{"value":"no type"}`,
	}
	for _, in := range inputs {
		res := Parse(in)
		assert.True(t, res.Empty(), "input %q", in)
		assert.Nil(t, res.Fields, "input %q", in)
	}
}

func TestParseHandlesEveryLineEnding(t *testing.T) {
	raw := "{\"type\":\"field\",\"key\":\"title\",\"value\":\"A\"}\r\n" +
		"{\"type\":\"field\",\"key\":\"notes\",\"value\":\"B\"}\r" +
		"{\"type\":\"field\",\"key\":\"tags\",\"value\":[\"x\"]}\n" +
		"   \n\r\n" +
		"  {\"type\":\"extracted_text\",\"value\":\"body\"}  "

	res := Parse(raw)
	require.NotNil(t, res.Fields)
	assert.Equal(t, "A", res.Fields.String(models.FieldTitle))
	assert.Equal(t, "B", res.Fields.String(models.FieldNotes))
	assert.JSONEq(t, `["x"]`, string(res.Fields.Tags))
	require.NotNil(t, res.ExtractedText)
	assert.Equal(t, "body", *res.ExtractedText)
}

func TestParseLastFieldWinsAndMissingValueIsNull(t *testing.T) {
	res := Parse(strings.Join([]string{
		`{"type":"field","key":"title","value":"first"}`,
		`{"type":"field","key":"title","value":"second"}`,
		`{"type":"field","key":"notes"}`,
		`{"type":"field","key":"reference_number","value":"FV/1/2024"}`,
	}, "\n"))

	assert.Equal(t, "second", res.Fields.String(models.FieldTitle))
	raw, ok := res.Fields.Get(models.FieldNotes)
	require.True(t, ok)
	assert.JSONEq(t, "null", string(raw))
	assert.Equal(t, "FV/1/2024", res.Fields.String("reference_number"))
}

func TestParseDropsIllTypedValues(t *testing.T) {
	res := Parse(strings.Join([]string{
		`{"type":"extracted_text","value":"kept"}`,
		`{"type":"extracted_text","value":{"not":"a string"}}`,
		`{"type":"extracted_content","value":{"summary":"s"}}`,
		`{"type":"extracted_content","value":["not","an","object"]}`,
		`{"type":"metadata","value":"nope"}`,
	}, "\n"))

	assert.Nil(t, res.ExtractedText)
	assert.Nil(t, res.ExtractedContent)
	assert.Nil(t, res.Metadata)
	assert.Nil(t, res.Fields)
}

func TestParseContinuesAfterDone(t *testing.T) {
	res := Parse(strings.Join([]string{
		`{"type":"done"}`,
		`{"type":"metadata","value":{"confidence":0.91,"language":"pl"}}`,
	}, "\n"))

	require.NotNil(t, res.Metadata)
	assert.Equal(t, json.Number("0.91"), res.Metadata["confidence"])
	assert.Equal(t, "pl", res.Metadata.Language())
}

func TestParseRoundTripIsLossless(t *testing.T) {
	lines := []string{
		`{"type":"field","key":"title","value":"Umowa najmu"}`,
		`{"type":"field","key":"category_id","value":12}`,
		`{"type":"field","key":"tags","value":["dom","najem"]}`,
		`{"type":"field","key":"document_date","value":null}`,
		`{"type":"extracted_text","value":"Line one\nLine two"}`,
		`{"type":"extracted_content","value":{"summary":"Lease","amounts":[{"value":1250.50,"currency":"PLN"}],"key_points":[]}}`,
		`{"type":"metadata","value":{"confidence":0.8,"warnings":["blurry"]}}`,
		`{"type":"done"}`,
	}
	res := Parse(strings.Join(lines, "\n"))

	fields, err := json.Marshal(res.Fields)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Umowa najmu","category_id":12,"tags":["dom","najem"],"document_date":null}`, string(fields))

	content, err := json.Marshal(res.ExtractedContent)
	require.NoError(t, err)
	assert.JSONEq(t, `{"summary":"Lease","amounts":[{"value":1250.50,"currency":"PLN"}],"key_points":[]}`, string(content))

	meta, err := json.Marshal(res.Metadata)
	require.NoError(t, err)
	assert.JSONEq(t, `{"confidence":0.8,"warnings":["blurry"]}`, string(meta))
	assert.Equal(t, "Line one\nLine two", *res.ExtractedText)
}

func TestDecoderNormalizesRecords(t *testing.T) {
	dec := NewDecoder(strings.NewReader("junk\n{\"type\":\"metadata\",\"value\":3}\n{\"type\":\"done\",\"extra\":1}\n"))

	rec, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, Record{Type: TypeMetadata, Value: json.RawMessage("null")}, rec)

	rec, err = dec.Next()
	require.NoError(t, err)
	out, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"done"}`, string(out))

	_, err = dec.Next()
	assert.True(t, errors.Is(err, io.EOF))
}

func TestDecoderReadsIncrementalChunks(t *testing.T) {
	pr, pw := io.Pipe()
	go func() {
		for _, chunk := range []string{`{"type":"fie`, `ld","key":"title","value":"Bill"}` + "\r", "\n", `{"type":"done"}`} {
			_, _ = pw.Write([]byte(chunk))
		}
		_ = pw.Close()
	}()

	res, err := ParseReader(pr)
	require.NoError(t, err)
	assert.Equal(t, "Bill", res.Fields.String(models.FieldTitle))
}

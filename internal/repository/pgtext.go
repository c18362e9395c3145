package repository

import (
	"bytes"
	"strings"
)

// Postgres text and jsonb columns reject U+0000, which OCR output and model
// replies occasionally contain. Writes drop it rather than fail the run.

func pgText(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}

var escapedNUL = []byte(`\u0000`)

// pgJSON removes \u0000 escapes from encoded JSON. Escaped backslashes are
// copied as a pair so text like `\\u0000` survives untouched.
func pgJSON(b []byte) []byte {
	if !bytes.Contains(b, escapedNUL) {
		return b
	}
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] != '\\' || i+1 >= len(b) {
			out = append(out, b[i])
			continue
		}
		if bytes.HasPrefix(b[i:], escapedNUL) {
			i += len(escapedNUL) - 1
			continue
		}
		out = append(out, b[i], b[i+1])
		i++
	}
	return out
}

package models

// ExtractedContent is the structured summary returned by the model: summary,
// key_points, document_type, entities, dates, amounts, keywords, search_text.
// A nil map is stored as null.
type ExtractedContent map[string]any

// AIMetadata carries model self-assessment such as confidence, language and
// warnings. A nil map is stored as null.
type AIMetadata map[string]any

func (c ExtractedContent) Summary() string {
	s, _ := c["summary"].(string)
	return s
}

func (c ExtractedContent) DocumentType() string {
	s, _ := c["document_type"].(string)
	return s
}

func (m AIMetadata) Language() string {
	s, _ := m["language"].(string)
	return s
}

// Warnings returns the string entries of the warnings list.
func (m AIMetadata) Warnings() []string {
	raw, _ := m["warnings"].([]any)
	out := make([]string, 0, len(raw))
	for _, w := range raw {
		if s, ok := w.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

package intake

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cieplik206/dokumenty/internal/models"
)

func fieldsWith(key, raw string) *models.Fields {
	f := &models.Fields{}
	f.Set(key, json.RawMessage(raw))
	return f
}

func TestJoinTags(t *testing.T) {
	str := func(s string) *string { return &s }

	tests := []struct {
		name string
		raw  string
		want *string
	}{
		{name: "null", raw: `null`, want: nil},
		{name: "list", raw: `["energy","home"]`, want: str("energy, home")},
		{name: "mixed list", raw: `["a", 5, "", null, "b", ["c"]]`, want: str("a, b")},
		{name: "empty list", raw: `[]`, want: str("")},
		{name: "object values", raw: `{"z":"first","a":"second","n":3}`, want: str("first, second")},
		{name: "string", raw: `"energy; home"`, want: str("energy; home")},
		{name: "empty string", raw: `""`, want: str("")},
		{name: "number", raw: `5`, want: str("5")},
		{name: "bool", raw: `true`, want: str("true")},
		{name: "broken list", raw: `["a",`, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, joinTags(fieldsWith(models.FieldTags, tt.raw)))
		})
	}

	assert.Nil(t, joinTags(&models.Fields{}))
	assert.Nil(t, joinTags(nil))
}

func TestResolveCategory(t *testing.T) {
	categories := []models.Category{{ID: 1, Name: "Invoices"}, {ID: 2, Name: "Contracts"}}

	tests := []struct {
		raw  string
		want int64
	}{
		{raw: `1`, want: 1},
		{raw: `1.0`, want: 1},
		{raw: `"1"`, want: 1},
		{raw: `" 2 "`, want: 2},
		{raw: `2e0`, want: 2},
		{raw: `999`},
		{raw: `0`},
		{raw: `-1`},
		{raw: `1.5`},
		{raw: `"1.5"`},
		{raw: `"abc"`},
		{raw: `""`},
		{raw: `true`},
		{raw: `null`},
		{raw: `[1]`},
		{raw: `{"id":1}`},
		{raw: `"1 2"`},
		{raw: `99999999999999999999`},
		{raw: `-99999999999999999999`},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := resolveCategory(fieldsWith(models.FieldCategoryID, tt.raw), categories)
			if tt.want == 0 {
				assert.Nil(t, got)
				return
			}
			if assert.NotNil(t, got) {
				assert.Equal(t, tt.want, *got)
			}
		})
	}

	assert.Nil(t, resolveCategory(&models.Fields{}, categories))
	assert.Nil(t, resolveCategory(fieldsWith(models.FieldCategoryID, `1`), nil))
}

package schema

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsync/internal/markdown"
)

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidate_ValidDocuments(t *testing.T) {
	tests := map[string]string{
		"empty":     `[]`,
		"paragraph": `[{"type":"paragraph","paragraph":{"rich_text":[{"type":"text","text":{"content":"hi"}}]}}]`,
		"remote shape": `[{"object":"block","id":"b1","type":"divider","divider":{},` +
			`"has_children":false,"last_edited_time":"2025-01-01T00:00:00.000Z"}]`,
		"linked run": `[{"type":"paragraph","paragraph":{"rich_text":[` +
			`{"type":"text","text":{"content":"x","link":{"url":"https://a.example"}},"annotations":{"bold":true}}]}}]`,
		"unknown type":  `[{"type":"synced_block","synced_block":{"synced_from":null}}]`,
		"inline nested": `[{"type":"toggle","toggle":{"rich_text":[],"children":[{"type":"paragraph","paragraph":{}}]}}]`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Empty(t, Validate([]byte(doc)))
		})
	}
}

func TestValidate_ConverterOutputIsValid(t *testing.T) {
	src := "# Title\n\n- [x] done\n- item\n  - nested\n\n| a | b |\n|---|---|\n| 1 | 2 |\n\n```go\nx\n```\n"
	blocks, err := markdown.Convert([]byte(src))
	require.NoError(t, err)
	data, err := json.Marshal(blocks)
	require.NoError(t, err)

	assert.Empty(t, Validate(data))
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		code string
	}{
		{"not json", `[{"type":`, ErrInvalidJSON},
		{"object instead of list", `{"type":"paragraph"}`, ErrSchemaViolation},
		{"missing type", `[{"paragraph":{}}]`, ErrSchemaViolation},
		{"numeric type", `[{"type":5,"5":{}}]`, ErrSchemaViolation},
		{"malformed type", `[{"type":"Not A Type"}]`, ErrSchemaViolation},
		{"non-block item", `[3]`, ErrSchemaViolation},
		{"missing payload", `[{"type":"paragraph"}]`, ErrMissingPayload},
		{"nested missing payload", `[{"type":"toggle","toggle":{},"children":[{"type":"quote"}]}]`, ErrMissingPayload},
		{"rich text content not string", `[{"type":"paragraph","paragraph":{"rich_text":[{"text":{"content":3}}]}}]`, ErrInvalidRichText},
		{"rich text not list", `[{"type":"paragraph","paragraph":{"rich_text":"hello"}}]`, ErrInvalidRichText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate([]byte(tt.doc))
			require.NotEmpty(t, errs)
			assert.Contains(t, codes(errs), tt.code)
			for _, e := range errs {
				assert.NotEmpty(t, e.Message)
				assert.NotEmpty(t, e.Error())
			}
		})
	}
}

func TestValidate_TextTooLong(t *testing.T) {
	long := strings.Repeat("x", maxRunLength+1)
	doc := `[{"type":"paragraph","paragraph":{"rich_text":[{"text":{"content":"` + long + `"}}]}}]`

	errs := Validate([]byte(doc))
	require.Len(t, errs, 1)
	assert.Equal(t, ErrTextTooLong, errs[0].Code)
	assert.Equal(t, "0.paragraph.rich_text.0.text.content", errs[0].Field)
}

func TestValidate_MissingPayloadField(t *testing.T) {
	errs := Validate([]byte("[\n  {\"type\": \"divider\"}\n]"))
	require.Len(t, errs, 1)
	assert.Equal(t, ErrMissingPayload, errs[0].Code)
	assert.Equal(t, "0", errs[0].Field)
}

func TestValidator_Reusable(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	assert.NotEmpty(t, v.Validate([]byte(`[{"type":"paragraph"}]`)))
	assert.Empty(t, v.Validate([]byte(`[{"type":"paragraph","paragraph":{}}]`)))
}

func TestValidationError_Error(t *testing.T) {
	e := ValidationError{Field: "0", Message: "bad", Code: ErrMissingPayload}
	assert.Equal(t, "[E202] 0: bad", e.Error())

	e.Line = 3
	assert.Equal(t, "[E202] line 3: 0: bad", e.Error())
}

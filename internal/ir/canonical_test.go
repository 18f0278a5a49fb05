package ir

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", "hello", `"hello"`},
		{"empty string", "", `""`},
		{"int", 42, "42"},
		{"negative int", int64(-100), "-100"},
		{"zero", 0, "0"},
		{"max int64", int64(9223372036854775807), "9223372036854775807"},
		{"bool true", true, "true"},
		{"bool false", false, "false"},
		{"null", nil, "null"},
		{"empty array", []any{}, "[]"},
		{"empty object", map[string]any{}, "{}"},
		{"array of ints", []any{1, 2, 3}, "[1,2,3]"},
		{"string slice", []string{"a", "b"}, `["a","b"]`},
		{"simple object", map[string]any{"a": 1}, `{"a":1}`},
		{"block", Block{"type": "divider"}, `{"type":"divider"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalSortedKeys(t *testing.T) {
	obj := map[string]any{
		"zebra": 1,
		"alpha": 2,
		"beta":  3,
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"beta":3,"zebra":1}`, string(result))
}

func TestMarshalCanonicalNestedSortedKeys(t *testing.T) {
	obj := map[string]any{
		"z": map[string]any{
			"b": 1,
			"a": 2,
		},
		"a": 3,
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":3,"z":{"a":2,"b":1}}`, string(result))
}

func TestMarshalCanonicalNumberNormalization(t *testing.T) {
	// The remote returns json.Number, the converter produces ints, and a
	// plain json.Unmarshal produces float64. All must canonicalize equally.
	forms := []any{3, int64(3), float64(3), json.Number("3"), json.Number("3.0")}

	for _, form := range forms {
		result, err := MarshalCanonical(map[string]any{"table_width": form})
		require.NoError(t, err)
		assert.Equal(t, `{"table_width":3}`, string(result), "form %T(%v)", form, form)
	}
}

func TestMarshalCanonicalFractionalFloat(t *testing.T) {
	result, err := MarshalCanonical(1.5)
	require.NoError(t, err)
	assert.Equal(t, "1.5", string(result))
}

func TestMarshalCanonicalRejectsNonFinite(t *testing.T) {
	_, err := MarshalCanonical(math.NaN())
	assert.Error(t, err)

	_, err = MarshalCanonical(map[string]any{"x": math.Inf(1)})
	assert.Error(t, err)
}

func TestMarshalCanonicalNoHTMLEscape(t *testing.T) {
	result, err := MarshalCanonical("<a & b>")
	require.NoError(t, err)
	assert.Equal(t, `"<a & b>"`, string(result))
}

func TestMarshalCanonicalLineSeparatorsLiteral(t *testing.T) {
	result, err := MarshalCanonical("a\u2028b\u2029c")
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(result))
}

func TestMarshalCanonicalControlEscapes(t *testing.T) {
	result, err := MarshalCanonical("tab\there\nquote\"back\\\x01")
	require.NoError(t, err)
	assert.Equal(t, `"tab\there\nquote\"back\\\u0001"`, string(result))
}

func TestMarshalCanonicalNFC(t *testing.T) {
	// e + combining acute must serialize like the precomposed form.
	decomposed, err := MarshalCanonical("e\u0301")
	require.NoError(t, err)
	precomposed, err := MarshalCanonical("\u00e9")
	require.NoError(t, err)
	assert.Equal(t, string(precomposed), string(decomposed))
}

func TestMarshalCanonicalUTF16KeyOrder(t *testing.T) {
	// U+1F600 encodes as surrogates (0xD83D...) which sort before U+FB01
	// in UTF-16 but after it in UTF-8.
	obj := map[string]any{
		"\ufb01":     1,
		"\U0001F600": 2,
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":2,\"\ufb01\":1}", string(result))
}

func TestMarshalCanonicalUnsupportedType(t *testing.T) {
	_, err := MarshalCanonical(struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported type")
}

func TestMarshalCanonicalErrorPath(t *testing.T) {
	_, err := MarshalCanonical(map[string]any{"outer": []any{1, struct{}{}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `value for key "outer"`)
	assert.Contains(t, err.Error(), "array[1]")
}

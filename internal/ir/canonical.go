package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces RFC 8785 style canonical JSON for hashing.
// CRITICAL: This is the ONLY serialization that should be used for
// content-addressed signatures.
//
// Key differences from standard json.Marshal:
// 1. Object keys sorted by UTF-16 code units (not UTF-8 bytes)
// 2. No HTML escaping (< > & are NOT escaped)
// 3. Strings are NFC normalized
// 4. Numbers are normalized: 3, 3.0 and json.Number("3") all print as 3
// 5. NaN and infinities are rejected
func MarshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := appendCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func appendCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case string:
		return appendCanonicalString(buf, val)
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int32:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case uint:
		buf.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint64:
		buf.WriteString(strconv.FormatUint(val, 10))
	case float32:
		return appendCanonicalFloat(buf, float64(val))
	case float64:
		return appendCanonicalFloat(buf, val)
	case json.Number:
		if n, err := val.Int64(); err == nil {
			buf.WriteString(strconv.FormatInt(n, 10))
			return nil
		}
		f, err := val.Float64()
		if err != nil {
			return fmt.Errorf("invalid number %q: %w", val.String(), err)
		}
		return appendCanonicalFloat(buf, f)
	case []string:
		buf.WriteByte('[')
		for i, s := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := appendCanonicalString(buf, s); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case []any, []Block, []map[string]any:
		return appendCanonicalArray(buf, ListOf(val))
	case map[string]any:
		return appendCanonicalObject(buf, val)
	case Block:
		return appendCanonicalObject(buf, val)
	case map[string]string:
		obj := make(map[string]any, len(val))
		for k, s := range val {
			obj[k] = s
		}
		return appendCanonicalObject(buf, obj)
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
	return nil
}

func appendCanonicalFloat(buf *bytes.Buffer, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("non-finite number %v is forbidden in canonical JSON", f)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		buf.WriteString(strconv.FormatInt(int64(f), 10))
		return nil
	}
	buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	return nil
}

// appendCanonicalString writes a canonical JSON string with NFC normalization.
// Only control characters, backslash and quote are escaped; <, >, & and
// U+2028/U+2029 are written literally.
func appendCanonicalString(buf *bytes.Buffer, s string) error {
	normalized := norm.NFC.String(s)

	buf.WriteByte('"')
	for _, r := range normalized {
		switch {
		case r == '"':
			buf.WriteString(`\"`)
		case r == '\\':
			buf.WriteString(`\\`)
		case r == '\b':
			buf.WriteString(`\b`)
		case r == '\f':
			buf.WriteString(`\f`)
		case r == '\n':
			buf.WriteString(`\n`)
		case r == '\r':
			buf.WriteString(`\r`)
		case r == '\t':
			buf.WriteString(`\t`)
		case r < 0x20:
			fmt.Fprintf(buf, `\u%04x`, r)
		default:
			buf.WriteRune(r)
		}
	}
	buf.WriteByte('"')
	return nil
}

func appendCanonicalArray(buf *bytes.Buffer, arr []any) error {
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := appendCanonical(buf, elem); err != nil {
			return fmt.Errorf("array[%d]: %w", i, err)
		}
	}
	buf.WriteByte(']')
	return nil
}

// appendCanonicalObject writes an object with RFC 8785 key ordering.
func appendCanonicalObject(buf *bytes.Buffer, obj map[string]any) error {
	buf.WriteByte('{')
	for i, k := range canonicalKeys(obj) {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := appendCanonicalString(buf, k); err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
		buf.WriteByte(':')
		if err := appendCanonical(buf, obj[k]); err != nil {
			return fmt.Errorf("value for key %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

// canonicalKeys returns keys in RFC 8785 order (UTF-16 code units).
// CRITICAL: Go's sort.Strings uses UTF-8 byte order, which differs for
// characters outside the BMP.
func canonicalKeys(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func compareUTF16(a, b string) int {
	return slices.Compare(utf16.Encode([]rune(a)), utf16.Encode([]rune(b)))
}

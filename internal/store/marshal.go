package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/docsync/internal/ir"
)

// timeLayout is the storage format for timestamps. Fixed-width nanoseconds
// keep stored values lexically ordered.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// marshalEtags converts block etags to canonical JSON TEXT for storage.
func marshalEtags(etags map[string]string) (string, error) {
	if etags == nil {
		etags = map[string]string{}
	}
	data, err := ir.MarshalCanonical(etags)
	if err != nil {
		return "", fmt.Errorf("marshal block etags: %w", err)
	}
	return string(data), nil
}

// unmarshalEtags parses stored etags. Empty input yields an empty map.
func unmarshalEtags(data string) (map[string]string, error) {
	etags := map[string]string{}
	if data == "" {
		return etags, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	if err := dec.Decode(&etags); err != nil {
		return nil, fmt.Errorf("unmarshal block etags: %w", err)
	}
	return etags, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}

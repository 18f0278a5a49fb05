// Package conflict detects concurrent modification of a remote document
// between two syncs by comparing edit timestamps.
package conflict

import (
	"time"

	"github.com/roach88/docsync/internal/ir"
)

// TakeSnapshot records the page's last_edited_time and the
// last_edited_time of every top-level block that has both an id and a
// timestamp. A missing or unparsable page timestamp reads as the zero time.
func TakeSnapshot(pageID string, page map[string]any, blocks []ir.Block) ir.PageSnapshot {
	edited, _ := page["last_edited_time"].(string)

	etags := make(map[string]string, len(blocks))
	for _, b := range blocks {
		id, ts := b.ID(), b.LastEdited()
		if id != "" && ts != "" {
			etags[id] = ts
		}
	}

	return ir.PageSnapshot{
		PageID:     pageID,
		LastEdited: ParseTime(edited),
		BlockEtags: etags,
	}
}

// Detect reports whether current differs from snapshot: the page timestamps
// differ, or a block recorded in snapshot has a different (or no) etag now.
// Blocks that exist only in current do not count.
func Detect(snapshot, current ir.PageSnapshot) bool {
	if !snapshot.LastEdited.Equal(current.LastEdited) {
		return true
	}
	for id, etag := range snapshot.BlockEtags {
		if cur, ok := current.BlockEtags[id]; !ok || cur != etag {
			return true
		}
	}
	return false
}

// ParseTime parses an RFC 3339 timestamp (fractional seconds and a "Z"
// suffix accepted). Empty or invalid input yields the zero time.
func ParseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

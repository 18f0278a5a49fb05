package markdown

import (
	"context"
	"fmt"
	"maps"

	"github.com/roach88/docsync/internal/ir"
)

// ChildLister lists the direct children of a page or block. Both the HTTP
// client and the in-memory tree satisfy it.
type ChildLister interface {
	GetChildren(ctx context.Context, blockID string) ([]ir.Block, error)
}

// FetchTree lists the children of rootID and descends into every block that
// reports has_children, down to maxDepth levels below the top level.
// Fetched children are attached to a copy of their parent under "children".
// maxDepth 0 lists the top level only; a negative maxDepth has no limit.
func FetchTree(ctx context.Context, api ChildLister, rootID string, maxDepth int) ([]ir.Block, error) {
	blocks, err := fetchLevel(ctx, api, rootID, 0, maxDepth)
	if err != nil {
		return nil, fmt.Errorf("fetch children of %s: %w", rootID, err)
	}
	return blocks, nil
}

func fetchLevel(ctx context.Context, api ChildLister, id string, depth, maxDepth int) ([]ir.Block, error) {
	blocks, err := api.GetChildren(ctx, id)
	if err != nil {
		return nil, err
	}
	if maxDepth >= 0 && depth >= maxDepth {
		return blocks, nil
	}
	for i, b := range blocks {
		if !b.HasChildren() || b.ID() == "" {
			continue
		}
		children, err := fetchLevel(ctx, api, b.ID(), depth+1, maxDepth)
		if err != nil {
			return nil, err
		}
		nested := maps.Clone(b)
		nested["children"] = children
		blocks[i] = nested
	}
	return blocks, nil
}

// Export fetches the block tree under rootID and renders it.
func (r *Renderer) Export(ctx context.Context, api ChildLister, rootID string, maxDepth int) (string, error) {
	blocks, err := FetchTree(ctx, api, rootID, maxDepth)
	if err != nil {
		return "", err
	}
	return r.Render(blocks)
}

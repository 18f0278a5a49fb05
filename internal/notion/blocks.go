package notion

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/roach88/docsync/internal/ir"
)

// RetrievePage fetches a page object.
func (c *Client) RetrievePage(ctx context.Context, pageID string) (map[string]any, error) {
	return c.do(ctx, "GET", "/pages/"+url.PathEscape(pageID), nil, nil)
}

// RetrieveBlock fetches a single block.
func (c *Client) RetrieveBlock(ctx context.Context, blockID string) (ir.Block, error) {
	obj, err := c.do(ctx, "GET", "/blocks/"+url.PathEscape(blockID), nil, nil)
	if err != nil {
		return nil, err
	}
	return ir.Block(obj), nil
}

// GetChildren fetches every direct child of blockID, following pagination
// cursors until the listing is exhausted.
func (c *Client) GetChildren(ctx context.Context, blockID string) ([]ir.Block, error) {
	path := "/blocks/" + url.PathEscape(blockID) + "/children"

	var blocks []ir.Block
	cursor := ""
	for {
		query := url.Values{"page_size": {strconv.Itoa(DefaultPageSize)}}
		if cursor != "" {
			query.Set("start_cursor", cursor)
		}

		page, err := c.do(ctx, "GET", path, query, nil)
		if err != nil {
			return nil, err
		}
		for _, item := range ir.MapsOf(page["results"]) {
			blocks = append(blocks, ir.Block(item))
		}

		more, _ := page["has_more"].(bool)
		next, _ := page["next_cursor"].(string)
		if !more || next == "" {
			break
		}
		cursor = next
	}
	if blocks == nil {
		blocks = []ir.Block{}
	}
	return blocks, nil
}

// AppendChildren inserts blocks under parentID after the child with id
// after, or at the end when after is "". Returns the created ids in order.
//
// The remote accepts at most 100 blocks per call; callers chunk.
func (c *Client) AppendChildren(ctx context.Context, parentID string, blocks []ir.Block, after string) ([]string, error) {
	body := map[string]any{"children": blocks}
	if after != "" {
		body["after"] = after
	}

	resp, err := c.do(ctx, "PATCH", "/blocks/"+url.PathEscape(parentID)+"/children", nil, body)
	if err != nil {
		return nil, err
	}
	return CreatedIDs(resp), nil
}

// UpdateBlock patches a block with a type-keyed payload.
func (c *Client) UpdateBlock(ctx context.Context, blockID string, payload map[string]any) error {
	_, err := c.do(ctx, "PATCH", "/blocks/"+url.PathEscape(blockID), nil, payload)
	return err
}

// DeleteBlock archives a block.
func (c *Client) DeleteBlock(ctx context.Context, blockID string) error {
	_, err := c.do(ctx, "DELETE", "/blocks/"+url.PathEscape(blockID), nil, nil)
	return err
}

// CreatedIDs extracts block ids from an append response's results.
// Results without an id are skipped.
func CreatedIDs(resp map[string]any) []string {
	results := ir.MapsOf(resp["results"])
	ids := make([]string, 0, len(results))
	for _, r := range results {
		if id := ir.Block(r).ID(); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// PageLastEdited returns a page's last_edited_time string, or "".
func PageLastEdited(page map[string]any) string {
	s, _ := page["last_edited_time"].(string)
	return s
}

// String describes the client without exposing credentials.
func (c *Client) String() string {
	return fmt.Sprintf("notion.Client{base=%s version=%s}", c.baseURL, c.version)
}

// Package memory provides an in-memory block tree that behaves like the
// remote API closely enough to preview and test syncs without a network.
package memory

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/roach88/docsync/internal/ir"
	"github.com/roach88/docsync/internal/notion"
)

// Call is one recorded mutation or read.
type Call struct {
	Method   string   `json:"method"`
	Target   string   `json:"target"`
	After    string   `json:"after,omitempty"`
	BlockIDs []string `json:"block_ids,omitempty"`
}

// Tree is a thread-safe in-memory remote document store.
//
// Pages are roots; every block belongs to exactly one parent. Mutations
// stamp last_edited_time on the block and on the owning page. Stored
// payloads get the remote's default attributes (color, is_toggleable, ...)
// filled in, as the real API reports them.
type Tree struct {
	mu       sync.Mutex
	ids      ir.IDGenerator
	now      func() time.Time
	pages    map[string]time.Time
	blocks   map[string]ir.Block
	children map[string][]string
	parent   map[string]string
	calls    []Call
	failure  func(method string, n int) error
}

// Option configures a Tree.
type Option func(*Tree)

// WithIDGenerator sets the generator for created block ids.
// Default: UUIDv7.
func WithIDGenerator(g ir.IDGenerator) Option {
	return func(t *Tree) { t.ids = g }
}

// WithClock sets the clock used for last_edited_time stamps.
func WithClock(now func() time.Time) Option {
	return func(t *Tree) { t.now = now }
}

// WithFailure installs a hook consulted before every call; n counts calls
// made so far. A non-nil return fails that call without side effects.
func WithFailure(fn func(method string, n int) error) Option {
	return func(t *Tree) { t.failure = fn }
}

// NewTree creates an empty tree.
func NewTree(opts ...Option) *Tree {
	t := &Tree{
		ids:      ir.UUIDv7Generator{},
		now:      time.Now,
		pages:    make(map[string]time.Time),
		blocks:   make(map[string]ir.Block),
		children: make(map[string][]string),
		parent:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// AddPage creates an empty page. Adding an existing page is a no-op.
func (t *Tree) AddPage(pageID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pages[pageID]; !ok {
		t.pages[pageID] = t.now().UTC()
	}
}

// Seed creates pageID if needed and appends blocks to it without recording
// calls. Returns the created ids.
func (t *Tree) Seed(pageID string, blocks []ir.Block) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pages[pageID]; !ok {
		t.pages[pageID] = t.now().UTC()
	}
	ids, _ := t.insertLocked(pageID, blocks, "")
	return ids
}

// Mirror replaces the children of pageID with copies of blocks that keep
// their ids and timestamps, creating the page if needed. Blocks without an
// id, or whose id is already taken, get a generated one. Calls are not
// recorded. Edit scripts planned against a remote listing can then be
// replayed here as a preview.
func (t *Tree) Mirror(pageID string, blocks []ir.Block) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pages[pageID]; !ok {
		t.pages[pageID] = t.now().UTC()
	}
	for _, id := range t.children[pageID] {
		t.removeLocked(id)
	}
	t.children[pageID] = nil

	for _, b := range blocks {
		if b == nil {
			continue
		}
		id := b.ID()
		if id == "" || t.existsLocked(id) {
			id = t.ids.Generate()
		}
		stored := maps.Clone(b)
		stored["id"] = id
		delete(stored, "has_children")
		t.blocks[id] = stored
		t.parent[id] = pageID
		t.children[pageID] = append(t.children[pageID], id)
	}
}

// SetFailure replaces the failure hook.
func (t *Tree) SetFailure(fn func(method string, n int) error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failure = fn
}

// RetrievePage returns a page object with its last_edited_time.
func (t *Tree) RetrievePage(ctx context.Context, pageID string) (map[string]any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.begin(ctx, Call{Method: "retrieve_page", Target: pageID}); err != nil {
		return nil, err
	}
	edited, ok := t.pages[pageID]
	if !ok {
		return nil, notFound("GET", "/pages/"+pageID)
	}
	return map[string]any{
		"object":           "page",
		"id":               pageID,
		"last_edited_time": formatTime(edited),
	}, nil
}

// GetChildren returns copies of the direct children of a page or block.
func (t *Tree) GetChildren(ctx context.Context, blockID string) ([]ir.Block, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.begin(ctx, Call{Method: "get_children", Target: blockID}); err != nil {
		return nil, err
	}
	if !t.existsLocked(blockID) {
		return nil, notFound("GET", "/blocks/"+blockID+"/children")
	}

	ids := t.children[blockID]
	out := make([]ir.Block, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.snapshotLocked(id))
	}
	return out, nil
}

// AppendChildren inserts blocks under parentID after the child with id
// after, or at the end when after is "". Inline "children" are created as
// nested blocks.
func (t *Tree) AppendChildren(ctx context.Context, parentID string, blocks []ir.Block, after string) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.check(ctx, "append_children"); err != nil {
		return nil, err
	}
	if !t.existsLocked(parentID) {
		return nil, notFound("PATCH", "/blocks/"+parentID+"/children")
	}
	if after != "" && !slices.Contains(t.children[parentID], after) {
		return nil, &notion.APIError{
			Status:  http.StatusBadRequest,
			Code:    "validation_error",
			Message: fmt.Sprintf("block %s is not a child of %s", after, parentID),
			Method:  "PATCH",
			Path:    "/blocks/" + parentID + "/children",
		}
	}

	ids, stamp := t.insertLocked(parentID, blocks, after)
	t.touchLocked(parentID, stamp)
	t.calls = append(t.calls, Call{Method: "append_children", Target: parentID, After: after, BlockIDs: ids})
	return ids, nil
}

// UpdateBlock replaces the type payload of a block. The payload must be
// keyed by the block's current type.
func (t *Tree) UpdateBlock(ctx context.Context, blockID string, payload map[string]any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.check(ctx, "update"); err != nil {
		return err
	}
	b, ok := t.blocks[blockID]
	if !ok {
		return notFound("PATCH", "/blocks/"+blockID)
	}

	blockType := b.Type()
	data, ok := payload[blockType]
	if !ok || len(payload) != 1 {
		return &notion.APIError{
			Status:  http.StatusBadRequest,
			Code:    "validation_error",
			Message: fmt.Sprintf("update payload must be keyed by block type %q", blockType),
			Method:  "PATCH",
			Path:    "/blocks/" + blockID,
		}
	}

	if m := ir.MapOf(data); m != nil {
		data = remotePayload(blockType, m)
	}
	b[blockType] = data
	t.touchLocked(blockID, t.now().UTC())
	t.calls = append(t.calls, Call{Method: "update", Target: blockID})
	return nil
}

// DeleteBlock removes a block and its descendants.
func (t *Tree) DeleteBlock(ctx context.Context, blockID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.check(ctx, "delete"); err != nil {
		return err
	}
	parentID, ok := t.parent[blockID]
	if !ok {
		return notFound("DELETE", "/blocks/"+blockID)
	}

	t.children[parentID] = slices.DeleteFunc(t.children[parentID], func(id string) bool { return id == blockID })
	t.removeLocked(blockID)
	t.touchLocked(parentID, t.now().UTC())
	t.calls = append(t.calls, Call{Method: "delete", Target: blockID})
	return nil
}

// Calls returns a copy of the recorded calls, reads included.
func (t *Tree) Calls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.calls)
}

// MutationCount returns how many update, delete and append calls succeeded.
func (t *Tree) MutationCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, c := range t.calls {
		switch c.Method {
		case "update", "delete", "append_children":
			n++
		}
	}
	return n
}

// ResetCalls clears the call log.
func (t *Tree) ResetCalls() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = nil
}

// Document returns the direct children of pageID in order, or nil if the
// page does not exist.
func (t *Tree) Document(pageID string) []ir.Block {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pages[pageID]; !ok {
		return nil
	}
	ids := t.children[pageID]
	out := make([]ir.Block, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.snapshotLocked(id))
	}
	return out
}

// PlainTexts renders each direct child of pageID to its plain text.
func (t *Tree) PlainTexts(pageID string) []string {
	doc := t.Document(pageID)
	out := make([]string, len(doc))
	for i, b := range doc {
		out[i] = b.PlainText()
	}
	return out
}

// Touch marks a block (or page) as edited now, modelling a concurrent
// edit by someone else.
func (t *Tree) Touch(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.touchLocked(id, t.now().UTC())
}

// begin records a read call after the failure check.
func (t *Tree) begin(ctx context.Context, c Call) error {
	if err := t.check(ctx, c.Method); err != nil {
		return err
	}
	t.calls = append(t.calls, c)
	return nil
}

func (t *Tree) check(ctx context.Context, method string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.failure != nil {
		return t.failure(method, len(t.calls))
	}
	return nil
}

func (t *Tree) existsLocked(id string) bool {
	if _, ok := t.pages[id]; ok {
		return true
	}
	_, ok := t.blocks[id]
	return ok
}

// insertLocked stores blocks under parentID after the given sibling and
// returns their ids plus the stamp applied.
func (t *Tree) insertLocked(parentID string, blocks []ir.Block, after string) ([]string, time.Time) {
	stamp := t.now().UTC()
	ids := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b == nil {
			continue
		}
		ids = append(ids, t.storeLocked(parentID, b, stamp))
	}

	siblings := t.children[parentID]
	pos := len(siblings)
	if after != "" {
		pos = slices.Index(siblings, after) + 1
	}
	t.children[parentID] = slices.Insert(siblings, pos, ids...)
	return ids, stamp
}

// storeLocked copies b into the tree under parentID, recursing into inline
// children (top-level or inside the type payload), and returns the new id.
// The caller links the id into the parent's child list.
func (t *Tree) storeLocked(parentID string, b ir.Block, stamp time.Time) string {
	id := t.ids.Generate()
	stored := make(ir.Block, len(b)+3)
	for k, v := range b {
		if k == "children" {
			continue
		}
		stored[k] = v
	}
	if data := b.TypeData(); data != nil {
		stored[b.Type()] = remotePayload(b.Type(), data)
	}
	stored["id"] = id
	stored["object"] = "block"
	stored["last_edited_time"] = formatTime(stamp)

	t.blocks[id] = stored
	t.parent[id] = parentID

	for _, child := range b.Children() {
		childID := t.storeLocked(id, child, stamp)
		t.children[id] = append(t.children[id], childID)
	}
	return id
}

func (t *Tree) removeLocked(id string) {
	for _, child := range t.children[id] {
		t.removeLocked(child)
	}
	delete(t.children, id)
	delete(t.blocks, id)
	delete(t.parent, id)
}

// touchLocked stamps id and walks up to the owning page.
func (t *Tree) touchLocked(id string, stamp time.Time) {
	for id != "" {
		if _, ok := t.pages[id]; ok {
			t.pages[id] = stamp
			return
		}
		if b, ok := t.blocks[id]; ok {
			b["last_edited_time"] = formatTime(stamp)
		}
		id = t.parent[id]
	}
}

// snapshotLocked returns a shallow copy of a stored block with has_children
// filled in.
func (t *Tree) snapshotLocked(id string) ir.Block {
	b := t.blocks[id]
	out := make(ir.Block, len(b)+1)
	for k, v := range b {
		out[k] = v
	}
	out["has_children"] = len(t.children[id]) > 0
	return out
}

// remotePayload copies a type payload the way the remote stores it: inline
// children are split off and default attributes are filled in.
func remotePayload(blockType string, data map[string]any) map[string]any {
	payload := make(map[string]any, len(data)+2)
	for k, v := range data {
		if k != "children" {
			payload[k] = v
		}
	}
	ir.FillDefaults(blockType, payload)
	return payload
}

func notFound(method, path string) error {
	return &notion.APIError{
		Status:  http.StatusNotFound,
		Code:    "object_not_found",
		Message: "Could not find " + path,
		Method:  method,
		Path:    path,
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

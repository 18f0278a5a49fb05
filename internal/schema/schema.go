// Package schema validates JSON block documents before they are planned or
// written.
//
// The structural rules live in an embedded CUE schema (block.cue): a
// document is a list of blocks, every block carries a lower-case type tag,
// and rich-text runs have the expected shape. Rules CUE cannot express
// against a data-dependent key (the type payload) are checked in Go.
package schema

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// Validation error codes (E200-E299)
const (
	ErrInvalidJSON     = "E200" // input is not JSON
	ErrSchemaViolation = "E201" // CUE schema rejected the document
	ErrMissingPayload  = "E202" // block has no payload keyed by its type
	ErrInvalidRichText = "E203" // rich_text does not match #RichTextList
	ErrTextTooLong     = "E204" // a run exceeds the per-run text limit
	ErrSchemaCompile   = "E299" // embedded schema failed to compile
)

const (
	inputFilename       = "input.json"
	maxRunLength        = 2000
	maxReportedPerBlock = 5
)

//go:embed block.cue
var source string

// ValidationError is one problem found in a document.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validator checks documents against the compiled schema. Safe for
// concurrent use; calls are serialised on the underlying CUE context.
type Validator struct {
	mu       sync.Mutex
	ctx      *cue.Context
	document cue.Value
	richText cue.Value
}

// New compiles the embedded schema.
func New() (*Validator, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(source, cue.Filename("block.cue"))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile block schema: %w", err)
	}
	return &Validator{
		ctx:      ctx,
		document: v.LookupPath(cue.ParsePath("#Document")),
		richText: v.LookupPath(cue.ParsePath("#RichTextList")),
	}, nil
}

var defaultValidator = sync.OnceValues(New)

// Validate checks data with a shared Validator.
// Returns all errors found (does not fail-fast); nil means valid.
func Validate(data []byte) []ValidationError {
	v, err := defaultValidator()
	if err != nil {
		return []ValidationError{{Field: "schema", Message: err.Error(), Code: ErrSchemaCompile}}
	}
	return v.Validate(data)
}

// Validate checks data, a JSON array of blocks.
// Returns all errors found (does not fail-fast); nil means valid.
func (v *Validator) Validate(data []byte) []ValidationError {
	v.mu.Lock()
	defer v.mu.Unlock()

	input := v.ctx.CompileBytes(data, cue.Filename(inputFilename))
	if err := input.Err(); err != nil {
		return fromCUE(err, ErrInvalidJSON)
	}

	unified := v.document.Unify(input)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fromCUE(err, ErrSchemaViolation)
	}

	var errs []ValidationError
	iter, err := input.List()
	if err != nil {
		return fromCUE(err, ErrSchemaViolation)
	}
	for i := 0; iter.Next(); i++ {
		errs = append(errs, v.checkBlock(iter.Value(), fmt.Sprintf("%d", i))...)
	}
	return errs
}

// checkBlock applies the payload rules to one block and its inline
// children. field is the block's path within the document.
func (v *Validator) checkBlock(block cue.Value, field string) []ValidationError {
	blockType, err := block.LookupPath(cue.ParsePath("type")).String()
	if err != nil {
		// Already reported by the schema pass.
		return nil
	}

	payload := block.LookupPath(cue.MakePath(cue.Str(blockType)))
	if !payload.Exists() {
		return []ValidationError{{
			Field:   field,
			Message: fmt.Sprintf("block of type %q has no %q payload", blockType, blockType),
			Code:    ErrMissingPayload,
			Line:    line(block),
		}}
	}

	var errs []ValidationError
	if rt := payload.LookupPath(cue.ParsePath("rich_text")); rt.Exists() {
		errs = append(errs, v.checkRichText(rt, field+"."+blockType+".rich_text")...)
	}

	for _, children := range []cue.Value{
		block.LookupPath(cue.ParsePath("children")),
		payload.LookupPath(cue.ParsePath("children")),
	} {
		iter, err := children.List()
		if err != nil {
			continue
		}
		for i := 0; iter.Next(); i++ {
			errs = append(errs, v.checkBlock(iter.Value(), fmt.Sprintf("%s.children.%d", field, i))...)
		}
	}
	return errs
}

func (v *Validator) checkRichText(rt cue.Value, field string) []ValidationError {
	if err := v.richText.Unify(rt).Validate(cue.Concrete(true)); err != nil {
		errs := fromCUE(err, ErrInvalidRichText)
		for i := range errs {
			errs[i].Field = joinField(field, errs[i].Field)
		}
		return truncate(errs)
	}

	var errs []ValidationError
	iter, err := rt.List()
	if err != nil {
		return nil
	}
	for i := 0; iter.Next(); i++ {
		content, err := iter.Value().LookupPath(cue.ParsePath("text.content")).String()
		if err != nil {
			continue
		}
		if n := utf8.RuneCountInString(content); n > maxRunLength {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s.%d.text.content", field, i),
				Message: fmt.Sprintf("run has %d characters, limit is %d", n, maxRunLength),
				Code:    ErrTextTooLong,
				Line:    line(iter.Value()),
			})
		}
	}
	return truncate(errs)
}

func truncate(errs []ValidationError) []ValidationError {
	if len(errs) > maxReportedPerBlock {
		return errs[:maxReportedPerBlock]
	}
	return errs
}

// fromCUE flattens a CUE error list into ValidationErrors.
func fromCUE(err error, code string) []ValidationError {
	var out []ValidationError
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		out = append(out, ValidationError{
			Field:   strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
			Code:    code,
			Line:    inputLine(e),
		})
	}
	if len(out) == 0 {
		out = append(out, ValidationError{Field: "document", Message: err.Error(), Code: code})
	}
	return out
}

// inputLine returns the first position of e that points into the input.
func inputLine(e cueerrors.Error) int {
	if pos := e.Position(); pos.Filename() == inputFilename {
		return pos.Line()
	}
	for _, pos := range e.InputPositions() {
		if pos.Filename() == inputFilename {
			return pos.Line()
		}
	}
	return 0
}

func line(v cue.Value) int {
	if pos := v.Pos(); pos.IsValid() && pos.Filename() == inputFilename {
		return pos.Line()
	}
	return 0
}

func joinField(prefix, field string) string {
	if field == "" {
		return prefix
	}
	return prefix + "." + field
}

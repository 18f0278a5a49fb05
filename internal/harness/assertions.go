package harness

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/docsync/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", event.Seq, formatEvent(event))
		}
	}

	return buf.String()
}

func formatEvent(ev TraceEvent) string {
	if ev.Type == EventOp {
		s := ev.Op
		if ev.ExistingID != "" {
			s += " " + ev.ExistingID
		}
		if ev.BlockType != "" {
			s += " (" + ev.BlockType + ")"
		}
		return s
	}
	s := ev.Method + " " + ev.Target
	if ev.After != "" {
		s += " after " + ev.After
	}
	if len(ev.BlockIDs) > 0 {
		s += " -> " + strings.Join(ev.BlockIDs, ",")
	}
	return s
}

// assertOpTypes checks the planned op types, in order.
func assertOpTypes(result *Result, a Assertion) error {
	var actual []string
	for _, ev := range result.Ops() {
		actual = append(actual, ev.Op)
	}
	if !slices.Equal(actual, a.Ops) {
		return &AssertionError{
			Type:     AssertOpTypes,
			Expected: fmt.Sprintf("%v", a.Ops),
			Actual:   fmt.Sprintf("%v", actual),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertOpCount checks how many ops of one type were planned.
func assertOpCount(result *Result, a Assertion) error {
	count := 0
	for _, ev := range result.Ops() {
		if ev.Op == a.Op {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertOpCount,
			Expected: fmt.Sprintf("%d %s ops", a.Count, a.Op),
			Actual:   fmt.Sprintf("%d %s ops", count, a.Op),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertResult compares executor counts with subset semantics: only keys
// present in Expect are checked.
func assertResult(result *Result, a Assertion) error {
	actual := map[string]any{
		"strategy": string(result.Outcome.Strategy),
		"kept":     result.Outcome.Kept,
		"inserted": result.Outcome.Inserted,
		"deleted":  result.Outcome.Deleted,
		"replaced": result.Outcome.Replaced,
	}

	// Sort keys for deterministic error messages
	keys := make([]string, 0, len(a.Expect))
	for k := range a.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		want := a.Expect[key]
		got, ok := actual[key]
		if !ok {
			return &AssertionError{
				Type:     AssertResult,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   "no such result field",
			}
		}
		// YAML decodes counts as int; compare printed forms so 1 and
		// int64(1) agree.
		if fmt.Sprint(want) != fmt.Sprint(got) {
			return &AssertionError{
				Type:     AssertResult,
				Expected: fmt.Sprintf("%s = %v", key, want),
				Actual:   fmt.Sprintf("%s = %v", key, got),
				Trace:    result.Trace,
			}
		}
	}
	return nil
}

// assertRemoteCalls counts mutations, optionally of one method.
func assertRemoteCalls(result *Result, a Assertion) error {
	count := 0
	for _, ev := range result.Calls() {
		if a.Method == "" || ev.Method == a.Method {
			count++
		}
	}
	if count != a.Count {
		what := "remote calls"
		if a.Method != "" {
			what = a.Method + " calls"
		}
		return &AssertionError{
			Type:     AssertRemoteCalls,
			Expected: fmt.Sprintf("%d %s", a.Count, what),
			Actual:   fmt.Sprintf("%d %s", count, what),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertCallOrder checks the exact sequence of mutation methods.
func assertCallOrder(result *Result, a Assertion) error {
	var actual []string
	for _, ev := range result.Calls() {
		actual = append(actual, ev.Method)
	}
	if !slices.Equal(actual, a.Methods) {
		return &AssertionError{
			Type:     AssertCallOrder,
			Expected: fmt.Sprintf("%v", a.Methods),
			Actual:   fmt.Sprintf("%v", actual),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertFinalText checks the plain text of the page after the sync.
func assertFinalText(result *Result, a Assertion) error {
	if !slices.Equal(result.Final, a.Texts) {
		return &AssertionError{
			Type:     AssertFinalText,
			Expected: fmt.Sprintf("%q", a.Texts),
			Actual:   fmt.Sprintf("%q", result.Final),
		}
	}
	return nil
}

// assertHistory checks how many runs the store holds for the page.
func assertHistory(ctx context.Context, st *store.Store, pageID string, a Assertion) error {
	runs, err := st.ListRuns(ctx, pageID, 0)
	if err != nil {
		return &AssertionError{
			Type:     AssertHistory,
			Expected: fmt.Sprintf("runs for page %s", pageID),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	if len(runs) != a.Count {
		return &AssertionError{
			Type:     AssertHistory,
			Expected: fmt.Sprintf("%d recorded runs", a.Count),
			Actual:   fmt.Sprintf("%d recorded runs", len(runs)),
		}
	}
	return nil
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store  *store.Store
	Ctx    context.Context
	PageID string
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides database access for history assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertOpTypes:
			err = assertOpTypes(result, assertion)
		case AssertOpCount:
			err = assertOpCount(result, assertion)
		case AssertResult:
			err = assertResult(result, assertion)
		case AssertRemoteCalls:
			err = assertRemoteCalls(result, assertion)
		case AssertCallOrder:
			err = assertCallOrder(result, assertion)
		case AssertFinalText:
			err = assertFinalText(result, assertion)
		case AssertHistory:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: history requires database context", i)
			} else {
				err = assertHistory(actx.Ctx, actx.Store, actx.PageID, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

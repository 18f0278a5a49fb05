// Package harness replays sync scenarios against an in-memory page.
//
// A scenario is a YAML file naming an existing document, a desired
// document and a list of assertions:
//
//	name: update_middle_paragraph
//	description: A changed paragraph between two unchanged ones is patched in place
//	existing:
//	  paragraphs: [A, X, B]
//	desired:
//	  paragraphs: [A, Y, B]
//	assertions:
//	  - type: op_types
//	    ops: [keep, update, keep]
//	  - type: remote_calls
//	    count: 1
//
// Documents may be given as Markdown, a Markdown file, a list of
// paragraph texts, or raw block objects.
//
// Run seeds the existing blocks, syncs the desired ones through the same
// reconcile.Syncer the CLI uses, and records every planned op and every
// remote mutation in a trace. Block ids ("b-1", "b-2", ...), run ids and
// timestamps are deterministic, so traces can be compared against golden
// files with RunWithGolden.
package harness

// Package ir provides the shared block model for docsync.
//
// This package contains the types exchanged between the diff engine, the
// remote clients and the CLI. All other internal packages import ir; ir
// imports nothing internal.
//
// Key design constraints:
//   - Blocks are kept in their wire shape (map[string]any) and are never
//     mutated by the engine
//   - All accessors are total: malformed blocks read as empty values
//   - Content hashes use canonical JSON so equal content always yields an
//     equal digest regardless of key order or number representation
//   - All JSON tags use snake_case
package ir

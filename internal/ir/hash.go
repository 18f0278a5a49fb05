package ir

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Domain prefixes for content hashes.
// Version suffix enables future algorithm migration.
const (
	DomainRichText  = "docsync/rich_text/v1"
	DomainStructure = "docsync/structure/v1"
	DomainAttrs     = "docsync/attrs/v1"
	DomainPlan      = "docsync/plan/v1"
)

// hashWithDomain computes a 64-bit xxhash with domain separation.
// Format: XXH64(domain + 0x00 + data), rendered as 16 hex characters.
//
// These digests detect content changes; they are not a security boundary.
func hashWithDomain(domain string, data []byte) string {
	d := xxhash.New()
	_, _ = d.WriteString(domain)
	_, _ = d.Write([]byte{0x00})
	_, _ = d.Write(data)
	return fmt.Sprintf("%016x", d.Sum64())
}

// ContentHash digests v under the given domain using canonical JSON.
//
// ContentHash is total: values canonical JSON cannot represent (exotic Go
// types, NaN) are hashed through their %#v rendering instead, which is still
// deterministic for equal inputs.
func ContentHash(domain string, v any) string {
	data, err := MarshalCanonical(v)
	if err != nil {
		data = []byte(fmt.Sprintf("%#v", v))
	}
	return hashWithDomain(domain, data)
}

// PlanHash digests an edit script: op types, target ids and the content
// hash of every carried block. Two plans with equal hashes issue the same
// remote mutations.
func PlanHash(ops []DiffOp) string {
	items := make([]any, len(ops))
	for i, op := range ops {
		item := map[string]any{"op": string(op.Type)}
		if op.ExistingID != "" {
			item["existing_id"] = op.ExistingID
		}
		if op.NewBlock != nil {
			item["new_block"] = map[string]any(op.NewBlock)
		}
		items[i] = item
	}
	return ContentHash(DomainPlan, items)
}

package diff

import (
	"slices"

	"github.com/roach88/docsync/internal/ir"
)

// LCSMatch computes the longest common subsequence of equal signatures.
//
// Returns (existing, new) index pairs in ascending order; both coordinates
// are strictly increasing and existing[p.ExistingIndex] == desired[p.NewIndex]
// for every pair. Either input empty yields an empty result.
//
// The DP table is O(m*n) in time and space. When the two predecessor cells
// tie during backtracking, the existing index is decremented first. This
// decides which of several equal-length alignments is chosen when content
// repeats, and planning output depends on it.
func LCSMatch(existing, desired []ir.BlockSignature) []ir.MatchedPair {
	m, n := len(existing), len(desired)
	if m == 0 || n == 0 {
		return []ir.MatchedPair{}
	}

	// dp[i*w+j] is the LCS length of existing[:i] and desired[:j].
	w := n + 1
	dp := make([]int, (m+1)*w)
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			if existing[i-1] == desired[j-1] {
				dp[i*w+j] = dp[(i-1)*w+j-1] + 1
			} else {
				dp[i*w+j] = max(dp[(i-1)*w+j], dp[i*w+j-1])
			}
		}
	}

	pairs := make([]ir.MatchedPair, 0, dp[m*w+n])
	i, j := m, n
	for i > 0 && j > 0 {
		switch {
		case existing[i-1] == desired[j-1]:
			pairs = append(pairs, ir.MatchedPair{ExistingIndex: i - 1, NewIndex: j - 1})
			i--
			j--
		case dp[(i-1)*w+j] >= dp[i*w+j-1]:
			i--
		default:
			j--
		}
	}

	slices.Reverse(pairs)
	return pairs
}

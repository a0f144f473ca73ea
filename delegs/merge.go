package delegs

import "sort"

// Merge combines an existing delegation registry with newly discovered
// delegations, keeping at most one delegation per signer key: the one with
// the greatest slot, ties broken by Delegation.Supersedes. Merge is
// commutative and idempotent, so re-folding an already-merged batch or
// collecting fan-out batches in any order yields the same registry.
//
// The result is sorted by signer key so that equal registries serialize
// identically.
func Merge(existing, discovered []Delegation) []Delegation {
	byKey := make(map[string]Delegation, len(existing)+len(discovered))
	fold := func(ds []Delegation) {
		for _, d := range ds {
			current, ok := byKey[d.SignerKey]
			if !ok || d.Supersedes(current) {
				byKey[d.SignerKey] = d
			}
		}
	}
	fold(existing)
	fold(discovered)

	merged := make([]Delegation, 0, len(byKey))
	for _, d := range byKey {
		merged = append(merged, d)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].SignerKey < merged[j].SignerKey
	})
	return merged
}

package util

import (
	"cmp"
	"maps"
	"slices"
)

// SortedKeys returns the keys of m in ascending order, for output that
// must not depend on map iteration.
func SortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	return slices.Sorted(maps.Keys(m))
}

// SortedUnique sorts s in place and drops duplicates.
func SortedUnique[T cmp.Ordered](s []T) []T {
	slices.Sort(s)
	return slices.Compact(s)
}

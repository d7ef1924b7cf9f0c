package models

import (
	"slices"
	"strings"
)

// NewerFirst orders alerts by created_at descending, breaking ties by id
// descending so equal timestamps render in the same order every time.
func NewerFirst(a, b Alert) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(b.ID, a.ID)
}

// SortNewestFirst sorts alerts in place with NewerFirst.
func SortNewestFirst(alerts []Alert) {
	slices.SortStableFunc(alerts, NewerFirst)
}

// IsNewestFirst reports whether alerts are already in NewerFirst order.
func IsNewestFirst(alerts []Alert) bool {
	return slices.IsSortedFunc(alerts, NewerFirst)
}

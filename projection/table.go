package projection

import (
	"slices"
	"strings"

	"github.com/youwol/ywdash/message"
)

// Policy selects how a Table combines its layers.
type Policy int

const (
	// Dedup keeps the first row seen for each key, layers in order, then sorts.
	Dedup Policy = iota
	// AppendOnly keeps every row and stable-sorts the concatenation.
	AppendOnly
)

// Table merges ordered layers of rows into one sorted list.
type Table[R any] struct {
	policy Policy
	key    func(R) string
	cmp    func(a, b R) int
}

// NewDedupTable builds a Dedup table. Earlier layers take precedence.
func NewDedupTable[R any](key func(R) string, cmp func(a, b R) int) Table[R] {
	return Table[R]{policy: Dedup, key: key, cmp: cmp}
}

// NewAppendOnlyTable builds an AppendOnly table.
func NewAppendOnlyTable[R any](cmp func(a, b R) int) Table[R] {
	return Table[R]{policy: AppendOnly, cmp: cmp}
}

// Policy returns the merge policy.
func (t Table[R]) Policy() Policy {
	return t.policy
}

// Merge combines layers into a new sorted slice. Inputs are not modified.
func (t Table[R]) Merge(layers ...[]R) []R {
	var out []R
	switch t.policy {
	case Dedup:
		seen := make(map[string]struct{})
		for _, layer := range layers {
			for _, row := range layer {
				k := t.key(row)
				if _, dup := seen[k]; dup {
					continue
				}
				seen[k] = struct{}{}
				out = append(out, row)
			}
		}
	default:
		for _, layer := range layers {
			out = append(out, layer...)
		}
	}
	if t.cmp != nil {
		slices.SortStableFunc(out, t.cmp)
	}
	return out
}

// CompareFold orders strings case-insensitively, falling back to a
// case-sensitive comparison so the order is total.
func CompareFold(a, b string) int {
	if c := strings.Compare(strings.ToLower(a), strings.ToLower(b)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

// UpdatePriority ranks update statuses, most actionable first.
func UpdatePriority(s message.UpdateStatus) int {
	switch s {
	case message.UpdateRemoteAhead:
		return 0
	case message.UpdateLocalAhead:
		return 1
	case message.UpdateMismatch:
		return 2
	case message.UpdateUpToDate:
		return 3
	default:
		return 4
	}
}

// CompareUpdateRows orders update rows by status priority.
func CompareUpdateRows(a, b message.UpdateStatusRow) int {
	return UpdatePriority(a.Status) - UpdatePriority(b.Status)
}

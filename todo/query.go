package todo

import (
	"slices"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Filter restricts a list by completion state.
type Filter string

const (
	FilterAll       Filter = "all"
	FilterActive    Filter = "active"
	FilterCompleted Filter = "completed"
)

// Sort orders a list by creation time.
type Sort string

const (
	SortCreatedDesc Sort = "created_desc"
	SortCreatedAsc  Sort = "created_asc"
)

// DefaultQuery is the query a fresh session starts with.
var DefaultQuery = Query{Filter: FilterAll, Sort: SortCreatedDesc}

// Query is the active search, filter and sort selection.
type Query struct {
	Search string `json:"search,omitempty"`
	Filter Filter `json:"filter"`
	Sort   Sort   `json:"sort"`
}

// Normalize maps unknown enum values to their defaults. The search text is
// kept as typed.
func (q Query) Normalize() Query {
	switch q.Filter {
	case FilterAll, FilterActive, FilterCompleted:
	default:
		q.Filter = FilterAll
	}
	switch q.Sort {
	case SortCreatedDesc, SortCreatedAsc:
	default:
		q.Sort = SortCreatedDesc
	}
	return q
}

// Term returns the trimmed search text.
func (q Query) Term() string {
	return strings.TrimSpace(q.Search)
}

// Validate reports enum values outside the supported set.
func (q Query) Validate() error {
	err := validation.ValidateStruct(&q,
		validation.Field(&q.Filter, validation.In(FilterAll, FilterActive, FilterCompleted)),
		validation.Field(&q.Sort, validation.In(SortCreatedDesc, SortCreatedAsc)),
	)
	if err != nil {
		return newValidationFailure(err, "invalid query")
	}
	return nil
}

// Matches reports whether item belongs to the slice of the collection q selects.
func (q Query) Matches(item Item) bool {
	switch q.Filter {
	case FilterActive:
		if item.Done {
			return false
		}
	case FilterCompleted:
		if !item.Done {
			return false
		}
	}

	term := strings.ToLower(q.Term())
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(item.Title), term)
}

// Apply filters and orders items locally. Items without a parseable creation
// time sort last regardless of direction. The input slice is not modified.
func (q Query) Apply(items []Item) []Item {
	q = q.Normalize()

	out := make([]Item, 0, len(items))
	for _, item := range items {
		if q.Matches(item) {
			out = append(out, item)
		}
	}

	slices.SortStableFunc(out, func(a, b Item) int {
		ta, okA := parseCreatedAt(a.CreatedAt)
		tb, okB := parseCreatedAt(b.CreatedAt)
		switch {
		case !okA && !okB:
			return 0
		case !okA:
			return 1
		case !okB:
			return -1
		}
		if q.Sort == SortCreatedAsc {
			return ta.Compare(tb)
		}
		return tb.Compare(ta)
	})

	return out
}

func parseCreatedAt(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

package engine

import (
	"sort"
	"strings"
	"time"
)

// Sort directions for ReadOptions.SortOrder.
const (
	SortAscending  = "asc"
	SortDescending = "desc"
)

// FilterFunc is a caller-supplied predicate evaluated per record before it
// counts toward offset/limit.
type FilterFunc func(Record) bool

// ReadOptions controls a paginated read over one collection.
type ReadOptions struct {
	// Limit caps the number of returned records. Zero means no limit.
	Limit int

	// Offset skips that many filtered records before collecting.
	Offset int

	// IndexName/IndexValue start iteration from a secondary index instead
	// of a full collection scan. IndexName must name an index declared in
	// the collection schema.
	IndexName  string
	IndexValue interface{}

	// Filter is evaluated per record; nil matches everything.
	Filter FilterFunc

	// SortBy sorts the captured page window, not the full collection.
	// Callers needing exact global order must read with a generous limit
	// and resort client-side.
	SortBy    string
	SortOrder string
}

// ReadResult is the outcome of a paginated read.
type ReadResult struct {
	Data    []Record `json:"data"`
	Total   int      `json:"total"`
	HasMore bool     `json:"has_more"`
}

// sortWindow sorts the already-captured page in place.
func sortWindow(records []Record, sortBy, sortOrder string) {
	if sortBy == "" {
		return
	}
	desc := strings.EqualFold(sortOrder, SortDescending)
	sort.SliceStable(records, func(i, j int) bool {
		less := lessValue(records[i][sortBy], records[j][sortBy])
		if desc {
			return lessValue(records[j][sortBy], records[i][sortBy])
		}
		return less
	})
}

// lessValue orders two field values. Numbers order numerically, strings
// lexically; everything else falls back to its string form. Nil sorts
// first so missing fields group together.
func lessValue(a, b interface{}) bool {
	if a == nil {
		return b != nil
	}
	if b == nil {
		return false
	}

	if na, aok := numericValue(a); aok {
		if nb, bok := numericValue(b); bok {
			return na < nb
		}
	}

	if ta, aok := timeValue(a); aok {
		if tb, bok := timeValue(b); bok {
			return ta.Before(tb)
		}
	}

	return stringValue(a) < stringValue(b)
}

func numericValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func timeValue(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	default:
		return time.Time{}, false
	}
}

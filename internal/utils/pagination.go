// Package utils holds small helpers with no domain knowledge.
package utils

import "strconv"

// AtoiDefault parses s as a base-10 int, returning def when s is empty or
// not a valid int.
func AtoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// Page is one window over a list of items.
type Page struct {
	Index int // zero-based, always within [0, Count)
	Count int // at least 1, even for an empty list
	Start int // first item, inclusive
	End   int // last item, exclusive
}

// Paginate clamps index into range and returns the page window of size items
// over total. A non-positive size yields a single page holding everything.
func Paginate(index, total, size int) Page {
	if total < 0 {
		total = 0
	}
	if size <= 0 {
		return Page{Count: 1, End: total}
	}
	pg := Page{Count: max(1, (total+size-1)/size)}
	pg.Index = min(max(index, 0), pg.Count-1)
	pg.Start = pg.Index * size
	pg.End = min(pg.Start+size, total)
	return pg
}

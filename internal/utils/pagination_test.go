package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		in       string
		def, out int
	}{
		{"", 100, 100},
		{"7", 100, 7},
		{"-3", 100, -3},
		{"abc", 100, 100},
		{" 42", 100, 100},
		{"99999999999999999999999", 100, 100},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.out, AtoiDefault(tc.in, tc.def), "%q", tc.in)
	}
}

func TestPaginate(t *testing.T) {
	cases := []struct {
		name               string
		index, total, size int
		want               Page
	}{
		{"empty list has one page", 0, 0, 25, Page{Index: 0, Count: 1, Start: 0, End: 0}},
		{"exact fit", 0, 25, 25, Page{Index: 0, Count: 1, Start: 0, End: 25}},
		{"second partial page", 1, 30, 25, Page{Index: 1, Count: 2, Start: 25, End: 30}},
		{"past the end clamps", 9, 30, 25, Page{Index: 1, Count: 2, Start: 25, End: 30}},
		{"negative clamps", -2, 30, 25, Page{Index: 0, Count: 2, Start: 0, End: 25}},
		{"no page size", 3, 12, 0, Page{Index: 0, Count: 1, Start: 0, End: 12}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Paginate(tc.index, tc.total, tc.size))
		})
	}
}

func TestPaginate_WindowAlwaysInBounds(t *testing.T) {
	for total := 0; total <= 80; total++ {
		for index := -3; index <= 6; index++ {
			pg := Paginate(index, total, 25)
			assert.True(t, pg.Index >= 0 && pg.Index < pg.Count)
			assert.True(t, 0 <= pg.Start && pg.Start <= pg.End && pg.End <= total)
		}
	}
}

// Package alphanum implements natural ("alphanumeric") string ordering.
//
// Strings are split into maximal runs of ASCII digits and runs of non-digits.
// Digit runs compare by numeric value with arbitrary precision, non-digit runs
// compare with a base comparator. When every run ties, the first pair of equal
// valued digit runs with different lengths decides, shorter first, so that
// "0" < "00" < "1" < "01" and only identical strings compare equal.
package alphanum

import (
	"cmp"
	"strings"
)

// Comparator orders strings alphanumerically.
type Comparator struct {
	base func(a, b string) int
}

var defaultComparator = New(nil)

// New returns a comparator that orders non-digit runs with base.
// A nil base orders them bytewise.
//
// base only ever sees two non-digit runs. A digit run and a non-digit run
// are ordered by their first byte so the result stays transitive for any
// total order base.
func New(base func(a, b string) int) *Comparator {
	if base == nil {
		base = strings.Compare
	}
	return &Comparator{base: base}
}

// Compare orders a and b with the default bytewise base comparator.
func Compare(a, b string) int {
	return defaultComparator.Compare(a, b)
}

// Compare returns -1, 0 or 1.
func (c *Comparator) Compare(a, b string) int {
	if a == b {
		return 0
	}
	tie := 0
	for {
		ra, restA := nextRun(a)
		rb, restB := nextRun(b)
		switch {
		case ra == "" && rb == "":
			return tie
		case ra == "":
			return -1
		case rb == "":
			return 1
		}

		digitA, digitB := isDigit(ra[0]), isDigit(rb[0])
		var r int
		switch {
		case digitA && digitB:
			r = compareNumeric(ra, rb)
			if r == 0 && tie == 0 {
				tie = cmp.Compare(len(ra), len(rb))
			}
		case digitA || digitB:
			r = cmp.Compare(ra[0], rb[0])
		default:
			r = sign(c.base(ra, rb))
			if r == 0 && tie == 0 {
				// base may equate distinct runs (e.g. case folding).
				tie = strings.Compare(ra, rb)
			}
		}
		if r != 0 {
			return r
		}
		a, b = restA, restB
	}
}

// nextRun splits off the leading run of s.
func nextRun(s string) (run, rest string) {
	if s == "" {
		return "", ""
	}
	digit := isDigit(s[0])
	i := 1
	for i < len(s) && isDigit(s[i]) == digit {
		i++
	}
	return s[:i], s[i:]
}

// compareNumeric compares two digit runs by value.
func compareNumeric(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		return cmp.Compare(len(a), len(b))
	}
	return strings.Compare(a, b)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func sign(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	default:
		return 0
	}
}

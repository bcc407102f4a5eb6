package hexpath

import "strings"

// PrefixOrder is the position of a string relative to a prefix.
type PrefixOrder int

const (
	// Before: less than the prefix and not a prefix of it.
	Before PrefixOrder = iota
	// Sub: a strict prefix of the prefix.
	Sub
	// At: starts with (or equals) the prefix.
	At
	// After: greater than the prefix and not starting with it.
	After
)

func (o PrefixOrder) String() string {
	switch o {
	case Before:
		return "BEFORE"
	case Sub:
		return "SUB"
	case At:
		return "AT"
	case After:
		return "AFTER"
	}
	return "UNKNOWN"
}

// ComparePrefix returns the position of s relative to prefix.  Note
// the relation isn't reflexive.
func ComparePrefix(s, prefix string) PrefixOrder {
	switch c := strings.Compare(s, prefix); {
	case c < 0:
		if strings.HasPrefix(prefix, s) {
			return Sub
		}
		return Before
	case c == 0 || strings.HasPrefix(s, prefix):
		return At
	default:
		return After
	}
}

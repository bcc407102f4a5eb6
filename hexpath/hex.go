package hexpath

import (
	"strings"

	"github.com/pkg/errors"
)

// IsHex returns true if s is a non-empty string of hexadecimal digits
// in either case.
func IsHex(s string) bool {
	if len(s) == 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// IsLowercaseHex is like IsHex but rejects upper case digits.
func IsLowercaseHex(s string) bool {
	if len(s) == 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

// Canonicalize validates hex and returns it in lower case.  Odd
// lengths are accepted so the same function serves for prefixes;
// identifiers produced by a digest are always of even length.
func Canonicalize(hex string) (string, error) {
	if !IsHex(hex) {
		return "", errors.Wrapf(ErrInvalid, "hex %q", hex)
	}
	return strings.ToLower(hex), nil
}

// shardNames is every possible shard directory name in ascending
// order.  It is shared by every snapshot of a fully branched
// directory and must never be modified.
var shardNames = func() (names []string) {
	const digits = "0123456789abcdef"
	names = make([]string, 256)
	for i := range names {
		names[i] = string([]byte{digits[i>>4], digits[i&0xf]})
	}
	return
}()

// isShardName returns true if name could be a shard directory.
func isShardName(name string) bool {
	return len(name) == 2 && IsLowercaseHex(name)
}

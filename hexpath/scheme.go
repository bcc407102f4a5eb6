package hexpath

import (
	"strings"

	"github.com/pkg/errors"
)

const maxFilenameLength = 255

// FilenameScheme maps identifiers to filenames of the form
// {Prefix}{identifier}{Ext}.
type FilenameScheme struct {
	Prefix string
	Ext    string
}

// NewFilenameScheme checks that the decoration leaves room for an
// identifier, and that there is some decoration at all.
func NewFilenameScheme(prefix, ext string) (*FilenameScheme, error) {
	deco := len(prefix) + len(ext)
	if deco == 0 {
		return nil, errors.Wrap(ErrInvalid, "filename scheme needs a prefix or an extension")
	}
	if maxFilenameLength-deco < 8 {
		return nil, errors.Wrapf(ErrInvalid, "filename decoration too long: %q %q", prefix, ext)
	}
	return &FilenameScheme{Prefix: prefix, Ext: ext}, nil
}

func (s *FilenameScheme) decoration() int {
	return len(s.Prefix) + len(s.Ext)
}

// ToFilename returns the filename for identifier.
func (s *FilenameScheme) ToFilename(identifier string) string {
	return s.Prefix + identifier + s.Ext
}

// Accept returns true if filename has this scheme's form.
func (s *FilenameScheme) Accept(filename string) bool {
	return len(filename) > s.decoration() &&
		strings.HasPrefix(filename, s.Prefix) &&
		strings.HasSuffix(filename, s.Ext)
}

// ToIdentifier strips the decoration from filename.
func (s *FilenameScheme) ToIdentifier(filename string) (string, error) {
	if !s.Accept(filename) {
		return "", errors.Wrapf(ErrInvalid, "filename %q does not match %q...%q", filename, s.Prefix, s.Ext)
	}
	return s.identifier(filename), nil
}

func (s *FilenameScheme) identifier(filename string) string {
	return filename[len(s.Prefix) : len(filename)-len(s.Ext)]
}

// IsHexFilename returns true if filename has this scheme's form and
// its identifier is lower case hex.
func (s *FilenameScheme) IsHexFilename(filename string) bool {
	return s.Accept(filename) && IsLowercaseHex(s.identifier(filename))
}

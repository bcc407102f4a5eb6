package stowbase

import (
	"github.com/pkg/errors"
	"github.com/t7a/stowbase/hexpath"
)

// Error kinds; see hexpath.
var (
	ErrInvalid   = hexpath.ErrInvalid
	ErrNotFound  = hexpath.ErrNotFound
	ErrAmbiguous = hexpath.ErrAmbiguous
	ErrCorrupt   = hexpath.ErrCorrupt
	// ErrUnsupportedAlgo means the digest algorithm isn't available.
	ErrUnsupportedAlgo = errors.New("unsupported digest algorithm")
)

// CorruptionError describes a stored file that can't be trusted.
type CorruptionError = hexpath.CorruptionError

package stowbase

import (
	"io"

	"github.com/pkg/errors"
	"github.com/restic/chunker"
)

const (
	kiB = 1024
	miB = 1024 * kiB

	// defMinSize is the default minimal size of a chunk.
	defMinSize = 512 * kiB
	// defMaxSize is the default maximal size of a chunk.
	defMaxSize = 8 * miB

	// DefaultPoly is the Rabin polynomial used unless another is
	// configured.  Chunk boundaries, and so deduplication between
	// streams, depend on it, so a store should stick to one.
	DefaultPoly = chunker.Pol(0x3DA3358B4DC173)
)

// Chunker lightly wraps restic's chunker on the slight chance that we
// might need to replace it someday.
type Chunker struct {
	Poly    chunker.Pol
	MinSize uint
	MaxSize uint
	c       *chunker.Chunker
	buf     []byte
}

// Init fills in defaults and checks the polynomial.
func (c Chunker) Init() (res *Chunker, err error) {
	if c.MinSize == 0 {
		c.MinSize = defMinSize
	}
	if c.MaxSize == 0 {
		c.MaxSize = defMaxSize
	}
	if c.MinSize > c.MaxSize {
		return nil, errors.Wrapf(ErrInvalid, "chunk min %d > max %d", c.MinSize, c.MaxSize)
	}
	if c.Poly == 0 {
		c.Poly = DefaultPoly
	}
	if !c.Poly.Irreducible() {
		return nil, errors.Wrapf(ErrInvalid, "polynomial %v is reducible", c.Poly)
	}
	return &c, nil
}

// Start begins chunking rd, abandoning any stream already started.
func (c *Chunker) Start(rd io.Reader) {
	c.c = chunker.NewWithBoundaries(rd, c.Poly, c.MinSize, c.MaxSize)
	if c.buf == nil {
		c.buf = make([]byte, c.MaxSize)
	}
}

// Next returns the next chunk's data, or io.EOF after the last one.
// The data is only valid until the following call.
func (c *Chunker) Next() (data []byte, err error) {
	// restic returns the chunk in Chunk.Data, which reuses buf's
	// storage; buf itself isn't updated
	chunk, err := c.c.Next(c.buf)
	if err != nil {
		return
	}
	return chunk.Data, nil
}

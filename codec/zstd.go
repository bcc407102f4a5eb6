package codec

import (
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/t7a/stowbase"
)

// encoder is safe for concurrent use; EncodeAll output depends only
// on its input and the level.
var encoder *zstd.Encoder

func init() {
	var err error
	encoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		panic("codec: zstd encoder initialization failed: " + err.Error())
	}
}

// Zstd compresses the output of another codec.  Objects are addressed
// by the digest of their compressed form, so a store must not switch
// between compressed and plain codecs.
type Zstd[T any] struct {
	inner stowbase.Codec[T]
	dec   *zstd.Decoder
}

// NewZstd wraps inner.
func NewZstd[T any](inner stowbase.Codec[T]) (c *Zstd[T], err error) {
	if inner == nil {
		return nil, errors.Wrap(stowbase.ErrInvalid, "nil codec")
	}
	c = &Zstd[T]{inner: inner}
	c.dec, err = zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(uint64(inner.MaxBytes())),
	)
	if err != nil {
		return nil, errors.Wrap(err, "zstd")
	}
	return
}

// MaxBytes allows for incompressible input, which zstd stores with a
// small per-block overhead.
func (c *Zstd[T]) MaxBytes() int {
	n := c.inner.MaxBytes()
	return n + n/128 + 64
}

func (c *Zstd[T]) Encode(obj T) (data []byte, err error) {
	plain, err := c.inner.Encode(obj)
	if err != nil {
		return
	}
	return encoder.EncodeAll(plain, nil), nil
}

func (c *Zstd[T]) Decode(data []byte) (obj T, err error) {
	plain, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return obj, errors.Wrap(err, "zstd")
	}
	if len(plain) > c.inner.MaxBytes() {
		return obj, errors.Errorf("zstd: %d bytes > max %d", len(plain), c.inner.MaxBytes())
	}
	return c.inner.Decode(plain)
}

// Close releases the decoder.
func (c *Zstd[T]) Close() {
	c.dec.Close()
}

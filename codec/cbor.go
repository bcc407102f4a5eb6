package codec

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
	"github.com/t7a/stowbase"
)

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2): sorted map
// keys, smallest integer encoding, no indefinite-length items.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
}

// CBOR encodes values of type T as deterministic CBOR.
type CBOR[T any] struct {
	max int
	dec cbor.DecMode
}

// NewCBOR returns a CBOR codec for encodings of up to max bytes.
func NewCBOR[T any](max int) (c *CBOR[T], err error) {
	if max < stowbase.MinMaxBytes {
		return nil, errors.Wrapf(stowbase.ErrInvalid, "max bytes %d < %d", max, stowbase.MinMaxBytes)
	}
	c = &CBOR[T]{max: max}
	c.dec, err = cbor.DecOptions{
		// reject anything the encoder couldn't have written
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		IndefLength:      cbor.IndefLengthForbidden,
		MaxArrayElements: max,
		MaxMapPairs:      max,
	}.DecMode()
	if err != nil {
		return nil, errors.Wrap(err, "cbor")
	}
	return
}

func (c *CBOR[T]) MaxBytes() int {
	return c.max
}

func (c *CBOR[T]) Encode(obj T) (data []byte, err error) {
	data, err = encMode.Marshal(obj)
	if err != nil {
		return nil, errors.Wrapf(stowbase.ErrInvalid, "cbor: %v", err)
	}
	if len(data) > c.max {
		return nil, errors.Wrapf(stowbase.ErrInvalid, "%d bytes > max %d", len(data), c.max)
	}
	return
}

func (c *CBOR[T]) Decode(data []byte) (obj T, err error) {
	err = c.dec.Unmarshal(data, &obj)
	return
}

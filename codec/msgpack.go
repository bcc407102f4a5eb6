package codec

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/t7a/stowbase"
	"github.com/vmihailenco/msgpack"
)

// Msgpack encodes values of type T as MessagePack.
type Msgpack[T any] struct {
	max int
}

// NewMsgpack returns a Msgpack codec for encodings of up to max bytes.
func NewMsgpack[T any](max int) (*Msgpack[T], error) {
	if max < stowbase.MinMaxBytes {
		return nil, errors.Wrapf(stowbase.ErrInvalid, "max bytes %d < %d", max, stowbase.MinMaxBytes)
	}
	return &Msgpack[T]{max: max}, nil
}

func (c *Msgpack[T]) MaxBytes() int {
	return c.max
}

func (c *Msgpack[T]) Encode(obj T) (data []byte, err error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf).SortMapKeys(true)
	err = enc.Encode(obj)
	if err != nil {
		return nil, errors.Wrapf(stowbase.ErrInvalid, "msgpack: %v", err)
	}
	if buf.Len() > c.max {
		return nil, errors.Wrapf(stowbase.ErrInvalid, "%d bytes > max %d", buf.Len(), c.max)
	}
	return buf.Bytes(), nil
}

func (c *Msgpack[T]) Decode(data []byte) (obj T, err error) {
	err = msgpack.Unmarshal(data, &obj)
	return
}

package stowbase

import (
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack"
)

const (
	// DefaultMaxBytes bounds the encoded size of an object unless a
	// codec says otherwise.
	DefaultMaxBytes = 1024 * 1024
	// MinMaxBytes is the smallest MaxBytes a codec may declare.
	MinMaxBytes = 16
	// DefaultMaxListSize bounds the number of items in a ListCodec.
	DefaultMaxListSize = 128
)

// Encoder converts objects to the bytes that get hashed and stored.
// Encode must be deterministic: the same object always yields the same
// bytes.
type Encoder[T any] interface {
	Encode(obj T) ([]byte, error)
	// MaxBytes is the largest encoding Encode produces.  Stored files
	// longer than this are treated as corrupt.
	MaxBytes() int
}

// Decoder converts stored bytes back to objects.
type Decoder[T any] interface {
	Decode(data []byte) (T, error)
}

// Codec is an Encoder and its inverse.
type Codec[T any] interface {
	Encoder[T]
	Decoder[T]
}

func checkMaxBytes(max int) error {
	if max < MinMaxBytes {
		return errors.Wrapf(ErrInvalid, "max bytes %d < %d", max, MinMaxBytes)
	}
	return nil
}

// BytesCodec stores byte slices as themselves.
type BytesCodec struct {
	max int
}

// NewBytesCodec returns a BytesCodec for slices of up to max bytes.
func NewBytesCodec(max int) (c *BytesCodec, err error) {
	err = checkMaxBytes(max)
	if err != nil {
		return
	}
	return &BytesCodec{max: max}, nil
}

func (c *BytesCodec) MaxBytes() int {
	return c.max
}

func (c *BytesCodec) Encode(obj []byte) (data []byte, err error) {
	if len(obj) > c.max {
		return nil, errors.Wrapf(ErrInvalid, "%d bytes > max %d", len(obj), c.max)
	}
	return obj, nil
}

func (c *BytesCodec) Decode(data []byte) ([]byte, error) {
	return data, nil
}

// StringCodec stores strings as UTF-8.
type StringCodec struct {
	max int
}

// NewStringCodec returns a StringCodec for strings of up to max bytes.
func NewStringCodec(max int) (c *StringCodec, err error) {
	err = checkMaxBytes(max)
	if err != nil {
		return
	}
	return &StringCodec{max: max}, nil
}

func (c *StringCodec) MaxBytes() int {
	return c.max
}

func (c *StringCodec) Encode(obj string) (data []byte, err error) {
	if len(obj) > c.max {
		return nil, errors.Wrapf(ErrInvalid, "%d bytes > max %d", len(obj), c.max)
	}
	if !utf8.ValidString(obj) {
		return nil, errors.Wrap(ErrInvalid, "string is not UTF-8")
	}
	return []byte(obj), nil
}

func (c *StringCodec) Decode(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", errors.New("not UTF-8")
	}
	return string(data), nil
}

// ListCodec stores lists of items encoded by another codec, as a
// msgpack array of the items' encodings.
type ListCodec[T any] struct {
	item     Codec[T]
	maxItems int
}

// NewListCodec returns a ListCodec for lists of up to maxItems items.
func NewListCodec[T any](item Codec[T], maxItems int) (c *ListCodec[T], err error) {
	if item == nil {
		return nil, errors.Wrap(ErrInvalid, "nil item codec")
	}
	if maxItems < 2 {
		return nil, errors.Wrapf(ErrInvalid, "max list size %d < 2", maxItems)
	}
	return &ListCodec[T]{item: item, maxItems: maxItems}, nil
}

// MaxItems returns the largest list accepted.
func (c *ListCodec[T]) MaxItems() int {
	return c.maxItems
}

// MaxBytes allows for the largest msgpack array and bin headers.
func (c *ListCodec[T]) MaxBytes() int {
	return 5 + c.maxItems*(5+c.item.MaxBytes())
}

func (c *ListCodec[T]) Encode(list []T) (data []byte, err error) {
	if len(list) > c.maxItems {
		return nil, errors.Wrapf(ErrInvalid, "%d items > max %d", len(list), c.maxItems)
	}
	items := make([][]byte, len(list))
	for i, obj := range list {
		items[i], err = c.item.Encode(obj)
		if err != nil {
			return nil, errors.Wrapf(err, "item %d", i)
		}
	}
	return msgpack.Marshal(items)
}

func (c *ListCodec[T]) Decode(data []byte) (list []T, err error) {
	var items [][]byte
	err = msgpack.Unmarshal(data, &items)
	if err != nil {
		return nil, errors.Wrap(err, "list")
	}
	if len(items) > c.maxItems {
		return nil, errors.Errorf("%d items > max %d", len(items), c.maxItems)
	}
	list = make([]T, len(items))
	for i, item := range items {
		if len(item) > c.item.MaxBytes() {
			return nil, errors.Errorf("item %d: %d bytes > max %d", i, len(item), c.item.MaxBytes())
		}
		list[i], err = c.item.Decode(item)
		if err != nil {
			return nil, errors.Wrapf(err, "item %d", i)
		}
	}
	return
}

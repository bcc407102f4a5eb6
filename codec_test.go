package stowbase

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
)

func TestBytesCodec(t *testing.T) {
	_, err := NewBytesCodec(MinMaxBytes - 1)
	tassert(t, errors.Is(err, ErrInvalid), "%v", err)
	c, err := NewBytesCodec(32)
	tassert(t, err == nil, "%v", err)
	_, err = c.Encode(make([]byte, 33))
	tassert(t, errors.Is(err, ErrInvalid), "%v", err)
}

func TestStringCodec(t *testing.T) {
	c, err := NewStringCodec(64)
	tassert(t, err == nil, "%v", err)
	_, err = c.Encode("\xff\xfe")
	tassert(t, errors.Is(err, ErrInvalid), "%v", err)
	_, err = c.Decode([]byte("\xff\xfe"))
	tassert(t, err != nil, "decoded invalid UTF-8")
	data, err := c.Encode("héllo")
	tassert(t, err == nil, "%v", err)
	s, err := c.Decode(data)
	tassert(t, err == nil && s == "héllo", "%q %v", s, err)
}

func TestListCodec(t *testing.T) {
	item, err := NewStringCodec(16)
	tassert(t, err == nil, "%v", err)
	_, err = NewListCodec[string](item, 1)
	tassert(t, errors.Is(err, ErrInvalid), "%v", err)
	c, err := NewListCodec[string](item, 3)
	tassert(t, err == nil, "%v", err)

	for _, list := range [][]string{{}, {"a"}, {"a", "", "ccc"}} {
		data, err := c.Encode(list)
		tassert(t, err == nil, "%v", err)
		tassert(t, len(data) <= c.MaxBytes(), "%d > %d", len(data), c.MaxBytes())
		got, err := c.Decode(data)
		tassert(t, err == nil, "%v", err)
		tassert(t, strings.Join(got, ",") == strings.Join(list, ","), "got %q want %q", got, list)
		tassert(t, len(got) == len(list), "got %d items want %d", len(got), len(list))
	}
	_, err = c.Encode([]string{"a", "b", "c", "d"})
	tassert(t, errors.Is(err, ErrInvalid), "%v", err)
	_, err = c.Encode([]string{strings.Repeat("x", 17)})
	tassert(t, errors.Is(err, ErrInvalid), "%v", err)

	// a list written with a larger limit doesn't decode
	big, err := NewListCodec[string](item, 10)
	tassert(t, err == nil, "%v", err)
	data, err := big.Encode([]string{"a", "b", "c", "d"})
	tassert(t, err == nil, "%v", err)
	_, err = c.Decode(data)
	tassert(t, err != nil, "decoded oversized list")
	_, err = c.Decode([]byte{0xc1})
	tassert(t, err != nil, "decoded garbage")
}

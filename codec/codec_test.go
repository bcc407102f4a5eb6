package codec

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/t7a/stowbase"
)

// test boolean condition
func tassert(t *testing.T, cond bool, txt string, args ...interface{}) {
	t.Helper() // cause file:line info to show caller
	if !cond {
		t.Fatalf(txt, args...)
	}
}

type record struct {
	Name  string
	Tags  map[string]int
	Parts []string
}

func sample() record {
	return record{
		Name:  "widget",
		Tags:  map[string]int{"z": 26, "a": 1, "m": 13, "q": 17, "c": 3},
		Parts: []string{"bolt", "nut"},
	}
}

func roundTrip(t *testing.T, c stowbase.Codec[record]) {
	t.Helper()
	obj := sample()
	data, err := c.Encode(obj)
	tassert(t, err == nil, "%v", err)
	tassert(t, len(data) <= c.MaxBytes(), "%d > %d", len(data), c.MaxBytes())
	// map iteration order must not leak into the encoding
	for i := 0; i < 20; i++ {
		again, err := c.Encode(sample())
		tassert(t, err == nil, "%v", err)
		tassert(t, bytes.Equal(data, again), "encoding not deterministic")
	}
	got, err := c.Decode(data)
	tassert(t, err == nil, "%v", err)
	tassert(t, reflect.DeepEqual(got, obj), "got %#v want %#v", got, obj)
}

func TestMsgpack(t *testing.T) {
	_, err := NewMsgpack[record](1)
	tassert(t, errors.Is(err, stowbase.ErrInvalid), "%v", err)
	c, err := NewMsgpack[record](1024)
	tassert(t, err == nil, "%v", err)
	roundTrip(t, c)
	small, err := NewMsgpack[record](16)
	tassert(t, err == nil, "%v", err)
	_, err = small.Encode(sample())
	tassert(t, errors.Is(err, stowbase.ErrInvalid), "%v", err)
}

func TestCBOR(t *testing.T) {
	c, err := NewCBOR[record](1024)
	tassert(t, err == nil, "%v", err)
	roundTrip(t, c)
	_, err = c.Decode([]byte{0xff})
	tassert(t, err != nil, "decoded garbage")
}

func TestZstd(t *testing.T) {
	inner, err := NewCBOR[record](4096)
	tassert(t, err == nil, "%v", err)
	c, err := NewZstd[record](inner)
	tassert(t, err == nil, "%v", err)
	defer c.Close()
	roundTrip(t, c)

	// compressible payload actually shrinks
	obj := sample()
	obj.Name = strings.Repeat("widget ", 300)
	plain, err := inner.Encode(obj)
	tassert(t, err == nil, "%v", err)
	packed, err := c.Encode(obj)
	tassert(t, err == nil, "%v", err)
	tassert(t, len(packed) < len(plain), "%d >= %d", len(packed), len(plain))

	_, err = c.Decode(plain)
	tassert(t, err != nil, "decoded uncompressed data")
}

func TestStoreWithCodec(t *testing.T) {
	inner, err := NewMsgpack[record](4096)
	tassert(t, err == nil, "%v", err)
	c, err := NewZstd[record](inner)
	tassert(t, err == nil, "%v", err)
	s, err := stowbase.Open[record](stowbase.Config{Dir: t.TempDir(), Algo: "sha256"}, c)
	tassert(t, err == nil, "%v", err)
	s.Equal = func(a, b record) bool { return reflect.DeepEqual(a, b) }
	id, err := s.Write(sample())
	tassert(t, err == nil, "%v", err)
	tassert(t, len(id) == 64, id)
	again, err := s.Write(sample())
	tassert(t, err == nil && again == id, "%s %v", again, err)
	got, err := s.Read(id)
	tassert(t, err == nil, "%v", err)
	tassert(t, reflect.DeepEqual(got, sample()), "got %#v", got)
}

package stowbase

import (
	"bytes"
	"context"
	"io"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/google/renameio"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hlubek/readercomp"
	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
	"github.com/t7a/stowbase/hexpath"
	"go.uber.org/atomic"
)

// DefaultExt is the filename extension used when none is configured.
const DefaultExt = ".obj"

// Config describes a store's directory and addressing parameters.
// Zero values get defaults, except Dir.
type Config struct {
	Dir            string
	Ext            string
	Algo           string
	MaxFilesPerDir int
	// CacheSize is the number of decoded objects kept in memory; 0
	// disables the cache.
	CacheSize int
}

// WithDefaults returns a copy of cfg with zero fields filled in.
func (cfg Config) WithDefaults() Config {
	if cfg.Ext == "" {
		cfg.Ext = DefaultExt
	}
	if cfg.Algo == "" {
		cfg.Algo = DefaultAlgo
	}
	if cfg.MaxFilesPerDir == 0 {
		cfg.MaxFilesPerDir = hexpath.MinFilesPerDir
	}
	return cfg
}

// Writer is anything that stores objects and returns their ids.
type Writer[T any] interface {
	Write(obj T) (id string, err error)
}

// Store is a content-addressable store of objects of type T.  An
// object's id is the hex digest of its encoding.  A Store may be used
// by many readers concurrently, but writes that race with each other
// can store an object twice; see hexpath.HexPath.
type Store[T any] struct {
	hp       *hexpath.HexPath
	codec    Codec[T]
	digester *Digester
	cache    *lru.Cache[string, T]
	// Equal, if set, validates a rewrite by decoding the stored copy
	// and comparing it to the new object, instead of comparing bytes.
	// Set it before the store is shared.
	Equal func(a, b T) bool
	// Clone, if set, deep copies objects going into and out of the
	// cache.  []byte and []string are copied without it; other types
	// holding references need it when the cache is on.
	Clone func(obj T) T
}

// Open opens (creating if need be) the store in cfg.Dir.  If the store
// already holds objects, one of them is re-hashed to make sure it was
// written with the same algorithm.
func Open[T any](cfg Config, codec Codec[T]) (s *Store[T], err error) {
	cfg = cfg.WithDefaults()
	if cfg.Dir == "" {
		return nil, errors.Wrap(ErrInvalid, "no store directory")
	}
	if codec == nil {
		return nil, errors.Wrap(ErrInvalid, "nil codec")
	}
	err = checkMaxBytes(codec.MaxBytes())
	if err != nil {
		return
	}
	digester, err := NewDigester(cfg.Algo)
	if err != nil {
		return
	}
	hp, err := hexpath.New(cfg.Dir, cfg.Ext, cfg.MaxFilesPerDir)
	if err != nil {
		return
	}
	s = &Store[T]{hp: hp, codec: codec, digester: digester}
	if cfg.CacheSize > 0 {
		s.cache, err = lru.New[string, T](cfg.CacheSize)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalid, "cache: %v", err)
		}
	}
	err = s.sanityCheck()
	if err != nil {
		return nil, err
	}
	return
}

// sanityCheckSample is how many ids past the first are re-hashed
// before a store whose first id is bad is declared corrupt.
const sanityCheckSample = 4

// sanityCheck re-hashes the lowest ids.  An id of the wrong length
// means the store was written with another algorithm.  A bad id among
// good ones is a corrupt file, left for Verify to report.
func (s *Store[T]) sanityCheck() (err error) {
	c, err := s.hp.NewCursor(true)
	if err != nil {
		return
	}
	if !c.HasRemaining() {
		return
	}
	if len(c.HeadHex()) != 2*s.digester.Size() {
		return errors.Wrapf(ErrInvalid, "%s is not a %s digest; wrong algorithm?", c.HeadFile(), s.digester.Algo)
	}
	var bad []string
	for i := 0; i <= sanityCheckSample; i++ {
		var e hexpath.Entry
		var ok bool
		e, ok, err = c.Next()
		if err != nil {
			return
		}
		if !ok {
			break
		}
		if s.check(e) == nil {
			if len(bad) > 0 {
				log.Warnf("%s: corrupt objects %v; run verify", s.Root(), bad)
			}
			return nil
		}
		bad = append(bad, e.Hex)
	}
	return hexpath.Corrupt(s.Root(), "none of %v hashes to its name with %s", bad, s.digester.Algo)
}

// Root returns the store's root directory.
func (s *Store[T]) Root() string {
	return s.hp.Root()
}

// Ext returns the stored files' extension.
func (s *Store[T]) Ext() string {
	return s.hp.Scheme().Ext
}

// Algo returns the digest algorithm.
func (s *Store[T]) Algo() string {
	return s.digester.Algo
}

// HexPath returns the directory layout under the store.
func (s *Store[T]) HexPath() *hexpath.HexPath {
	return s.hp
}

// Codec returns the store's codec.
func (s *Store[T]) Codec() Codec[T] {
	return s.codec
}

// GetId returns the id obj has or would have if written.
func (s *Store[T]) GetId(obj T) (id string, err error) {
	data, err := s.encode(obj)
	if err != nil {
		return
	}
	return s.digester.Sum(data), nil
}

func (s *Store[T]) encode(obj T) (data []byte, err error) {
	data, err = s.codec.Encode(obj)
	if err != nil {
		return
	}
	if len(data) > s.codec.MaxBytes() {
		return nil, errors.Wrapf(ErrInvalid, "encoded %d bytes > max %d", len(data), s.codec.MaxBytes())
	}
	return
}

// Write stores obj and returns its id.  If obj is already stored the
// stored copy is checked against obj instead, and a mismatch is
// reported as corruption.
func (s *Store[T]) Write(obj T) (id string, err error) {
	data, err := s.encode(obj)
	if err != nil {
		return
	}
	id = s.digester.Sum(data)
	file, err := s.hp.Find(id)
	if err == nil {
		err = s.validate(file, obj, data)
		if err != nil {
			return "", err
		}
		return
	}
	if !errors.Is(err, ErrNotFound) {
		return "", err
	}
	file, err = s.hp.Suggest(id, true)
	if err != nil {
		return "", err
	}
	err = writeFile(file, data)
	if err != nil {
		return "", errors.Wrapf(err, "write %s", id)
	}
	log.Debugf("wrote %s", file)
	return
}

func (s *Store[T]) validate(file string, obj T, data []byte) (err error) {
	if s.Equal != nil {
		var stored T
		stored, err = s.load(file)
		if err != nil {
			return
		}
		if !s.Equal(stored, obj) {
			return hexpath.Corrupt(file, "stored object differs from its rewrite")
		}
		return
	}
	fh, err := os.Open(file)
	if err != nil {
		return errors.Wrapf(err, "validate %s", file)
	}
	defer fh.Close()
	ok, err := readercomp.Equal(bytes.NewReader(data), fh, 4096)
	if err != nil {
		return errors.Wrapf(err, "validate %s", file)
	}
	if !ok {
		return hexpath.Corrupt(file, "stored bytes differ from their rewrite")
	}
	return
}

// Read returns the object with the given id.
func (s *Store[T]) Read(id string) (obj T, err error) {
	id, err = hexpath.Canonicalize(id)
	if err != nil {
		return
	}
	if s.cache != nil {
		if obj, ok := s.cache.Get(id); ok {
			return s.clone(obj), nil
		}
	}
	file, err := s.hp.Find(id)
	if err != nil {
		return
	}
	obj, err = s.load(file)
	if err != nil {
		return
	}
	if s.cache != nil {
		s.cache.Add(id, s.clone(obj))
	}
	return
}

// clone copies obj so the cached value can't be changed through what
// Read returns.
func (s *Store[T]) clone(obj T) T {
	if s.Clone != nil {
		return s.Clone(obj)
	}
	switch v := any(obj).(type) {
	case []byte:
		return any(bytes.Clone(v)).(T)
	case []string:
		return any(slices.Clone(v)).(T)
	}
	return obj
}

// ResolvePrefix returns the id and file of the one object whose id
// starts with prefix.  Copies of the same id count as one object.
func (s *Store[T]) ResolvePrefix(prefix string) (id, file string, err error) {
	prefix, err = hexpath.Canonicalize(prefix)
	if err != nil {
		return
	}
	c, err := s.hp.NewCursor(true)
	if err != nil {
		return
	}
	_, err = c.AdvanceToPrefix(prefix)
	if err != nil {
		return
	}
	if !c.HasRemaining() || !strings.HasPrefix(c.HeadHex(), prefix) {
		return "", "", errors.Wrapf(ErrNotFound, "prefix %s", prefix)
	}
	head := c.Head()
	ok, err := c.ConsumeNext()
	if err != nil {
		return
	}
	if ok && c.HasRemaining() && strings.HasPrefix(c.HeadHex(), prefix) {
		return "", "", errors.Wrapf(ErrAmbiguous, "prefix %s matches %s and %s", prefix, head.Hex, c.HeadHex())
	}
	return head.Hex, head.File, nil
}

// ReadUsingPrefix returns the one object whose id starts with prefix.
func (s *Store[T]) ReadUsingPrefix(prefix string) (obj T, err error) {
	_, file, err := s.ResolvePrefix(prefix)
	if err != nil {
		return
	}
	return s.load(file)
}

// ContainsId returns true if id is stored.
func (s *Store[T]) ContainsId(id string) (ok bool, err error) {
	_, err = s.hp.Find(id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// File returns the path of the file holding id.
func (s *Store[T]) File(id string) (string, error) {
	return s.hp.Find(id)
}

// Optimize moves the file holding id to where a new write would put
// it and returns its path.
func (s *Store[T]) Optimize(id string) (string, error) {
	return s.hp.Optimize(id)
}

// Cursor returns a cursor over the store's ids; see hexpath.Cursor.
func (s *Store[T]) Cursor(distinct bool) (*hexpath.Cursor, error) {
	return s.hp.NewCursor(distinct)
}

// StreamIds calls fn with every id starting with prefix, in ascending
// order and without repeats.  An empty prefix means every id.
func (s *Store[T]) StreamIds(prefix string, fn func(id string) error) error {
	return s.hp.Walk(prefix, true, func(e hexpath.Entry) error {
		return fn(e.Hex)
	})
}

// StreamObjects is like StreamIds but also passes each decoded object.
// Files removed after the walk started are skipped.
func (s *Store[T]) StreamObjects(prefix string, fn func(id string, obj T) error) error {
	return s.hp.Walk(prefix, true, func(e hexpath.Entry) (err error) {
		obj, err := s.load(e.File)
		if os.IsNotExist(errors.Cause(err)) {
			log.Debugf("skipping vanished %s", e.File)
			return nil
		}
		if err != nil {
			return
		}
		return fn(e.Hex, obj)
	})
}

// load reads and decodes file.
func (s *Store[T]) load(file string) (obj T, err error) {
	data, err := s.loadBytes(file)
	if err != nil {
		return
	}
	obj, err = s.codec.Decode(data)
	if err != nil {
		return obj, hexpath.Corrupt(file, "decode: %v", err)
	}
	return
}

// loadBytes reads file, refusing anything longer than the codec could
// have written.
func (s *Store[T]) loadBytes(file string) (data []byte, err error) {
	fh, err := os.Open(file)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", file)
	}
	defer fh.Close()
	info, err := fh.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "stat %s", file)
	}
	if info.Size() > int64(s.codec.MaxBytes()) {
		return nil, hexpath.Corrupt(file, "%d bytes > max %d", info.Size(), s.codec.MaxBytes())
	}
	data = make([]byte, info.Size())
	_, err = io.ReadFull(fh, data)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", file)
	}
	return
}

// VerifyReport summarizes a Verify run.
type VerifyReport struct {
	Checked int64
	// Corrupt lists the ids whose files failed to load, decode, or
	// hash to their name, in ascending order.
	Corrupt []string
}

// Verify re-hashes and decodes every stored object using up to
// workers goroutines, each scanning its own split of a cursor.
func (s *Store[T]) Verify(ctx context.Context, workers int) (report VerifyReport, err error) {
	if workers < 1 {
		return report, errors.Wrapf(ErrInvalid, "workers %d", workers)
	}
	c, err := s.hp.NewCursor(true)
	if err != nil {
		return
	}
	parts := []*hexpath.Cursor{c}
	for len(parts) < workers {
		n := len(parts)
		for i := 0; i < n && len(parts) < workers; i++ {
			var split *hexpath.Cursor
			split, err = parts[i].TrySplit()
			if err != nil {
				return
			}
			if split != nil {
				parts = append(parts, split)
			}
		}
		if len(parts) == n {
			break
		}
	}
	log.Debugf("verifying %s with %d workers", s.Root(), len(parts))

	pool, err := ants.NewPool(len(parts))
	if err != nil {
		return
	}
	defer pool.Release()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		checked atomic.Int64
		corrupt []string
		errs    []error
	)
	for _, part := range parts {
		part := part
		wg.Add(1)
		err = pool.Submit(func() {
			defer wg.Done()
			bad, perr := s.verifyPart(ctx, part, &checked)
			mu.Lock()
			defer mu.Unlock()
			corrupt = append(corrupt, bad...)
			if perr != nil {
				errs = append(errs, perr)
			}
		})
		if err != nil {
			wg.Done()
			break
		}
	}
	wg.Wait()
	if err != nil {
		return
	}
	sort.Strings(corrupt)
	report = VerifyReport{Checked: checked.Load(), Corrupt: corrupt}
	if len(errs) > 0 {
		err = errs[0]
	}
	return
}

func (s *Store[T]) verifyPart(ctx context.Context, c *hexpath.Cursor, checked *atomic.Int64) (corrupt []string, err error) {
	for {
		err = ctx.Err()
		if err != nil {
			return
		}
		var e hexpath.Entry
		var ok bool
		e, ok, err = c.Next()
		if err != nil || !ok {
			return
		}
		checked.Inc()
		reason := s.check(e)
		if reason != nil {
			log.Warnf("%s: %v", e.Hex, reason)
			corrupt = append(corrupt, e.Hex)
		}
	}
}

func (s *Store[T]) check(e hexpath.Entry) error {
	data, err := s.loadBytes(e.File)
	if err != nil {
		return err
	}
	id := s.digester.Sum(data)
	if id != e.Hex {
		return hexpath.Corrupt(e.File, "hashes to %s", id)
	}
	_, err = s.codec.Decode(data)
	if err != nil {
		return hexpath.Corrupt(e.File, "decode: %v", err)
	}
	return nil
}

// writeFile atomically writes data to a new file.
func writeFile(file string, data []byte) (err error) {
	defer Return(&err)
	err = renameio.WriteFile(file, data, 0644)
	Ck(err)
	return
}

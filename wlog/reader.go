package wlog

import (
	"bytes"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/t7a/stowbase/hexpath"
)

// Entry is one log record.
type Entry struct {
	Timestamp string
	Hex       string
}

// Reader gives indexed access to the records of a plain text log.
// All records must have the width of the first.  A Reader that finds
// a misaligned or malformed record closes itself and returns a
// *hexpath.CorruptionError from then on.
type Reader struct {
	mu    sync.Mutex
	path  string
	fh    *os.File
	width int
	size  int
	err   error
}

// OpenReader opens the log at path.
func OpenReader(path string) (r *Reader, err error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	r = &Reader{path: path, fh: fh}
	_, err = r.Update()
	if err != nil {
		return nil, err
	}
	return
}

// Update picks up records appended since the last call, and returns
// true if there are any.
func (r *Reader) Update() (changed bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	if r.width == 0 {
		r.width, err = r.entryWidth(0)
		if err != nil || r.width == 0 {
			return
		}
	}
	info, err := r.fh.Stat()
	if err != nil {
		return false, errors.Wrapf(err, "stat %s", r.path)
	}
	size := int(info.Size() / int64(r.width))
	if size == r.size {
		return
	}
	// the last whole record must line up
	w, err := r.entryWidth(int64(size-1) * int64(r.width))
	if err != nil {
		return
	}
	if w != r.width {
		return false, r.fail(int64(size-1)*int64(r.width), "misaligned record")
	}
	r.size = size
	return true, nil
}

// entryWidth returns the length of the record starting at off,
// including its newline, or 0 if the record is incomplete.
func (r *Reader) entryWidth(off int64) (w int, err error) {
	buf := make([]byte, maxWidth)
	n, err := r.fh.ReadAt(buf, off)
	if err == io.EOF {
		err = nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "read %s", r.path)
	}
	buf = buf[:n]
	end := bytes.IndexByte(buf, entryEnd)
	if end < 0 {
		if n == maxWidth {
			return 0, r.fail(off, "record longer than %d bytes", maxWidth)
		}
		return 0, nil
	}
	w = end + 1
	sep := bytes.LastIndexByte(buf[:end], delim)
	if sep < 5 || sep > w-5 {
		return 0, r.fail(off, "malformed record")
	}
	return
}

// fail closes the reader and latches a corruption error.
func (r *Reader) fail(off int64, format string, args ...interface{}) error {
	r.fh.Close()
	r.err = hexpath.Corrupt(r.path, "offset %d: "+format, append([]interface{}{off}, args...)...)
	return r.err
}

// Width returns the record width, or 0 if no record has been read.
func (r *Reader) Width() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.width
}

// Len returns the number of records as of the last Update.
func (r *Reader) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Get returns record i.
func (r *Reader) Get(i int) (e Entry, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(i)
}

func (r *Reader) get(i int) (e Entry, err error) {
	if r.err != nil {
		return e, r.err
	}
	if i < 0 || i >= r.size {
		return e, errors.Wrapf(hexpath.ErrInvalid, "index %d of %d", i, r.size)
	}
	off := int64(i) * int64(r.width)
	buf := make([]byte, r.width)
	_, err = r.fh.ReadAt(buf, off)
	if err != nil {
		return e, errors.Wrapf(err, "read %s", r.path)
	}
	sep := bytes.IndexByte(buf, delim)
	if sep < 0 || buf[len(buf)-1] != entryEnd {
		return e, r.fail(off, "malformed record %d", i)
	}
	e.Timestamp = string(buf[:sep])
	e.Hex = string(buf[sep+1 : len(buf)-1])
	if !hexpath.IsLowercaseHex(e.Hex) {
		return Entry{}, r.fail(off, "record %d: bad id %q", i, e.Hex)
	}
	return
}

// Search returns the index of the first record timestamped at or
// after timestamp.  Records are in timestamp order since they are
// only ever appended.
func (r *Reader) Search(timestamp string) (i int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i = sort.Search(r.size, func(j int) bool {
		if err != nil {
			return true
		}
		var e Entry
		e, err = r.get(j)
		return err != nil || e.Timestamp >= timestamp
	})
	return
}

// ListFrom returns every record timestamped at or after timestamp.
func (r *Reader) ListFrom(timestamp string) (entries []Entry, err error) {
	i, err := r.Search(timestamp)
	if err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for ; i < r.size; i++ {
		var e Entry
		e, err = r.get(i)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return
}

// Close closes the log file.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil
	}
	r.err = errors.New("reader closed")
	return r.fh.Close()
}

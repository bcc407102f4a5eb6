// Package wlog keeps an append-only record of the ids written to a
// store.  Each record is one fixed-width line,
//
//	2006-01-02T15:04:05Z 5eb63bbbe01eeed093cb22bb8f5acdc3
//
// so a reader can index records without scanning the file.
package wlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/t7a/stowbase"
)

const (
	// Dir is the log directory under a store's root.
	Dir = "log"
	// TimeFormat is the record timestamp layout, always UTC.
	TimeFormat = "2006-01-02T15:04:05Z"

	delim     = ' '
	entryEnd  = '\n'
	maxWidth  = 1024
	filePerms = 0644
)

// Log is notified of every id written to a store.
type Log interface {
	Written(id string) error
	Close() error
}

// Path returns the plain text log file for a store with the given root
// and extension, creating the log directory if need be.
func Path(root, ext string) (path string, err error) {
	if ext == "" {
		return "", errors.Wrap(stowbase.ErrInvalid, "empty extension")
	}
	dir := filepath.Join(root, Dir)
	err = os.MkdirAll(dir, 0755)
	if err != nil {
		return "", errors.Wrapf(err, "mkdir %s", dir)
	}
	return filepath.Join(dir, "wlog"+ext+".txt"), nil
}

// PlainTextWriteLog appends a record per written id to a text file.
// It is safe for concurrent use.
type PlainTextWriteLog struct {
	mu  sync.Mutex
	fh  *os.File
	now func() time.Time
}

// Open opens path for appending, creating it if need be.
func Open(path string) (l *PlainTextWriteLog, err error) {
	fh, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, filePerms)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	return &PlainTextWriteLog{fh: fh, now: time.Now}, nil
}

// OpenForStore opens the log belonging to a store's root and extension.
func OpenForStore(root, ext string) (l *PlainTextWriteLog, err error) {
	path, err := Path(root, ext)
	if err != nil {
		return
	}
	return Open(path)
}

// Written appends a record for id, timestamped now.
func (l *PlainTextWriteLog) Written(id string) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fh == nil {
		return errors.Errorf("write log closed")
	}
	line := fmt.Sprintf("%s%c%s%c", l.now().UTC().Format(TimeFormat), delim, id, entryEnd)
	_, err = l.fh.WriteString(line)
	if err != nil {
		return errors.Wrapf(err, "log %s", id)
	}
	return
}

// Close closes the log file.
func (l *PlainTextWriteLog) Close() (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fh == nil {
		return
	}
	err = l.fh.Close()
	l.fh = nil
	return
}

// LoggedStore records every successful write to an underlying store.
type LoggedStore[T any] struct {
	stowbase.Writer[T]
	Log Log
}

// NewLoggedStore wraps w.
func NewLoggedStore[T any](w stowbase.Writer[T], log Log) *LoggedStore[T] {
	return &LoggedStore[T]{Writer: w, Log: log}
}

// Write stores obj and logs its id.  Rewrites of stored objects are
// logged too.
func (ls *LoggedStore[T]) Write(obj T) (id string, err error) {
	id, err = ls.Writer.Write(obj)
	if err != nil {
		return
	}
	err = ls.Log.Written(id)
	return
}

// Close closes the log.
func (ls *LoggedStore[T]) Close() error {
	return ls.Log.Close()
}

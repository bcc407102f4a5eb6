// Package stow moves files dropped into watched directories into a
// file store.
//
// Files should be dropped by renaming them into a watched directory:
// a file is stowed as soon as it appears, so one still being written
// would be stored truncated.
package stow

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
	"github.com/t7a/stowbase"
	"github.com/t7a/stowbase/wlog"
)

// Dir is the default drop directory under a store's root.
const Dir = "stow"

// Stower watches drop directories and stows whatever appears in them.
type Stower struct {
	Dirs []string
	// Stowed, if set, is called after each file is stowed.  It runs
	// on the watcher goroutine.
	Stowed  func(src, id string)
	store   *stowbase.FileStore
	log     wlog.Log
	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// New returns a Stower feeding store, recording each stowed id in l
// if it isn't nil.  With no dirs it watches Dir under the store's
// root.  Drop directories are created if need be.
func New(store *stowbase.FileStore, l wlog.Log, dirs ...string) (s *Stower, err error) {
	defer Return(&err)
	if store == nil {
		return nil, errors.Wrap(stowbase.ErrInvalid, "nil store")
	}
	if len(dirs) == 0 {
		dirs = []string{filepath.Join(store.HexPath().Root(), Dir)}
	}
	for _, dir := range dirs {
		err = os.MkdirAll(dir, 0755)
		Ck(err)
	}
	s = &Stower{Dirs: dirs, store: store, log: l}
	return
}

// Start stows any files already waiting, then watches for new ones
// until Close.
func (s *Stower) Start() (err error) {
	defer Return(&err)
	Assert(s.watcher == nil, "already started")
	s.watcher, err = fsnotify.NewWatcher()
	Ck(err)
	for _, dir := range s.Dirs {
		err = s.watcher.Add(dir)
		Ck(err)
	}
	// anything dropped before the watch began
	_, err = s.Sweep()
	Ck(err)
	s.done = make(chan struct{})
	s.wg.Add(1)
	go s.loop()
	log.Infof("stowing from %v", s.Dirs)
	return
}

func (s *Stower) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create == 0 {
				continue
			}
			_, err := s.Stow(event.Name)
			if err != nil {
				log.Warnf("stow %s: %v", event.Name, err)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.Error(err)
		}
	}
}

// Sweep stows every regular file currently in the drop directories.
func (s *Stower) Sweep() (n int, err error) {
	for _, dir := range s.Dirs {
		var des []os.DirEntry
		des, err = os.ReadDir(dir)
		if err != nil {
			return
		}
		for _, de := range des {
			if !de.Type().IsRegular() {
				continue
			}
			path := filepath.Join(dir, de.Name())
			id, serr := s.Stow(path)
			if serr != nil {
				log.Warnf("stow %s: %v", path, serr)
				continue
			}
			if id != "" {
				n++
			}
		}
	}
	return
}

// Stow stores src, logs its id, and removes src if it's still there
// (it is when the content was already stored).  A src that is missing
// or not a regular file is skipped with an empty id.
func (s *Stower) Stow(src string) (id string, err error) {
	info, err := os.Lstat(src)
	if os.IsNotExist(err) {
		// already stowed by a sweep racing the watcher
		log.Debugf("%s is gone", src)
		return "", nil
	}
	if err != nil {
		return
	}
	if !info.Mode().IsRegular() {
		log.Debugf("ignoring %s", src)
		return "", nil
	}
	id, err = s.store.Write(src)
	if err != nil {
		return
	}
	if s.log != nil {
		err = s.log.Written(id)
		if err != nil {
			return
		}
	}
	err = os.Remove(src)
	if os.IsNotExist(err) {
		err = nil
	}
	if err != nil {
		return
	}
	log.Debugf("stowed %s as %s", src, id)
	if s.Stowed != nil {
		s.Stowed(src, id)
	}
	return
}

// Close stops watching and closes the write log.
func (s *Stower) Close() (err error) {
	if s.watcher != nil {
		close(s.done)
		err = s.watcher.Close()
		s.wg.Wait()
		s.watcher = nil
	}
	if s.log != nil {
		lerr := s.log.Close()
		if err == nil {
			err = lerr
		}
	}
	return
}

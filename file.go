package stowbase

import (
	"os"

	"github.com/hlubek/readercomp"
	"github.com/pkg/errors"
	"github.com/pkg/fileutils"
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
	"github.com/t7a/stowbase/hexpath"
)

// FileStore stores external files by the digest of their contents.
// With Move set a stored file is renamed into the store, otherwise it
// is copied.
type FileStore struct {
	hp       *hexpath.HexPath
	digester *Digester
	Move     bool
}

// OpenFileStore opens (creating if need be) the file store in cfg.Dir.
// cfg.CacheSize is ignored.
func OpenFileStore(cfg Config, move bool) (fs *FileStore, err error) {
	cfg = cfg.WithDefaults()
	if cfg.Dir == "" {
		return nil, errors.Wrap(ErrInvalid, "no store directory")
	}
	digester, err := NewDigester(cfg.Algo)
	if err != nil {
		return
	}
	hp, err := hexpath.New(cfg.Dir, cfg.Ext, cfg.MaxFilesPerDir)
	if err != nil {
		return
	}
	return &FileStore{hp: hp, digester: digester, Move: move}, nil
}

// HexPath returns the directory layout under the store.
func (fs *FileStore) HexPath() *hexpath.HexPath {
	return fs.hp
}

// Algo returns the digest algorithm.
func (fs *FileStore) Algo() string {
	return fs.digester.Algo
}

// GetId returns the id src has or would have if written.
func (fs *FileStore) GetId(src string) (id string, err error) {
	defer Return(&err)
	err = checkSource(src)
	if err != nil {
		return
	}
	fh, err := os.Open(src)
	Ck(err)
	defer fh.Close()
	id, _, err = fs.digester.SumReader(fh)
	Ck(err)
	return
}

func checkSource(src string) error {
	info, err := os.Stat(src)
	if err != nil {
		return errors.Wrapf(ErrInvalid, "%v", err)
	}
	if !info.Mode().IsRegular() {
		return errors.Wrapf(ErrInvalid, "not a regular file: %s", src)
	}
	if info.Size() == 0 {
		return errors.Wrapf(ErrInvalid, "empty file: %s", src)
	}
	return nil
}

// Write stores src and returns its id.  If the same content is already
// stored, src is compared against it and left where it is.
func (fs *FileStore) Write(src string) (id string, err error) {
	id, err = fs.GetId(src)
	if err != nil {
		return
	}
	file, err := fs.hp.Find(id)
	if err == nil {
		err = sameContent(file, src)
		if err != nil {
			return "", err
		}
		return
	}
	if !errors.Is(err, ErrNotFound) {
		return "", err
	}
	file, err = fs.hp.Suggest(id, true)
	if err != nil {
		return "", err
	}
	if fs.Move {
		err = os.Rename(src, file)
	} else {
		err = fileutils.CopyFile(file, src)
	}
	if err != nil {
		return "", errors.Wrapf(err, "store %s", src)
	}
	log.Debugf("stored %s as %s", src, file)
	return
}

// Read returns the path of the file holding id.
func (fs *FileStore) Read(id string) (file string, err error) {
	return fs.hp.Find(id)
}

func sameContent(stored, src string) (err error) {
	defer Return(&err)
	a, err := os.Open(stored)
	Ck(err)
	defer a.Close()
	b, err := os.Open(src)
	Ck(err)
	defer b.Close()
	ok, err := readercomp.Equal(a, b, 4096)
	Ck(err)
	if !ok {
		return hexpath.Corrupt(stored, "differs from %s", src)
	}
	return
}

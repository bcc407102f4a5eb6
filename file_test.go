package stowbase

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
)

func mkfile(t *testing.T, dir, name, content string) (path string) {
	t.Helper()
	path = filepath.Join(dir, name)
	err := ioutil.WriteFile(path, []byte(content), 0644)
	tassert(t, err == nil, "%v", err)
	return
}

func TestFileStore(t *testing.T) {
	for _, move := range []bool{false, true} {
		dir := tempDir(t)
		fs, err := OpenFileStore(Config{Dir: filepath.Join(dir, "store"), Ext: ".dat"}, move)
		tassert(t, err == nil, "%v", err)

		src := mkfile(t, dir, "a.txt", "hello world")
		id, err := fs.Write(src)
		tassert(t, err == nil, "%v", err)
		tassert(t, id == "5eb63bbbe01eeed093cb22bb8f5acdc3", id)
		_, err = os.Stat(src)
		tassert(t, os.IsNotExist(err) == move, "move %v: source %v", move, err)

		stored, err := fs.Read(id)
		tassert(t, err == nil, "%v", err)
		buf, err := ioutil.ReadFile(stored)
		tassert(t, err == nil && string(buf) == "hello world", "%q %v", buf, err)

		// same content again: validated, source left alone
		src = mkfile(t, dir, "b.txt", "hello world")
		again, err := fs.Write(src)
		tassert(t, err == nil && again == id, "%s %v", again, err)
		_, err = os.Stat(src)
		tassert(t, err == nil, "duplicate source removed: %v", err)

		// tampered copy
		err = ioutil.WriteFile(stored, []byte("hello w0rld"), 0644)
		tassert(t, err == nil, "%v", err)
		_, err = fs.Write(src)
		tassert(t, errors.Is(err, ErrCorrupt), "%v", err)
	}
}

func TestFileStoreRejects(t *testing.T) {
	dir := tempDir(t)
	fs, err := OpenFileStore(Config{Dir: filepath.Join(dir, "store")}, true)
	tassert(t, err == nil, "%v", err)
	_, err = fs.Write(mkfile(t, dir, "empty", ""))
	tassert(t, errors.Is(err, ErrInvalid), "%v", err)
	_, err = fs.Write(dir)
	tassert(t, errors.Is(err, ErrInvalid), "%v", err)
	_, err = fs.Write(filepath.Join(dir, "missing"))
	tassert(t, errors.Is(err, ErrInvalid), "%v", err)
}

package hexpath

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// MinFilesPerDir is the smallest branching threshold accepted: a
// directory must be allowed to hold at least as many files as it can
// hold shard subdirectories.
const MinFilesPerDir = 256

// HexPath maps hex identifiers to files under a root directory.
// Files are stored flat until a directory holds MaxFilesPerDir
// entries, after which new files whose identifiers share the next two
// hex digits go into a shard subdirectory named by those digits.  A
// file's path is therefore not a function of its identifier alone; use
// Find to locate it.
//
// HexPath holds no mutable state.  It is safe for concurrent use, but
// the filesystem under it is not locked: concurrent writers may
// occasionally store the same identifier twice.
type HexPath struct {
	root           string
	scheme         *FilenameScheme
	maxFilesPerDir int
}

// New returns a HexPath rooted at root, creating root if it doesn't
// exist.  Files are named {identifier}{ext}.
func New(root, ext string, maxFilesPerDir int) (hp *HexPath, err error) {
	scheme, err := NewFilenameScheme("", ext)
	if err != nil {
		return
	}
	return NewWithScheme(root, scheme, maxFilesPerDir)
}

// NewWithScheme is like New but takes a full filename scheme.
func NewWithScheme(root string, scheme *FilenameScheme, maxFilesPerDir int) (hp *HexPath, err error) {
	if maxFilesPerDir < MinFilesPerDir {
		return nil, errors.Wrapf(ErrInvalid, "maxFilesPerDir %d < %d", maxFilesPerDir, MinFilesPerDir)
	}
	if scheme == nil {
		return nil, errors.Wrap(ErrInvalid, "nil filename scheme")
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalid, "root: %v", err)
	}
	err = os.MkdirAll(root, 0755)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalid, "root: %v", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalid, "root: %v", err)
	}
	if !info.IsDir() {
		return nil, errors.Wrapf(ErrInvalid, "root is not a directory: %s", root)
	}
	hp = &HexPath{root: root, scheme: scheme, maxFilesPerDir: maxFilesPerDir}
	return
}

// Root returns the absolute root directory.
func (hp *HexPath) Root() string {
	return hp.root
}

// Scheme returns the filename scheme.
func (hp *HexPath) Scheme() *FilenameScheme {
	return hp.scheme
}

// MaxFilesPerDir returns the branching threshold.
func (hp *HexPath) MaxFilesPerDir() int {
	return hp.maxFilesPerDir
}

// deepest descends from root through existing shard directories named
// by successive hex digit pairs, stopping while at least one leaf
// digit pair remains.  It returns the deepest directory reached and
// the part of hex not consumed by the descent.
func (hp *HexPath) deepest(hex string) (dir, sub string, err error) {
	dir, sub = hp.root, hex
	for len(sub) > 2 {
		next := filepath.Join(dir, sub[:2])
		info, err := os.Stat(next)
		if os.IsNotExist(err) {
			break
		}
		if err != nil {
			return "", "", errors.Wrapf(err, "stat %s", next)
		}
		if !info.IsDir() {
			return "", "", Corrupt(next, "expected a shard directory")
		}
		dir, sub = next, sub[2:]
	}
	return
}

// Find returns the path of the file for hex.  The search starts at
// the deepest existing shard directory and walks back up toward the
// root, since a file may have been stored before its shard directory
// was created.
func (hp *HexPath) Find(hex string) (file string, err error) {
	hex, err = Canonicalize(hex)
	if err != nil {
		return
	}
	dir, sub, err := hp.deepest(hex)
	if err != nil {
		return
	}
	for {
		file = filepath.Join(dir, hp.scheme.ToFilename(sub))
		info, serr := os.Stat(file)
		if serr == nil {
			if info.IsDir() {
				return "", Corrupt(file, "expected a file, found a directory")
			}
			return file, nil
		}
		if !os.IsNotExist(serr) {
			return "", errors.Wrapf(serr, "stat %s", file)
		}
		if sub == hex {
			break
		}
		sub = filepath.Base(dir) + sub
		dir = filepath.Dir(dir)
	}
	return "", errors.Wrapf(ErrNotFound, "%s", hex)
}

// Suggest returns the path where a new file for hex should go.  If
// the deepest existing shard directory is at the branching threshold
// the path is one level deeper, and with mkdir set that directory is
// created.  Suggest does not check whether a file for hex already
// exists elsewhere; see Find.
func (hp *HexPath) Suggest(hex string, mkdir bool) (file string, err error) {
	hex, err = Canonicalize(hex)
	if err != nil {
		return
	}
	dir, sub, err := hp.deepest(hex)
	if err != nil {
		return
	}
	if len(sub) > 2 {
		var full bool
		full, err = hp.full(dir)
		if err != nil {
			return
		}
		if full {
			dir, sub = filepath.Join(dir, sub[:2]), sub[2:]
			if mkdir {
				err = os.Mkdir(dir, 0755)
				if os.IsExist(err) {
					err = nil
				}
				if err != nil {
					return "", errors.Wrapf(err, "mkdir %s", dir)
				}
				log.Debugf("branched %s", dir)
			}
		}
	}
	file = filepath.Join(dir, hp.scheme.ToFilename(sub))
	return
}

// full returns true if dir holds at least maxFilesPerDir entries of
// any kind.  At most maxFilesPerDir names are read.
func (hp *HexPath) full(dir string) (full bool, err error) {
	fh, err := os.Open(dir)
	if err != nil {
		return false, errors.Wrapf(err, "open %s", dir)
	}
	defer fh.Close()
	names, err := fh.Readdirnames(hp.maxFilesPerDir)
	if err == io.EOF {
		err = nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "readdir %s", dir)
	}
	return len(names) >= hp.maxFilesPerDir, nil
}

// Optimize moves the file for hex to wherever Suggest would put it
// now, and returns its path.  Calling it again with no intervening
// writes returns the same path without moving anything.
func (hp *HexPath) Optimize(hex string) (file string, err error) {
	file, err = hp.Find(hex)
	if err != nil {
		return
	}
	return hp.optimize(file, hex)
}

// OptimizeFile is like Optimize but starts from a known file path.
func (hp *HexPath) OptimizeFile(file string) (optimized string, err error) {
	hex, err := hp.ToHex(file)
	if err != nil {
		return
	}
	return hp.optimize(file, hex)
}

// FindAndOptimize is like Optimize but reports an absent hex with
// found == false instead of an error.
func (hp *HexPath) FindAndOptimize(hex string) (file string, found bool, err error) {
	file, err = hp.Optimize(hex)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return file, true, nil
}

func (hp *HexPath) optimize(file, hex string) (optimized string, err error) {
	hex, err = Canonicalize(hex)
	if err != nil {
		return
	}
	optimized, err = hp.Suggest(hex, true)
	if err != nil {
		return
	}
	if optimized == file {
		return
	}
	// os.Rename would silently replace a file another writer put
	// there in the meantime
	_, err = os.Lstat(optimized)
	if err == nil {
		return "", errors.Wrapf(os.ErrExist, "optimize %s: destination %s", file, optimized)
	}
	if !os.IsNotExist(err) {
		return "", errors.Wrapf(err, "stat %s", optimized)
	}
	err = os.Rename(file, optimized)
	if err != nil {
		return "", errors.Wrapf(err, "optimize %s", file)
	}
	log.Debugf("moved %s to %s", file, optimized)
	return
}

// ToHex reconstructs the identifier of a file managed by hp from its
// path.  Every directory between the file and the root must be a shard
// directory.
func (hp *HexPath) ToHex(file string) (hex string, err error) {
	file, err = filepath.Abs(file)
	if err != nil {
		return "", errors.Wrapf(ErrInvalid, "%s: %v", file, err)
	}
	rel, err := filepath.Rel(hp.root, file)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.Wrapf(ErrInvalid, "not under %s: %s", hp.root, file)
	}
	if !hp.scheme.IsHexFilename(filepath.Base(file)) {
		return "", errors.Wrapf(ErrInvalid, "not a managed filename: %s", file)
	}
	hex = hp.scheme.identifier(filepath.Base(file))
	dir := filepath.Dir(file)
	for dir != hp.root {
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.Wrapf(ErrInvalid, "not under %s: %s", hp.root, file)
		}
		name := filepath.Base(dir)
		if !isShardName(name) {
			return "", Corrupt(dir, "not a shard directory name")
		}
		hex = name + hex
		dir = parent
	}
	return
}

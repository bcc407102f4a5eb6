package hexpath

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
)

// Snapshot is an immutable listing of one managed directory, taken
// once and never refreshed.
type Snapshot struct {
	// Dir is the directory's path.
	Dir string
	// Prefix is the hex spelled by the shard directory names between
	// the root and Dir.
	Prefix string
	// entries are identifier suffixes of the files in Dir, ascending.
	entries []string
	// subdirs are the shard directory names in Dir, ascending.
	subdirs []string
}

// snapshot lists dir.  A directory that vanished since its parent was
// listed yields an empty snapshot.
func (hp *HexPath) snapshot(dir, prefix string) (snap *Snapshot, err error) {
	snap = &Snapshot{Dir: dir, Prefix: prefix}
	des, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return snap, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "readdir %s", dir)
	}
	for _, de := range des {
		name := de.Name()
		switch {
		case de.IsDir():
			if isShardName(name) {
				snap.subdirs = append(snap.subdirs, name)
			}
		case hp.scheme.IsHexFilename(name):
			snap.entries = append(snap.entries, hp.scheme.identifier(name))
		}
	}
	// the scheme's decoration can sort differently than the
	// identifiers it wraps
	sort.Strings(snap.entries)
	// ReadDir sorts by name, so subdirs are already in order
	if len(snap.subdirs) == len(shardNames) {
		snap.subdirs = shardNames
	}
	return
}

// Snapshot lists the root directory.
func (hp *HexPath) Snapshot() (*Snapshot, error) {
	return hp.snapshot(hp.root, "")
}

// Child lists the shard subdirectory name of s.
func (hp *HexPath) Child(s *Snapshot, name string) (*Snapshot, error) {
	if !isShardName(name) {
		return nil, errors.Wrapf(ErrInvalid, "shard name %q", name)
	}
	return hp.snapshot(filepath.Join(s.Dir, name), s.Prefix+name)
}

// Depth is the number of shard levels between the root and s.
func (s *Snapshot) Depth() int {
	return len(s.Prefix) / 2
}

// Len returns the number of files listed.
func (s *Snapshot) Len() int {
	return len(s.entries)
}

// Entry returns the full identifier of the i'th file.
func (s *Snapshot) Entry(i int) string {
	return s.Prefix + s.entries[i]
}

// Subdirs returns the shard directory names.  The slice is shared and
// must not be modified.
func (s *Snapshot) Subdirs() []string {
	return s.subdirs
}

// Equal compares snapshots by directory only.
func (s *Snapshot) Equal(o *Snapshot) bool {
	return o != nil && s.Dir == o.Dir
}

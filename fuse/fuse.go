// Package fuse mounts a read-only view of a store: the root directory
// holds one regular file per stored id, containing the object's raw
// stored bytes.
package fuse

import (
	"context"
	"io"
	"os"
	"syscall"

	"github.com/cespare/xxhash/v2"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
	"github.com/t7a/stowbase"
	"github.com/t7a/stowbase/hexpath"
)

// Source is what the view needs from a store.  Any *stowbase.Store
// will do.
type Source interface {
	Cursor(distinct bool) (*hexpath.Cursor, error)
	ResolvePrefix(prefix string) (id, file string, err error)
}

// Root is the mount's root directory.
type Root struct {
	fs.Inode
	src Source
}

// NewRoot returns the root node of a view of src.
func NewRoot(src Source) *Root {
	return &Root{src: src}
}

var _ = (fs.NodeReaddirer)((*Root)(nil))
var _ = (fs.NodeLookuper)((*Root)(nil))
var _ = (fs.NodeGetattrer)((*Root)(nil))

// Readdir lists every id in ascending order, reading directories
// only as the kernel asks for more entries.
func (r *Root) Readdir(ctx context.Context) (stream fs.DirStream, errno syscall.Errno) {
	defer Unpanic(&errno, msglog)
	ids, err := newIdStream(r.src)
	if err != nil {
		log.Errorf("readdir: %v", err)
		return nil, toErrno(err)
	}
	return ids, 0
}

// idStream is a directory listing backed by a distinct cursor.
type idStream struct {
	c    *hexpath.Cursor
	dots []string
}

var _ = (fs.DirStream)((*idStream)(nil))

func newIdStream(src Source) (*idStream, error) {
	c, err := src.Cursor(true)
	if err != nil {
		return nil, err
	}
	return &idStream{c: c, dots: []string{".", ".."}}, nil
}

func (s *idStream) HasNext() bool {
	return len(s.dots) > 0 || s.c.HasRemaining()
}

func (s *idStream) Next() (fuse.DirEntry, syscall.Errno) {
	if len(s.dots) > 0 {
		name := s.dots[0]
		s.dots = s.dots[1:]
		return fuse.DirEntry{Mode: syscall.S_IFDIR, Name: name}, 0
	}
	id := s.c.HeadHex()
	_, err := s.c.ConsumeNext()
	if err != nil {
		log.Errorf("readdir: %v", err)
		return fuse.DirEntry{}, toErrno(err)
	}
	return fuse.DirEntry{Mode: fuse.S_IFREG, Name: id, Ino: ino(id)}, 0
}

func (s *idStream) Close() {}

// Lookup accepts a full id or any prefix that names exactly one object.
func (r *Root) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (child *fs.Inode, errno syscall.Errno) {
	defer Unpanic(&errno, msglog)
	id, file, err := r.src.ResolvePrefix(name)
	if err != nil {
		log.Debugf("lookup %s: %v", name, err)
		return nil, toErrno(err)
	}
	node := &objectNode{id: id, file: file}
	errno = node.attr(&out.Attr)
	if errno != 0 {
		return nil, errno
	}
	child = r.NewInode(ctx, node, fs.StableAttr{Mode: fuse.S_IFREG, Ino: ino(id)})
	return child, 0
}

func (r *Root) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = 0555
	return 0
}

// ino gives every id a stable inode number above the automatic range.
func ino(id string) uint64 {
	return xxhash.Sum64String(id) | 1<<63
}

// objectNode is one stored object.
type objectNode struct {
	fs.Inode
	id   string
	file string
}

var _ = (fs.NodeOpener)((*objectNode)(nil))
var _ = (fs.NodeGetattrer)((*objectNode)(nil))

func (n *objectNode) Open(ctx context.Context, flags uint32) (fh fs.FileHandle, outflags uint32, errno syscall.Errno) {
	defer Unpanic(&errno, msglog)

	// disallow writes
	if flags&(syscall.O_RDWR|syscall.O_WRONLY|syscall.O_TRUNC|syscall.O_APPEND) != 0 {
		return nil, 0, syscall.EROFS
	}
	f, err := os.Open(n.file)
	if err != nil {
		// optimized or moved since lookup
		log.Debugf("open %s: %v", n.id, err)
		return nil, 0, fs.ToErrno(err)
	}

	// The file content is immutable, so ask the kernel to cache the data.
	return &handle{f: f}, fuse.FOPEN_KEEP_CACHE, fs.OK
}

func (n *objectNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) (errno syscall.Errno) {
	defer Unpanic(&errno, msglog)
	return n.attr(&out.Attr)
}

func (n *objectNode) attr(out *fuse.Attr) syscall.Errno {
	info, err := os.Stat(n.file)
	if err != nil {
		return fs.ToErrno(err)
	}
	out.Mode = fuse.S_IFREG | 0444
	out.Size = uint64(info.Size())
	out.Nlink = 1
	mtime := info.ModTime()
	out.SetTimes(nil, &mtime, nil)
	return 0
}

// handle is an open object.
type handle struct {
	f *os.File
}

var _ = (fs.FileReader)((*handle)(nil))
var _ = (fs.FileReleaser)((*handle)(nil))

func (h *handle) Read(ctx context.Context, buf []byte, offset int64) (res fuse.ReadResult, errno syscall.Errno) {
	defer Unpanic(&errno, msglog)
	n, err := h.f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		log.Errorf("read %s: %v", h.f.Name(), err)
		return nil, syscall.EIO
	}
	return fuse.ReadResultData(buf[:n]), 0
}

func (h *handle) Release(ctx context.Context) syscall.Errno {
	return fs.ToErrno(h.f.Close())
}

// toErrno maps store error kinds onto errnos.
func toErrno(err error) syscall.Errno {
	switch {
	case errors.Is(err, stowbase.ErrNotFound),
		errors.Is(err, stowbase.ErrInvalid),
		errors.Is(err, stowbase.ErrAmbiguous):
		return syscall.ENOENT
	}
	return syscall.EIO
}

// Serve mounts a view of src at mnt and waits for the mount to be
// ready.  The caller unmounts via the returned server.
func Serve(src Source, mnt string, debug bool) (server *fuse.Server, err error) {
	defer Return(&err)
	opts := &fs.Options{}
	opts.Debug = debug
	opts.FsName = "stowbase"
	opts.Name = "stowbase"
	// start automatic inode numbers at 2^16
	opts.FirstAutomaticIno = 1 << 16
	server, err = fs.Mount(mnt, NewRoot(src), opts)
	Ck(err)
	err = server.WaitMount()
	Ck(err)
	return
}

func msglog(msg string) {
	log.Errorf("unpanic: %v", msg)
}

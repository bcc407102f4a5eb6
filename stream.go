package stowbase

import (
	"io"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	// ChunkExt and ManifestExt are the extensions of a StreamStore's
	// two kinds of file.
	ChunkExt    = ".chunk"
	ManifestExt = ".manifest"

	// DefaultMaxChunks bounds the number of chunks in one stream.
	DefaultMaxChunks = 4096
)

// StreamStore stores byte streams of any length.  A stream is cut into
// content-defined chunks, so streams that share long runs of bytes
// share chunk files.  Each stream is identified by the id of its
// manifest, the list of its chunk ids.
type StreamStore struct {
	Chunks    *Store[[]byte]
	Manifests *Store[[]string]
	chunker   *Chunker
}

// OpenStreamStore opens a stream store in cfg.Dir.  Chunks and
// manifests share the directory and differ by extension; cfg.Ext is
// ignored.
func OpenStreamStore(cfg Config, c Chunker, maxChunks int) (ss *StreamStore, err error) {
	ss = &StreamStore{}
	ss.chunker, err = c.Init()
	if err != nil {
		return nil, err
	}
	if maxChunks == 0 {
		maxChunks = DefaultMaxChunks
	}

	chunkCodec, err := NewBytesCodec(int(ss.chunker.MaxSize))
	if err != nil {
		return nil, err
	}
	ccfg := cfg
	ccfg.Ext = ChunkExt
	ss.Chunks, err = Open[[]byte](ccfg, chunkCodec)
	if err != nil {
		return nil, err
	}

	// an id is at most a sha512 digest
	idCodec, err := NewStringCodec(128)
	if err != nil {
		return nil, err
	}
	listCodec, err := NewListCodec[string](idCodec, maxChunks)
	if err != nil {
		return nil, err
	}
	mcfg := cfg
	mcfg.Ext = ManifestExt
	mcfg.CacheSize = 0
	ss.Manifests, err = Open[[]string](mcfg, listCodec)
	if err != nil {
		return nil, err
	}
	return
}

// Put stores everything read from rd and returns the stream's id.
// StreamStore is not safe for concurrent Puts.
func (ss *StreamStore) Put(rd io.Reader) (id string, err error) {
	ss.chunker.Start(rd)
	var ids []string
	for {
		var data []byte
		data, err = ss.chunker.Next()
		if errors.Cause(err) == io.EOF {
			break
		}
		if err != nil {
			return
		}
		var cid string
		cid, err = ss.Chunks.Write(data)
		if err != nil {
			return
		}
		ids = append(ids, cid)
	}
	if ids == nil {
		ids = []string{}
	}
	id, err = ss.Manifests.Write(ids)
	if err != nil {
		return
	}
	log.Debugf("stream %s: %d chunks", id, len(ids))
	return
}

// Ls returns the chunk ids of a stream, in order.
func (ss *StreamStore) Ls(id string) ([]string, error) {
	return ss.Manifests.Read(id)
}

// Cat writes the stream's bytes to w.
func (ss *StreamStore) Cat(id string, w io.Writer) (n int64, err error) {
	ids, err := ss.Ls(id)
	if err != nil {
		return
	}
	for _, cid := range ids {
		var data []byte
		data, err = ss.Chunks.Read(cid)
		if err != nil {
			return
		}
		var m int
		m, err = w.Write(data)
		n += int64(m)
		if err != nil {
			return
		}
	}
	return
}

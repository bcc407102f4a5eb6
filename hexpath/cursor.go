package hexpath

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Characteristics describe the sequence a Cursor produces.
type Characteristics uint

const (
	Ordered Characteristics = 1 << iota
	Sorted
	Distinct
	NonNull
	Immutable
)

// Entry is one identifier and the path of its file.
type Entry struct {
	Hex  string
	File string
}

// position is one open directory on a cursor's path from the root.
// entries and subdirs are what remains to be visited; both are
// subslices of the snapshot's and are never written through.
type position struct {
	snap    *Snapshot
	entries []string
	subdirs []string
}

func (p *position) consumed() bool {
	return len(p.entries) == 0 && len(p.subdirs) == 0
}

func (p *position) head() string {
	return p.snap.Prefix + p.entries[0]
}

// Cursor enumerates the identifiers under a HexPath in ascending
// order, merging files that sit at different shard depths.  A cursor
// reads each directory once, when first visited; files added after
// that are not seen, and files removed after that are still reported.
//
// A Cursor is not safe for concurrent use.  Use TrySplit to divide the
// work between goroutines.
type Cursor struct {
	hp       *HexPath
	distinct bool
	// positions is the path from the root to the directory being
	// visited.  positions[i+1] is the directory named by
	// positions[i].subdirs[0].
	positions []*position
	// best is the index of the position holding the lowest entry, or
	// -1 if nothing remains.
	best int
}

// NewCursor returns a cursor over every file under hp.  If distinct
// is set, an identifier stored more than once is reported once, from
// its deepest location.
func (hp *HexPath) NewCursor(distinct bool) (c *Cursor, err error) {
	snap, err := hp.Snapshot()
	if err != nil {
		return
	}
	c = &Cursor{hp: hp, distinct: distinct}
	c.positions = []*position{{snap: snap, entries: snap.entries, subdirs: snap.subdirs}}
	err = c.normalize()
	if err != nil {
		return nil, err
	}
	return
}

// Distinct returns true if duplicate identifiers are suppressed.
func (c *Cursor) Distinct() bool {
	return c.distinct
}

// Characteristics describes the sequence.
func (c *Cursor) Characteristics() Characteristics {
	ch := Ordered | Sorted | NonNull | Immutable
	if c.distinct {
		ch |= Distinct
	}
	return ch
}

// HasRemaining returns true if Head is valid.
func (c *Cursor) HasRemaining() bool {
	return c.best >= 0
}

// Head returns the lowest remaining entry without consuming it.  It
// panics if nothing remains.
func (c *Cursor) Head() Entry {
	p := c.positions[c.best]
	return Entry{
		Hex:  p.head(),
		File: filepath.Join(p.snap.Dir, c.hp.scheme.ToFilename(p.entries[0])),
	}
}

// HeadHex returns the identifier of Head.
func (c *Cursor) HeadHex() string {
	return c.positions[c.best].head()
}

// HeadFile returns the path of Head.
func (c *Cursor) HeadFile() string {
	return c.Head().File
}

// ConsumeNext drops the head entry.  In distinct mode it also drops
// any following entries with the same identifier.  It returns false if
// there was nothing to consume.
func (c *Cursor) ConsumeNext() (ok bool, err error) {
	if !c.HasRemaining() {
		return false, nil
	}
	hex := c.HeadHex()
	err = c.drop()
	if err != nil {
		return
	}
	for c.distinct && c.HasRemaining() && c.HeadHex() == hex {
		err = c.drop()
		if err != nil {
			return
		}
	}
	return true, nil
}

// Next returns the head entry and consumes it.  ok is false when
// nothing remains.
func (c *Cursor) Next() (e Entry, ok bool, err error) {
	if !c.HasRemaining() {
		return
	}
	e = c.Head()
	_, err = c.ConsumeNext()
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

func (c *Cursor) drop() error {
	p := c.positions[c.best]
	p.entries = p.entries[1:]
	return c.normalize()
}

// normalize restores the cursor's invariants after its positions have
// been trimmed: the last position has no unvisited subdirectories, no
// position but the root is fully consumed, and best is current.
func (c *Cursor) normalize() (err error) {
	err = c.pushDown()
	if err != nil {
		return
	}
	for len(c.positions) > 1 && c.last().consumed() {
		c.positions = c.positions[:len(c.positions)-1]
		parent := c.last()
		parent.subdirs = parent.subdirs[1:]
		err = c.pushDown()
		if err != nil {
			return
		}
	}
	c.rank()
	return
}

func (c *Cursor) last() *position {
	return c.positions[len(c.positions)-1]
}

// pushDown opens the first unvisited subdirectory of the last
// position until it reaches a directory with none.
func (c *Cursor) pushDown() error {
	for {
		p := c.last()
		if len(p.subdirs) == 0 {
			return nil
		}
		snap, err := c.hp.Child(p.snap, p.subdirs[0])
		if err != nil {
			return err
		}
		c.positions = append(c.positions, &position{snap: snap, entries: snap.entries, subdirs: snap.subdirs})
	}
}

// rank finds the position holding the lowest entry.  On ties the
// deeper position wins, so in distinct mode the copy that Find would
// return is the one reported.
func (c *Cursor) rank() {
	c.best = -1
	var low string
	for i, p := range c.positions {
		if len(p.entries) == 0 {
			continue
		}
		h := p.head()
		if c.best < 0 || h <= low {
			c.best, low = i, h
		}
	}
}

// AdvanceToPrefix skips every entry that sorts before prefix.  It
// returns true if anything remains, though the head need not start
// with prefix.
func (c *Cursor) AdvanceToPrefix(prefix string) (ok bool, err error) {
	prefix, err = Canonicalize(prefix)
	if err != nil {
		return
	}
	for i := 0; i < len(c.positions); i++ {
		p := c.positions[i]
		order := ComparePrefix(p.snap.Prefix, prefix)
		if order == At || order == After {
			break
		}
		if order == Before {
			p.entries, p.subdirs = nil, nil
			c.positions = c.positions[:i+1]
			break
		}
		// p's directory is an ancestor of prefix's
		rem := prefix[len(p.snap.Prefix):]
		p.entries = p.entries[sort.SearchStrings(p.entries, rem):]
		shard := rem
		if len(shard) > 2 {
			shard = shard[:2]
		}
		j := sort.SearchStrings(p.subdirs, shard)
		if j > 0 {
			p.subdirs = p.subdirs[j:]
			c.positions = c.positions[:i+1]
		}
		if i == len(c.positions)-1 && len(p.subdirs) > 0 {
			var snap *Snapshot
			snap, err = c.hp.Child(p.snap, p.subdirs[0])
			if err != nil {
				return
			}
			c.positions = append(c.positions, &position{snap: snap, entries: snap.entries, subdirs: snap.subdirs})
		}
	}
	err = c.normalize()
	if err != nil {
		return
	}
	return c.HasRemaining(), nil
}

// TrySplit hands roughly half of the remaining entries to a new
// cursor and returns it, or returns nil if the remainder can't be
// split.  Everything left in c sorts before everything in the new
// cursor, so draining c and then the new cursor yields the same
// sequence c would have.
func (c *Cursor) TrySplit() (split *Cursor, err error) {
	at := -1
	for i, p := range c.positions {
		if len(p.subdirs) > 1 {
			at = i
			break
		}
	}
	if at < 0 {
		return nil, nil
	}
	p := c.positions[at]
	mid := len(p.subdirs) / 2
	boundary := p.snap.Prefix + p.subdirs[mid]

	split = &Cursor{hp: c.hp, distinct: c.distinct}
	for i := 0; i <= at; i++ {
		q := c.positions[i]
		k := sort.SearchStrings(q.entries, boundary[len(q.snap.Prefix):])
		// above at, subdirs holds just the directory on the path
		sq := &position{snap: q.snap, entries: q.entries[k:], subdirs: q.subdirs}
		q.entries = q.entries[:k]
		if i == at {
			sq.subdirs = q.subdirs[mid:]
			q.subdirs = q.subdirs[:mid]
		}
		split.positions = append(split.positions, sq)
	}
	err = split.normalize()
	if err != nil {
		return nil, err
	}
	err = c.normalize()
	if err != nil {
		return nil, err
	}
	log.Debugf("split %s at %s", p.snap.Dir, boundary)
	return
}

// EstimateSize guesses the number of entries remaining by assuming
// unvisited directories are like the visited ones.
func (c *Cursor) EstimateSize() (estimate int64) {
	for i := len(c.positions) - 1; i >= 0; i-- {
		p := c.positions[i]
		if len(p.subdirs) > 1 {
			estimate *= int64(len(p.subdirs))
		}
		estimate += int64(len(p.entries))
	}
	return
}

// Walk calls fn for every entry whose identifier starts with prefix,
// in ascending order.  An empty prefix walks everything.  Walk stops
// at the first error fn returns and returns it.
func (hp *HexPath) Walk(prefix string, distinct bool, fn func(Entry) error) (err error) {
	c, err := hp.NewCursor(distinct)
	if err != nil {
		return
	}
	if prefix != "" {
		prefix, err = Canonicalize(prefix)
		if err != nil {
			return
		}
		_, err = c.AdvanceToPrefix(prefix)
		if err != nil {
			return
		}
	}
	for c.HasRemaining() {
		e := c.Head()
		if !strings.HasPrefix(e.Hex, prefix) {
			break
		}
		err = fn(e)
		if err != nil {
			return
		}
		_, err = c.ConsumeNext()
		if err != nil {
			return errors.Wrap(err, "walk")
		}
	}
	return
}

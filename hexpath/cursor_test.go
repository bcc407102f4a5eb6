package hexpath

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// fixture stores n random identifiers at random depths and returns
// them sorted.
func fixture(t *testing.T, hp *HexPath, n int, seed int64) (hexes []string) {
	t.Helper()
	rnd := rand.New(rand.NewSource(seed))
	seen := map[string]bool{}
	for len(hexes) < n {
		// a small alphabet for the leading digits forces shared
		// shard directories
		hex := fmt.Sprintf("%x%x%014x", rnd.Intn(3), rnd.Intn(4), rnd.Int63n(1<<56))
		if seen[hex] {
			continue
		}
		seen[hex] = true
		place(t, hp, hex, rnd.Intn(3))
		hexes = append(hexes, hex)
	}
	sort.Strings(hexes)
	return
}

func drain(t *testing.T, c *Cursor) (hexes []string) {
	t.Helper()
	for {
		e, ok, err := c.Next()
		tassert(t, err == nil, "%v", err)
		if !ok {
			return
		}
		hexes = append(hexes, e.Hex)
	}
}

func same(a, b []string) bool {
	return strings.Join(a, ",") == strings.Join(b, ",")
}

func TestCursorEmpty(t *testing.T) {
	hp := setup(t)
	c, err := hp.NewCursor(false)
	tassert(t, err == nil, "%v", err)
	tassert(t, !c.HasRemaining(), "empty root has remaining")
	ok, err := c.ConsumeNext()
	tassert(t, err == nil && !ok, "consumed from empty: %v %v", ok, err)
	tassert(t, c.EstimateSize() == 0, "%d", c.EstimateSize())
	split, err := c.TrySplit()
	tassert(t, err == nil && split == nil, "split empty: %v %v", split, err)
}

func TestCursorOrder(t *testing.T) {
	hp := setup(t)
	want := fixture(t, hp, 500, 1)
	c, err := hp.NewCursor(false)
	tassert(t, err == nil, "%v", err)
	got := drain(t, c)
	tassert(t, same(got, want), "got %d entries want %d\ngot %v\nwant %v", len(got), len(want), got, want)
}

func TestCursorHeadFile(t *testing.T) {
	hp := setup(t)
	path := place(t, hp, "abcdef", 2)
	c, err := hp.NewCursor(false)
	tassert(t, err == nil, "%v", err)
	tassert(t, c.HasRemaining(), "nothing remains")
	tassert(t, c.HeadHex() == "abcdef", c.HeadHex())
	tassert(t, c.HeadFile() == path, "got %s want %s", c.HeadFile(), path)
}

func TestCursorIgnoresStrangers(t *testing.T) {
	hp := setup(t)
	place(t, hp, "abcd", 0)
	touch(t, filepath.Join(hp.Root(), "README"))
	touch(t, filepath.Join(hp.Root(), "ABCD"+ext))
	place(t, hp, "cd00", 1)
	c, err := hp.NewCursor(false)
	tassert(t, err == nil, "%v", err)
	got := drain(t, c)
	tassert(t, same(got, []string{"abcd", "cd00"}), "%v", got)
}

func TestCursorDuplicates(t *testing.T) {
	hp := setup(t)
	place(t, hp, "aa00", 0)
	place(t, hp, "ab12", 0)
	deep := place(t, hp, "ab12", 1)
	place(t, hp, "ab34", 1)

	c, err := hp.NewCursor(false)
	tassert(t, err == nil, "%v", err)
	got := drain(t, c)
	tassert(t, same(got, []string{"aa00", "ab12", "ab12", "ab34"}), "%v", got)

	c, err = hp.NewCursor(true)
	tassert(t, err == nil, "%v", err)
	tassert(t, c.Characteristics()&Distinct != 0, "not distinct")
	_, err = c.ConsumeNext()
	tassert(t, err == nil, "%v", err)
	// the deeper copy is reported first
	tassert(t, c.HeadFile() == deep, "got %s want %s", c.HeadFile(), deep)
	got = drain(t, c)
	tassert(t, same(got, []string{"ab12", "ab34"}), "%v", got)
}

func TestAdvanceToPrefix(t *testing.T) {
	hp := setup(t)
	all := fixture(t, hp, 300, 2)
	prefixes := []string{"0", "1", "12", "123", "2f", "30", "ff", "00", all[0], all[17][:5], all[150][:3], all[299]}
	for _, prefix := range prefixes {
		c, err := hp.NewCursor(false)
		tassert(t, err == nil, "%v", err)
		ok, err := c.AdvanceToPrefix(prefix)
		tassert(t, err == nil, "%v", err)
		i := sort.SearchStrings(all, prefix)
		tassert(t, ok == (i < len(all)), "%s: ok %v", prefix, ok)
		got := drain(t, c)
		tassert(t, same(got, all[i:]), "%s: got %v want %v", prefix, got, all[i:])
	}
}

func TestAdvanceMidway(t *testing.T) {
	hp := setup(t)
	all := fixture(t, hp, 200, 3)
	c, err := hp.NewCursor(false)
	tassert(t, err == nil, "%v", err)
	for i := 0; i < 50; i++ {
		_, err = c.ConsumeNext()
		tassert(t, err == nil, "%v", err)
	}
	// seeking backward doesn't rewind
	_, err = c.AdvanceToPrefix("0")
	tassert(t, err == nil, "%v", err)
	tassert(t, c.HeadHex() == all[50], "got %s want %s", c.HeadHex(), all[50])
	prefix := all[120][:4]
	_, err = c.AdvanceToPrefix(prefix)
	tassert(t, err == nil, "%v", err)
	i := sort.SearchStrings(all, prefix)
	got := drain(t, c)
	tassert(t, same(got, all[i:]), "got %v want %v", got, all[i:])

	_, err = c.AdvanceToPrefix("xyz")
	tassert(t, err != nil, "bad prefix accepted")
}

func TestTrySplit(t *testing.T) {
	hp := setup(t)
	all := fixture(t, hp, 400, 4)
	for skip := 0; skip < 3; skip++ {
		c, err := hp.NewCursor(false)
		tassert(t, err == nil, "%v", err)
		for i := 0; i < skip*37; i++ {
			_, err = c.ConsumeNext()
			tassert(t, err == nil, "%v", err)
		}
		cursors := []*Cursor{c}
		// split everything as far as it goes, keeping order
		for done := false; !done; {
			done = true
			var next []*Cursor
			for _, c := range cursors {
				split, err := c.TrySplit()
				tassert(t, err == nil, "%v", err)
				next = append(next, c)
				if split != nil {
					tassert(t, split.Distinct() == c.Distinct(), "distinct mode lost")
					next = append(next, split)
					done = false
				}
			}
			cursors = next
		}
		tassert(t, len(cursors) > 1, "never split")
		var got []string
		for _, c := range cursors {
			got = append(got, drain(t, c)...)
		}
		want := all[skip*37:]
		tassert(t, same(got, want), "skip %d: got %d want %d\ngot %v\nwant %v", skip, len(got), len(want), got, want)
	}
}

func TestEstimateSize(t *testing.T) {
	hp := setup(t)
	place(t, hp, "0c00", 1)
	c, err := hp.NewCursor(false)
	tassert(t, err == nil, "%v", err)
	tassert(t, c.EstimateSize() == 1, "%d", c.EstimateSize())

	place(t, hp, "1000", 1)
	c, err = hp.NewCursor(false)
	tassert(t, err == nil, "%v", err)
	tassert(t, c.EstimateSize() == 2, "%d", c.EstimateSize())

	place(t, hp, "ff", 0)
	c, err = hp.NewCursor(false)
	tassert(t, err == nil, "%v", err)
	tassert(t, c.EstimateSize() == 3, "%d", c.EstimateSize())
}

func TestWalk(t *testing.T) {
	hp := setup(t)
	all := fixture(t, hp, 200, 5)
	prefix := all[80][:3]
	var want []string
	for _, hex := range all {
		if strings.HasPrefix(hex, prefix) {
			want = append(want, hex)
		}
	}
	var got []string
	err := hp.Walk(prefix, true, func(e Entry) error {
		got = append(got, e.Hex)
		return nil
	})
	tassert(t, err == nil, "%v", err)
	tassert(t, same(got, want), "got %v want %v", got, want)

	stop := fmt.Errorf("stop")
	n := 0
	err = hp.Walk("", false, func(e Entry) error {
		n++
		if n == 3 {
			return stop
		}
		return nil
	})
	tassert(t, err == stop && n == 3, "%v %d", err, n)
}

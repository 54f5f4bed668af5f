package bplustree

import (
	"fmt"
	"os"
	"sort"
	"testing"

	"github.com/magiconair/properties/assert"
	"golang.org/x/sync/errgroup"

	"pagestore/buffer/pool"
	"pagestore/storage/disk"
	"pagestore/storage/page"
	"pagestore/types"
)

func newTestTree(t *testing.T, poolSize, leafMax, internalMax int) (*BPlusTree[int64, types.RID], func()) {
	t.Helper()
	f, err := os.CreateTemp("", "pagestore-bpt-*.db")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	path := f.Name()
	f.Close()

	dm, err := disk.Open(path)
	if err != nil {
		t.Fatalf("disk.Open: %v", err)
	}
	bpm := pool.NewManager(poolSize, 2, 4, dm, nil)
	tree := New[int64, types.RID]("pk", bpm, Int64KeyCodec{}, RIDValueCodec{}, leafMax, internalMax, nil)
	return tree, func() {
		dm.Close()
		os.Remove(path)
	}
}

func rid(n int64) types.RID { return types.RID{PageID: types.PageID(n), Slot: 0} }

func TestInsertGetRoundTrip(t *testing.T) {
	tree, cleanup := newTestTree(t, 16, 4, 4)
	defer cleanup()

	for i := int64(1); i <= 20; i++ {
		if !tree.Insert(i, rid(i)) {
			t.Fatalf("Insert(%d) = false, want true", i)
		}
	}
	for i := int64(1); i <= 20; i++ {
		v, ok := tree.GetValue(i)
		if !ok || v != rid(i) {
			t.Fatalf("GetValue(%d) = %v, %v; want %v, true", i, v, ok, rid(i))
		}
	}
	if _, ok := tree.GetValue(21); ok {
		t.Fatalf("GetValue(21) found an absent key")
	}
}

func TestInsertDuplicateFails(t *testing.T) {
	tree, cleanup := newTestTree(t, 16, 4, 4)
	defer cleanup()

	if !tree.Insert(5, rid(5)) {
		t.Fatalf("first Insert(5) = false")
	}
	if tree.Insert(5, rid(50)) {
		t.Fatalf("duplicate Insert(5) = true, want false")
	}
	v, _ := tree.GetValue(5)
	if v != rid(5) {
		t.Fatalf("duplicate insert overwrote value: got %v", v)
	}
}

// TestSplitScenario mirrors spec §8 scenario 4: leaf_max_size=3,
// internal_max_size=3. A leaf splits when it reaches 3 entries, so
// inserting 1,2,3,4 splits twice (at 3, then at 4), leaving an internal
// root [·,2,3] over leaves [1], [2], [3,4].
func TestSplitScenario(t *testing.T) {
	tree, cleanup := newTestTree(t, 16, 3, 3)
	defer cleanup()

	for i := int64(1); i <= 4; i++ {
		if !tree.Insert(i, rid(i)) {
			t.Fatalf("Insert(%d) failed", i)
		}
	}

	if tree.IsEmpty() {
		t.Fatalf("tree unexpectedly empty after inserts")
	}
	root, ok := tree.bpm.FetchPage(tree.GetRootPageID())
	if !ok {
		t.Fatalf("could not fetch root")
	}
	if pageTypeOf(root) != page.TypeBPlusInternal {
		t.Fatalf("root should have split into an internal node")
	}
	tree.bpm.UnpinPage(tree.GetRootPageID(), false)

	for i := int64(1); i <= 4; i++ {
		v, ok := tree.GetValue(i)
		if !ok || v != rid(i) {
			t.Fatalf("GetValue(%d) = %v, %v after split", i, v, ok)
		}
	}
}

// TestRemoveCoalesceScenario mirrors spec §8 scenario 5: continuing
// from the split scenario, removing key 4 leaves [3] below the minimum
// of 2, and it coalesces with its left sibling [2]; the root keeps two
// children, [1] and [2,3].
func TestRemoveCoalesceScenario(t *testing.T) {
	tree, cleanup := newTestTree(t, 16, 3, 3)
	defer cleanup()

	for i := int64(1); i <= 4; i++ {
		tree.Insert(i, rid(i))
	}

	if !tree.Remove(4) {
		t.Fatalf("Remove(4) = false, want true")
	}
	if _, ok := tree.GetValue(4); ok {
		t.Fatalf("GetValue(4) found a removed key")
	}
	for i := int64(1); i <= 3; i++ {
		v, ok := tree.GetValue(i)
		if !ok || v != rid(i) {
			t.Fatalf("GetValue(%d) = %v, %v; want %v, true", i, v, ok, rid(i))
		}
	}
}

func TestRemoveAbsentKeyFails(t *testing.T) {
	tree, cleanup := newTestTree(t, 16, 4, 4)
	defer cleanup()

	tree.Insert(1, rid(1))
	if tree.Remove(99) {
		t.Fatalf("Remove(99) = true, want false")
	}
}

func TestInsertRemoveManyShrinksToEmpty(t *testing.T) {
	tree, cleanup := newTestTree(t, 32, 4, 4)
	defer cleanup()

	const n = 200
	for i := int64(0); i < n; i++ {
		if !tree.Insert(i, rid(i)) {
			t.Fatalf("Insert(%d) failed", i)
		}
	}
	for i := int64(0); i < n; i++ {
		if v, ok := tree.GetValue(i); !ok || v != rid(i) {
			t.Fatalf("GetValue(%d) = %v, %v", i, v, ok)
		}
	}
	for i := int64(0); i < n; i++ {
		if !tree.Remove(i) {
			t.Fatalf("Remove(%d) failed", i)
		}
	}
	if !tree.IsEmpty() {
		t.Fatalf("tree not empty after removing every key")
	}
	for i := int64(0); i < n; i++ {
		if _, ok := tree.GetValue(i); ok {
			t.Fatalf("GetValue(%d) found a key after full removal", i)
		}
	}
}

func TestIteratorOrdersAscending(t *testing.T) {
	tree, cleanup := newTestTree(t, 32, 4, 4)
	defer cleanup()

	keys := []int64{5, 3, 8, 1, 9, 2, 7, 4, 6}
	for _, k := range keys {
		tree.Insert(k, rid(k))
	}

	var got []int64
	for it := tree.Begin(); !it.Done(); it.Next() {
		got = append(got, it.Key())
	}
	want := append([]int64(nil), keys...)
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
	assert.Equal(t, got, want, "iterator did not yield keys in ascending order")

	it := tree.BeginAt(5)
	defer it.Close()
	if it.Done() || it.Key() != 5 {
		t.Fatalf("BeginAt(5) positioned at %v", it)
	}
}

// TestConcurrentInsertSearch exercises the latch-crabbing path under
// concurrent writers and readers.
func TestConcurrentInsertSearch(t *testing.T) {
	tree, cleanup := newTestTree(t, 64, 4, 4)
	defer cleanup()

	const perWorker = 50
	const workers = 8

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < perWorker; i++ {
				key := int64(w*perWorker + i)
				if !tree.Insert(key, rid(key)) {
					return fmt.Errorf("Insert(%d) failed", key)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent insert: %v", err)
	}

	var g2 errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		g2.Go(func() error {
			for i := 0; i < perWorker; i++ {
				key := int64(w*perWorker + i)
				v, ok := tree.GetValue(key)
				if !ok || v != rid(key) {
					return fmt.Errorf("GetValue(%d) = %v, %v", key, v, ok)
				}
			}
			return nil
		})
	}
	if err := g2.Wait(); err != nil {
		t.Fatalf("concurrent search: %v", err)
	}
}

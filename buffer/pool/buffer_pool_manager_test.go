package pool

import (
	"os"
	"testing"

	"github.com/magiconair/properties/assert"

	"pagestore/storage/disk"
	"pagestore/types"
)

func newTestManager(t *testing.T, poolSize int) (*Manager, func()) {
	t.Helper()
	f, err := os.CreateTemp("", "pagestore-bpm-*.db")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	path := f.Name()
	f.Close()

	dm, err := disk.Open(path)
	if err != nil {
		t.Fatalf("disk.Open: %v", err)
	}
	m := NewManager(poolSize, 2, 4, dm, nil)
	return m, func() {
		dm.Close()
		os.Remove(path)
	}
}

// TestEmptyPoolAllocation mirrors spec §8 scenario 1.
func TestEmptyPoolAllocation(t *testing.T) {
	m, cleanup := newTestManager(t, 3)
	defer cleanup()

	var ids []types.PageID
	for i := 0; i < 3; i++ {
		pg, ok := m.NewPage()
		if !ok {
			t.Fatalf("NewPage() #%d failed unexpectedly", i)
		}
		ids = append(ids, pg.ID)
	}
	for i, id := range ids {
		if id != types.PageID(i+1) { // id 0 is reserved for the header page
			t.Fatalf("ids[%d] = %d, want %d", i, id, i+1)
		}
	}

	if _, ok := m.NewPage(); ok {
		t.Fatalf("NewPage() succeeded with all frames pinned")
	}

	if !m.UnpinPage(ids[1], true) {
		t.Fatalf("UnpinPage(%d) failed", ids[1])
	}

	pg, ok := m.NewPage()
	if !ok {
		t.Fatalf("NewPage() after unpin failed")
	}
	if pg.ID != types.PageID(4) {
		t.Fatalf("NewPage() after unpin = %d, want 4", pg.ID)
	}
}

// TestDirtyEviction mirrors spec §8 scenario 2.
func TestDirtyEviction(t *testing.T) {
	m, cleanup := newTestManager(t, 1)
	defer cleanup()

	pg, ok := m.NewPage()
	if !ok {
		t.Fatalf("NewPage() failed")
	}
	id0 := pg.ID
	copy(pg.Data[:], []byte("HELLO"))
	if !m.UnpinPage(id0, true) {
		t.Fatalf("UnpinPage(%d) failed", id0)
	}

	pg1, ok := m.NewPage()
	if !ok {
		t.Fatalf("NewPage() forcing eviction failed")
	}
	if !m.UnpinPage(pg1.ID, false) {
		t.Fatalf("UnpinPage(%d) failed", pg1.ID)
	}

	reloaded, ok := m.FetchPage(id0)
	if !ok {
		t.Fatalf("FetchPage(%d) after eviction failed", id0)
	}
	defer m.UnpinPage(id0, false)
	if got := string(reloaded.Data[:5]); got != "HELLO" {
		t.Fatalf("reloaded page contents = %q, want HELLO", got)
	}
}

func TestUnpinUnknownPageFails(t *testing.T) {
	m, cleanup := newTestManager(t, 2)
	defer cleanup()
	if m.UnpinPage(99, false) {
		t.Fatalf("UnpinPage on unknown id succeeded")
	}
}

func TestDeletePinnedPageFails(t *testing.T) {
	m, cleanup := newTestManager(t, 2)
	defer cleanup()
	pg, _ := m.NewPage()
	if m.DeletePage(pg.ID) {
		t.Fatalf("DeletePage succeeded on a pinned page")
	}
	m.UnpinPage(pg.ID, false)
	if !m.DeletePage(pg.ID) {
		t.Fatalf("DeletePage failed on an unpinned page")
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	m, cleanup := newTestManager(t, 4)
	defer cleanup()

	m.SetIndexRoot("students_pk", 7)
	m.SetIndexRoot("accounts_pk", 12)

	root, ok := m.GetIndexRoot("students_pk")
	if !ok || root != 7 {
		t.Fatalf("GetIndexRoot(students_pk) = %v, %v; want 7, true", root, ok)
	}

	snapshot := m.DumpHeader()
	want := map[string]types.PageID{"students_pk": 7, "accounts_pk": 12}
	assert.Equal(t, snapshot, want, "DumpHeader() snapshot did not match the records written")
}

package hash

import "testing"

func TestFindInsertRemove(t *testing.T) {
	tbl := New[int, string](4)
	tbl.Insert(1, "a")
	tbl.Insert(2, "b")

	if v, ok := tbl.Find(1); !ok || v != "a" {
		t.Fatalf("Find(1) = %v, %v; want a, true", v, ok)
	}
	if _, ok := tbl.Find(3); ok {
		t.Fatalf("Find(3) found unexpected entry")
	}

	tbl.Insert(1, "a2")
	if v, _ := tbl.Find(1); v != "a2" {
		t.Fatalf("upsert did not overwrite: got %v", v)
	}

	if !tbl.Remove(2) {
		t.Fatalf("Remove(2) = false, want true")
	}
	if _, ok := tbl.Find(2); ok {
		t.Fatalf("Find(2) found entry after remove")
	}
	if tbl.Remove(2) {
		t.Fatalf("Remove(2) on absent key = true, want false")
	}
}

// TestGrowth mirrors spec §8 scenario 6: bucket_size=2, three keys that
// all land in the same initial bucket force the directory to grow and
// the bucket to split, redistributing entries so every key remains
// reachable. (hash(key) is a table-private seeded hash, not the
// identity hash the spec's worked example illustrates with, so the
// exact depth reached is not asserted — only that growth preserves
// correctness, per the open question recorded in DESIGN.md.)
func TestGrowth(t *testing.T) {
	tbl := New[int, string](2)
	tbl.Insert(1, "a")
	tbl.Insert(3, "b")
	tbl.Insert(5, "c")

	if v, ok := tbl.Find(5); !ok || v != "c" {
		t.Fatalf("Find(5) = %v, %v; want c, true", v, ok)
	}
	if v, ok := tbl.Find(1); !ok || v != "a" {
		t.Fatalf("Find(1) = %v, %v; want a, true", v, ok)
	}
	if v, ok := tbl.Find(3); !ok || v != "b" {
		t.Fatalf("Find(3) = %v, %v; want b, true", v, ok)
	}
	if got := tbl.GlobalDepth(); got < 1 {
		t.Fatalf("GlobalDepth() = %d, want >= 1 after exceeding bucket capacity", got)
	}
}

// TestDirectoryInvariant checks spec §8: every slot i pointing at bucket
// b satisfies i & ((1<<b.localDepth)-1) == signature(b), where
// signature(b) is any slot's low bits since every slot referencing b
// agrees on them by construction.
func TestDirectoryInvariant(t *testing.T) {
	tbl := New[int, int](1)
	for i := 0; i < 64; i++ {
		tbl.Insert(i, i*i)
	}
	for i, b := range tbl.directory {
		mask := uint64(1)<<uint(b.localDepth) - 1
		sig := uint64(i) & mask
		for j, other := range tbl.directory {
			if other == b {
				if uint64(j)&mask != sig {
					t.Fatalf("slot %d referencing shared bucket disagrees with slot %d on signature", j, i)
				}
			}
		}
	}
	for _, v := range []int{0, 1, 17, 42, 63} {
		got, ok := tbl.Find(v)
		if !ok || got != v*v {
			t.Fatalf("Find(%d) = %v, %v; want %d, true", v, got, ok, v*v)
		}
	}
}

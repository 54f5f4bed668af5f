package benchmark

import (
	"os"
	"testing"

	"pagestore/buffer/pool"
	"pagestore/storage/disk"
	"pagestore/storage/index/bplustree"
	"pagestore/types"
)

func TestRunZipfianWorkload(t *testing.T) {
	f, err := os.CreateTemp("", "pagestore-bench-*.db")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	dm, err := disk.Open(path)
	if err != nil {
		t.Fatalf("disk.Open: %v", err)
	}
	defer dm.Close()

	bpm := pool.NewManager(32, 2, 8, dm, nil)
	tree := bplustree.New[int64, types.RID]("pk", bpm, bplustree.Int64KeyCodec{}, bplustree.RIDValueCodec{}, 8, 8, nil)

	stats := Run(tree, 500, 2000, 0.9, 1, nil)
	if stats.Loaded != 500 {
		t.Fatalf("Loaded = %d, want 500", stats.Loaded)
	}
	if stats.Reads != 2000 {
		t.Fatalf("Reads = %d, want 2000", stats.Reads)
	}
	if stats.Hits != stats.Reads {
		t.Fatalf("Hits = %d, want all %d reads to hit a loaded key", stats.Hits, stats.Reads)
	}
}

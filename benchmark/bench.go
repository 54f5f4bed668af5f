// Package benchmark drives a Zipfian-skewed key workload against a
// BufferPoolManager-backed B+Tree, the same skewed-access shape
// real workloads exhibit, to exercise LRU-K's history→cache promotion
// under realistic access patterns rather than uniform random access.
package benchmark

import (
	"math/rand"
	"time"

	"github.com/pingcap/go-ycsb/pkg/generator"
	"go.uber.org/zap"

	"pagestore/storage/index/bplustree"
	"pagestore/types"
)

// Stats summarizes one workload run.
type Stats struct {
	Loaded   int
	Reads    int
	Hits     int
	Misses   int
	Duration time.Duration
}

// Client replays a Zipfian-skewed read workload, the Go-native
// equivalent of the teacher's YCSBClient: a per-run rand source paired
// with a Zipfian generator over the key range.
type Client struct {
	numRecords int
	rnd        *rand.Rand
	zip        *generator.Zipfian
	log        *zap.Logger
}

// NewClient builds a client that reads keys in [0, numRecords) skewed by
// skew (0 is uniform, closer to 1 is increasingly hot-key-skewed,
// matching generator.NewZipfianWithRange's convention).
func NewClient(numRecords int, skew float64, seed int64, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		numRecords: numRecords,
		rnd:        rand.New(rand.NewSource(seed)),
		zip:        generator.NewZipfianWithRange(0, int64(numRecords-1), skew),
		log:        log,
	}
}

// Load inserts keys [0, numRecords) into tree with value RID{PageID: key}.
func (c *Client) Load(tree *bplustree.BPlusTree[int64, types.RID]) int {
	loaded := 0
	for i := int64(0); i < int64(c.numRecords); i++ {
		if tree.Insert(i, types.RID{PageID: types.PageID(i), Slot: 0}) {
			loaded++
		}
	}
	c.log.Info("workload load complete", zap.Int("loaded", loaded))
	return loaded
}

// RunReads issues numOps point lookups drawn from the Zipfian
// distribution and returns aggregate hit/miss counts and elapsed time.
func (c *Client) RunReads(tree *bplustree.BPlusTree[int64, types.RID], numOps int) Stats {
	stats := Stats{Reads: numOps}
	start := time.Now()
	for i := 0; i < numOps; i++ {
		key := int64(c.zip.Next(c.rnd))
		if _, ok := tree.GetValue(key); ok {
			stats.Hits++
		} else {
			stats.Misses++
		}
	}
	stats.Duration = time.Since(start)
	c.log.Info("workload reads complete",
		zap.Int("reads", stats.Reads),
		zap.Int("hits", stats.Hits),
		zap.Duration("elapsed", stats.Duration))
	return stats
}

// Run loads numRecords keys then issues numOps skewed reads, returning
// the combined stats.
func Run(tree *bplustree.BPlusTree[int64, types.RID], numRecords, numOps int, skew float64, seed int64, log *zap.Logger) Stats {
	c := NewClient(numRecords, skew, seed, log)
	loaded := c.Load(tree)
	stats := c.RunReads(tree, numOps)
	stats.Loaded = loaded
	return stats
}

// Command demo exercises the full storage stack end to end: a
// disk-backed buffer pool and a B+Tree index over it, inserting,
// looking up, and removing a handful of student records.
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"pagestore/buffer/pool"
	"pagestore/storage/disk"
	"pagestore/storage/index/bplustree"
	"pagestore/types"
)

type student struct {
	id   int64
	name string
}

func main() {
	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	path := "demo.db"
	dm, err := disk.Open(path)
	if err != nil {
		log.Fatal("open disk manager", zap.Error(err))
	}
	defer dm.Close()
	defer os.Remove(path)

	bpm := pool.NewManager(16, 2, 4, dm, log)
	tree := bplustree.New[int64, types.RID]("students_pk", bpm, bplustree.Int64KeyCodec{}, bplustree.RIDValueCodec{}, 4, 4, log)

	students := []student{
		{1, "Ada Lovelace"},
		{2, "Alan Turing"},
		{3, "Grace Hopper"},
		{4, "Edsger Dijkstra"},
		{5, "Barbara Liskov"},
	}

	for _, s := range students {
		rid := types.RID{PageID: types.PageID(s.id), Slot: 0}
		if !tree.Insert(s.id, rid) {
			log.Warn("insert refused, duplicate key", zap.Int64("id", s.id))
			continue
		}
		fmt.Printf("inserted student %d (%s) at %v\n", s.id, s.name, rid)
	}

	for _, s := range students {
		if rid, ok := tree.GetValue(s.id); ok {
			fmt.Printf("lookup %d -> %v\n", s.id, rid)
		} else {
			log.Error("lookup missed an inserted key", zap.Int64("id", s.id))
		}
	}

	if !tree.Remove(3) {
		log.Error("remove failed for key 3")
	}
	if _, ok := tree.GetValue(3); ok {
		log.Error("removed key still reachable")
	} else {
		fmt.Println("confirmed key 3 removed")
	}

	fmt.Println("ascending scan:")
	for it := tree.Begin(); !it.Done(); it.Next() {
		fmt.Printf("  %d -> %v\n", it.Key(), it.Value())
	}

	bpm.FlushAllPages()
	log.Info("demo complete")
}

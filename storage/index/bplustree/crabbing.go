package bplustree

import (
	"fmt"

	"pagestore/storage/page"
	"pagestore/txn"
	"pagestore/types"
)

// findLeafShared implements spec §4.4.1 Search: take the root latch
// shared, fetch+read-latch the root, drop the root latch, then descend
// dropping each parent's read latch as soon as the child's is held.
// Returns nil (tree empty) or the read-latched, pinned leaf page.
func (t *BPlusTree[K, V]) findLeafShared(key K) *page.Page {
	t.rootLatch.RLock()
	rootID := t.getRootID()
	if rootID == types.InvalidPageID {
		t.rootLatch.RUnlock()
		return nil
	}

	cur, ok := t.bpm.FetchPage(rootID)
	if !ok {
		t.rootLatch.RUnlock()
		panic("bplustree: buffer pool exhausted fetching root")
	}
	cur.RLock()
	t.rootLatch.RUnlock()

	for pageTypeOf(cur) != page.TypeBPlusLeaf {
		internal := asInternal(cur, t.kc)
		childID := internal.lookupChild(key, false, false)
		child, ok := t.bpm.FetchPage(childID)
		if !ok {
			panic("bplustree: buffer pool exhausted descending to child")
		}
		child.RLock()
		cur.RUnlock()
		t.bpm.UnpinPage(getPageID(cur), false)
		cur = child
	}
	return cur
}

// findLeafForEndpoint descends to the leftmost or rightmost leaf,
// serving the no-arg Begin()/End() iterator forms (spec §9 Supplemented
// Features).
func (t *BPlusTree[K, V]) findLeafForEndpoint(leftmost bool) *page.Page {
	t.rootLatch.RLock()
	rootID := t.getRootID()
	if rootID == types.InvalidPageID {
		t.rootLatch.RUnlock()
		return nil
	}
	cur, ok := t.bpm.FetchPage(rootID)
	if !ok {
		t.rootLatch.RUnlock()
		panic("bplustree: buffer pool exhausted fetching root")
	}
	cur.RLock()
	t.rootLatch.RUnlock()

	for pageTypeOf(cur) != page.TypeBPlusLeaf {
		internal := asInternal(cur, t.kc)
		childID := internal.lookupChild(*new(K), leftmost, !leftmost)
		child, ok := t.bpm.FetchPage(childID)
		if !ok {
			panic("bplustree: buffer pool exhausted descending to child")
		}
		child.RLock()
		cur.RUnlock()
		t.bpm.UnpinPage(getPageID(cur), false)
		cur = child
	}
	return cur
}

// descendForWrite implements spec §4.4.2/§4.4.3's write-latch crabbing:
// acquire the root latch exclusive, enqueue a sentinel for it, then
// descend taking each child's write latch before releasing the parent
// — except once a child is known safe, the whole queue (root latch
// included) collapses down to just that child. Returns the write-
// latched, pinned leaf; tx.Pages() holds that leaf as its last entry,
// preceded by whatever ancestor chain remains unreleased (ancestors
// remain only when the leaf itself is unsafe).
func (t *BPlusTree[K, V]) descendForWrite(key K, op operation, tx *txn.Transaction) *page.Page {
	t.rootLatch.Lock()
	tx.SetRootLatched(true)

	rootID := t.getRootID()
	if rootID == types.InvalidPageID {
		return nil
	}

	cur, ok := t.bpm.FetchPage(rootID)
	if !ok {
		panic("bplustree: buffer pool exhausted fetching root")
	}
	cur.Lock()
	tx.PushPage(cur)
	if t.isSafe(cur, op) {
		t.releaseAncestorsKeepLast(tx)
	}

	for pageTypeOf(cur) != page.TypeBPlusLeaf {
		internal := asInternal(cur, t.kc)
		childID := internal.lookupChild(key, false, false)
		child, ok := t.bpm.FetchPage(childID)
		if !ok {
			panic("bplustree: buffer pool exhausted descending to child")
		}
		child.Lock()
		tx.PushPage(child)
		if t.isSafe(child, op) {
			t.releaseAncestorsKeepLast(tx)
		}
		cur = child
	}
	return cur
}

// releaseAncestorsKeepLast releases the root latch (if held) and every
// queued page except the most recently pushed one.
func (t *BPlusTree[K, V]) releaseAncestorsKeepLast(tx *txn.Transaction) {
	if tx.RootLatched() {
		t.rootLatch.Unlock()
		tx.SetRootLatched(false)
	}
	pages := tx.Pages()
	if len(pages) <= 1 {
		return
	}
	for _, pg := range pages[:len(pages)-1] {
		pg.Unlock()
		t.bpm.UnpinPage(getPageID(pg), false)
	}
	tx.Retain(pages[len(pages)-1])
}

// releaseAll releases the root latch (if held) and every page still
// queued in tx, then sweeps any pages the operation marked deleted.
func (t *BPlusTree[K, V]) releaseAll(tx *txn.Transaction) {
	if tx.RootLatched() {
		t.rootLatch.Unlock()
		tx.SetRootLatched(false)
	}
	for {
		pg := tx.PopPage()
		if pg == nil {
			break
		}
		pg.Unlock()
		t.bpm.UnpinPage(getPageID(pg), true)
	}
	for _, idAny := range tx.DeletedPages().ToSlice() {
		id, ok := idAny.(types.PageID)
		if !ok {
			panic(fmt.Sprintf("bplustree: deleted-page set held non-PageID value %v", idAny))
		}
		if !t.bpm.DeletePage(id) {
			panic(fmt.Sprintf("bplustree: could not delete freed page %d", id))
		}
	}
}

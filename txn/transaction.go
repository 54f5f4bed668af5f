// Package txn implements the opaque transaction-context collaborator
// spec §1 names: per-operation state the B+Tree threads through a write
// to track latched ancestor pages and pages pending deletion.
package txn

import (
	"github.com/deckarep/golang-set"

	"pagestore/storage/page"
	"pagestore/types"
)

// Transaction carries one write operation's latch-crabbing state: the
// ordered list (outermost first, popped innermost first) of ancestor
// pages still write-latched and pinned, whether
// the tree's root latch is held on behalf of this operation, and the
// set of pages freed by a coalesce that must be deleted from the buffer
// pool once all latches are released.
type Transaction struct {
	pages        []*page.Page
	rootLatched  bool
	deletedPages mapset.Set
}

// New returns an empty transaction context for one B+Tree write.
func New() *Transaction {
	return &Transaction{deletedPages: mapset.NewSet()}
}

// PushPage enqueues p as the new innermost retained ancestor.
func (t *Transaction) PushPage(p *page.Page) {
	t.pages = append(t.pages, p)
}

// PopPage removes and returns the innermost retained ancestor, or nil
// if the queue is empty.
func (t *Transaction) PopPage() *page.Page {
	if len(t.pages) == 0 {
		return nil
	}
	p := t.pages[len(t.pages)-1]
	t.pages = t.pages[:len(t.pages)-1]
	return p
}

// Pages returns the currently queued ancestor pages, outermost first.
func (t *Transaction) Pages() []*page.Page {
	return t.pages
}

// Retain replaces the queue with exactly the given pages, used when
// latch crabbing collapses the ancestor chain down to a single retained
// node.
func (t *Transaction) Retain(pages ...*page.Page) {
	t.pages = pages
}

// SetRootLatched records that this transaction currently holds the
// tree's root latch.
func (t *Transaction) SetRootLatched(v bool) {
	t.rootLatched = v
}

// RootLatched reports whether this transaction holds the root latch.
func (t *Transaction) RootLatched() bool {
	return t.rootLatched
}

// AddDeletedPage records id as freed by a coalesce, to be removed from
// the buffer pool once the operation finishes releasing latches.
func (t *Transaction) AddDeletedPage(id types.PageID) {
	t.deletedPages.Add(id)
}

// DeletedPages returns the set of page ids queued for deletion.
func (t *Transaction) DeletedPages() mapset.Set {
	return t.deletedPages
}

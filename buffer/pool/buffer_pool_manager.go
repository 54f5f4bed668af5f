// Package pool implements the buffer pool manager: a fixed array of
// in-memory frames coordinating the extendible hash table (page→frame
// directory), the LRU-K replacer (eviction), and the disk manager (I/O)
// behind a pin/unpin page API (spec §4.3).
package pool

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jinzhu/copier"
	"go.uber.org/zap"

	"pagestore/buffer/replacer"
	"pagestore/container/hash"
	"pagestore/storage/disk"
	"pagestore/storage/page"
	"pagestore/types"
)

// HeaderPageID is the designated page holding the index_name→root_page_id
// record table (spec §6).
const HeaderPageID types.PageID = 0

// Manager owns pool_size frames and serializes frame selection and
// directory mutation behind a single exclusive latch (spec §4.3
// Concurrency). Per-page latches, acquired by callers such as the
// B+Tree, give in-frame concurrency and are never touched here.
type Manager struct {
	mu sync.Mutex

	frames    []*page.Page
	freeList  []types.FrameID
	pageTable *hash.Table[types.PageID, types.FrameID]
	replacer  *replacer.LRUKReplacer
	disk      *disk.Manager
	nextID    atomic.Int64

	log *zap.Logger
}

// NewManager builds a buffer pool of poolSize frames over dm, using k as
// the LRU-K parameter and bucketSize as the page directory's bucket
// capacity. A nil logger falls back to a no-op logger, matching the
// teacher's defensive nil-checks on optional collaborators.
func NewManager(poolSize, k, bucketSize int, dm *disk.Manager, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}

	frames := make([]*page.Page, poolSize)
	freeList := make([]types.FrameID, poolSize)
	for i := 0; i < poolSize; i++ {
		frames[i] = page.New(types.InvalidPageID)
		freeList[i] = types.FrameID(i)
	}

	m := &Manager{
		frames:    frames,
		freeList:  freeList,
		pageTable: hash.New[types.PageID, types.FrameID](bucketSize),
		replacer:  replacer.New(poolSize, k),
		disk:      dm,
		log:       log,
	}
	m.nextID.Store(1) // id 0 is reserved for the header page

	if _, ok := m.FetchPage(HeaderPageID); !ok {
		panic("pool: could not reserve header page 0 at startup")
	}
	m.UnpinPage(HeaderPageID, false)
	return m
}

// NewPage allocates a fresh page id and pins a frame for it, evicting a
// victim if the pool is full. ok is false only when every frame is
// pinned (spec §4.3 failure model — exhaustion).
func (m *Manager) NewPage() (*page.Page, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	frameID, ok := m.pickReplacementFrame()
	if !ok {
		return nil, false
	}

	id := types.PageID(m.nextID.Add(1) - 1)
	pg := m.frames[frameID]
	pg.Reset(id)
	m.pageTable.Insert(id, frameID)
	pg.PinCount = 1
	m.replacer.RecordAccess(frameID)
	m.replacer.SetEvictable(frameID, false)

	m.log.Debug("new page", zap.Int64("page_id", int64(id)), zap.Int32("frame_id", int32(frameID)))
	return pg, true
}

// FetchPage returns the page for id, pinned, loading it from disk on a
// miss. ok is false when id is a miss and every frame is pinned.
func (m *Manager) FetchPage(id types.PageID) (*page.Page, bool) {
	if id == types.InvalidPageID {
		panic("pool: FetchPage called with InvalidPageID")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if frameID, ok := m.pageTable.Find(id); ok {
		pg := m.frames[frameID]
		pg.PinCount++
		m.replacer.RecordAccess(frameID)
		m.replacer.SetEvictable(frameID, false)
		return pg, true
	}

	frameID, ok := m.pickReplacementFrame()
	if !ok {
		return nil, false
	}

	pg := m.frames[frameID]
	pg.Reset(id)
	if err := m.disk.ReadPage(id, pg.Data[:]); err != nil {
		panic(fmt.Errorf("pool: fatal I/O error fetching page %d: %w", id, err))
	}

	m.pageTable.Insert(id, frameID)
	pg.PinCount = 1
	m.replacer.RecordAccess(frameID)
	m.replacer.SetEvictable(frameID, false)

	m.log.Debug("fetch page miss", zap.Int64("page_id", int64(id)), zap.Int32("frame_id", int32(frameID)))
	return pg, true
}

// UnpinPage decrements id's pin count, marking the frame evictable once
// it reaches zero. dirty=true is sticky: it never clears the flag back
// to false (spec §5 monotone-dirty guarantee). Returns false if id is
// not currently in the pool.
func (m *Manager) UnpinPage(id types.PageID, dirty bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	frameID, ok := m.pageTable.Find(id)
	if !ok {
		return false
	}
	pg := m.frames[frameID]
	if pg.PinCount <= 0 {
		return false
	}
	pg.PinCount--
	if dirty {
		pg.MarkDirty()
	}
	if pg.PinCount == 0 {
		m.replacer.SetEvictable(frameID, true)
	}
	return true
}

// FlushPage writes id through to disk unconditionally and clears its
// dirty flag. Returns false if id is not currently in the pool.
func (m *Manager) FlushPage(id types.PageID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushLocked(id)
}

func (m *Manager) flushLocked(id types.PageID) bool {
	frameID, ok := m.pageTable.Find(id)
	if !ok {
		return false
	}
	pg := m.frames[frameID]
	if err := m.disk.WritePage(pg.ID, pg.Data[:]); err != nil {
		panic(fmt.Errorf("pool: fatal I/O error flushing page %d: %w", id, err))
	}
	pg.ClearDirty()
	return true
}

// FlushAllPages writes every dirty resident page through to disk.
func (m *Manager) FlushAllPages() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, pg := range m.frames {
		if pg.ID == types.InvalidPageID || !pg.IsDirty() {
			continue
		}
		if err := m.disk.WritePage(pg.ID, pg.Data[:]); err != nil {
			panic(fmt.Errorf("pool: fatal I/O error in flush-all on page %d: %w", pg.ID, err))
		}
		pg.ClearDirty()
	}
	m.log.Debug("flush all pages complete")
}

// DeletePage removes id from the pool and frees its frame. Succeeds
// (returns true) if id is absent or present with zero pins; returns
// false if id is pinned.
func (m *Manager) DeletePage(id types.PageID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	frameID, ok := m.pageTable.Find(id)
	if !ok {
		return true
	}
	pg := m.frames[frameID]
	if pg.PinCount > 0 {
		return false
	}

	m.pageTable.Remove(id)
	m.replacer.Remove(frameID)
	pg.Reset(types.InvalidPageID)
	m.freeList = append(m.freeList, frameID)
	return true
}

// pickReplacementFrame implements spec §4.3's internal selection: prefer
// the free list; otherwise ask the replacer; if the victim is dirty,
// write it through before reuse; remove its directory entry. Caller
// must hold mu.
func (m *Manager) pickReplacementFrame() (types.FrameID, bool) {
	if n := len(m.freeList); n > 0 {
		frameID := m.freeList[n-1]
		m.freeList = m.freeList[:n-1]
		return frameID, true
	}

	frameID, ok := m.replacer.Evict()
	if !ok {
		return 0, false
	}

	pg := m.frames[frameID]
	if pg.IsDirty() {
		if err := m.disk.WritePage(pg.ID, pg.Data[:]); err != nil {
			panic(fmt.Errorf("pool: fatal I/O error evicting page %d: %w", pg.ID, err))
		}
		pg.ClearDirty()
	}
	m.log.Debug("evict", zap.Int64("page_id", int64(pg.ID)), zap.Int32("frame_id", int32(frameID)))
	if pg.ID != types.InvalidPageID {
		m.pageTable.Remove(pg.ID)
	}
	return frameID, true
}

// GetIndexRoot reads name's root page id from the header page record
// table (spec §6).
func (m *Manager) GetIndexRoot(name string) (types.PageID, bool) {
	hdr, ok := m.FetchPage(HeaderPageID)
	if !ok {
		panic("pool: header page unavailable")
	}
	hdr.RLock()
	records := decodeHeader(hdr.Data[:])
	hdr.RUnlock()
	m.UnpinPage(HeaderPageID, false)

	id, ok := records[name]
	return id, ok
}

// SetIndexRoot records name's root page id in the header page, called
// on every B+Tree structural root change.
func (m *Manager) SetIndexRoot(name string, root types.PageID) {
	hdr, ok := m.FetchPage(HeaderPageID)
	if !ok {
		panic("pool: header page unavailable")
	}
	hdr.Lock()
	records := decodeHeader(hdr.Data[:])
	records[name] = root
	encodeHeader(hdr.Data[:], records)
	hdr.Unlock()
	hdr.MarkDirty()
	m.UnpinPage(HeaderPageID, true)
}

// DumpHeader returns a snapshot of the header record table for
// diagnostics and tests, copied via copier.Copy so callers can't mutate
// the live table through the returned map's backing storage.
func (m *Manager) DumpHeader() map[string]types.PageID {
	hdr, ok := m.FetchPage(HeaderPageID)
	if !ok {
		panic("pool: header page unavailable")
	}
	hdr.RLock()
	records := decodeHeader(hdr.Data[:])
	hdr.RUnlock()
	m.UnpinPage(HeaderPageID, false)

	snapshot := make(map[string]types.PageID, len(records))
	if err := copier.Copy(&snapshot, &records); err != nil {
		panic(fmt.Errorf("pool: snapshotting header page: %w", err))
	}
	return snapshot
}

// decodeHeader/encodeHeader implement the header page's on-disk record
// table layout: a 4-byte count followed by, per record, a 2-byte name
// length, the name bytes, and an 8-byte page id.
func decodeHeader(buf []byte) map[string]types.PageID {
	records := make(map[string]types.PageID)
	if len(buf) < 4 {
		return records
	}
	count := binary.LittleEndian.Uint32(buf[0:4])
	off := 4
	for i := uint32(0); i < count; i++ {
		if off+2 > len(buf) {
			break
		}
		nameLen := int(binary.LittleEndian.Uint16(buf[off : off+2]))
		off += 2
		if off+nameLen+8 > len(buf) {
			break
		}
		name := string(buf[off : off+nameLen])
		off += nameLen
		root := types.PageID(binary.LittleEndian.Uint64(buf[off : off+8]))
		off += 8
		records[name] = root
	}
	return records
}

func encodeHeader(buf []byte, records map[string]types.PageID) {
	for i := range buf {
		buf[i] = 0
	}
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(records)))
	off := 4
	for name, root := range records {
		if off+2+len(name)+8 > len(buf) {
			panic("pool: header page record table overflowed page size")
		}
		binary.LittleEndian.PutUint16(buf[off:off+2], uint16(len(name)))
		off += 2
		copy(buf[off:off+len(name)], name)
		off += len(name)
		binary.LittleEndian.PutUint64(buf[off:off+8], uint64(root))
		off += 8
	}
}

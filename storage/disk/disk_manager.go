// Package disk implements the opaque disk-manager collaborator the
// buffer pool depends on: page-granular read/write of fixed-size blocks
// keyed by an externally assigned page identifier.
package disk

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"pagestore/types"
)

// Manager reads and writes fixed-size pages to a single backing file.
// It does not allocate page identifiers itself — the buffer pool manager
// owns the monotonically increasing counter (spec §6) and simply tells
// the disk manager which id to read or write.
type Manager struct {
	mu   sync.Mutex
	file *os.File
}

// Open opens (creating if necessary) the backing file at path.
func Open(path string) (*Manager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("disk: open %s: %w", path, err)
	}
	return &Manager{file: f}, nil
}

// ReadPage reads the fixed-size block for id into buf, which must be at
// least types.PageSize bytes. A page past the current end of file reads
// as zero bytes — matching a page that was allocated but never flushed.
func (m *Manager) ReadPage(id types.PageID, buf []byte) error {
	if id == types.InvalidPageID {
		panic("disk: ReadPage called with InvalidPageID")
	}
	if len(buf) < types.PageSize {
		panic("disk: ReadPage buffer smaller than page size")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	n, err := m.file.ReadAt(buf[:types.PageSize], int64(id)*types.PageSize)
	if err != nil && n == 0 {
		if errors.Is(err, io.EOF) {
			for i := range buf[:types.PageSize] {
				buf[i] = 0
			}
			return nil
		}
		return fmt.Errorf("disk: read page %d: %w", id, err)
	}
	for i := n; i < types.PageSize; i++ {
		buf[i] = 0
	}
	return nil
}

// WritePage writes buf (at least types.PageSize bytes) to id's block and
// fsyncs before returning, matching the "durable on return" contract of
// spec §6.
func (m *Manager) WritePage(id types.PageID, buf []byte) error {
	if id == types.InvalidPageID {
		panic("disk: WritePage called with InvalidPageID")
	}
	if len(buf) < types.PageSize {
		panic("disk: WritePage buffer smaller than page size")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.file.WriteAt(buf[:types.PageSize], int64(id)*types.PageSize); err != nil {
		return fmt.Errorf("disk: write page %d: %w", id, err)
	}
	if err := m.file.Sync(); err != nil {
		return fmt.Errorf("disk: sync after writing page %d: %w", id, err)
	}
	return nil
}

// Close closes the backing file. It does not sync; every WritePage has
// already synced its own write.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.file.Close()
}

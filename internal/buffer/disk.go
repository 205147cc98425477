package buffer

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/relstore/relstore/internal/page"
)

// DiskManager is the narrow interface the buffer pool needs from the block
// device. Its implementation (file layout, free-space tracking, write
// ordering under a WAL) is an external collaborator per spec §1; the core
// only depends on this interface.
type DiskManager interface {
	ReadPage(id page.ID, dst *[page.Size]byte) error
	WritePage(id page.ID, src *[page.Size]byte) error
}

// FileDiskManager is a minimal file-backed DiskManager good enough to back
// the teaching buffer pool: fixed-size pages, read/written at id*Size byte
// offsets, grown lazily on write. It carries none of the free-space or
// segment-directory machinery a production engine would have — that is
// explicitly out of scope (spec §1, "raw block-device interface").
type FileDiskManager struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileDiskManager opens (creating if necessary) the backing file at path.
func NewFileDiskManager(path string) (*FileDiskManager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("buffer: open disk file: %w", err)
	}
	return &FileDiskManager{file: f}, nil
}

func (d *FileDiskManager) ReadPage(id page.ID, dst *[page.Size]byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	off := int64(id) * page.Size
	n, err := d.file.ReadAt(dst[:], off)
	if err != nil && err != io.EOF {
		return fmt.Errorf("buffer: read page %d: %w", id, err)
	}
	for i := n; i < page.Size; i++ {
		dst[i] = 0
	}
	return nil
}

func (d *FileDiskManager) WritePage(id page.ID, src *[page.Size]byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	off := int64(id) * page.Size
	if _, err := d.file.WriteAt(src[:], off); err != nil {
		return fmt.Errorf("buffer: write page %d: %w", id, err)
	}
	return nil
}

// Close releases the underlying file handle.
func (d *FileDiskManager) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.file.Close()
}

// InMemoryDiskManager is a DiskManager backed by a map, used by tests where a
// real file is unnecessary.
type InMemoryDiskManager struct {
	mu    sync.Mutex
	pages map[page.ID]*[page.Size]byte
}

// NewInMemoryDiskManager returns an empty in-memory disk.
func NewInMemoryDiskManager() *InMemoryDiskManager {
	return &InMemoryDiskManager{pages: make(map[page.ID]*[page.Size]byte)}
}

func (d *InMemoryDiskManager) ReadPage(id page.ID, dst *[page.Size]byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if buf, ok := d.pages[id]; ok {
		*dst = *buf
		return nil
	}
	for i := range dst {
		dst[i] = 0
	}
	return nil
}

func (d *InMemoryDiskManager) WritePage(id page.ID, src *[page.Size]byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	buf := new([page.Size]byte)
	*buf = *src
	d.pages[id] = buf
	return nil
}

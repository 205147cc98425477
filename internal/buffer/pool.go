// Package buffer implements the fixed-size, page-addressable buffer pool
// described in spec §4.1: LRU-K eviction, monotonic page-id allocation,
// sticky dirty bits, and scoped page guards. It is the lowest layer the B+
// tree and heap table are built on.
package buffer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/relstore/relstore/internal/page"
)

const logPrefix = "buffer: "

var (
	// ErrPoolExhausted is returned (as a nil page) when every resident frame
	// is pinned and no free frame exists, per spec §4.1.
	ErrPoolExhausted = errors.New("buffer: pool exhausted: all frames pinned")
	// ErrPageNotFound is returned by operations that require page residency
	// (e.g. FlushPage) when the page id is not currently in the pool.
	ErrPageNotFound = errors.New("buffer: page not resident")
	// ErrPageStillPinned is returned by DeletePage when the page has live
	// guards on it.
	ErrPageStillPinned = errors.New("buffer: page is pinned")
)

type frame struct {
	pg *page.Page
}

// Pool is a fixed-size buffer pool over one DiskManager. All operations are
// serialized by mu, matching spec §4.1's "single pool latch" design: holding
// it across disk I/O is acceptable for this teaching design.
type Pool struct {
	mu sync.Mutex

	disk     DiskManager
	replacer *lruKReplacer

	frames    []frame
	freeList  []int // frame indices not currently holding any page
	pageTable map[page.ID]int

	nextPageID atomic.Int64
}

// NewPool creates a pool of the given size (frame count) and LRU-K constant.
func NewPool(size int, k int, disk DiskManager) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{
		disk:      disk,
		replacer:  newLRUKReplacer(k),
		frames:    make([]frame, size),
		pageTable: make(map[page.ID]int, size),
	}
	p.freeList = make([]int, size)
	for i := range p.freeList {
		p.freeList[i] = i
	}
	return p
}

// victim picks a frame index to reuse: prefer the free list, else evict via
// LRU-K. Caller must hold mu. Returns ok=false when the pool is exhausted.
func (p *Pool) victim() (int, bool) {
	if n := len(p.freeList); n > 0 {
		idx := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		return idx, true
	}
	fidx, ok := p.replacer.Evict()
	if !ok {
		return 0, false
	}
	victimPage := p.frames[fidx].pg
	if victimPage.IsDirty() {
		if err := p.writeBack(victimPage); err != nil {
			slog.Error(logPrefix+"failed to write back victim page", "pageID", victimPage.ID(), "err", err)
		}
	}
	delete(p.pageTable, victimPage.ID())
	return fidx, true
}

func (p *Pool) writeBack(pg *page.Page) error {
	data := pg.Data
	if err := p.disk.WritePage(pg.ID(), &data); err != nil {
		return fmt.Errorf("buffer: write back page %d: %w", pg.ID(), err)
	}
	return nil
}

// NewPage allocates a fresh page, installs it in a frame, pins it, and
// returns the raw *page.Page and its id. Returns nil, page.Invalid, err when
// the pool is exhausted.
func (p *Pool) NewPage() (*page.Page, page.ID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fidx, ok := p.victim()
	if !ok {
		return nil, page.Invalid, ErrPoolExhausted
	}

	id := page.ID(p.nextPageID.Add(1) - 1)
	pg := page.NewPage(id)
	p.frames[fidx] = frame{pg: pg}
	p.pageTable[id] = fidx

	p.replacer.RecordAccess(fidx)
	p.replacer.SetEvictable(fidx, false)

	slog.Debug(logPrefix+"NewPage", "pageID", id, "frame", fidx)
	return pg, id, nil
}

// FetchPage returns a pinned reference to id, loading it from disk if it is
// not already resident. Returns nil, err on pool exhaustion.
func (p *Pool) FetchPage(id page.ID) (*page.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if fidx, ok := p.pageTable[id]; ok {
		pg := p.frames[fidx].pg
		pg.IncPinExported()
		p.replacer.RecordAccess(fidx)
		p.replacer.SetEvictable(fidx, false)
		return pg, nil
	}

	fidx, ok := p.victim()
	if !ok {
		return nil, ErrPoolExhausted
	}

	pg := page.NewPage(id)
	var buf [page.Size]byte
	if err := p.disk.ReadPage(id, &buf); err != nil {
		// frame index goes back to the free list; nothing else referenced it.
		p.freeList = append(p.freeList, fidx)
		return nil, fmt.Errorf("buffer: fetch page %d: %w", id, err)
	}
	pg.Data = buf
	pg.CopyMeta(id, 1, false)

	p.frames[fidx] = frame{pg: pg}
	p.pageTable[id] = fidx
	p.replacer.RecordAccess(fidx)
	p.replacer.SetEvictable(fidx, false)

	slog.Debug(logPrefix+"FetchPage loaded from disk", "pageID", id, "frame", fidx)
	return pg, nil
}

// UnpinPage decrements id's pin count, sticking the dirty bit if isDirty is
// true. No-op (returns false) if the page is unknown or already unpinned.
func (p *Pool) UnpinPage(id page.ID, isDirty bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	fidx, ok := p.pageTable[id]
	if !ok {
		return false
	}
	pg := p.frames[fidx].pg
	if pg.PinCount() <= 0 {
		return false
	}
	if isDirty {
		pg.MarkDirtyExported()
	}
	if pg.DecPinExported() == 0 {
		p.replacer.SetEvictable(fidx, true)
	}
	return true
}

// FlushPage writes id's bytes to disk unconditionally and clears its dirty
// bit, regardless of whether it was actually dirty.
func (p *Pool) FlushPage(id page.ID) error {
	if id == page.Invalid {
		return fmt.Errorf("buffer: flush: %w", ErrPageNotFound)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	fidx, ok := p.pageTable[id]
	if !ok {
		return ErrPageNotFound
	}
	pg := p.frames[fidx].pg
	if err := p.writeBack(pg); err != nil {
		return err
	}
	pg.ClearDirtyExported()
	return nil
}

// FlushAllPages flushes every resident page, aggregating any per-page errors
// with multierr rather than bailing out on the first failure.
func (p *Pool) FlushAllPages() error {
	p.mu.Lock()
	ids := make([]page.ID, 0, len(p.pageTable))
	for id := range p.pageTable {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	var errs error
	for _, id := range ids {
		if err := p.FlushPage(id); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// DeletePage removes id from the pool. Per spec §9 (preserving the source's
// contract), a non-resident page id is treated as a successful delete.
func (p *Pool) DeletePage(id page.ID) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fidx, ok := p.pageTable[id]
	if !ok {
		return true, nil
	}
	pg := p.frames[fidx].pg
	if pg.PinCount() > 0 {
		return false, ErrPageStillPinned
	}

	delete(p.pageTable, id)
	if err := p.replacer.Remove(fidx); err != nil {
		// The frame was never marked evictable (pin==0 with no history is
		// impossible given the check above, but be defensive): force it
		// evictable then remove.
		p.replacer.SetEvictable(fidx, true)
		_ = p.replacer.Remove(fidx)
	}
	p.frames[fidx] = frame{}
	p.freeList = append(p.freeList, fidx)
	return true, nil
}

// --- guard constructors ---

// NewPageGuarded allocates a page and returns a BasicPageGuard over it.
func (p *Pool) NewPageGuarded() (BasicPageGuard, error) {
	pg, _, err := p.NewPage()
	if err != nil {
		return BasicPageGuard{}, err
	}
	return newBasicGuard(p, pg), nil
}

// FetchPageBasic returns a BasicPageGuard (pin only, no content latch).
func (p *Pool) FetchPageBasic(id page.ID) (BasicPageGuard, error) {
	pg, err := p.FetchPage(id)
	if err != nil {
		return BasicPageGuard{}, err
	}
	return newBasicGuard(p, pg), nil
}

// FetchPageRead returns a ReadPageGuard: pinned and reader-latched.
func (p *Pool) FetchPageRead(id page.ID) (ReadPageGuard, error) {
	pg, err := p.FetchPage(id)
	if err != nil {
		return ReadPageGuard{}, err
	}
	pg.RLatch()
	return ReadPageGuard{newBasicGuard(p, pg)}, nil
}

// FetchPageWrite returns a WritePageGuard: pinned and writer-latched.
func (p *Pool) FetchPageWrite(id page.ID) (WritePageGuard, error) {
	pg, err := p.FetchPage(id)
	if err != nil {
		return WritePageGuard{}, err
	}
	pg.WLatch()
	return WritePageGuard{newBasicGuard(p, pg)}, nil
}

// NewPageWrite allocates a page and returns it write-latched and pinned.
func (p *Pool) NewPageWrite() (WritePageGuard, page.ID, error) {
	pg, id, err := p.NewPage()
	if err != nil {
		return WritePageGuard{}, page.Invalid, err
	}
	pg.WLatch()
	return WritePageGuard{newBasicGuard(p, pg)}, id, nil
}

// Stats is a point-in-time snapshot of the pool's frame occupancy, for
// cmd/reladmin's diagnostics surface.
type Stats struct {
	Capacity int
	Resident int
	Free     int
	Pinned   int
	Dirty    int
}

// Stats reports the pool's current frame occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Stats{Capacity: len(p.frames), Free: len(p.freeList)}
	for id := range p.pageTable {
		st.Resident++
		fidx := p.pageTable[id]
		pg := p.frames[fidx].pg
		if pg.PinCount() > 0 {
			st.Pinned++
		}
		if pg.IsDirty() {
			st.Dirty++
		}
	}
	return st
}

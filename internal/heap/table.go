package heap

import (
	"errors"
	"fmt"
	"sync"

	"github.com/relstore/relstore/internal/buffer"
	"github.com/relstore/relstore/internal/page"
	"github.com/relstore/relstore/internal/record"
)

var (
	// ErrTupleTooLarge is returned when even an empty page cannot hold the
	// encoded row.
	ErrTupleTooLarge = errors.New("heap: tuple larger than a page")
	// ErrRIDNotFound is returned by Get/Update/Delete when the RID's slot is
	// out of range or already deleted.
	ErrRIDNotFound = errors.New("heap: rid not found")
)

// Table is a heap table: an append-mostly chain of slotted pages over a
// buffer pool, addressed by RID (spec's external SeqScan/Insert/Update/
// Delete operator primitives). It keeps no secondary structure of its own —
// finding a table's first page is the catalog's job (spec's external
// collaborator); Table only needs that one page id to re-open.
type Table struct {
	bp     *buffer.Pool
	schema record.Schema

	mu          sync.Mutex
	firstPageID page.ID
	lastPageID  page.ID
}

// NewTable allocates the first (empty) page of a brand-new heap table.
func NewTable(bp *buffer.Pool, schema record.Schema) (*Table, error) {
	g, id, err := bp.NewPageWrite()
	if err != nil {
		return nil, fmt.Errorf("heap: allocate first page: %w", err)
	}
	initPage(g.Page())
	g.MarkDirty()
	g.Drop()

	return &Table{bp: bp, schema: schema, firstPageID: id, lastPageID: id}, nil
}

// OpenTable reopens a heap table given its first page id (as recorded by the
// catalog) and the last page id it was left at. Passing the same id for
// both is fine; Insert will walk forward from there if it's full.
func OpenTable(bp *buffer.Pool, schema record.Schema, firstPageID, lastPageID page.ID) *Table {
	return &Table{bp: bp, schema: schema, firstPageID: firstPageID, lastPageID: lastPageID}
}

// FirstPageID exposes the head of the page chain for catalog persistence.
func (t *Table) FirstPageID() page.ID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.firstPageID
}

// LastPageID exposes the current tail of the page chain, so a caller can
// persist it to the catalog after a batch of inserts and reopen at the right
// spot next time instead of walking the whole chain.
func (t *Table) LastPageID() page.ID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastPageID
}

// Insert encodes values and appends them to the table, allocating a new page
// if the current last page is full. Returns the new row's RID.
func (t *Table) Insert(values []record.Value) (page.RID, error) {
	data, err := record.EncodeRow(t.schema, values)
	if err != nil {
		return page.RID{}, fmt.Errorf("heap: encode row: %w", err)
	}
	if len(data)+slotSize > page.Size-headerSize {
		return page.RID{}, ErrTupleTooLarge
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	g, err := t.bp.FetchPageWrite(t.lastPageID)
	if err != nil {
		return page.RID{}, fmt.Errorf("heap: fetch last page: %w", err)
	}
	// lastPageID may lag behind the chain (e.g. reopened with firstPageID for
	// both ids): follow next pointers to the real tail before appending.
	for next := view(g.Page()).nextPage(); next != page.Invalid; next = view(g.Page()).nextPage() {
		g.Drop()
		t.lastPageID = next
		if g, err = t.bp.FetchPageWrite(next); err != nil {
			return page.RID{}, fmt.Errorf("heap: fetch last page: %w", err)
		}
	}
	sp := view(g.Page())
	if slot, ok := sp.insertTuple(data); ok {
		g.MarkDirty()
		rid := page.RID{PageID: t.lastPageID, Slot: uint32(slot)}
		g.Drop()
		return rid, nil
	}

	// Current page is full: allocate a new one, link it, and retry there.
	newGuard, newID, err := t.bp.NewPageWrite()
	if err != nil {
		g.Drop()
		return page.RID{}, fmt.Errorf("heap: allocate next page: %w", err)
	}
	initPage(newGuard.Page())
	sp.setNextPage(newID)
	g.MarkDirty()
	g.Drop()

	newSP := view(newGuard.Page())
	slot, ok := newSP.insertTuple(data)
	if !ok {
		newGuard.Drop()
		return page.RID{}, ErrTupleTooLarge
	}
	newGuard.MarkDirty()
	newGuard.Drop()

	t.lastPageID = newID
	return page.RID{PageID: newID, Slot: uint32(slot)}, nil
}

// Get fetches and decodes the tuple at rid.
func (t *Table) Get(rid page.RID) (record.Tuple, error) {
	g, err := t.bp.FetchPageRead(rid.PageID)
	if err != nil {
		return record.Tuple{}, fmt.Errorf("heap: fetch page %d: %w", rid.PageID, err)
	}
	defer g.Drop()

	sp := view(g.Page())
	raw, ok := sp.readTuple(int(rid.Slot))
	if !ok {
		return record.Tuple{}, ErrRIDNotFound
	}
	values, err := record.DecodeRow(t.schema, raw)
	if err != nil {
		return record.Tuple{}, fmt.Errorf("heap: decode row at %+v: %w", rid, err)
	}
	return record.Tuple{Values: values, RID: rid}, nil
}

// Update re-encodes values and writes them back at rid. If the new encoding
// no longer fits in the slot's reserved space, the old slot is deleted and
// the row is reinserted at a new RID (returned); callers that maintain
// secondary indexes must detect this and update them — the heap table has
// no index awareness of its own (spec's layering).
func (t *Table) Update(rid page.RID, values []record.Value) (page.RID, error) {
	data, err := record.EncodeRow(t.schema, values)
	if err != nil {
		return page.RID{}, fmt.Errorf("heap: encode row: %w", err)
	}

	g, err := t.bp.FetchPageWrite(rid.PageID)
	if err != nil {
		return page.RID{}, fmt.Errorf("heap: fetch page %d: %w", rid.PageID, err)
	}
	sp := view(g.Page())
	if sp.updateTupleInPlace(int(rid.Slot), data) {
		g.MarkDirty()
		g.Drop()
		return rid, nil
	}
	sp.deleteTuple(int(rid.Slot))
	g.MarkDirty()
	g.Drop()

	return t.Insert(values)
}

// Delete marks rid's slot as deleted.
func (t *Table) Delete(rid page.RID) error {
	g, err := t.bp.FetchPageWrite(rid.PageID)
	if err != nil {
		return fmt.Errorf("heap: fetch page %d: %w", rid.PageID, err)
	}
	defer g.Drop()

	sp := view(g.Page())
	if _, ok := sp.readTuple(int(rid.Slot)); !ok {
		return ErrRIDNotFound
	}
	sp.deleteTuple(int(rid.Slot))
	g.MarkDirty()
	return nil
}

// Scanner walks every live tuple in the table, page by page, in RID order.
type Scanner struct {
	t       *Table
	curID   page.ID
	slot    int
	numSlot int
	done    bool
}

// NewScanner returns a scanner positioned before the first tuple.
func (t *Table) NewScanner() *Scanner {
	t.mu.Lock()
	first := t.firstPageID
	t.mu.Unlock()
	return &Scanner{t: t, curID: first, slot: -1}
}

// Next advances to the next live tuple and reports whether one was found.
func (s *Scanner) Next() (record.Tuple, bool, error) {
	for {
		if s.done {
			return record.Tuple{}, false, nil
		}
		g, err := s.t.bp.FetchPageRead(s.curID)
		if err != nil {
			return record.Tuple{}, false, fmt.Errorf("heap: scan fetch page %d: %w", s.curID, err)
		}
		sp := view(g.Page())
		s.numSlot = sp.numSlots()
		s.slot++

		if s.slot >= s.numSlot {
			next := sp.nextPage()
			g.Drop()
			if next == page.Invalid {
				s.done = true
				continue
			}
			s.curID = next
			s.slot = -1
			continue
		}

		raw, ok := sp.readTuple(s.slot)
		pageID := s.curID
		slot := s.slot
		if !ok {
			g.Drop()
			continue // deleted slot, keep scanning
		}
		values, err := record.DecodeRow(s.t.schema, raw)
		g.Drop()
		if err != nil {
			return record.Tuple{}, false, fmt.Errorf("heap: decode row at page %d slot %d: %w", pageID, slot, err)
		}
		return record.Tuple{Values: values, RID: page.RID{PageID: pageID, Slot: uint32(slot)}}, true, nil
	}
}

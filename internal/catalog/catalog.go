// Package catalog is a minimal stand-in for the external table/index
// catalog the executor kernel depends on (spec's Non-goals: "the catalog of
// tables and indexes" is an external collaborator). It exists only so
// internal/engine (which cmd/relshell and cmd/reladmin open) has somewhere to
// register a table's schema and page chain head; internal/plan's nodes carry
// its TableInfo/IndexInfo types. Grounded on the teacher's
// internal/catalog/model.go and database_index.go's IndexMeta.
package catalog

import (
	"fmt"
	"sync"

	"github.com/relstore/relstore/internal/page"
	"github.com/relstore/relstore/internal/record"
)

// IndexKind identifies which index structure backs an IndexInfo. Only btree
// is implemented; the field exists so the catalog's shape matches what a
// real multi-index-type system would need.
type IndexKind string

const IndexKindBTree IndexKind = "btree"

// TableInfo is everything the executor needs to open a table: its schema
// and the heap's first page id.
type TableInfo struct {
	Name        string
	Schema      record.Schema
	FirstPageID page.ID
	LastPageID  page.ID
}

// IndexInfo is everything the executor needs to open an index: which table
// and column it covers, and the B+ tree's header page id.
type IndexInfo struct {
	Name         string
	Table        string
	KeyColumn    string
	Kind         IndexKind
	HeaderPageID page.ID
}

var (
	ErrTableNotFound = fmt.Errorf("catalog: table not found")
	ErrIndexNotFound = fmt.Errorf("catalog: index not found")
	ErrTableExists   = fmt.Errorf("catalog: table already exists")
	ErrIndexExists   = fmt.Errorf("catalog: index already exists")
)

// Catalog is a process-local registry of tables and indexes, guarded by a
// single mutex (it is not itself performance-sensitive — the operators that
// use it hold the results, not the catalog, across a scan).
type Catalog struct {
	mu      sync.Mutex
	tables  map[string]*TableInfo
	indexes map[string]*IndexInfo // keyed by index name
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{
		tables:  make(map[string]*TableInfo),
		indexes: make(map[string]*IndexInfo),
	}
}

func (c *Catalog) CreateTable(info TableInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.tables[info.Name]; exists {
		return ErrTableExists
	}
	cp := info
	c.tables[info.Name] = &cp
	return nil
}

func (c *Catalog) Table(name string) (TableInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tables[name]
	if !ok {
		return TableInfo{}, ErrTableNotFound
	}
	return *t, nil
}

// UpdateTableLastPage records a heap table's new tail page after it grows.
func (c *Catalog) UpdateTableLastPage(name string, lastPageID page.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tables[name]
	if !ok {
		return ErrTableNotFound
	}
	t.LastPageID = lastPageID
	return nil
}

func (c *Catalog) CreateIndex(info IndexInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.indexes[info.Name]; exists {
		return ErrIndexExists
	}
	if _, ok := c.tables[info.Table]; !ok {
		return ErrTableNotFound
	}
	cp := info
	c.indexes[info.Name] = &cp
	return nil
}

func (c *Catalog) Index(name string) (IndexInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx, ok := c.indexes[name]
	if !ok {
		return IndexInfo{}, ErrIndexNotFound
	}
	return *idx, nil
}

// IndexesForTable returns every index registered on table, in no particular
// order.
func (c *Catalog) IndexesForTable(table string) []IndexInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []IndexInfo
	for _, idx := range c.indexes {
		if idx.Table == table {
			out = append(out, *idx)
		}
	}
	return out
}

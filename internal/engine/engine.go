// Package engine wires the storage core's pieces together into one
// process-local database: a buffer pool over a single data file, a catalog
// of open tables and indexes, and the lock manager guarding them. It is the
// thing cmd/relshell and cmd/reladmin both hold onto, grounded on the
// teacher's novasql.Database / internal/catalog pairing but generalized to
// this kernel's heap/btree/execution stack.
package engine

import (
	"fmt"
	"sync"

	"github.com/relstore/relstore/internal/buffer"
	"github.com/relstore/relstore/internal/catalog"
	"github.com/relstore/relstore/internal/config"
	"github.com/relstore/relstore/internal/execution"
	"github.com/relstore/relstore/internal/heap"
	"github.com/relstore/relstore/internal/index/btree"
	"github.com/relstore/relstore/internal/lock"
	"github.com/relstore/relstore/internal/record"

	"go.uber.org/multierr"
)

// DB is one open database: a buffer pool backed by a single on-disk file,
// the tables and indexes registered against it, and the lock manager
// coordinating access to both.
type DB struct {
	cfg  *config.Config
	disk *buffer.FileDiskManager
	bp   *buffer.Pool
	cat  *catalog.Catalog
	lm   *lock.Manager

	mu      sync.Mutex
	tables  map[string]*heap.Table
	indexes map[string]*btree.Tree
}

// Open creates (or reopens) a database file at path using cfg's buffer pool
// and index tuning.
func Open(path string, cfg *config.Config) (*DB, error) {
	disk, err := buffer.NewFileDiskManager(path)
	if err != nil {
		return nil, fmt.Errorf("engine: open data file %s: %w", path, err)
	}
	bp := buffer.NewPool(cfg.Buffer.PoolSize, cfg.Buffer.ReplacerK, disk)
	return &DB{
		cfg:     cfg,
		disk:    disk,
		bp:      bp,
		cat:     catalog.New(),
		lm:      lock.NewManager(),
		tables:  make(map[string]*heap.Table),
		indexes: make(map[string]*btree.Tree),
	}, nil
}

// Close flushes every dirty page and closes the backing file, aggregating
// any errors from either step with multierr the way the teacher's
// Database.Close does.
func (db *DB) Close() error {
	var err error
	err = multierr.Append(err, db.bp.FlushAllPages())
	err = multierr.Append(err, db.disk.Close())
	return err
}

// Pool exposes the buffer pool for diagnostics (cmd/reladmin).
func (db *DB) Pool() *buffer.Pool { return db.bp }

// LockManager exposes the lock manager for diagnostics (cmd/reladmin).
func (db *DB) LockManager() *lock.Manager { return db.lm }

// Catalog exposes the catalog for listing tables/indexes.
func (db *DB) Catalog() *catalog.Catalog { return db.cat }

// CreateTable allocates a brand-new heap table with schema and registers it.
func (db *DB) CreateTable(name string, schema record.Schema) error {
	tbl, err := heap.NewTable(db.bp, schema)
	if err != nil {
		return err
	}
	if err := db.cat.CreateTable(catalog.TableInfo{
		Name:        name,
		Schema:      schema,
		FirstPageID: tbl.FirstPageID(),
		LastPageID:  tbl.FirstPageID(),
	}); err != nil {
		return err
	}

	db.mu.Lock()
	db.tables[name] = tbl
	db.mu.Unlock()
	return nil
}

// CreateIndex allocates a brand-new (empty) B+ tree index over table's
// keyColumn and registers it.
func (db *DB) CreateIndex(name, table, keyColumn string) error {
	info, err := db.cat.Table(table)
	if err != nil {
		return err
	}
	if info.Schema.IndexOf(keyColumn) < 0 {
		return fmt.Errorf("engine: table %q has no column %q", table, keyColumn)
	}

	tree, err := btree.NewTree(db.bp, db.cfg.Index.LeafMaxSize, db.cfg.Index.InternalMaxSize)
	if err != nil {
		return err
	}
	if err := db.cat.CreateIndex(catalog.IndexInfo{
		Name:         name,
		Table:        table,
		KeyColumn:    keyColumn,
		Kind:         catalog.IndexKindBTree,
		HeaderPageID: tree.HeaderPageID(),
	}); err != nil {
		return err
	}

	db.mu.Lock()
	db.indexes[name] = tree
	db.mu.Unlock()
	return nil
}

// OpenTable implements plan.Resolver: it returns the live *heap.Table for
// name, opening it from the catalog on first use.
func (db *DB) OpenTable(name string) (*heap.Table, error) {
	db.mu.Lock()
	if tbl, ok := db.tables[name]; ok {
		db.mu.Unlock()
		return tbl, nil
	}
	db.mu.Unlock()

	info, err := db.cat.Table(name)
	if err != nil {
		return nil, err
	}
	tbl := heap.OpenTable(db.bp, info.Schema, info.FirstPageID, info.LastPageID)

	db.mu.Lock()
	db.tables[name] = tbl
	db.mu.Unlock()
	return tbl, nil
}

// OpenIndex implements plan.Resolver: it returns the live btree.Index for
// name, opening it from the catalog on first use.
func (db *DB) OpenIndex(name string) (btree.Index, error) {
	db.mu.Lock()
	if tree, ok := db.indexes[name]; ok {
		db.mu.Unlock()
		return tree, nil
	}
	db.mu.Unlock()

	info, err := db.cat.Index(name)
	if err != nil {
		return nil, err
	}
	tree := btree.OpenTree(db.bp, info.HeaderPageID, db.cfg.Index.LeafMaxSize, db.cfg.Index.InternalMaxSize)

	db.mu.Lock()
	db.indexes[name] = tree
	db.mu.Unlock()
	return tree, nil
}

// SyncTableTail persists a table's current tail page to the catalog, so the
// next process to open it resumes appending from the right place instead of
// walking the whole chain. Callers invoke this after a batch of inserts.
func (db *DB) SyncTableTail(name string) error {
	tbl, err := db.OpenTable(name)
	if err != nil {
		return err
	}
	return db.cat.UpdateTableLastPage(name, tbl.LastPageID())
}

// IndexesFor returns every index registered on table as an
// execution.IndexTarget, ready to hand to NewInsert/NewUpdate/NewDelete.
func (db *DB) IndexesFor(table string, schema record.Schema) ([]execution.IndexTarget, error) {
	var out []execution.IndexTarget
	for _, info := range db.cat.IndexesForTable(table) {
		tree, err := db.OpenIndex(info.Name)
		if err != nil {
			return nil, err
		}
		colIdx := schema.IndexOf(info.KeyColumn)
		if colIdx < 0 {
			return nil, fmt.Errorf("engine: index %q key column %q missing from schema", info.Name, info.KeyColumn)
		}
		btreeTree, ok := tree.(*btree.Tree)
		if !ok {
			return nil, fmt.Errorf("engine: index %q is not a btree index", info.Name)
		}
		out = append(out, execution.IndexTarget{KeyColIdx: colIdx, Tree: btreeTree})
	}
	return out, nil
}

package execution

import (
	"fmt"

	"github.com/relstore/relstore/internal/index/btree"
	"github.com/relstore/relstore/internal/record"
)

// IndexTarget is one secondary index Insert/Update/Delete must keep in sync
// with the heap table, identified by the position of its key column in the
// table's schema (the B+ tree's fixed int64 key, per internal/index/btree).
type IndexTarget struct {
	KeyColIdx int
	Tree      *btree.Tree
}

// keyOf extracts values[KeyColIdx] as the tree's KeyType.
func (it IndexTarget) keyOf(values []record.Value) (btree.KeyType, error) {
	v := values[it.KeyColIdx]
	switch x := v.(type) {
	case int64:
		return x, nil
	case int32:
		return int64(x), nil
	default:
		return 0, fmt.Errorf("execution: index key column %d is not an integer type (%T)", it.KeyColIdx, v)
	}
}

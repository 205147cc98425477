package execution_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relstore/relstore/internal/buffer"
	"github.com/relstore/relstore/internal/execution"
	"github.com/relstore/relstore/internal/heap"
	"github.com/relstore/relstore/internal/index/btree"
	"github.com/relstore/relstore/internal/record"
)

func dmlTestPool() *buffer.Pool {
	return buffer.NewPool(32, 2, buffer.NewInMemoryDiskManager())
}

func dmlSchema() record.Schema {
	return record.Schema{Cols: []record.Column{col("id", record.ColInt64), col("name", record.ColText)}}
}

func TestSeqScan_YieldsEveryLiveRow(t *testing.T) {
	pool := dmlTestPool()
	schema := dmlSchema()
	tbl, err := heap.NewTable(pool, schema)
	require.NoError(t, err)

	for i := int64(0); i < 3; i++ {
		_, err := tbl.Insert([]record.Value{i, "row"})
		require.NoError(t, err)
	}

	scan := execution.NewSeqScan(tbl, schema)
	out := drain(t, scan)
	require.Len(t, out, 3)
}

func TestIndexScan_YieldsRowsInKeyOrderAndSkipsTombstones(t *testing.T) {
	pool := dmlTestPool()
	schema := dmlSchema()
	tbl, err := heap.NewTable(pool, schema)
	require.NoError(t, err)
	tree, err := btree.NewTree(pool, 4, 4)
	require.NoError(t, err)

	var ridToDelete = int64(-1)
	for _, id := range []int64{30, 10, 20} {
		rid, err := tbl.Insert([]record.Value{id, "row"})
		require.NoError(t, err)
		ok, err := tree.Insert(id, rid)
		require.NoError(t, err)
		require.True(t, ok)
		if id == 10 {
			ridToDelete = id
		}
	}

	// Tombstone one row in the heap table without removing its index entry,
	// simulating a stale index (IndexScan must skip it).
	rid, found, err := tree.GetValue(ridToDelete)
	require.NoError(t, err)
	require.True(t, found)
	require.NoError(t, tbl.Delete(rid))

	scan := execution.NewIndexScan(tree, tbl, schema)
	out := drain(t, scan)

	var ids []int64
	for _, tup := range out {
		ids = append(ids, tup.Values[0].(int64))
	}
	require.Equal(t, []int64{20, 30}, ids)
}

func TestInsert_WritesRowsAndSecondaryIndexAndReportsCount(t *testing.T) {
	pool := dmlTestPool()
	schema := dmlSchema()
	tbl, err := heap.NewTable(pool, schema)
	require.NoError(t, err)
	tree, err := btree.NewTree(pool, 4, 4)
	require.NoError(t, err)

	src := newRowsExecutor(schema, []record.Tuple{
		{Values: []record.Value{int64(1), "alice"}},
		{Values: []record.Value{int64(2), "bob"}},
	})
	ins := execution.NewInsert(src, tbl, []execution.IndexTarget{{KeyColIdx: 0, Tree: tree}})

	out := drain(t, ins)
	require.Len(t, out, 1)
	require.Equal(t, int64(2), out[0].Values[0])

	_, found, err := tree.GetValue(1)
	require.NoError(t, err)
	require.True(t, found)
	_, found, err = tree.GetValue(2)
	require.NoError(t, err)
	require.True(t, found)
}

func TestDelete_RemovesRowAndIndexEntryAndReportsCount(t *testing.T) {
	pool := dmlTestPool()
	schema := dmlSchema()
	tbl, err := heap.NewTable(pool, schema)
	require.NoError(t, err)
	tree, err := btree.NewTree(pool, 4, 4)
	require.NoError(t, err)

	rid, err := tbl.Insert([]record.Value{int64(1), "alice"})
	require.NoError(t, err)
	ok, err := tree.Insert(1, rid)
	require.NoError(t, err)
	require.True(t, ok)

	src := newRowsExecutor(schema, []record.Tuple{
		{Values: []record.Value{int64(1), "alice"}, RID: rid},
	})
	del := execution.NewDelete(src, tbl, []execution.IndexTarget{{KeyColIdx: 0, Tree: tree}})

	out := drain(t, del)
	require.Len(t, out, 1)
	require.Equal(t, int64(1), out[0].Values[0])

	_, err = tbl.Get(rid)
	require.ErrorIs(t, err, heap.ErrRIDNotFound)
	_, found, err := tree.GetValue(1)
	require.NoError(t, err)
	require.False(t, found)
}

func TestUpdate_MovesIndexEntryToNewKeyAndReportsCount(t *testing.T) {
	pool := dmlTestPool()
	schema := dmlSchema()
	tbl, err := heap.NewTable(pool, schema)
	require.NoError(t, err)
	tree, err := btree.NewTree(pool, 4, 4)
	require.NoError(t, err)

	rid, err := tbl.Insert([]record.Value{int64(1), "alice"})
	require.NoError(t, err)
	ok, err := tree.Insert(1, rid)
	require.NoError(t, err)
	require.True(t, ok)

	src := newRowsExecutor(schema, []record.Tuple{
		{Values: []record.Value{int64(1), "alice"}, RID: rid},
	})
	targets := []execution.TargetExpr{
		func(old record.Tuple) record.Value { return int64(99) },
		func(old record.Tuple) record.Value { return old.Values[1] },
	}
	upd := execution.NewUpdate(src, tbl, []execution.IndexTarget{{KeyColIdx: 0, Tree: tree}}, targets)

	out := drain(t, upd)
	require.Len(t, out, 1)
	require.Equal(t, int64(1), out[0].Values[0])

	_, found, err := tree.GetValue(1)
	require.NoError(t, err)
	require.False(t, found)
	newRID, found, err := tree.GetValue(99)
	require.NoError(t, err)
	require.True(t, found)

	tup, err := tbl.Get(newRID)
	require.NoError(t, err)
	require.Equal(t, int64(99), tup.Values[0])
	require.Equal(t, "alice", tup.Values[1])
}

package btree_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relstore/relstore/internal/buffer"
	"github.com/relstore/relstore/internal/index/btree"
	"github.com/relstore/relstore/internal/page"
)

func newTestPool() *buffer.Pool {
	return buffer.NewPool(64, 2, buffer.NewInMemoryDiskManager())
}

func rid(p int64, slot uint32) page.RID {
	return page.RID{PageID: page.ID(p), Slot: slot}
}

func TestTree_InsertGetValueOnEmptyTree(t *testing.T) {
	tree, err := btree.NewTree(newTestPool(), 4, 4)
	require.NoError(t, err)

	_, found, err := tree.GetValue(1)
	require.NoError(t, err)
	require.False(t, found)

	ok, err := tree.Insert(1, rid(10, 0))
	require.NoError(t, err)
	require.True(t, ok)

	got, found, err := tree.GetValue(1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, rid(10, 0), got)
}

func TestTree_InsertDuplicateKeyFails(t *testing.T) {
	tree, err := btree.NewTree(newTestPool(), 4, 4)
	require.NoError(t, err)

	ok, err := tree.Insert(5, rid(1, 0))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = tree.Insert(5, rid(2, 0))
	require.NoError(t, err)
	require.False(t, ok)

	got, found, err := tree.GetValue(5)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, rid(1, 0), got)
}

func TestTree_LeafSplitsAndAllKeysRemainFindable(t *testing.T) {
	tree, err := btree.NewTree(newTestPool(), 4, 4)
	require.NoError(t, err)

	const n = 50
	for i := int64(0); i < n; i++ {
		ok, err := tree.Insert(i, rid(i, 0))
		require.NoError(t, err)
		require.True(t, ok)
	}

	for i := int64(0); i < n; i++ {
		got, found, err := tree.GetValue(i)
		require.NoErrorf(t, err, "key %d", i)
		require.Truef(t, found, "key %d", i)
		require.Equal(t, rid(i, 0), got)
	}
}

func TestTree_InsertOutOfOrderStillFindable(t *testing.T) {
	tree, err := btree.NewTree(newTestPool(), 4, 4)
	require.NoError(t, err)

	keys := []int64{50, 10, 90, 30, 70, 20, 80, 40, 60, 0, 100, 55, 5, 95, 45}
	for _, k := range keys {
		ok, err := tree.Insert(k, rid(k, 0))
		require.NoError(t, err)
		require.True(t, ok)
	}

	for _, k := range keys {
		got, found, err := tree.GetValue(k)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, rid(k, 0), got)
	}
}

func TestTree_DeleteMissingKeyFails(t *testing.T) {
	tree, err := btree.NewTree(newTestPool(), 4, 4)
	require.NoError(t, err)

	err = tree.Delete(1)
	require.ErrorIs(t, err, btree.ErrKeyNotFound)
}

func TestTree_InsertThenDeleteAllLeavesTreeEmpty(t *testing.T) {
	tree, err := btree.NewTree(newTestPool(), 4, 4)
	require.NoError(t, err)

	const n = 40
	for i := int64(0); i < n; i++ {
		ok, err := tree.Insert(i, rid(i, 0))
		require.NoError(t, err)
		require.True(t, ok)
	}

	for i := int64(0); i < n; i++ {
		require.NoError(t, tree.Delete(i))
	}

	for i := int64(0); i < n; i++ {
		_, found, err := tree.GetValue(i)
		require.NoError(t, err)
		require.False(t, found)
	}

	// The tree must still accept fresh inserts after emptying out entirely.
	ok, err := tree.Insert(999, rid(1, 0))
	require.NoError(t, err)
	require.True(t, ok)
	got, found, err := tree.GetValue(999)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, rid(1, 0), got)
}

func TestTree_DeleteTriggersMergeAndRedistributeAcrossManyKeys(t *testing.T) {
	tree, err := btree.NewTree(newTestPool(), 4, 4)
	require.NoError(t, err)

	const n = 60
	for i := int64(0); i < n; i++ {
		ok, err := tree.Insert(i, rid(i, 0))
		require.NoError(t, err)
		require.True(t, ok)
	}

	// Delete every third key, forcing leaves below their minimum occupancy
	// and exercising merge/redistribute along with internal-node underflow.
	var deleted []int64
	for i := int64(0); i < n; i += 3 {
		require.NoError(t, tree.Delete(i))
		deleted = append(deleted, i)
	}

	deletedSet := make(map[int64]bool, len(deleted))
	for _, k := range deleted {
		deletedSet[k] = true
	}

	for i := int64(0); i < n; i++ {
		got, found, err := tree.GetValue(i)
		require.NoErrorf(t, err, "key %d", i)
		if deletedSet[i] {
			require.Falsef(t, found, "key %d should have been deleted", i)
			continue
		}
		require.Truef(t, found, "key %d should remain", i)
		require.Equal(t, rid(i, 0), got)
	}
}

func TestTree_IteratorWalksKeysInOrder(t *testing.T) {
	tree, err := btree.NewTree(newTestPool(), 4, 4)
	require.NoError(t, err)

	inserted := []int64{30, 10, 50, 20, 40, 0, 60, 15, 35, 55}
	for _, k := range inserted {
		ok, err := tree.Insert(k, rid(k, 0))
		require.NoError(t, err)
		require.True(t, ok)
	}

	it, err := tree.Begin()
	require.NoError(t, err)

	var seen []int64
	for !it.IsEnd() {
		k, r := it.Current()
		seen = append(seen, k)
		require.Equal(t, rid(k, 0), r)
		require.NoError(t, it.Next())
	}

	require.Equal(t, []int64{0, 10, 15, 20, 30, 35, 40, 50, 55, 60}, seen)
}

func TestTree_BeginAtPositionsOnOrAfterKey(t *testing.T) {
	tree, err := btree.NewTree(newTestPool(), 4, 4)
	require.NoError(t, err)

	for _, k := range []int64{10, 20, 30, 40, 50} {
		ok, err := tree.Insert(k, rid(k, 0))
		require.NoError(t, err)
		require.True(t, ok)
	}

	it, err := tree.BeginAt(25)
	require.NoError(t, err)
	require.False(t, it.IsEnd())
	k, _ := it.Current()
	require.Equal(t, int64(30), k)

	it, err = tree.BeginAt(100)
	require.NoError(t, err)
	require.True(t, it.IsEnd())
}

func TestTree_OpenTreeReopensSameData(t *testing.T) {
	pool := newTestPool()
	tree, err := btree.NewTree(pool, 4, 4)
	require.NoError(t, err)

	ok, err := tree.Insert(7, rid(1, 2))
	require.NoError(t, err)
	require.True(t, ok)

	reopened := btree.OpenTree(pool, tree.HeaderPageID(), 4, 4)
	got, found, err := reopened.GetValue(7)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, rid(1, 2), got)
}

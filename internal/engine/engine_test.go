package engine_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relstore/relstore/internal/config"
	"github.com/relstore/relstore/internal/engine"
	"github.com/relstore/relstore/internal/record"
)

func openTestDB(t *testing.T) *engine.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relstore.db")
	cfg := config.Default()
	db, err := engine.Open(path, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func usersSchema() record.Schema {
	return record.Schema{Cols: []record.Column{
		{Name: "id", Type: record.ColInt64},
		{Name: "name", Type: record.ColText},
	}}
}

func TestDB_CreateTableThenOpenTableRoundTrips(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.CreateTable("users", usersSchema()))

	tbl, err := db.OpenTable("users")
	require.NoError(t, err)

	rid, err := tbl.Insert([]record.Value{int64(1), "alice"})
	require.NoError(t, err)

	tup, err := tbl.Get(rid)
	require.NoError(t, err)
	require.Equal(t, "alice", tup.Values[1])
}

func TestDB_OpenTableUnknownNameErrors(t *testing.T) {
	db := openTestDB(t)
	_, err := db.OpenTable("ghost")
	require.Error(t, err)
}

func TestDB_CreateIndexRejectsUnknownColumn(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.CreateTable("users", usersSchema()))
	err := db.CreateIndex("users_by_ssn", "users", "ssn")
	require.Error(t, err)
}

func TestDB_IndexesForReturnsTargetsUsableByInsert(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.CreateTable("users", usersSchema()))
	require.NoError(t, db.CreateIndex("users_by_id", "users", "id"))

	targets, err := db.IndexesFor("users", usersSchema())
	require.NoError(t, err)
	require.Len(t, targets, 1)
	require.Equal(t, 0, targets[0].KeyColIdx)

	tbl, err := db.OpenTable("users")
	require.NoError(t, err)
	rid, err := tbl.Insert([]record.Value{int64(7), "grace"})
	require.NoError(t, err)

	ok, err := targets[0].Tree.Insert(7, rid)
	require.NoError(t, err)
	require.True(t, ok)

	got, found, err := targets[0].Tree.GetValue(7)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, rid, got)
}

func TestDB_SyncTableTailPersistsLastPageToCatalog(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.CreateTable("users", usersSchema()))

	tbl, err := db.OpenTable("users")
	require.NoError(t, err)
	for i := int64(0); i < 3; i++ {
		_, err := tbl.Insert([]record.Value{i, "row"})
		require.NoError(t, err)
	}
	require.NoError(t, db.SyncTableTail("users"))

	info, err := db.Catalog().Table("users")
	require.NoError(t, err)
	require.Equal(t, tbl.LastPageID(), info.LastPageID)
}

func TestDB_LockManagerAndPoolAreUsable(t *testing.T) {
	db := openTestDB(t)
	require.NotNil(t, db.Pool())
	require.NotEqual(t, "", db.LockManager().InstanceID().String())
}

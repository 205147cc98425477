package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relstore/relstore/internal/config"
	"github.com/relstore/relstore/internal/engine"
)

func openTestDB(t *testing.T) *engine.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relstore.db")
	db, err := engine.Open(path, config.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestHandleHealth_ReportsOK(t *testing.T) {
	srv := newServer(openTestDB(t))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
}

func TestHandlePoolStats_ReturnsBufferPoolStats(t *testing.T) {
	srv := newServer(openTestDB(t))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stats/pool", nil)

	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "{")
}

func TestHandleLockStats_ReturnsInstanceIDAndEmptyEdgesWhenIdle(t *testing.T) {
	srv := newServer(openTestDB(t))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stats/locks", nil)

	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var snap lockSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.NotEmpty(t, snap.InstanceID)
	require.Empty(t, snap.Edges)
}

func TestSnapshot_MatchesLockManagerInstanceID(t *testing.T) {
	db := openTestDB(t)
	srv := newServer(db)

	snap := srv.snapshot()
	require.Equal(t, db.LockManager().InstanceID().String(), snap.InstanceID)
}

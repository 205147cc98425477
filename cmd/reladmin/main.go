// Command reladmin is a read-only diagnostics server over an open
// engine.DB: buffer pool occupancy, the lock manager's wait-for graph, and a
// WebSocket stream that pushes a fresh wait-for graph snapshot whenever it
// changes. Grounded on the teacher's pack-mate laura-db's pkg/server
// (chi router, middleware stack, JSON envelope helpers) and its
// pkg/server/handlers/websocket.go (gorilla/websocket upgrader, one
// goroutine per connection); gzip-compresses JSON responses the way
// laura-db's pkg/compression wraps payloads, via klauspost/compress/gzhttp.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzhttp"

	"github.com/relstore/relstore/internal/config"
	"github.com/relstore/relstore/internal/engine"
	"github.com/relstore/relstore/internal/lock"
)

func main() {
	var (
		dataPath = flag.String("data", "relstore.db", "path to the data file")
		cfgPath  = flag.String("config", "", "path to a relstore.yaml config file (optional)")
		addr     = flag.String("addr", "", "listen address (defaults to :<admin.port> from config)")
	)
	flag.Parse()

	cfg := config.Default()
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	listenAddr := *addr
	if listenAddr == "" {
		listenAddr = fmt.Sprintf(":%d", cfg.Admin.Port)
	}

	db, err := engine.Open(*dataPath, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", *dataPath, err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("reladmin: close database", "err", err)
		}
	}()

	srv := newServer(db)

	httpSrv := &http.Server{
		Addr:         listenAddr,
		Handler:      srv.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("reladmin: listening", "addr", listenAddr, "data", *dataPath)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "serve: %v\n", err)
		os.Exit(1)
	}
}

// server holds the chi router and the engine it reports on.
type server struct {
	db     *engine.DB
	router *chi.Mux
}

func newServer(db *engine.DB) *server {
	s := &server{db: db, router: chi.NewRouter()}
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Logger)

	compress := gzhttp.GzipHandler

	s.router.Get("/healthz", compress(http.HandlerFunc(s.handleHealth)).ServeHTTP)
	s.router.Get("/stats/pool", compress(http.HandlerFunc(s.handlePoolStats)).ServeHTTP)
	s.router.Get("/stats/locks", compress(http.HandlerFunc(s.handleLockStats)).ServeHTTP)
	s.router.Get("/ws/locks", s.handleLockStream)

	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("reladmin: encode response", "err", err)
	}
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handlePoolStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.db.Pool().Stats())
}

// lockSnapshot is the JSON shape of a wait-for graph report, shared by the
// plain /stats/locks endpoint and every /ws/locks push.
type lockSnapshot struct {
	InstanceID string            `json:"instance_id"`
	Edges      []lock.WaitForEdge `json:"edges"`
}

func (s *server) snapshot() lockSnapshot {
	return lockSnapshot{
		InstanceID: s.db.LockManager().InstanceID().String(),
		Edges:      s.db.LockManager().WaitForGraph(),
	}
}

func (s *server) handleLockStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot())
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleLockStream upgrades to a WebSocket and pushes a wait-for graph
// snapshot on a tick only when it differs from the last one pushed. The
// first tick always pushes; after that an idle database keeps the socket
// silent.
func (s *server) handleLockStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("reladmin: websocket upgrade", "err", err)
		return
	}
	defer func() { _ = conn.Close() }()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var last string
	for range ticker.C {
		snap := s.snapshot()
		encoded, err := json.Marshal(snap)
		if err != nil {
			slog.Error("reladmin: marshal lock snapshot", "err", err)
			return
		}
		if string(encoded) == last {
			continue
		}
		last = string(encoded)
		if err := conn.WriteMessage(websocket.TextMessage, encoded); err != nil {
			return
		}
	}
}

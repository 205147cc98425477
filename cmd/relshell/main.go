// Command relshell is a readline REPL that drives the storage core's
// executor kernel directly: it has no SQL parser, so every line is a small,
// explicit operator-tree command (createtable, createindex, insert, scan,
// indexscan, topn, delete, update, stats, ...). Grounded on the teacher's
// cmd/client (readline setup, History, meta commands) with the TCP
// client/server split dropped, since this tool talks to an in-process
// engine.DB rather than a remote novasql server.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/relstore/relstore/internal/config"
	"github.com/relstore/relstore/internal/engine"
	"github.com/relstore/relstore/internal/execution"
	"github.com/relstore/relstore/internal/optimizer"
	"github.com/relstore/relstore/internal/page"
	"github.com/relstore/relstore/internal/plan"
	"github.com/relstore/relstore/internal/record"
)

// History is a one-line-per-command log, same shape as the teacher's
// cmd/client.History.
type History struct {
	path  string
	lines []string
}

func NewHistory(path string) *History { return &History{path: path} }

func (h *History) Load(max int) error {
	if h.path == "" {
		return nil
	}
	f, err := os.Open(h.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		s := strings.TrimSpace(sc.Text())
		if s == "" {
			continue
		}
		h.lines = append(h.lines, s)
		if max > 0 && len(h.lines) > max {
			h.lines = h.lines[len(h.lines)-max:]
		}
	}
	return sc.Err()
}

func (h *History) Append(line string) error {
	line = strings.TrimSpace(line)
	if line == "" || h.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(h.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if _, err := fmt.Fprintln(f, line); err != nil {
		return err
	}
	h.lines = append(h.lines, line)
	return nil
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".relshell_history"
	}
	return filepath.Join(home, ".relshell_history")
}

func main() {
	var (
		dataPath = flag.String("data", "relstore.db", "path to the data file")
		cfgPath  = flag.String("config", "", "path to a relstore.yaml config file (optional)")
		histPath = flag.String("history", defaultHistoryPath(), "history file path")
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

	db, err := engine.Open(*dataPath, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", *dataPath, err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("relshell: close database", "err", err)
		}
	}()

	h := NewHistory(*histPath)
	_ = h.Load(2000)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "relstore> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "readline: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = rl.Close() }()

	for _, line := range h.lines {
		_ = rl.SaveHistory(line)
	}

	fmt.Printf("connected to %s\n", *dataPath)
	fmt.Println("type \\help for a command summary")

	sess := &session{db: db}

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			fmt.Println("^C")
			continue
		}
		if err != nil {
			fmt.Println()
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" || line == "\\q" {
			return
		}
		if line == "\\help" {
			printHelp()
			continue
		}
		if line == "\\history" {
			for i, l := range h.lines {
				fmt.Printf("%5d  %s\n", i+1, l)
			}
			continue
		}

		_ = h.Append(line)
		_ = rl.SaveHistory(line)

		if err := sess.run(line); err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}
}

func printHelp() {
	fmt.Println(`commands:
  createtable <name> <col:type[:null]>...      types: int32 int64 bool float64 text bytes
  createindex <name> <table> <keycol>
  insert <table> <value>...
  scan <table>
  indexscan <index> <table>
  topn <table> <col> <asc|desc> <n>            sort+limit, rewritten to a single TopN by the optimizer
  delete <table> <pageid:slot>
  update <table> <pageid:slot> <value>...
  stats
  \history   show command history
  \help      this summary
  quit | exit | \q`)
}

// session holds the state a command needs beyond the open engine.DB.
type session struct {
	db *engine.DB
}

func (s *session) run(line string) error {
	fields := strings.Fields(line)
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "createtable":
		return s.createTable(args)
	case "createindex":
		return s.createIndex(args)
	case "insert":
		return s.insert(args)
	case "scan":
		return s.scan(args)
	case "indexscan":
		return s.indexScan(args)
	case "topn":
		return s.topN(args)
	case "delete":
		return s.delete(args)
	case "update":
		return s.update(args)
	case "stats":
		return s.stats()
	default:
		return fmt.Errorf("unknown command %q (try \\help)", cmd)
	}
}

func (s *session) createTable(args []string) error {
	if len(args) < 2 {
		return errors.New("usage: createtable <name> <col:type[:null]>...")
	}
	name := args[0]
	var cols []record.Column
	for _, spec := range args[1:] {
		col, err := parseColumnSpec(spec)
		if err != nil {
			return err
		}
		cols = append(cols, col)
	}
	if err := s.db.CreateTable(name, record.Schema{Cols: cols}); err != nil {
		return err
	}
	fmt.Printf("table %q created (%d columns)\n", name, len(cols))
	return nil
}

func parseColumnSpec(spec string) (record.Column, error) {
	parts := strings.Split(spec, ":")
	if len(parts) < 2 {
		return record.Column{}, fmt.Errorf("bad column spec %q (want name:type[:null])", spec)
	}
	typ, err := parseColumnType(parts[1])
	if err != nil {
		return record.Column{}, err
	}
	nullable := len(parts) > 2 && parts[2] == "null"
	return record.Column{Name: parts[0], Type: typ, Nullable: nullable}, nil
}

func parseColumnType(s string) (record.ColumnType, error) {
	switch s {
	case "int32":
		return record.ColInt32, nil
	case "int64":
		return record.ColInt64, nil
	case "bool":
		return record.ColBool, nil
	case "float64":
		return record.ColFloat64, nil
	case "text":
		return record.ColText, nil
	case "bytes":
		return record.ColBytes, nil
	default:
		return 0, fmt.Errorf("unknown column type %q", s)
	}
}

func (s *session) createIndex(args []string) error {
	if len(args) != 3 {
		return errors.New("usage: createindex <name> <table> <keycol>")
	}
	if err := s.db.CreateIndex(args[0], args[1], args[2]); err != nil {
		return err
	}
	fmt.Printf("index %q created on %s(%s)\n", args[0], args[1], args[2])
	return nil
}

func (s *session) insert(args []string) error {
	if len(args) < 2 {
		return errors.New("usage: insert <table> <value>...")
	}
	table := args[0]
	info, err := s.db.Catalog().Table(table)
	if err != nil {
		return err
	}
	if len(args)-1 != info.Schema.NumCols() {
		return fmt.Errorf("table %q has %d columns, got %d values", table, info.Schema.NumCols(), len(args)-1)
	}
	values, err := parseValues(info.Schema, args[1:])
	if err != nil {
		return err
	}

	tbl, err := s.db.OpenTable(table)
	if err != nil {
		return err
	}
	indexes, err := s.db.IndexesFor(table, info.Schema)
	if err != nil {
		return err
	}

	src := &literalRow{values: values, schema: info.Schema}
	ins := execution.NewInsert(src, tbl, indexes)
	if err := ins.Init(); err != nil {
		return err
	}
	result, ok, err := ins.Next()
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("insert produced no result")
	}
	if err := s.db.SyncTableTail(table); err != nil {
		return err
	}
	fmt.Printf("inserted %v row(s)\n", result.Values[0])
	return nil
}

// literalRow is a one-row Executor used to feed Insert/Update/Delete a
// single literal tuple without standing up a real scan.
type literalRow struct {
	values []record.Value
	rid    page.RID
	schema record.Schema
	done   bool
}

func (l *literalRow) Init() error { l.done = false; return nil }
func (l *literalRow) Next() (record.Tuple, bool, error) {
	if l.done {
		return record.Tuple{}, false, nil
	}
	l.done = true
	return record.Tuple{Values: l.values, RID: l.rid}, true, nil
}
func (l *literalRow) OutputSchema() record.Schema { return l.schema }

func parseValues(schema record.Schema, raw []string) ([]record.Value, error) {
	values := make([]record.Value, len(raw))
	for i, s := range raw {
		if s == "NULL" {
			if !schema.Cols[i].Nullable {
				return nil, fmt.Errorf("column %q is not nullable", schema.Cols[i].Name)
			}
			values[i] = nil
			continue
		}
		v, err := parseValue(schema.Cols[i].Type, s)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", schema.Cols[i].Name, err)
		}
		values[i] = v
	}
	return values, nil
}

func parseValue(t record.ColumnType, s string) (record.Value, error) {
	switch t {
	case record.ColInt32:
		n, err := strconv.ParseInt(s, 10, 32)
		return int32(n), err
	case record.ColInt64:
		n, err := strconv.ParseInt(s, 10, 64)
		return n, err
	case record.ColBool:
		return strconv.ParseBool(s)
	case record.ColFloat64:
		return strconv.ParseFloat(s, 64)
	case record.ColText:
		return s, nil
	case record.ColBytes:
		return []byte(s), nil
	default:
		return nil, fmt.Errorf("unsupported column type %v", t)
	}
}

func (s *session) scan(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: scan <table>")
	}
	info, err := s.db.Catalog().Table(args[0])
	if err != nil {
		return err
	}
	tbl, err := s.db.OpenTable(args[0])
	if err != nil {
		return err
	}
	return runAndPrint(execution.NewSeqScan(tbl, info.Schema))
}

func (s *session) indexScan(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: indexscan <index> <table>")
	}
	indexInfo, err := s.db.Catalog().Index(args[0])
	if err != nil {
		return err
	}
	tableInfo, err := s.db.Catalog().Table(args[1])
	if err != nil {
		return err
	}
	idx, err := s.db.OpenIndex(indexInfo.Name)
	if err != nil {
		return err
	}
	tbl, err := s.db.OpenTable(args[1])
	if err != nil {
		return err
	}
	return runAndPrint(execution.NewIndexScan(idx, tbl, tableInfo.Schema))
}

// topN demonstrates the plan/optimizer packages end to end: it builds a
// Limit-over-Sort plan tree, runs it through optimizer.Optimize (which
// rewrites it to a single TopN node), and executes the result.
func (s *session) topN(args []string) error {
	if len(args) != 4 {
		return errors.New("usage: topn <table> <col> <asc|desc> <n>")
	}
	table, col, dir, nStr := args[0], args[1], args[2], args[3]
	n, err := strconv.Atoi(nStr)
	if err != nil {
		return fmt.Errorf("bad n: %w", err)
	}

	info, err := s.db.Catalog().Table(table)
	if err != nil {
		return err
	}
	colIdx := info.Schema.IndexOf(col)
	if colIdx < 0 {
		return fmt.Errorf("table %q has no column %q", table, col)
	}
	order := execution.SortAsc
	switch dir {
	case "asc":
	case "desc":
		order = execution.SortDesc
	default:
		return fmt.Errorf("unknown sort direction %q", dir)
	}

	root := &plan.LimitNode{
		N: n,
		Child: &plan.SortNode{
			Keys: []execution.SortKey{{
				GetArg: func(t record.Tuple) record.Value { return t.GetValue(colIdx) },
				Order:  order,
			}},
			Child: &plan.SeqScanNode{Table: info, Schema: info.Schema},
		},
	}

	optimized := optimizer.Optimize(root)
	ex, err := plan.Build(optimized, s.db)
	if err != nil {
		return err
	}
	return runAndPrint(ex)
}

func runAndPrint(ex execution.Executor) error {
	if err := ex.Init(); err != nil {
		return err
	}
	schema := ex.OutputSchema()
	_ = schema
	n := 0
	for {
		tup, ok, err := ex.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		printRow(tup)
		n++
	}
	fmt.Printf("(%d rows)\n", n)
	return nil
}

func printRow(tup record.Tuple) {
	parts := make([]string, len(tup.Values))
	for i, v := range tup.Values {
		if v == nil {
			parts[i] = "NULL"
		} else {
			parts[i] = fmt.Sprintf("%v", v)
		}
	}
	fmt.Println(strings.Join(parts, " | "))
}

func parseRIDValue(s string) (page.RID, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return page.RID{}, fmt.Errorf("bad rid %q (want pageid:slot)", s)
	}
	pageID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return page.RID{}, err
	}
	slot, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return page.RID{}, err
	}
	return page.RID{PageID: page.ID(pageID), Slot: uint32(slot)}, nil
}

func (s *session) delete(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: delete <table> <pageid:slot>")
	}
	table := args[0]
	info, err := s.db.Catalog().Table(table)
	if err != nil {
		return err
	}
	tbl, err := s.db.OpenTable(table)
	if err != nil {
		return err
	}
	indexes, err := s.db.IndexesFor(table, info.Schema)
	if err != nil {
		return err
	}

	rid, err := parseRIDValue(args[1])
	if err != nil {
		return err
	}
	tup, err := tbl.Get(rid)
	if err != nil {
		return err
	}

	src := &literalRow{values: tup.Values, rid: rid, schema: info.Schema}
	del := execution.NewDelete(src, tbl, indexes)
	if err := del.Init(); err != nil {
		return err
	}
	result, ok, err := del.Next()
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("delete produced no result")
	}
	fmt.Printf("deleted %v row(s)\n", result.Values[0])
	return nil
}

func (s *session) update(args []string) error {
	if len(args) < 2 {
		return errors.New("usage: update <table> <pageid:slot> <value>...")
	}
	table := args[0]
	info, err := s.db.Catalog().Table(table)
	if err != nil {
		return err
	}
	if len(args)-2 != info.Schema.NumCols() {
		return fmt.Errorf("table %q has %d columns, got %d values", table, info.Schema.NumCols(), len(args)-2)
	}
	rid, err := parseRIDValue(args[1])
	if err != nil {
		return err
	}
	newValues, err := parseValues(info.Schema, args[2:])
	if err != nil {
		return err
	}

	tbl, err := s.db.OpenTable(table)
	if err != nil {
		return err
	}
	indexes, err := s.db.IndexesFor(table, info.Schema)
	if err != nil {
		return err
	}
	oldTup, err := tbl.Get(rid)
	if err != nil {
		return err
	}

	targets := make([]execution.TargetExpr, len(newValues))
	for i, v := range newValues {
		v := v
		targets[i] = func(record.Tuple) record.Value { return v }
	}

	src := &literalRow{values: oldTup.Values, rid: rid, schema: info.Schema}
	upd := execution.NewUpdate(src, tbl, indexes, targets)
	if err := upd.Init(); err != nil {
		return err
	}
	result, ok, err := upd.Next()
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("update produced no result")
	}
	fmt.Printf("updated %v row(s)\n", result.Values[0])
	return nil
}

func (s *session) stats() error {
	edges := s.db.LockManager().WaitForGraph()
	fmt.Printf("lock manager instance: %s\n", s.db.LockManager().InstanceID())
	fmt.Printf("wait-for edges: %d\n", len(edges))
	for _, e := range edges {
		fmt.Printf("  txn %d waits on txn %d\n", e.Waiter, e.Holder)
	}
	return nil
}

// Package execution implements the pull-based (Volcano-style) physical
// operator kernel described in spec §4.5: every operator exposes
// Init/Next/OutputSchema, and a tree of operators is driven by repeatedly
// calling Next on the root until it returns false. Grounded throughout on
// BusTub's src/execution/*.cpp (original_source/src/execution), translated
// from the owning-unique_ptr child model to a plain Go interface the parent
// holds a reference to.
package execution

import "github.com/relstore/relstore/internal/record"

// Executor is the operator protocol every physical operator implements.
// Init (re-)starts iteration from the beginning; Next pulls the next output
// row, returning ok=false once exhausted; OutputSchema never changes across
// a call to Init and describes the columns Next's tuple holds.
type Executor interface {
	Init() error
	Next() (record.Tuple, bool, error)
	OutputSchema() record.Schema
}

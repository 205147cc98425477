package record

import "github.com/relstore/relstore/internal/page"

// Value is one column's value. nil represents SQL NULL; the concrete Go type
// otherwise matches the column's ColumnType (int32, int64, bool, float64,
// string, []byte).
type Value = any

// Tuple is a row: an ordered slice of Values aligned with some Schema, plus
// the RID it was fetched from (zero-valued for tuples not yet materialized
// into a heap page, e.g. a join's freshly-combined output row).
type Tuple struct {
	Values []Value
	RID    page.RID
}

// GetValue returns the value at colIdx.
func (t Tuple) GetValue(colIdx int) Value { return t.Values[colIdx] }

// IsNull reports whether colIdx holds SQL NULL.
func (t Tuple) IsNull(colIdx int) bool { return t.Values[colIdx] == nil }

// Join concatenates t with other, matching the schema produced by
// record.Concat — used by NestedLoopJoin/HashJoin to build a combined row.
func (t Tuple) Join(other Tuple) Tuple {
	vals := make([]Value, 0, len(t.Values)+len(other.Values))
	vals = append(vals, t.Values...)
	vals = append(vals, other.Values...)
	return Tuple{Values: vals}
}

// NullPadded returns a copy of t with width additional NULL values appended,
// used to pad the unmatched side of a left outer join.
func (t Tuple) NullPadded(width int) Tuple {
	vals := make([]Value, len(t.Values), len(t.Values)+width)
	copy(vals, t.Values)
	for i := 0; i < width; i++ {
		vals = append(vals, nil)
	}
	return Tuple{Values: vals, RID: t.RID}
}

// Package record defines the executor kernel's data model — Schema/Column,
// Value, and Tuple — plus a fixed-layout row codec for heap page storage.
// Grounded on the teacher's internal/record/schema.go and
// internal/storage/rowcodec.go.
package record

// ColumnType is one of the scalar types the storage core understands.
type ColumnType uint8

const (
	ColInt32 ColumnType = iota
	ColInt64
	ColBool
	ColFloat64
	ColText  // UTF-8
	ColBytes // opaque bytes
)

func (t ColumnType) String() string {
	switch t {
	case ColInt32:
		return "INT32"
	case ColInt64:
		return "INT64"
	case ColBool:
		return "BOOL"
	case ColFloat64:
		return "FLOAT64"
	case ColText:
		return "TEXT"
	case ColBytes:
		return "BYTES"
	default:
		return "UNKNOWN"
	}
}

// Column is one field of a Schema.
type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool
}

// Schema is an ordered list of columns, shared by every operator's
// OutputSchema().
type Schema struct {
	Cols []Column
}

func (s Schema) NumCols() int { return len(s.Cols) }

// IndexOf returns the position of the column named name, or -1.
func (s Schema) IndexOf(name string) int {
	for i, c := range s.Cols {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Concat builds the schema of a join's output: left's columns followed by
// right's.
func Concat(left, right Schema) Schema {
	cols := make([]Column, 0, len(left.Cols)+len(right.Cols))
	cols = append(cols, left.Cols...)
	cols = append(cols, right.Cols...)
	return Schema{Cols: cols}
}

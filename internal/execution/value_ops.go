package execution

import "github.com/relstore/relstore/internal/record"

// compareValues orders two Values for sort/top-N/join-key comparison. nil
// (SQL NULL) sorts before every non-null value, matching the convention
// used by the aggregation hash table's equality (nulls compare equal to
// nulls, and are otherwise excluded from join matches — see groupEqual and
// joinKey).
func compareValues(a, b record.Value) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}
	switch x := a.(type) {
	case int32:
		y := b.(int32)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		default:
			return 0
		}
	case int64:
		y := b.(int64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		default:
			return 0
		}
	case float64:
		y := b.(float64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		default:
			return 0
		}
	case bool:
		y := b.(bool)
		if x == y {
			return 0
		}
		if !x {
			return -1
		}
		return 1
	case string:
		y := b.(string)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		default:
			return 0
		}
	case []byte:
		y := b.([]byte)
		for i := 0; i < len(x) && i < len(y); i++ {
			if x[i] != y[i] {
				if x[i] < y[i] {
					return -1
				}
				return 1
			}
		}
		switch {
		case len(x) < len(y):
			return -1
		case len(x) > len(y):
			return 1
		default:
			return 0
		}
	default:
		return 0
	}
}

// valuesEqual is join-key equality: unlike compareValues, nulls never
// compare equal to anything, including another null (spec's "nulls never
// match" join semantics).
func valuesEqual(a, b record.Value) bool {
	if a == nil || b == nil {
		return false
	}
	return compareValues(a, b) == 0
}

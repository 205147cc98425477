package execution

import "github.com/relstore/relstore/internal/record"

// KeyExtractor pulls the join-key values out of a row.
type KeyExtractor func(record.Tuple) []record.Value

// joinKey is the vector of extracted join-key values for one row. It hashes
// element-wise (a NULL element contributes nothing to the hash) and its
// Equal is used to resolve collisions within a bucket, so the bucket map is
// never keyed by a flattened byte string.
type joinKey struct {
	values []record.Value
}

func newJoinKey(values []record.Value) (joinKey, bool) {
	for _, v := range values {
		if v == nil {
			// A NULL component makes the row unjoinable to anything, per
			// valuesEqual's null-never-matches rule; callers skip it.
			return joinKey{}, false
		}
	}
	return joinKey{values: values}, true
}

// Hash combines a simple FNV-1a style accumulation over each element's own
// contribution; only used to pick a bucket, not for equality.
func (k joinKey) Hash() uint64 {
	var h uint64 = 14695981039346656037
	for _, v := range k.values {
		h ^= elementHash(v)
		h *= 1099511628211
	}
	return h
}

func elementHash(v record.Value) uint64 {
	switch x := v.(type) {
	case int32:
		return uint64(x)
	case int64:
		return uint64(x)
	case float64:
		return uint64(int64(x))
	case bool:
		if x {
			return 1
		}
		return 0
	case string:
		var h uint64 = 2166136261
		for i := 0; i < len(x); i++ {
			h ^= uint64(x[i])
			h *= 16777619
		}
		return h
	case []byte:
		var h uint64 = 2166136261
		for _, b := range x {
			h ^= uint64(b)
			h *= 16777619
		}
		return h
	default:
		return 0
	}
}

// Equal reports whether every element of k matches other element-wise.
func (k joinKey) Equal(other joinKey) bool {
	if len(k.values) != len(other.values) {
		return false
	}
	for i := range k.values {
		if !valuesEqual(k.values[i], other.values[i]) {
			return false
		}
	}
	return true
}

type joinBucketEntry struct {
	key joinKey
	row record.Tuple
}

// HashJoin builds a hash table over the right child's join key, then probes
// it once per left row. Grounded on hash_join_executor.cpp / the
// HashJoinKey/HashJoinValue pairing in hash_join_executor.h; like the
// reference implementation it materializes the build side into an in-memory
// multimap rather than spilling, since this kernel has no notion of
// memory-constrained hashing.
type HashJoin struct {
	left, right Executor
	leftKeyFn   KeyExtractor
	rightKeyFn  KeyExtractor
	leftOuter   bool
	schema      record.Schema

	buckets map[uint64][]joinBucketEntry

	curLeft    record.Tuple
	haveLeft   bool
	matches    []record.Tuple
	matchIdx   int
	curMatched bool
	exhausted  bool
}

func NewHashJoin(left, right Executor, leftKeyFn, rightKeyFn KeyExtractor, leftOuter bool) *HashJoin {
	cols := append(append([]record.Column{}, left.OutputSchema().Cols...), right.OutputSchema().Cols...)
	return &HashJoin{
		left: left, right: right,
		leftKeyFn: leftKeyFn, rightKeyFn: rightKeyFn,
		leftOuter: leftOuter,
		schema:    record.Schema{Cols: cols},
	}
}

func (j *HashJoin) Init() error {
	if err := j.left.Init(); err != nil {
		return err
	}
	if err := j.right.Init(); err != nil {
		return err
	}
	j.buckets = make(map[uint64][]joinBucketEntry)
	for {
		rtup, ok, err := j.right.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		key, joinable := newJoinKey(j.rightKeyFn(rtup))
		if !joinable {
			continue
		}
		h := key.Hash()
		j.buckets[h] = append(j.buckets[h], joinBucketEntry{key: key, row: rtup})
	}
	j.haveLeft = false
	j.exhausted = false
	return nil
}

func (j *HashJoin) probe(key joinKey) []record.Tuple {
	var out []record.Tuple
	for _, entry := range j.buckets[key.Hash()] {
		if entry.key.Equal(key) {
			out = append(out, entry.row)
		}
	}
	return out
}

func (j *HashJoin) pullLeft() (bool, error) {
	tup, ok, err := j.left.Next()
	if err != nil || !ok {
		return false, err
	}
	j.curLeft = tup
	j.curMatched = false
	if key, joinable := newJoinKey(j.leftKeyFn(tup)); joinable {
		j.matches = j.probe(key)
	} else {
		j.matches = nil
	}
	j.matchIdx = 0
	return true, nil
}

func (j *HashJoin) Next() (record.Tuple, bool, error) {
	if j.exhausted {
		return record.Tuple{}, false, nil
	}
	if !j.haveLeft {
		ok, err := j.pullLeft()
		if err != nil {
			return record.Tuple{}, false, err
		}
		if !ok {
			j.exhausted = true
			return record.Tuple{}, false, nil
		}
		j.haveLeft = true
	}

	for {
		if j.matchIdx < len(j.matches) {
			rtup := j.matches[j.matchIdx]
			j.matchIdx++
			j.curMatched = true
			return j.curLeft.Join(rtup), true, nil
		}

		emitUnmatched := j.leftOuter && !j.curMatched
		unmatchedLeft := j.curLeft

		ok, err := j.pullLeft()
		if err != nil {
			return record.Tuple{}, false, err
		}
		if !ok {
			j.exhausted = true
		}

		if emitUnmatched {
			rightWidth := len(j.right.OutputSchema().Cols)
			return unmatchedLeft.Join(record.Tuple{}.NullPadded(rightWidth)), true, nil
		}
		if !ok {
			return record.Tuple{}, false, nil
		}
	}
}

func (j *HashJoin) OutputSchema() record.Schema { return j.schema }

package store

import (
	"bytes"
	"sort"

	tmdb "github.com/tendermint/tm-db"
)

// Transaction buffers writes and deletes over a parent Reader. Reads see the
// buffered changes first; the parent sees nothing until Commit.
//
// A key is never both written and deleted: Write drops it from the delete set
// and Erase drops it from the write set.
//
// Not goroutine-safe.
type Transaction[P Reader] struct {
	parent  P
	writes  map[string][]byte
	deletes map[string]struct{}
}

func NewTransaction[P Reader](parent P) *Transaction[P] {
	return &Transaction[P]{
		parent:  parent,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

func (tx *Transaction[P]) Parent() P {
	return tx.parent
}

func (tx *Transaction[P]) Write(key, value []byte) {
	k := string(key)
	delete(tx.deletes, k)
	v := make([]byte, len(value))
	copy(v, value)
	tx.writes[k] = v
}

func (tx *Transaction[P]) Erase(key []byte) {
	k := string(key)
	delete(tx.writes, k)
	tx.deletes[k] = struct{}{}
}

func (tx *Transaction[P]) Read(key []byte) ([]byte, bool) {
	k := string(key)
	if _, ok := tx.deletes[k]; ok {
		return nil, false
	}
	if v, ok := tx.writes[k]; ok {
		return v, true
	}
	return tx.parent.Read(key)
}

func (tx *Transaction[P]) Exists(key []byte) bool {
	k := string(key)
	if _, ok := tx.deletes[k]; ok {
		return false
	}
	if _, ok := tx.writes[k]; ok {
		return true
	}
	return tx.parent.Exists(key)
}

// Commit pushes the deletes, then the writes, into target and clears the
// transaction. target is normally the parent, or a batch over it.
func (tx *Transaction[P]) Commit(target Writer) {
	for k := range tx.deletes {
		target.Erase([]byte(k))
	}
	for k, v := range tx.writes {
		target.Write([]byte(k), v)
	}
	tx.Clear()
}

// Clear drops every buffered change.
func (tx *Transaction[P]) Clear() {
	tx.writes = make(map[string][]byte)
	tx.deletes = make(map[string]struct{})
}

func (tx *Transaction[P]) IsClean() bool {
	return len(tx.writes) == 0 && len(tx.deletes) == 0
}

// Iterator merges the buffered writes into the parent's [start, end) range.
// It works on a snapshot of the buffer taken now.
func (tx *Transaction[P]) Iterator(start, end []byte) tmdb.Iterator {
	it := &mergeIterator{
		start:   start,
		end:     end,
		deletes: make(map[string]struct{}, len(tx.deletes)),
	}
	for k := range tx.deletes {
		it.deletes[k] = struct{}{}
	}
	for k, v := range tx.writes {
		key := []byte(k)
		if start != nil && bytes.Compare(key, start) < 0 {
			continue
		}
		if end != nil && bytes.Compare(key, end) >= 0 {
			continue
		}
		it.keys = append(it.keys, key)
		it.values = append(it.values, v)
	}
	sort.Sort(kvByKey{it.keys, it.values})

	it.parent = tx.parent.Iterator(start, end)
	it.advance()
	return it
}

type kvByKey struct {
	keys, values [][]byte
}

func (s kvByKey) Len() int           { return len(s.keys) }
func (s kvByKey) Less(i, j int) bool { return bytes.Compare(s.keys[i], s.keys[j]) < 0 }
func (s kvByKey) Swap(i, j int) {
	s.keys[i], s.keys[j] = s.keys[j], s.keys[i]
	s.values[i], s.values[j] = s.values[j], s.values[i]
}

// mergeIterator implements tmdb.Iterator over an overlay and its parent.
// Overlay entries shadow parent entries with the same key.
type mergeIterator struct {
	start, end []byte

	parent  tmdb.Iterator
	deletes map[string]struct{}

	keys, values [][]byte
	pos          int

	key, value []byte
	valid      bool
}

var _ tmdb.Iterator = (*mergeIterator)(nil)

func (it *mergeIterator) advance() {
	for it.parent.Valid() {
		if _, deleted := it.deletes[string(it.parent.Key())]; !deleted {
			break
		}
		it.parent.Next()
	}

	hasParent := it.parent.Valid()
	hasOwn := it.pos < len(it.keys)
	switch {
	case !hasParent && !hasOwn:
		it.valid = false
		it.key, it.value = nil, nil
		return
	case hasOwn && (!hasParent || bytes.Compare(it.keys[it.pos], it.parent.Key()) <= 0):
		if hasParent && bytes.Equal(it.keys[it.pos], it.parent.Key()) {
			it.parent.Next()
		}
		it.key, it.value = it.keys[it.pos], it.values[it.pos]
		it.pos++
	default:
		it.key = append([]byte(nil), it.parent.Key()...)
		it.value = append([]byte(nil), it.parent.Value()...)
		it.parent.Next()
	}
	it.valid = true
}

func (it *mergeIterator) Domain() ([]byte, []byte) {
	return it.start, it.end
}

func (it *mergeIterator) Valid() bool {
	return it.valid
}

func (it *mergeIterator) Next() {
	if !it.valid {
		panic("store: Next on invalid iterator")
	}
	it.advance()
}

func (it *mergeIterator) Key() []byte {
	if !it.valid {
		panic("store: Key on invalid iterator")
	}
	return it.key
}

func (it *mergeIterator) Value() []byte {
	if !it.valid {
		panic("store: Value on invalid iterator")
	}
	return it.value
}

func (it *mergeIterator) Error() error {
	return it.parent.Error()
}

func (it *mergeIterator) Close() error {
	return it.parent.Close()
}

package store

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"
)

func newTestCommitmentStore() (*KVStore, *CommitmentStore) {
	kv := NewMemKVStore(log.TestingLogger())
	s := NewCommitmentStore(kv)
	s.SetLogger(log.TestingLogger())
	return kv, s
}

func TestScopedTransactionRollback(t *testing.T) {
	kv, s := newTestCommitmentStore()

	tx := s.BeginTransaction()
	s.Write([]byte("k"), []byte("v"))
	assert.True(t, s.Exists([]byte("k")))
	tx.Close()

	assert.False(t, s.Exists([]byte("k")))
	require.NoError(t, s.CommitRoot())
	assert.False(t, kv.Exists([]byte("k")))
}

func TestScopedTransactionCommitThenFlush(t *testing.T) {
	kv, s := newTestCommitmentStore()

	tx := s.BeginTransaction()
	s.Write([]byte("k"), []byte("v"))
	tx.Commit()
	tx.Close() // no-op after Commit

	v, ok := s.Read([]byte("k"))
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)
	assert.False(t, kv.Exists([]byte("k")), "root is not flushed yet")
	assert.False(t, s.IsRootClean())

	require.NoError(t, s.CommitRoot())
	assert.True(t, kv.Exists([]byte("k")))
	assert.True(t, s.IsRootClean())
}

func TestCommitRootRequiresCleanCurrent(t *testing.T) {
	kv, s := newTestCommitmentStore()

	tx := s.BeginTransaction()
	defer tx.Close()
	s.Write([]byte("k"), []byte("v"))

	assert.Equal(t, ErrDirtyTransaction, s.CommitRoot())
	assert.False(t, kv.Exists([]byte("k")))
}

// Any mix of writes and erases through current, committed into root and
// flushed, ends up the same as applying the net effect directly.
func TestNestingIsEquivalentToFlat(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	kv, s := newTestCommitmentStore()
	expected := make(map[string]string)

	for block := 0; block < 20; block++ {
		tx := s.BeginTransaction()
		pending := make(map[string]*string)
		for i := 0; i < 30; i++ {
			key := fmt.Sprintf("key%02d", r.Intn(25))
			if r.Intn(3) == 0 {
				s.Erase([]byte(key))
				pending[key] = nil
			} else {
				v := fmt.Sprintf("b%d-%d", block, i)
				s.Write([]byte(key), []byte(v))
				pending[key] = &v
			}
		}
		// every third block is invalid and dropped
		if block%3 == 2 {
			tx.Close()
			continue
		}
		tx.Commit()
		for k, v := range pending {
			if v == nil {
				delete(expected, k)
			} else {
				expected[k] = *v
			}
		}
		if block%5 == 4 {
			require.NoError(t, s.CommitRoot())
		}
	}
	require.NoError(t, s.CommitRoot())

	got := make(map[string]string)
	it := kv.Iterator(nil, nil)
	for ; it.Valid(); it.Next() {
		got[string(it.Key())] = string(it.Value())
	}
	require.NoError(t, it.Close())
	assert.Equal(t, expected, got)
}

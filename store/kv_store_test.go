package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"
)

func TestKVStoreOnLevelDB(t *testing.T) {
	kv, err := NewKVStore("goleveldb", "evodb", t.TempDir(), log.TestingLogger())
	require.NoError(t, err)
	defer kv.Close()

	_, ok := kv.Read([]byte("a"))
	assert.False(t, ok, "missing key is not an error")
	assert.False(t, kv.Exists([]byte("a")))

	kv.WriteBatch([]Op{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("c"), Value: []byte("3")},
		{Key: []byte("b"), Value: []byte("2")},
		{Key: []byte("c"), Delete: true},
	})

	v, ok := kv.Read([]byte("a"))
	require.True(t, ok)
	assert.Equal(t, []byte("1"), v)
	assert.True(t, kv.Exists([]byte("b")))
	assert.False(t, kv.Exists([]byte("c")))

	it := kv.Iterator(nil, nil)
	defer it.Close()
	var keys []string
	for ; it.Valid(); it.Next() {
		keys = append(keys, string(it.Key()))
	}
	assert.Equal(t, []string{"a", "b"}, keys)
}

func TestKVStoreEmptyValue(t *testing.T) {
	kv := NewMemKVStore(log.TestingLogger())
	kv.WriteBatch([]Op{{Key: []byte("k"), Value: nil}})

	v, ok := kv.Read([]byte("k"))
	assert.True(t, ok)
	assert.Empty(t, v)
}

func TestKVStoreEngineErrorsAreFatal(t *testing.T) {
	db := NewMockDB()
	kv := NewKVStoreWithDB(db, log.TestingLogger())
	kv.WriteBatch([]Op{{Key: []byte("k"), Value: []byte("v")}})

	db.SetFail(true)
	assertFatal(t, func() { kv.Read([]byte("k")) })
	assertFatal(t, func() { kv.Exists([]byte("k")) })
	assertFatal(t, func() { kv.WriteBatch([]Op{{Key: []byte("x"), Value: []byte("y")}}) })

	db.SetFail(false)
	_, ok := kv.Read([]byte("x"))
	assert.False(t, ok, "failed batch must not be partially applied")
}

func assertFatal(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a panic")
		fe, ok := r.(*FatalError)
		require.True(t, ok, "panic value %v is not a *FatalError", r)
		assert.ErrorIs(t, fe, ErrMockFailure)
	}()
	fn()
}

func TestNewKVStoreBackends(t *testing.T) {
	kv, err := NewKVStore("memdb", "evodb", "", log.TestingLogger())
	require.NoError(t, err)
	kv.WriteBatch([]Op{{Key: []byte("k"), Value: []byte("v")}})
	assert.True(t, kv.Exists([]byte("k")))
	require.NoError(t, kv.Close())

	_, err = NewKVStore("rocksdb", "evodb", t.TempDir(), log.TestingLogger())
	assert.Error(t, err)
}

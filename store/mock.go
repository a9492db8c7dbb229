package store

import (
	"errors"
	"sync/atomic"

	tmdb "github.com/tendermint/tm-db"
	"github.com/tendermint/tm-db/memdb"
)

var ErrMockFailure = errors.New("mock engine failure")

// MockDB is an in-memory DB whose reads and batch writes can be made to fail,
// for exercising the fatal paths.
type MockDB struct {
	*memdb.MemDB

	fail int32
}

func NewMockDB() *MockDB {
	return &MockDB{MemDB: memdb.NewDB()}
}

// SetFail makes every following Get, Has and batch write fail.
func (mock *MockDB) SetFail(fail bool) {
	var v int32
	if fail {
		v = 1
	}
	atomic.StoreInt32(&mock.fail, v)
}

func (mock *MockDB) failing() bool {
	return atomic.LoadInt32(&mock.fail) == 1
}

func (mock *MockDB) Get(key []byte) ([]byte, error) {
	if mock.failing() {
		return nil, ErrMockFailure
	}
	return mock.MemDB.Get(key)
}

func (mock *MockDB) Has(key []byte) (bool, error) {
	if mock.failing() {
		return false, ErrMockFailure
	}
	return mock.MemDB.Has(key)
}

func (mock *MockDB) NewBatch() tmdb.Batch {
	return &mockBatch{Batch: mock.MemDB.NewBatch(), db: mock}
}

type mockBatch struct {
	tmdb.Batch
	db *MockDB
}

func (b *mockBatch) Write() error {
	if b.db.failing() {
		return ErrMockFailure
	}
	return b.Batch.Write()
}

func (b *mockBatch) WriteSync() error {
	if b.db.failing() {
		return ErrMockFailure
	}
	return b.Batch.WriteSync()
}

package store

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/log"
	tmdb "github.com/tendermint/tm-db"
	leveldb "github.com/tendermint/tm-db/goleveldb"
	"github.com/tendermint/tm-db/memdb"
)

// FatalError is the panic value for any engine failure other than "not
// found". Consensus state cannot be trusted after a partial write, so nothing
// outside tests recovers it.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("store: fatal %s error: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

func fatal(op string, err error) {
	panic(&FatalError{Op: op, Err: err})
}

// Reader is what an overlay transaction reads through to.
type Reader interface {
	Read(key []byte) ([]byte, bool)
	Exists(key []byte) bool
	Iterator(start, end []byte) tmdb.Iterator
}

// Writer is what a transaction commits into.
type Writer interface {
	Write(key, value []byte)
	Erase(key []byte)
}

// KVStore is the ordered key-value engine shared by the whole node. Callers
// keep to their own key prefix.
type KVStore struct {
	kvDB tmdb.DB

	logger log.Logger
}

// NewKVStore opens (or creates) name in dir with the given tm-db backend,
// e.g. "goleveldb" or "memdb".
func NewKVStore(backend, name, dir string, logger log.Logger) (*KVStore, error) {
	switch backend {
	case "goleveldb":
		levelDB, err := leveldb.NewDB(name, dir)
		if err != nil {
			return nil, err
		}
		return NewKVStoreWithDB(levelDB, logger), nil
	case "memdb":
		return NewMemKVStore(logger), nil
	default:
		return nil, errors.Errorf("unknown db backend %q", backend)
	}
}

func NewMemKVStore(logger log.Logger) *KVStore {
	return NewKVStoreWithDB(memdb.NewDB(), logger)
}

func NewKVStoreWithDB(kvdb tmdb.DB, logger log.Logger) *KVStore {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &KVStore{kvDB: kvdb, logger: logger}
}

// Read returns (nil, false) when key does not exist.
func (kv *KVStore) Read(key []byte) ([]byte, bool) {
	value, err := kv.kvDB.Get(key)
	if err != nil {
		fatal("read", err)
	}
	if value == nil {
		return nil, false
	}
	return value, true
}

func (kv *KVStore) Exists(key []byte) bool {
	ok, err := kv.kvDB.Has(key)
	if err != nil {
		fatal("exists", err)
	}
	return ok
}

// Iterator iterates [start, end) in ascending byte order. nil means unbounded.
func (kv *KVStore) Iterator(start, end []byte) tmdb.Iterator {
	it, err := kv.kvDB.Iterator(start, end)
	if err != nil {
		fatal("iterator", err)
	}
	return it
}

// Op is a single put or delete of a batch.
type Op struct {
	Key    []byte
	Value  []byte
	Delete bool
}

// WriteBatch applies ops atomically.
func (kv *KVStore) WriteBatch(ops []Op) {
	batch := kv.NewBatch()
	defer batch.Close()
	for _, op := range ops {
		if op.Delete {
			batch.Erase(op.Key)
		} else {
			batch.Write(op.Key, op.Value)
		}
	}
	batch.Commit()
}

func (kv *KVStore) NewBatch() *Batch {
	return &Batch{batch: kv.kvDB.NewBatch(), logger: kv.logger}
}

func (kv *KVStore) GetDB() tmdb.DB {
	return kv.kvDB
}

func (kv *KVStore) Close() error {
	return kv.kvDB.Close()
}

// Batch collects writes for one atomic, synced engine write. It implements
// Writer so a transaction can be committed straight into it.
type Batch struct {
	batch  tmdb.Batch
	ops    int
	logger log.Logger
}

func (b *Batch) Write(key, value []byte) {
	if value == nil {
		value = []byte{}
	}
	if err := b.batch.Set(key, value); err != nil {
		fatal("batch write", err)
	}
	b.ops++
}

func (b *Batch) Erase(key []byte) {
	if err := b.batch.Delete(key); err != nil {
		fatal("batch erase", err)
	}
	b.ops++
}

func (b *Batch) Size() int {
	return b.ops
}

// Commit writes the batch to disk and releases it.
func (b *Batch) Commit() {
	if b.batch == nil {
		return
	}
	if err := b.batch.WriteSync(); err != nil {
		fatal("batch commit", err)
	}
	b.logger.Debug("batch committed", "ops", b.ops)
	b.Close()
}

// Close discards whatever was not committed. Safe to call twice.
func (b *Batch) Close() {
	if b.batch == nil {
		return
	}
	if err := b.batch.Close(); err != nil {
		b.logger.Error("close batch", "err", err)
	}
	b.batch = nil
}

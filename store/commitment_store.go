package store

import (
	"errors"
	"sync"

	"github.com/tendermint/tendermint/libs/log"
	tmdb "github.com/tendermint/tm-db"
)

var ErrDirtyTransaction = errors.New("store: current transaction has uncommitted changes")

type (
	rootTx    = Transaction[*KVStore]
	currentTx = Transaction[*rootTx]
)

// CommitmentStore holds two nested transactions over the KVStore. current
// takes the speculative writes of one block. Once the block is accepted they
// are committed into root, and root is flushed to disk by CommitRoot every
// now and then.
//
// Every call is serialized by one lock.
type CommitmentStore struct {
	mtx sync.Mutex

	kv      *KVStore
	root    *rootTx
	current *currentTx

	logger log.Logger
}

func NewCommitmentStore(kv *KVStore) *CommitmentStore {
	root := NewTransaction(kv)
	return &CommitmentStore{
		kv:      kv,
		root:    root,
		current: NewTransaction(root),
		logger:  log.NewNopLogger(),
	}
}

func (s *CommitmentStore) SetLogger(l log.Logger) {
	s.logger = l
}

func (s *CommitmentStore) Read(key []byte) ([]byte, bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.current.Read(key)
}

func (s *CommitmentStore) Exists(key []byte) bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.current.Exists(key)
}

func (s *CommitmentStore) Write(key, value []byte) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.current.Write(key, value)
}

func (s *CommitmentStore) Erase(key []byte) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.current.Erase(key)
}

// Iterator sees the buffered state of both transactions. Close it before the
// next CommitRoot.
func (s *CommitmentStore) Iterator(start, end []byte) tmdb.Iterator {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.current.Iterator(start, end)
}

// BeginTransaction scopes the writes of one block. The caller either commits
// it into root or closes it, which throws the writes away.
func (s *CommitmentStore) BeginTransaction() *ScopedTransaction {
	return &ScopedTransaction{store: s}
}

// CommitRoot flushes root to the KVStore in one batch. The current
// transaction must be clean.
func (s *CommitmentStore) CommitRoot() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if !s.current.IsClean() {
		return ErrDirtyTransaction
	}
	if s.root.IsClean() {
		return nil
	}
	batch := s.kv.NewBatch()
	defer batch.Close()
	s.root.Commit(batch)
	ops := batch.Size()
	batch.Commit()
	s.logger.Info("flushed commitment store", "ops", ops)
	return nil
}

// IsRootClean is true when everything committed so far is on disk.
func (s *CommitmentStore) IsRootClean() bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.root.IsClean()
}

// ScopedTransaction is one block's worth of writes in the current
// transaction.
type ScopedTransaction struct {
	store *CommitmentStore
	done  bool
}

// Commit moves the writes into root.
func (tx *ScopedTransaction) Commit() {
	if tx.done {
		return
	}
	s := tx.store
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.current.Commit(s.root)
	tx.done = true
}

// Close rolls back unless Commit was called. Meant for defer.
func (tx *ScopedTransaction) Close() {
	if tx.done {
		return
	}
	s := tx.store
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.current.Clear()
	tx.done = true
}

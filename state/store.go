package state

import (
	"llmq_node/store"
	"llmq_node/types"
)

const (
	dbBlockByHeight = "b_h"
	dbBlockTip      = "b_tip"
)

// BlockStore persists the active chain by height so the commitment store can
// be rebuilt by replaying blocks after a restart. Every call is a synchronous
// batch, blocks never lag behind the tip.
type BlockStore struct {
	kv *store.KVStore
}

func NewBlockStore(kv *store.KVStore) *BlockStore {
	return &BlockStore{kv: kv}
}

func blockKey(height int64) []byte {
	e := types.NewEncoder()
	e.WriteString(dbBlockByHeight)
	e.WriteUint32BE(uint32(height))
	return e.Bytes()
}

func tipKey() []byte {
	e := types.NewEncoder()
	e.WriteString(dbBlockTip)
	return e.Bytes()
}

func heightBytes(height int64) []byte {
	e := types.NewEncoder()
	e.WriteUint64(uint64(height))
	return e.Bytes()
}

// Height returns -1 for an empty store.
func (bs *BlockStore) Height() int64 {
	bz, ok := bs.kv.Read(tipKey())
	if !ok {
		return -1
	}
	d := types.NewDecoder(bz)
	h := int64(d.ReadUint64())
	if d.Err() != nil {
		panic(&store.FatalError{Op: "decode", Err: d.Err()})
	}
	return h
}

func (bs *BlockStore) LoadBlock(height int64) (*types.Block, bool) {
	bz, ok := bs.kv.Read(blockKey(height))
	if !ok {
		return nil, false
	}
	b, err := types.BlockFromBytes(bz)
	if err != nil {
		panic(&store.FatalError{Op: "decode", Err: err})
	}
	return b, true
}

// SaveBlock stores block as the new tip.
func (bs *BlockStore) SaveBlock(block *types.Block) {
	batch := bs.kv.NewBatch()
	defer batch.Close()
	batch.Write(blockKey(block.Height), block.Bytes())
	batch.Write(tipKey(), heightBytes(block.Height))
	batch.Commit()
}

// DeleteTip drops the block at height, which must be the stored tip.
func (bs *BlockStore) DeleteTip(height int64) {
	batch := bs.kv.NewBatch()
	defer batch.Close()
	batch.Erase(blockKey(height))
	batch.Write(tipKey(), heightBytes(height-1))
	batch.Commit()
}

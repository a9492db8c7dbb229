package types

import (
	"errors"
	"sync"
)

var (
	ErrDuplicatedBlock = errors.New("Duplicated block data in Block Tree")
	ErrNoQueryBlock    = errors.New("No such Block queried by hash value")
)

// BlockIndex is the in-memory header of a known block. Every known block,
// on any branch, has exactly one BlockIndex.
type BlockIndex struct {
	Height int64
	Hash   Hash
	Prev   *BlockIndex

	// skip list pointer, makes GetAncestor O(log n)
	skip *BlockIndex
}

// GetAncestor returns the ancestor at height, or nil if height is out of range.
func (idx *BlockIndex) GetAncestor(height int64) *BlockIndex {
	if idx == nil || height > idx.Height || height < 0 {
		return nil
	}
	walk := idx
	for walk.Height > height {
		if walk.skip != nil && walk.skip.Height >= height {
			walk = walk.skip
		} else {
			walk = walk.Prev
		}
	}
	return walk
}

// IsAncestorOf is true for idx itself as well.
func (idx *BlockIndex) IsAncestorOf(other *BlockIndex) bool {
	if idx == nil || other == nil {
		return false
	}
	return other.GetAncestor(idx.Height) == idx
}

func (idx *BlockIndex) buildSkip() {
	if idx.Prev == nil {
		return
	}
	idx.skip = idx.Prev.GetAncestor(skipHeight(idx.Height))
}

func invertLowestOne(n int64) int64 {
	return n & (n - 1)
}

func skipHeight(height int64) int64 {
	if height < 2 {
		return 0
	}
	if height&1 == 1 {
		return invertLowestOne(invertLowestOne(height-1)) + 1
	}
	return invertLowestOne(height)
}

// BlockTree 保存所有收到的区块索引（包括分叉），根节点一定是genesis block
type BlockTree struct {
	mtx     sync.RWMutex
	genesis *BlockIndex
	index   map[Hash]*BlockIndex
}

func NewBlockTree(genesis *Block) *BlockTree {
	root := &BlockIndex{Height: 0, Hash: genesis.Hash()}
	return &BlockTree{
		genesis: root,
		index:   map[Hash]*BlockIndex{root.Hash: root},
	}
}

func (tree *BlockTree) Genesis() *BlockIndex {
	return tree.genesis
}

// AddBlock inserts block under its parent and returns the new index.
// 如果父节点为空或反复插入同样的节点数据返回error
func (tree *BlockTree) AddBlock(block *Block) (*BlockIndex, error) {
	tree.mtx.Lock()
	defer tree.mtx.Unlock()

	parent, ok := tree.index[block.LastBlockHash]
	if !ok {
		return nil, ErrNoQueryBlock
	}

	hash := block.Hash()
	if _, ok := tree.index[hash]; ok {
		return nil, ErrDuplicatedBlock
	}

	idx := &BlockIndex{
		Height: parent.Height + 1,
		Hash:   hash,
		Prev:   parent,
	}
	idx.buildSkip()
	tree.index[hash] = idx
	return idx, nil
}

// Lookup returns nil when the hash is unknown.
func (tree *BlockTree) Lookup(hash Hash) *BlockIndex {
	tree.mtx.RLock()
	defer tree.mtx.RUnlock()
	return tree.index[hash]
}

func (tree *BlockTree) Size() int {
	tree.mtx.RLock()
	defer tree.mtx.RUnlock()
	return len(tree.index)
}

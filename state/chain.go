package state

import (
	"sync"

	"github.com/pkg/errors"

	"llmq_node/types"
)

var ErrUnknownParent = errors.New("state: parent block unknown")

// Chain is every known block plus the active chain, the branch ending in the
// tip. It implements llmq.ChainState.
type Chain struct {
	mtx sync.RWMutex

	chainID string
	tree    *types.BlockTree
	blocks  map[types.Hash]*types.Block

	// active[h] 是活跃链上高度为h的区块
	active []*types.BlockIndex
}

// NewChain starts a chain whose tip is genesis.
func NewChain(genesis *types.Block) *Chain {
	tree := types.NewBlockTree(genesis)
	return &Chain{
		chainID: genesis.ChainID,
		tree:    tree,
		blocks:  map[types.Hash]*types.Block{tree.Genesis().Hash: genesis},
		active:  []*types.BlockIndex{tree.Genesis()},
	}
}

func (c *Chain) ChainID() string {
	return c.chainID
}

func (c *Chain) Genesis() *types.BlockIndex {
	return c.tree.Genesis()
}

func (c *Chain) Tip() *types.BlockIndex {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.active[len(c.active)-1]
}

func (c *Chain) Height() int64 {
	return c.Tip().Height
}

// Lookup finds a block on any branch.
func (c *Chain) Lookup(hash types.Hash) *types.BlockIndex {
	return c.tree.Lookup(hash)
}

// AtHeight returns the active chain block at height, or nil.
func (c *Chain) AtHeight(height int64) *types.BlockIndex {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	if height < 0 || height >= int64(len(c.active)) {
		return nil
	}
	return c.active[height]
}

// Contains reports whether idx is on the active chain.
func (c *Chain) Contains(idx *types.BlockIndex) bool {
	return idx != nil && c.AtHeight(idx.Height) == idx
}

func (c *Chain) GetBlock(hash types.Hash) (*types.Block, bool) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	b, ok := c.blocks[hash]
	return b, ok
}

// AddBlock indexes block without changing the tip. Adding a known block
// returns its index.
func (c *Chain) AddBlock(block *types.Block) (*types.BlockIndex, error) {
	if idx := c.tree.Lookup(block.Hash()); idx != nil {
		return idx, nil
	}
	idx, err := c.tree.AddBlock(block)
	if err == types.ErrNoQueryBlock {
		return nil, ErrUnknownParent
	}
	if err != nil {
		return nil, err
	}

	c.mtx.Lock()
	c.blocks[idx.Hash] = block
	c.mtx.Unlock()
	return idx, nil
}

// SetTip makes idx the tip, switching branches if needed.
func (c *Chain) SetTip(idx *types.BlockIndex) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if int64(len(c.active)) > idx.Height+1 {
		c.active = c.active[:idx.Height+1]
	}
	for int64(len(c.active)) < idx.Height+1 {
		c.active = append(c.active, nil)
	}
	// 从新tip往回走到分叉点
	for walk := idx; walk != nil && c.active[walk.Height] != walk; walk = walk.Prev {
		c.active[walk.Height] = walk
	}
}

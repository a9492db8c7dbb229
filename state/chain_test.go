package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmq_node/types"
)

func TestChainSetTipSwitchesBranches(t *testing.T) {
	chain := NewChain(testGenesis)
	assert.Equal(t, chain.Genesis(), chain.Tip())
	assert.EqualValues(t, 0, chain.Height())

	extend := func(prev *types.BlockIndex, tag string) *types.BlockIndex {
		block := types.MakeBlock(testChainID, prev, types.Txs{{Version: types.CurrentTxVersion, Payload: []byte(tag)}})
		idx, err := chain.AddBlock(block)
		require.NoError(t, err)
		return idx
	}

	// genesis - a1 - a2 - a3
	//         \ b1 - b2
	a1 := extend(chain.Genesis(), "a1")
	a2 := extend(a1, "a2")
	a3 := extend(a2, "a3")
	b1 := extend(chain.Genesis(), "b1")
	b2 := extend(b1, "b2")
	assert.Equal(t, chain.Genesis(), chain.Tip(), "adding blocks keeps the tip")

	chain.SetTip(a3)
	assert.Equal(t, a3, chain.Tip())
	assert.Equal(t, a2, chain.AtHeight(2))
	assert.True(t, chain.Contains(a1))
	assert.False(t, chain.Contains(b1))

	chain.SetTip(b2)
	assert.EqualValues(t, 2, chain.Height())
	assert.Equal(t, b1, chain.AtHeight(1))
	assert.Nil(t, chain.AtHeight(3))
	assert.False(t, chain.Contains(a1))
	assert.Equal(t, a1, chain.Lookup(a1.Hash), "other branches stay known")

	chain.SetTip(chain.Genesis())
	assert.Nil(t, chain.AtHeight(1))
	assert.True(t, chain.Contains(chain.Genesis()))
}

func TestChainAddBlock(t *testing.T) {
	chain := NewChain(testGenesis)
	block := types.MakeBlock(testChainID, chain.Genesis(), nil)

	idx, err := chain.AddBlock(block)
	require.NoError(t, err)
	again, err := chain.AddBlock(block)
	require.NoError(t, err)
	assert.Equal(t, idx, again)

	got, ok := chain.GetBlock(idx.Hash)
	require.True(t, ok)
	assert.Equal(t, block, got)

	orphan := types.MakeBlock(testChainID, &types.BlockIndex{Height: 7, Hash: types.DoubleHash([]byte("x"))}, nil)
	_, err = chain.AddBlock(orphan)
	assert.Equal(t, ErrUnknownParent, err)
}

func TestBlockStore(t *testing.T) {
	n := newTestNode(t, memKV(t))
	bs := NewBlockStore(n.kv)
	assert.EqualValues(t, 0, bs.Height(), "genesis is stored on first start")

	n.mineTo(t, 3)
	assert.EqualValues(t, 3, bs.Height())
	stored, ok := bs.LoadBlock(2)
	require.True(t, ok)
	assert.Equal(t, n.chain.AtHeight(2).Hash, stored.Hash())

	require.NoError(t, n.exec.DisconnectTip())
	assert.EqualValues(t, 2, bs.Height())
	_, ok = bs.LoadBlock(3)
	assert.False(t, ok)
}

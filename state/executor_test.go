package state

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"

	"llmq_node/llmq"
	"llmq_node/store"
	"llmq_node/types"
)

func memKV(t *testing.T) *store.KVStore {
	return store.NewMemKVStore(log.TestingLogger())
}

func TestConnectMinesCommitment(t *testing.T) {
	n := newTestNode(t, memKV(t))
	n.mineTo(t, 22)
	quorum := n.chain.AtHeight(20)

	qc := n.commitment(t, quorum.Hash, 0, 1, 2, 3)
	require.NoError(t, n.bp.ProcessMessage(qc, "peer"))

	// heights 23 and 24 are before the mining window
	n.mineTo(t, 24)
	assert.False(t, n.bp.HasMinedCommitment(types.LLMQTest, quorum.Hash))

	idx := n.mine(t)
	mined, blockHash, ok := n.bp.GetMinedCommitment(types.LLMQTest, quorum.Hash)
	require.True(t, ok)
	assert.Equal(t, qc.Hash(), mined.Hash())
	assert.Equal(t, idx.Hash, blockHash)

	// nothing more to mine for this session
	block := n.exec.CreateBlock(nil)
	qcs, err := llmq.GetCommitmentsFromBlock(block)
	require.NoError(t, err)
	assert.Empty(t, qcs)
}

func TestConnectBlockRejects(t *testing.T) {
	n := newTestNode(t, memKV(t))
	n.mineTo(t, 24)
	tip := n.chain.Tip()

	// a block missing the required commitment
	_, err := n.exec.ConnectBlock(types.MakeBlock(testChainID, tip, nil))
	assert.Equal(t, llmq.RejectMissing, llmq.RejectCode(err))
	assert.Equal(t, tip, n.chain.Tip())

	// commitment payload at the wrong height is caught before processing
	tx, ok := n.bp.GetMinableCommitmentTx(types.LLMQTest, 26)
	require.True(t, ok)
	_, err = n.exec.ConnectBlock(types.MakeBlock(testChainID, tip, types.Txs{tx}))
	assert.Equal(t, llmq.RejectHeight, llmq.RejectCode(err))

	_, err = n.exec.ConnectBlock(types.MakeBlock("other-chain", tip, nil))
	assert.ErrorIs(t, err, ErrWrongChainID)

	_, err = n.exec.ConnectBlock(types.MakeBlock(testChainID, tip.Prev, nil))
	assert.Equal(t, ErrNotOnTip, err)

	_, err = n.exec.ConnectBlock(types.MakeBlock(testChainID, &types.BlockIndex{Height: 24, Hash: types.DoubleHash(nil)}, nil))
	assert.Equal(t, ErrUnknownParent, err)

	assert.Equal(t, tip, n.chain.Tip())
	n.mine(t)
}

func TestDisconnectTip(t *testing.T) {
	n := newTestNode(t, memKV(t))
	n.mineTo(t, 24)
	quorum := n.chain.AtHeight(20)
	qc := n.commitment(t, quorum.Hash, 0, 1, 2)
	require.NoError(t, n.bp.ProcessMessage(qc, "peer"))
	n.mine(t)
	require.True(t, n.bp.HasMinedCommitment(types.LLMQTest, quorum.Hash))

	require.NoError(t, n.exec.DisconnectTip())
	assert.EqualValues(t, 24, n.chain.Height())
	assert.False(t, n.bp.HasMinedCommitment(types.LLMQTest, quorum.Hash))
	assert.True(t, n.bp.HasMinableCommitment(qc.Hash()))

	// a different block at the same height mines it again
	idx := n.mine(t)
	_, blockHash, ok := n.bp.GetMinedCommitment(types.LLMQTest, quorum.Hash)
	require.True(t, ok)
	assert.Equal(t, idx.Hash, blockHash)

	for n.chain.Height() > 0 {
		require.NoError(t, n.exec.DisconnectTip())
	}
	assert.Equal(t, ErrGenesisTip, n.exec.DisconnectTip())
	assert.False(t, n.bp.HasMinedCommitment(types.LLMQTest, quorum.Hash))
}

func TestFlushInterval(t *testing.T) {
	n := newTestNode(t, memKV(t), WithFlushInterval(3))
	n.mineTo(t, 24)
	quorum := n.chain.AtHeight(20)
	require.NoError(t, n.bp.ProcessMessage(n.commitment(t, quorum.Hash, 0, 1, 2), "peer"))

	// 24 blocks connected so far, the 25th is one past a flush
	n.mine(t)
	assert.False(t, n.db.IsRootClean())
	assert.False(t, n.kv.Exists(mustMinedKey(t, n, quorum.Hash)))

	n.mineTo(t, 27)
	assert.True(t, n.db.IsRootClean())
	assert.True(t, n.kv.Exists(mustMinedKey(t, n, quorum.Hash)))
}

// mustMinedKey finds the on-disk key of the mined commitment by scanning the
// store for the quorum hash.
func mustMinedKey(t *testing.T, n *testNode, quorumHash types.Hash) []byte {
	it := n.db.Iterator(nil, nil)
	defer it.Close()
	for ; it.Valid(); it.Next() {
		k := it.Key()
		if len(k) >= types.HashSize && bytes.Equal(k[len(k)-types.HashSize:], quorumHash.Bytes()) {
			return append([]byte{}, k...)
		}
	}
	t.Fatalf("no mined commitment for %v", quorumHash)
	return nil
}

func TestReplayRebuildsCommitments(t *testing.T) {
	kv := memKV(t)
	n := newTestNode(t, kv, WithFlushInterval(1000))
	n.mineTo(t, 24)
	quorum := n.chain.AtHeight(20)
	qc := n.commitment(t, quorum.Hash, 0, 1, 2, 4)
	require.NoError(t, n.bp.ProcessMessage(qc, "peer"))
	n.mineTo(t, 30)
	require.True(t, n.bp.HasMinedCommitment(types.LLMQTest, quorum.Hash))
	require.False(t, n.db.IsRootClean(), "nothing flushed yet")
	tip := n.chain.Tip()

	// restart on the same disk, the commitment store was never flushed
	restarted := newTestNode(t, kv, WithFlushInterval(1000))
	assert.Equal(t, tip.Hash, restarted.chain.Tip().Hash)
	assert.False(t, restarted.bp.IsReplayMode())
	assert.True(t, restarted.db.IsRootClean())

	mined, blockHash, ok := restarted.bp.GetMinedCommitment(types.LLMQTest, quorum.Hash)
	require.True(t, ok)
	assert.Equal(t, qc.Hash(), mined.Hash())
	assert.Equal(t, n.chain.AtHeight(25).Hash, blockHash)

	// and it keeps going from there
	restarted.mine(t)
	assert.EqualValues(t, 31, restarted.chain.Height())
}

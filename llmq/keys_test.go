package llmq

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"

	"llmq_node/store"
	"llmq_node/types"
)

func TestInversedHeightOrdering(t *testing.T) {
	db := store.NewCommitmentStore(store.NewMemKVStore(log.TestingLogger()))
	for _, h := range []int64{10, 50, 30} {
		db.Write(inversedHeightKey(types.LLMQTest, h), quorumHeight(h-5).Bytes())
	}
	// another type is never picked up
	db.Write(inversedHeightKey(types.LLMQ50_60, 40), quorumHeight(35).Bytes())

	it := db.Iterator(inversedHeightKey(types.LLMQTest, 1000), inversedHeightKey(types.LLMQTest, 0))
	defer it.Close()
	var mined, quorums []int64
	for ; it.Valid(); it.Next() {
		h, ok := parseInversedHeightKey(it.Key(), types.LLMQTest)
		require.True(t, ok)
		q, err := quorumHeightFromBytes(it.Value())
		require.NoError(t, err)
		mined = append(mined, h)
		quorums = append(quorums, int64(q))
	}
	assert.Equal(t, []int64{50, 30, 10}, mined)
	assert.Equal(t, []int64{45, 25, 5}, quorums)

	_, ok := parseInversedHeightKey(inversedHeightKey(types.LLMQ50_60, 40), types.LLMQTest)
	assert.False(t, ok)
	_, ok = parseInversedHeightKey(minedCommitmentKey(types.LLMQTest, types.ZeroHash), types.LLMQTest)
	assert.False(t, ok)
}

func TestKeyNamespaces(t *testing.T) {
	a := types.DoubleHash([]byte("a"))
	assert.True(t, bytes.HasPrefix(minedCommitmentKey(types.LLMQTest, a), []byte("\x04q_mc")))
	assert.True(t, bytes.HasPrefix(inversedHeightKey(types.LLMQTest, 1), []byte("\x06q_mcih")))
	assert.NotEqual(t, minedCommitmentKey(types.LLMQTest, a), minedCommitmentKey(types.LLMQ50_60, a))
}

func TestCorruptRecordIsFatal(t *testing.T) {
	f := newFixture(t, testParams(5, 3))
	quorumHash := f.chain.Tip().Hash
	f.db.Write(minedCommitmentKey(types.LLMQTest, quorumHash), []byte{1, 2, 3})

	defer func() {
		r := recover()
		require.NotNil(t, r)
		_, ok := r.(*store.FatalError)
		assert.True(t, ok, "panic value %v", r)
	}()
	f.bp.GetMinedCommitment(types.LLMQTest, quorumHash)
}

func TestMinedRecordRoundTrip(t *testing.T) {
	f := newFixture(t, testParams(5, 3))
	qc := f.commitment(t, f.chain.Tip().Hash, 0, 1, 2)
	blockHash := types.DoubleHash([]byte("block"))

	bz := minedRecord{Commitment: qc, BlockHash: blockHash}.Bytes()
	r, err := minedRecordFromBytes(bz)
	require.NoError(t, err)
	assert.Equal(t, qc.Hash(), r.Commitment.Hash())
	assert.Equal(t, blockHash, r.BlockHash)

	_, err = minedRecordFromBytes(append(bz, 0))
	assert.Error(t, err)
	_, err = quorumHeightFromBytes([]byte{1, 2})
	assert.Error(t, err)
}

package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"

	"llmq_node/crypto/bls"
	"llmq_node/crypto/threshold"
	"llmq_node/llmq"
	"llmq_node/store"
	"llmq_node/types"
)

const testChainID = "state_test"

var (
	testLLMQ = types.LLMQParams{
		Type:                     types.LLMQTest,
		Name:                     "llmq_test",
		Size:                     5,
		MinSize:                  3,
		DkgInterval:              20,
		DkgMiningWindowStart:     5,
		DkgMiningWindowEnd:       10,
		SigningActiveQuorumCount: 2,
	}
	testGenesis = types.MakeGenesisBlock(testChainID, time.Unix(1600000000, 0))
)

type testNode struct {
	kv     *store.KVStore
	db     *store.CommitmentStore
	chain  *Chain
	mnList *types.MasternodeList
	keys   map[types.Hash]bls.SecretKey
	bp     *llmq.BlockProcessor
	exec   *BlockExecutor
}

// newTestNode builds a node on kv. Nodes built on the same kv share the
// block store, like a restarted process.
func newTestNode(t *testing.T, kv *store.KVStore, options ...ExecutorOption) *testNode {
	n := &testNode{kv: kv}
	n.db = store.NewCommitmentStore(kv)
	n.chain = NewChain(testGenesis)
	n.mnList, n.keys = types.RandMasternodeList(testLLMQ.Size, 77)
	n.bp = llmq.NewBlockProcessor(types.NewLLMQParamsSet(testLLMQ), n.db, n.chain, n.mnList)
	n.bp.SetLogger(log.TestingLogger())
	options = append([]ExecutorOption{WithBlockStore(NewBlockStore(kv))}, options...)
	n.exec = NewBlockExecutor(n.chain, n.db, n.bp, n.mnList, options...)
	n.exec.SetLogger(log.TestingLogger())
	require.NoError(t, n.exec.Replay())
	return n
}

func (n *testNode) mine(t *testing.T, txs ...*types.Tx) *types.BlockIndex {
	idx, err := n.exec.ConnectBlock(n.exec.CreateBlock(txs))
	require.NoError(t, err)
	return idx
}

func (n *testNode) mineTo(t *testing.T, height int64) {
	for n.chain.Height() < height {
		n.mine(t)
	}
}

// commitment is signed by the committee members at signerIdx.
func (n *testNode) commitment(t *testing.T, quorumHash types.Hash, signerIdx ...int) *llmq.FinalCommitment {
	members := n.mnList.CalculateQuorum(testLLMQ, quorumHash)
	q, err := threshold.MasterWithSeed(testLLMQ.MinSize, testLLMQ.Size, 5)
	require.NoError(t, err)

	qc := llmq.NewFinalCommitment(testLLMQ, quorumHash)
	for _, i := range signerIdx {
		qc.Signers.Set(i)
		qc.ValidMembers.Set(i)
	}
	qc.QuorumPublicKey = q.PublicKey()
	qc.QuorumVvecHash = types.DoubleHash(q.PublicKey().Bytes())
	hash := llmq.BuildCommitmentHash(qc.LLMQType, quorumHash, qc.ValidMembers, qc.QuorumPublicKey, qc.QuorumVvecHash)

	var (
		shares [][]byte
		pks    []bls.PublicKey
		sigs   []bls.Signature
	)
	for _, i := range signerIdx {
		share, err := q.SignShare(i, hash.Bytes())
		require.NoError(t, err)
		shares = append(shares, share)
		sig, err := n.keys[members[i].ProTxHash].Sign(hash.Bytes())
		require.NoError(t, err)
		pks = append(pks, members[i].PubKeyOperator)
		sigs = append(sigs, sig)
	}
	qc.QuorumSig, err = q.Recover(hash.Bytes(), shares)
	require.NoError(t, err)
	qc.MembersSig, err = bls.AggregateSecure(pks, sigs)
	require.NoError(t, err)
	return qc
}

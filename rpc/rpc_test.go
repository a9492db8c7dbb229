package rpc

import (
	"encoding/hex"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"

	"llmq_node/crypto/bls"
	"llmq_node/crypto/threshold"
	"llmq_node/libs/metric"
	"llmq_node/llmq"
	"llmq_node/state"
	"llmq_node/store"
	"llmq_node/types"
)

var ctx = &rpctypes.Context{}

type rpcFixture struct {
	params types.LLMQParams
	keys   map[types.Hash]bls.SecretKey
}

func setupEnv(t *testing.T) *rpcFixture {
	paramsSet, err := types.LLMQParamsForNetwork("regtest")
	require.NoError(t, err)
	params, _ := paramsSet.Get(types.LLMQTest)

	kv := store.NewMemKVStore(log.TestingLogger())
	db := store.NewCommitmentStore(kv)
	chain := state.NewChain(types.MakeGenesisBlock("rpc_test", time.Unix(1600000000, 0)))
	mnList, keys := types.RandMasternodeList(params.Size, 500)
	bp := llmq.NewBlockProcessor(paramsSet, db, chain, mnList)
	exec := state.NewBlockExecutor(chain, db, bp, mnList, state.WithBlockStore(state.NewBlockStore(kv)))
	require.NoError(t, exec.Replay())

	metricSet := metric.NewMetricSet()
	require.NoError(t, metricSet.SetMetrics("llmq", bp.Metrics()))

	SetEnvironment(&Environment{
		Processor: bp,
		BlockExec: exec,
		MNList:    mnList,
		Reactor:   llmq.NewReactor(bp),
		Network:   "regtest",
		MetricSet: metricSet,
		Logger:    log.TestingLogger(),
	})
	return &rpcFixture{params: params, keys: keys}
}

// commitment is signed by every committee member.
func (f *rpcFixture) commitment(t *testing.T, quorumHash types.Hash) *llmq.FinalCommitment {
	members := env.MNList.CalculateQuorum(f.params, quorumHash)
	q, err := threshold.MasterWithSeed(f.params.MinSize, f.params.Size, 3)
	require.NoError(t, err)

	qc := llmq.NewFinalCommitment(f.params, quorumHash)
	qc.QuorumPublicKey = q.PublicKey()
	qc.QuorumVvecHash = types.DoubleHash(q.PublicKey().Bytes())
	var (
		shares [][]byte
		pks    []bls.PublicKey
		sigs   []bls.Signature
	)
	for i := range members {
		qc.Signers.Set(i)
		qc.ValidMembers.Set(i)
	}
	hash := llmq.BuildCommitmentHash(qc.LLMQType, quorumHash, qc.ValidMembers, qc.QuorumPublicKey, qc.QuorumVvecHash)
	for i, mn := range members {
		share, err := q.SignShare(i, hash.Bytes())
		require.NoError(t, err)
		shares = append(shares, share)
		sig, err := f.keys[mn.ProTxHash].Sign(hash.Bytes())
		require.NoError(t, err)
		pks = append(pks, mn.PubKeyOperator)
		sigs = append(sigs, sig)
	}
	qc.QuorumSig, err = q.Recover(hash.Bytes(), shares)
	require.NoError(t, err)
	qc.MembersSig, err = bls.AggregateSecure(pks, sigs)
	require.NoError(t, err)
	return qc
}

func generate(t *testing.T, count int) *ResultGenerateBlocks {
	res, err := GenerateBlocks(ctx, count)
	require.NoError(t, err)
	require.Len(t, res.Blocks, count)
	return res
}

func TestStatusAndGenerate(t *testing.T) {
	setupEnv(t)

	status, err := Status(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, status.Height)
	assert.Equal(t, "rpc_test", status.ChainID)
	assert.Equal(t, 3, status.Masternodes)

	generate(t, 5)
	status, err = Status(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 5, status.Height)

	_, err = GenerateBlocks(ctx, 0)
	assert.Error(t, err)
	env.Network = "main"
	_, err = GenerateBlocks(ctx, 1)
	assert.Error(t, err, "regtest only")
}

func TestCommitmentLifecycle(t *testing.T) {
	f := setupEnv(t)
	llmqType := int(types.LLMQTest)

	generate(t, 30)
	quorum := env.chain().AtHeight(24)
	quorumHash := quorum.Hash.String()

	// nothing cached yet, the window requires a null commitment
	minable, err := MinableCommitment(ctx, llmqType, 36)
	require.NoError(t, err)
	require.True(t, minable.Required)
	assert.Equal(t, 0, minable.Payload.Commitment.SignersCount)
	minable, err = MinableCommitment(ctx, llmqType, 31)
	require.NoError(t, err)
	assert.False(t, minable.Required)

	qc := f.commitment(t, quorum.Hash)
	submitted, err := SubmitCommitment(ctx, hex.EncodeToString(qc.Bytes()))
	require.NoError(t, err)
	assert.True(t, submitted.Accepted)
	assert.Equal(t, qc.Hash(), submitted.Hash)

	_, err = SubmitCommitment(ctx, "zz")
	assert.Error(t, err)

	res := generate(t, 6)
	mined := res.Blocks[5]
	assert.EqualValues(t, 36, mined.Height)
	require.Len(t, mined.Commitments, 1)
	assert.Equal(t, 3, mined.Commitments[0].Commitment.SignersCount)

	got, err := MinedCommitment(ctx, llmqType, quorumHash)
	require.NoError(t, err)
	assert.Equal(t, mined.Hash, got.MinedBlock)
	assert.EqualValues(t, 24, got.QuorumHeight)

	members, err := QuorumMembers(ctx, llmqType, quorumHash)
	require.NoError(t, err)
	assert.True(t, members.Mined)
	require.Len(t, members.Members, 3)
	for _, m := range members.Members {
		assert.True(t, m.Valid)
		assert.True(t, m.Signed)
	}

	list, err := MinedCommitments(ctx, llmqType, 0)
	require.NoError(t, err)
	assert.Equal(t, []ResultMinedQuorum{{Height: 24, QuorumHash: quorum.Hash}}, list.Quorums)
	list, err = MinedCommitments(ctx, llmqType, math.MaxInt32)
	require.NoError(t, err)
	assert.Len(t, list.Quorums, 1)

	metrics, err := LLMQMetrics(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, metrics.Metrics["llmq"], `"accepted":1`)
}

func TestRouteArgumentErrors(t *testing.T) {
	setupEnv(t)
	generate(t, 2)
	tip := env.chain().Tip().Hash.String()

	_, err := MinedCommitment(ctx, int(types.LLMQ400_60), tip)
	assert.Error(t, err, "type not enabled on regtest")
	_, err = MinedCommitment(ctx, 300, tip)
	assert.Error(t, err)
	_, err = MinedCommitment(ctx, int(types.LLMQTest), "abc")
	assert.Error(t, err)
	_, err = MinedCommitment(ctx, int(types.LLMQTest), tip)
	assert.Error(t, err, "nothing mined")

	_, err = QuorumMembers(ctx, int(types.LLMQTest), types.DoubleHash(nil).String())
	assert.Error(t, err, "unknown block")
	_, err = QuorumNodes(ctx, int(types.LLMQTest), tip)
	assert.Error(t, err)

	metrics, err := LLMQMetrics(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, metrics.Metrics)
}

package llmq

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"

	"llmq_node/crypto/bls"
	"llmq_node/crypto/threshold"
	"llmq_node/store"
	"llmq_node/types"
)

const testChainID = "llmq-test"

// interval 20, mining window [5, 10]
func testParams(size, minSize int) types.LLMQParams {
	return types.LLMQParams{
		Type:                     types.LLMQTest,
		Name:                     "llmq_test",
		Size:                     size,
		MinSize:                  minSize,
		DkgInterval:              20,
		DkgMiningWindowStart:     5,
		DkgMiningWindowEnd:       10,
		SigningActiveQuorumCount: 2,
	}
}

type testChain struct {
	mtx  sync.Mutex
	tree *types.BlockTree
	tip  *types.BlockIndex
}

func newTestChain() *testChain {
	tree := types.NewBlockTree(types.MakeGenesisBlock(testChainID, time.Unix(0, 0)))
	return &testChain{tree: tree, tip: tree.Genesis()}
}

func (c *testChain) Tip() *types.BlockIndex {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.tip
}

func (c *testChain) setTip(idx *types.BlockIndex) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.tip = idx
}

func (c *testChain) Lookup(hash types.Hash) *types.BlockIndex {
	return c.tree.Lookup(hash)
}

// addBlock builds a block on prev without touching the tip. The normal tx
// makes sibling blocks differ.
func (c *testChain) addBlock(t *testing.T, prev *types.BlockIndex, txs ...*types.Tx) (*types.Block, *types.BlockIndex) {
	salt := &types.Tx{Version: types.CurrentTxVersion, Type: types.TxTypeNormal,
		Payload: []byte(fmt.Sprintf("%d-%d", prev.Height+1, c.tree.Size()))}
	block := types.MakeBlock(testChainID, prev, append(types.Txs{salt}, txs...))
	idx, err := c.tree.AddBlock(block)
	require.NoError(t, err)
	return block, idx
}

// extend adds n blocks to the tip without processing them.
func (c *testChain) extend(t *testing.T, n int) {
	for i := 0; i < n; i++ {
		_, idx := c.addBlock(t, c.Tip())
		c.setTip(idx)
	}
}

type fixture struct {
	chain  *testChain
	llmq   types.LLMQParams
	params types.LLMQParamsSet
	mnList *types.MasternodeList
	keys   map[types.Hash]bls.SecretKey
	kv     *store.KVStore
	db     *store.CommitmentStore
	bp     *BlockProcessor

	blocks map[types.Hash]*types.Block
}

func newFixture(t *testing.T, llmq types.LLMQParams, options ...ProcessorOption) *fixture {
	f := &fixture{
		chain:  newTestChain(),
		llmq:   llmq,
		params: types.NewLLMQParamsSet(llmq),
		kv:     store.NewMemKVStore(log.TestingLogger()),
		blocks: make(map[types.Hash]*types.Block),
	}
	f.mnList, f.keys = types.RandMasternodeList(llmq.Size, 1000)
	f.db = store.NewCommitmentStore(f.kv)
	f.bp = NewBlockProcessor(f.params, f.db, f.chain, f.mnList, options...)
	f.bp.SetLogger(log.TestingLogger())
	return f
}

// connect processes block at idx the way the block executor does and makes
// it the tip.
func (f *fixture) connect(block *types.Block, idx *types.BlockIndex) error {
	tx := f.db.BeginTransaction()
	defer tx.Close()
	if err := f.bp.ProcessBlock(block, idx, false); err != nil {
		return err
	}
	tx.Commit()
	f.blocks[idx.Hash] = block
	f.chain.setTip(idx)
	f.bp.UpdatedBlockTip(idx, false)
	return nil
}

func (f *fixture) disconnect(t *testing.T, idx *types.BlockIndex) {
	tx := f.db.BeginTransaction()
	defer tx.Close()
	require.NoError(t, f.bp.UndoBlock(f.blocks[idx.Hash], idx))
	tx.Commit()
	f.chain.setTip(idx.Prev)
	f.bp.UpdatedBlockTip(idx.Prev, false)
}

// mine connects a block with txs on the tip. Unless txs carry a commitment
// the one the processor says is minable is added.
func (f *fixture) mine(t *testing.T, txs ...*types.Tx) *types.BlockIndex {
	height := f.chain.Tip().Height + 1
	hasCommitment := false
	for _, tx := range txs {
		hasCommitment = hasCommitment || tx.IsQuorumCommitmentTx()
	}
	if tx, ok := f.bp.GetMinableCommitmentTx(f.llmq.Type, height); ok && !hasCommitment {
		txs = append(txs, tx)
	}
	block, idx := f.chain.addBlock(t, f.chain.Tip(), txs...)
	require.NoError(t, f.connect(block, idx))
	return idx
}

func (f *fixture) mineTo(t *testing.T, height int64) {
	for f.chain.Tip().Height < height {
		f.mine(t)
	}
}

func (f *fixture) members(quorumHash types.Hash) []*types.Masternode {
	return f.mnList.CalculateQuorum(f.llmq, quorumHash)
}

// commitment returns a fully signed commitment for quorumHash where the
// members at signerIdx signed and are valid.
func (f *fixture) commitment(t *testing.T, quorumHash types.Hash, signerIdx ...int) *FinalCommitment {
	members := f.members(quorumHash)
	q, err := threshold.MasterWithSeed(f.llmq.MinSize, f.llmq.Size, int64(len(signerIdx)))
	require.NoError(t, err)

	qc := NewFinalCommitment(f.llmq, quorumHash)
	for _, i := range signerIdx {
		qc.Signers.Set(i)
		qc.ValidMembers.Set(i)
	}
	qc.QuorumPublicKey = q.PublicKey()
	e := types.NewEncoder()
	for _, c := range q.VerificationVector() {
		e.WriteFixed(c)
	}
	qc.QuorumVvecHash = types.DoubleHash(e.Bytes())

	hash := BuildCommitmentHash(qc.LLMQType, quorumHash, qc.ValidMembers, qc.QuorumPublicKey, qc.QuorumVvecHash)

	var (
		shares [][]byte
		pks    []bls.PublicKey
		sigs   []bls.Signature
	)
	for _, i := range signerIdx {
		share, err := q.SignShare(i, hash.Bytes())
		require.NoError(t, err)
		shares = append(shares, share)

		sig, err := f.keys[members[i].ProTxHash].Sign(hash.Bytes())
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

func commitmentTx(height int64, qc *FinalCommitment) *types.Tx {
	return NewCommitmentTx(&LLMQCommPL{Version: CurrentPayloadVersion, Height: uint32(height), Commitment: qc})
}

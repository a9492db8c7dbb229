package state

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/log"

	"llmq_node/llmq"
	"llmq_node/store"
	"llmq_node/types"
)

var (
	ErrNotOnTip     = errors.New("state: block does not extend the tip")
	ErrGenesisTip   = errors.New("state: cannot disconnect genesis")
	ErrWrongChainID = errors.New("state: wrong chain id")
)

// DefaultFlushInterval is the number of connected/disconnected blocks
// between two flushes of the commitment store.
const DefaultFlushInterval = 100

// BlockExecutor connects and disconnects blocks: every commitment of the
// block is checked and applied inside one scoped transaction of the
// commitment store, and the store is flushed to disk every flushInterval
// blocks.
type BlockExecutor struct {
	// 区块的connect/disconnect必须串行
	mtx sync.Mutex

	chain      *Chain
	db         *store.CommitmentStore
	blockStore *BlockStore
	processor  *llmq.BlockProcessor
	mnList     llmq.CommitteeLookup

	flushInterval int64
	unflushed     int64

	logger log.Logger
}

type ExecutorOption func(*BlockExecutor)

func WithFlushInterval(n int64) ExecutorOption {
	return func(exec *BlockExecutor) { exec.flushInterval = n }
}

// WithBlockStore persists connected blocks so Replay can rebuild the
// commitment store.
func WithBlockStore(bs *BlockStore) ExecutorOption {
	return func(exec *BlockExecutor) { exec.blockStore = bs }
}

func NewBlockExecutor(chain *Chain, db *store.CommitmentStore, processor *llmq.BlockProcessor,
	mnList llmq.CommitteeLookup, options ...ExecutorOption) *BlockExecutor {
	exec := &BlockExecutor{
		chain:         chain,
		db:            db,
		processor:     processor,
		mnList:        mnList,
		flushInterval: DefaultFlushInterval,
		logger:        log.NewNopLogger(),
	}
	for _, option := range options {
		option(exec)
	}
	if exec.flushInterval <= 0 {
		exec.flushInterval = 1
	}
	return exec
}

// SetLogger sets the logger of the executor only, the processor has its own.
func (exec *BlockExecutor) SetLogger(logger log.Logger) {
	exec.logger = logger
}

func (exec *BlockExecutor) Chain() *Chain {
	return exec.chain
}

// CreateBlock builds a block on the tip holding txs and, for every LLMQ
// type that must be mined at the new height, the best minable commitment.
func (exec *BlockExecutor) CreateBlock(txs types.Txs) *types.Block {
	tip := exec.chain.Tip()
	height := tip.Height + 1

	blockTxs := make(types.Txs, 0, len(txs)+len(exec.processor.Params()))
	blockTxs = append(blockTxs, txs...)
	for _, llmqType := range exec.processor.Params().Types() {
		if tx, ok := exec.processor.GetMinableCommitmentTx(llmqType, height); ok {
			blockTxs = append(blockTxs, tx)
		}
	}
	return types.MakeBlock(exec.chain.ChainID(), tip, blockTxs)
}

// ValidateBlock runs the checks that need no commitment store: basic
// validity and the contextual payload checks of every commitment tx.
func (exec *BlockExecutor) ValidateBlock(block *types.Block) error {
	if err := block.ValidateBasic(); err != nil {
		return err
	}
	if block.ChainID != exec.chain.ChainID() {
		return errors.Wrapf(ErrWrongChainID, "%q", block.ChainID)
	}
	prev := exec.chain.Lookup(block.LastBlockHash)
	if prev == nil {
		return ErrUnknownParent
	}
	if block.Height != prev.Height+1 {
		return errors.Errorf("state: block height %d on top of %d", block.Height, prev.Height)
	}
	for _, tx := range block.Txs {
		if !tx.IsQuorumCommitmentTx() {
			continue
		}
		if err := llmq.CheckLLMQCommitment(tx, prev, exec.processor.Params(), exec.chain, exec.mnList); err != nil {
			return err
		}
	}
	return nil
}

// ConnectBlock validates block, applies its commitments and makes it the
// new tip. block must extend the current tip.
func (exec *BlockExecutor) ConnectBlock(block *types.Block) (*types.BlockIndex, error) {
	exec.mtx.Lock()
	defer exec.mtx.Unlock()

	if err := exec.ValidateBlock(block); err != nil {
		return nil, err
	}
	if block.LastBlockHash != exec.chain.Tip().Hash {
		return nil, ErrNotOnTip
	}
	idx, err := exec.chain.AddBlock(block)
	if err != nil {
		return nil, err
	}
	if err := exec.connect(block, idx, false); err != nil {
		return nil, err
	}
	return idx, nil
}

func (exec *BlockExecutor) connect(block *types.Block, idx *types.BlockIndex, replay bool) error {
	tx := exec.db.BeginTransaction()
	defer tx.Close()

	if err := exec.processor.ProcessBlock(block, idx, false); err != nil {
		exec.logger.Info("invalid block", "height", idx.Height, "hash", idx.Hash, "err", err)
		return err
	}
	tx.Commit()

	exec.chain.SetTip(idx)
	if exec.blockStore != nil && !replay {
		exec.blockStore.SaveBlock(block)
	}
	exec.processor.UpdatedBlockTip(idx, replay)
	exec.logger.Debug("connected block", "height", idx.Height, "hash", idx.Hash, "txs", len(block.Txs))
	return exec.maybeFlush()
}

// DisconnectTip reverts the tip block. Reorganizations are driven by the
// caller, one block at a time.
func (exec *BlockExecutor) DisconnectTip() error {
	exec.mtx.Lock()
	defer exec.mtx.Unlock()

	tip := exec.chain.Tip()
	if tip.Prev == nil {
		return ErrGenesisTip
	}
	block, ok := exec.chain.GetBlock(tip.Hash)
	if !ok {
		return errors.Errorf("state: block %v not found", tip.Hash)
	}

	tx := exec.db.BeginTransaction()
	defer tx.Close()
	if err := exec.processor.UndoBlock(block, tip); err != nil {
		return err
	}
	tx.Commit()

	exec.chain.SetTip(tip.Prev)
	// replay cannot undo, so the store goes to disk before the block is
	// forgotten
	if exec.blockStore != nil {
		if err := exec.flush(); err != nil {
			return err
		}
		exec.blockStore.DeleteTip(tip.Height)
	}
	exec.processor.UpdatedBlockTip(tip.Prev, false)
	exec.logger.Info("disconnected block", "height", tip.Height, "hash", tip.Hash)
	return exec.maybeFlush()
}

func (exec *BlockExecutor) maybeFlush() error {
	exec.unflushed++
	if exec.unflushed < exec.flushInterval {
		return nil
	}
	return exec.flush()
}

func (exec *BlockExecutor) flush() error {
	if err := exec.db.CommitRoot(); err != nil {
		return err
	}
	exec.unflushed = 0
	return nil
}

// Flush writes the commitment store to disk now.
func (exec *BlockExecutor) Flush() error {
	exec.mtx.Lock()
	defer exec.mtx.Unlock()
	return exec.flush()
}

// Replay reconnects every stored block on top of genesis with the processor
// in replay mode. The commitment store may be behind the stored chain after
// a crash, rewriting the same records is harmless.
func (exec *BlockExecutor) Replay() error {
	if exec.blockStore == nil {
		return nil
	}
	exec.mtx.Lock()
	defer exec.mtx.Unlock()

	height := exec.blockStore.Height()
	if height < 0 {
		exec.blockStore.SaveBlock(exec.genesisBlock())
		return nil
	}
	genesis, ok := exec.blockStore.LoadBlock(0)
	if !ok || genesis.Hash() != exec.chain.Genesis().Hash {
		return errors.New("state: stored genesis does not match")
	}

	exec.processor.SetReplayMode(true)
	defer exec.processor.SetReplayMode(false)

	exec.logger.Info("replaying blocks", "height", height)
	for h := int64(1); h <= height; h++ {
		block, ok := exec.blockStore.LoadBlock(h)
		if !ok {
			return errors.Errorf("state: stored block %d missing", h)
		}
		idx, err := exec.chain.AddBlock(block)
		if err != nil {
			return errors.Wrapf(err, "replay block %d", h)
		}
		if err := exec.connect(block, idx, true); err != nil {
			return errors.Wrapf(err, "replay block %d", h)
		}
	}
	return exec.flush()
}

func (exec *BlockExecutor) genesisBlock() *types.Block {
	b, _ := exec.chain.GetBlock(exec.chain.Genesis().Hash)
	return b
}

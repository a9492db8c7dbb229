package llmq

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/log"

	"llmq_node/types"
)

// ChainState is the active chain as the processor sees it.
type ChainState interface {
	BlockLookup
	Tip() *types.BlockIndex
}

// Relayer gossips a new or better minable commitment.
type Relayer interface {
	RelayCommitment(qc *FinalCommitment)
}

// QuorumConnector is told which quorum members this masternode should
// connect and relay to once a quorum it belongs to is known.
type QuorumConnector interface {
	SetQuorumNodes(llmqType types.LLMQType, quorumHash types.Hash, connections, relayMembers []types.Hash)
}

type quorumKey struct {
	llmqType   types.LLMQType
	quorumHash types.Hash
}

// BlockProcessor applies and reverts the commitments of connected and
// disconnected blocks, and keeps the best candidate commitment of each
// quorum that is still to be mined.
//
// Block connect/disconnect must be called sequentially. Candidates from the
// network may arrive concurrently, they never touch the store.
type BlockProcessor struct {
	params types.LLMQParamsSet
	db     CommitmentDB
	chain  ChainState
	mnList CommitteeLookup

	relayer     Relayer
	connector   QuorumConnector
	myProTxHash types.Hash

	replayMode int32

	// minable commitments, keyed by quorum and by candidate hash
	minableMtx      sync.Mutex
	minableByQuorum map[quorumKey]types.Hash
	minable         map[types.Hash]*FinalCommitment

	// last quorum per type whose connections were computed
	connectedMtx sync.Mutex
	connected    map[types.LLMQType]types.Hash

	metrics *Metrics
	logger  log.Logger
}

type ProcessorOption func(*BlockProcessor)

func WithRelayer(r Relayer) ProcessorOption {
	return func(bp *BlockProcessor) { bp.relayer = r }
}

// WithQuorumConnector makes the processor compute quorum connections for
// proTxHash on every new tip.
func WithQuorumConnector(c QuorumConnector, proTxHash types.Hash) ProcessorOption {
	return func(bp *BlockProcessor) {
		bp.connector = c
		bp.myProTxHash = proTxHash
	}
}

func WithMetrics(m *Metrics) ProcessorOption {
	return func(bp *BlockProcessor) { bp.metrics = m }
}

func NewBlockProcessor(params types.LLMQParamsSet, db CommitmentDB, chain ChainState,
	mnList CommitteeLookup, options ...ProcessorOption) *BlockProcessor {
	bp := &BlockProcessor{
		params:          params,
		db:              db,
		chain:           chain,
		mnList:          mnList,
		minableByQuorum: make(map[quorumKey]types.Hash),
		minable:         make(map[types.Hash]*FinalCommitment),
		connected:       make(map[types.LLMQType]types.Hash),
		logger:          log.NewNopLogger(),
	}
	for _, option := range options {
		option(bp)
	}
	if bp.metrics == nil {
		bp.metrics = NewMetrics()
	}
	return bp
}

func (bp *BlockProcessor) SetLogger(l log.Logger) {
	bp.logger = l
}

// SetRelayer is for wiring after construction, the reactor needs the
// processor first.
func (bp *BlockProcessor) SetRelayer(r Relayer) {
	bp.relayer = r
}

// SetQuorumConnector is WithQuorumConnector for wiring after construction.
func (bp *BlockProcessor) SetQuorumConnector(c QuorumConnector, proTxHash types.Hash) {
	WithQuorumConnector(c, proTxHash)(bp)
}

func (bp *BlockProcessor) Metrics() *Metrics {
	return bp.metrics
}

func (bp *BlockProcessor) Params() types.LLMQParamsSet {
	return bp.params
}

// SetReplayMode is switched on while blocks are re-processed after a crash.
// Replay skips the required/forbidden commitment rules and trusts the
// commitment's own quorum hash; it never skips size, threshold or signature
// checks.
func (bp *BlockProcessor) SetReplayMode(on bool) {
	var v int32
	if on {
		v = 1
	}
	atomic.StoreInt32(&bp.replayMode, v)
}

func (bp *BlockProcessor) IsReplayMode() bool {
	return atomic.LoadInt32(&bp.replayMode) == 1
}

//-------------------------------------------------------------------------------
// block processing

// ProcessBlock validates the commitments of block, connected at pindex, and
// persists the non-null ones unless justCheck is set. Phase rules are
// evaluated against pindex.Prev, the chain miners built on.
func (bp *BlockProcessor) ProcessBlock(block *types.Block, pindex *types.BlockIndex, justCheck bool) error {
	qcs, err := GetCommitmentsFromBlock(block)
	if err != nil {
		bp.metrics.badBlocks.Inc(1)
		return err
	}

	// A (possibly null) commitment is required in every block of the mining
	// phase until the first non-null one is mined. After that, and outside
	// the mining phase, no commitment is allowed at all.
	if !bp.IsReplayMode() {
		for _, llmqType := range bp.params.Types() {
			params := bp.params[llmqType]
			_, hasCommitment := qcs[llmqType]
			required := bp.isCommitmentRequired(params, pindex.Height, pindex.Prev)

			if hasCommitment && !required {
				bp.metrics.badBlocks.Inc(1)
				return reject(RejectNotAllowed, errors.Errorf("%v at height %d", llmqType, pindex.Height))
			}
			if !hasCommitment && required {
				bp.metrics.badBlocks.Inc(1)
				return reject(RejectMissing, errors.Errorf("%v at height %d", llmqType, pindex.Height))
			}
		}
	}

	blockHash := block.Hash()
	for _, llmqType := range sortedCommitmentTypes(qcs) {
		if err := bp.processCommitment(pindex.Height, blockHash, qcs[llmqType], pindex.Prev, justCheck); err != nil {
			bp.metrics.badBlocks.Inc(1)
			return err
		}
	}
	return nil
}

// processCommitment checks qc, mined at height in blockHash on top of view,
// and persists it.
func (bp *BlockProcessor) processCommitment(height int64, blockHash types.Hash, qc *FinalCommitment,
	view *types.BlockIndex, justCheck bool) error {
	params, ok := bp.params.Get(qc.LLMQType)
	if !ok {
		return reject(RejectType, nil)
	}

	quorumHash := qc.QuorumHash
	if !bp.IsReplayMode() {
		quorumHash = quorumBlockHash(params, height, view)
	}
	if quorumHash.IsZero() {
		return reject(RejectNullQuorumHash, nil)
	}
	if quorumHash != qc.QuorumHash {
		return reject(RejectBlockQuorumHash, errors.Errorf("expected quorum %v, got %v", quorumHash, qc.QuorumHash))
	}

	quorumIndex := bp.chain.Lookup(quorumHash)
	if quorumIndex == nil {
		return reject(RejectQuorumHash, nil)
	}

	members := bp.mnList.CalculateQuorum(params, quorumHash)
	if err := qc.Verify(bp.params, members, true); err != nil {
		return reject(RejectInvalid, err)
	}

	if justCheck || qc.IsNull() {
		return nil
	}

	bp.db.Write(minedCommitmentKey(params.Type, quorumHash), minedRecord{Commitment: qc, BlockHash: blockHash}.Bytes())
	bp.db.Write(inversedHeightKey(params.Type, height), quorumHeight(quorumIndex.Height).Bytes())

	// the cached candidate stays until UpdatedBlockTip, the block may still
	// be rejected by a later commitment
	bp.metrics.mined.Inc(1)
	bp.metrics.signers.Update(int64(qc.CountSigners()))
	bp.logger.Info("processed commitment from block",
		"type", params.Type, "quorumHash", quorumHash, "height", height,
		"signers", qc.CountSigners(), "validMembers", qc.CountValidMembers(),
		"quorumPublicKey", qc.QuorumPublicKey)
	return nil
}

// UndoBlock erases what ProcessBlock persisted for block at pindex, and
// makes the commitments minable again so they can be mined on the new chain.
func (bp *BlockProcessor) UndoBlock(block *types.Block, pindex *types.BlockIndex) error {
	qcs, err := GetCommitmentsFromBlock(block)
	if err != nil {
		return err
	}

	for _, llmqType := range sortedCommitmentTypes(qcs) {
		qc := qcs[llmqType]
		if qc.IsNull() {
			continue
		}
		bp.db.Erase(minedCommitmentKey(qc.LLMQType, qc.QuorumHash))
		bp.db.Erase(inversedHeightKey(qc.LLMQType, pindex.Height))

		// if a reorg happened, we should allow to mine this commitment later
		bp.AddMinableCommitment(qc)
		bp.metrics.undone.Inc(1)
	}
	return nil
}

// GetCommitmentsFromBlock returns the commitments of block by type. Only one
// commitment per type is allowed.
func GetCommitmentsFromBlock(block *types.Block) (map[types.LLMQType]*FinalCommitment, error) {
	qcs := make(map[types.LLMQType]*FinalCommitment)
	for _, tx := range block.Txs {
		if !tx.IsQuorumCommitmentTx() {
			continue
		}
		pl, err := PayloadFromTx(tx)
		if err != nil {
			return nil, err
		}
		if _, ok := qcs[pl.Commitment.LLMQType]; ok {
			return nil, reject(RejectDuplicate, errors.Errorf("type %v", pl.Commitment.LLMQType))
		}
		qcs[pl.Commitment.LLMQType] = pl.Commitment
	}
	return qcs, nil
}

func sortedCommitmentTypes(qcs map[types.LLMQType]*FinalCommitment) []types.LLMQType {
	set := make(types.LLMQParamsSet, len(qcs))
	for t := range qcs {
		set[t] = types.LLMQParams{Type: t}
	}
	return set.Types()
}

//-------------------------------------------------------------------------------
// phases

// quorumBlockHash is the hash of the first block of height's DKG interval on
// the chain ending in view, or zero when that block is not part of it yet.
func quorumBlockHash(params types.LLMQParams, height int64, view *types.BlockIndex) types.Hash {
	start := params.QuorumStartHeight(height)
	if view == nil || start > view.Height {
		return types.ZeroHash
	}
	return view.GetAncestor(start).Hash
}

func (bp *BlockProcessor) isCommitmentRequired(params types.LLMQParams, height int64, view *types.BlockIndex) bool {
	quorumHash := quorumBlockHash(params, height, view)

	// the quorum hash is unknown for the first block of a session, the block
	// being processed is the quorum block
	if quorumHash.IsZero() || !params.IsMiningPhase(height) {
		return false
	}
	return !bp.HasMinedCommitment(params.Type, quorumHash)
}

func (bp *BlockProcessor) IsMiningPhase(llmqType types.LLMQType, height int64) bool {
	params, ok := bp.params.Get(llmqType)
	return ok && params.IsMiningPhase(height)
}

// IsCommitmentRequired reports whether a block at height on top of the
// current tip must carry a commitment of llmqType.
func (bp *BlockProcessor) IsCommitmentRequired(llmqType types.LLMQType, height int64) bool {
	params, ok := bp.params.Get(llmqType)
	if !ok {
		return false
	}
	return bp.isCommitmentRequired(params, height, bp.chain.Tip())
}

// GetQuorumBlockHash returns zero for the first block of a DKG interval,
// whose hash is not known yet.
func (bp *BlockProcessor) GetQuorumBlockHash(llmqType types.LLMQType, height int64) types.Hash {
	params, ok := bp.params.Get(llmqType)
	if !ok {
		return types.ZeroHash
	}
	return quorumBlockHash(params, height, bp.chain.Tip())
}

//-------------------------------------------------------------------------------
// mined commitments

func (bp *BlockProcessor) HasMinedCommitment(llmqType types.LLMQType, quorumHash types.Hash) bool {
	return bp.db.Exists(minedCommitmentKey(llmqType, quorumHash))
}

// GetMinedCommitment returns the commitment and the hash of the block it was
// mined in.
func (bp *BlockProcessor) GetMinedCommitment(llmqType types.LLMQType, quorumHash types.Hash) (*FinalCommitment, types.Hash, bool) {
	key := minedCommitmentKey(llmqType, quorumHash)
	bz, ok := bp.db.Read(key)
	if !ok {
		return nil, types.ZeroHash, false
	}
	r, err := minedRecordFromBytes(bz)
	if err != nil {
		corrupt(key, err)
	}
	return r.Commitment, r.BlockHash, true
}

// GetMinedCommitmentsUntilBlock returns up to maxCount quorum blocks with a
// commitment of llmqType mined at or below pindex, most recent first.
func (bp *BlockProcessor) GetMinedCommitmentsUntilBlock(llmqType types.LLMQType, pindex *types.BlockIndex, maxCount int) []*types.BlockIndex {
	firstKey := inversedHeightKey(llmqType, pindex.Height)
	lastKey := inversedHeightKey(llmqType, 0)

	it := bp.db.Iterator(firstKey, lastKey)
	defer it.Close()

	// maxCount may come straight from rpc, never size by it
	var ret []*types.BlockIndex
	for ; it.Valid() && len(ret) < maxCount; it.Next() {
		minedHeight, ok := parseInversedHeightKey(it.Key(), llmqType)
		if !ok || minedHeight > pindex.Height {
			break
		}
		h, err := quorumHeightFromBytes(it.Value())
		if err != nil {
			corrupt(it.Key(), err)
		}
		quorumIndex := pindex.GetAncestor(int64(h))
		if quorumIndex == nil {
			bp.logger.Error("mined commitment quorum not an ancestor", "type", llmqType,
				"quorumHeight", h, "minedHeight", minedHeight, "block", pindex.Hash)
			break
		}
		ret = append(ret, quorumIndex)
	}
	return ret
}

// GetMinedAndActiveCommitmentsUntilBlock returns, per type, the
// SigningActiveQuorumCount most recent quorums with a mined commitment.
func (bp *BlockProcessor) GetMinedAndActiveCommitmentsUntilBlock(pindex *types.BlockIndex) map[types.LLMQType][]*types.BlockIndex {
	ret := make(map[types.LLMQType][]*types.BlockIndex, len(bp.params))
	for _, llmqType := range bp.params.Types() {
		params := bp.params[llmqType]
		ret[llmqType] = bp.GetMinedCommitmentsUntilBlock(llmqType, pindex, params.SigningActiveQuorumCount)
	}
	return ret
}

//-------------------------------------------------------------------------------
// minable commitments

// ProcessMessage handles a QFCOMMITMENT message. A *MisbehaviorError is
// returned when the commitment is dropped; its score is what the peer is
// charged.
func (bp *BlockProcessor) ProcessMessage(qc *FinalCommitment, peer string) error {
	bp.metrics.received.Inc(1)
	err := bp.processMessage(qc, peer)
	var me *MisbehaviorError
	if errors.As(err, &me) && me.Score > 0 {
		bp.metrics.rejected.Inc(1)
	}
	return err
}

func (bp *BlockProcessor) processMessage(qc *FinalCommitment, peer string) error {
	if qc.IsNull() {
		return misbehaving(100, "null commitment")
	}
	params, ok := bp.params.Get(qc.LLMQType)
	if !ok {
		return misbehaving(100, "invalid commitment type %d", qc.LLMQType)
	}

	// the quorum block must be on the active chain and the first block of
	// its DKG interval
	quorumIndex := bp.chain.Lookup(qc.QuorumHash)
	if quorumIndex == nil {
		// we might simply be the one that is behind
		return misbehaving(0, "unknown block %v", qc.QuorumHash)
	}
	if !quorumIndex.IsAncestorOf(bp.chain.Tip()) {
		return misbehaving(0, "block %v not in active chain", qc.QuorumHash)
	}
	if params.QuorumStartHeight(quorumIndex.Height) != quorumIndex.Height {
		return misbehaving(100, "block %v is not the first in the DKG interval", qc.QuorumHash)
	}

	// checked before verifying to not waste time on signatures
	if best := bp.bestMinable(quorumKey{llmqType: qc.LLMQType, quorumHash: qc.QuorumHash}); best != nil &&
		best.CountSigners() >= qc.CountSigners() {
		return nil
	}

	members := bp.mnList.CalculateQuorum(params, qc.QuorumHash)
	if err := qc.Verify(bp.params, members, true); err != nil {
		bp.logger.Debug("invalid commitment", "peer", peer, "err", err)
		return misbehaving(100, "invalid commitment for quorum %v: %v", qc.QuorumHash, err)
	}

	bp.logger.Info("received commitment", "type", qc.LLMQType, "quorumHash", qc.QuorumHash,
		"validMembers", qc.CountValidMembers(), "signers", qc.CountSigners(), "peer", peer)

	bp.AddMinableCommitment(qc)
	return nil
}

func (bp *BlockProcessor) bestMinable(k quorumKey) *FinalCommitment {
	bp.minableMtx.Lock()
	defer bp.minableMtx.Unlock()
	h, ok := bp.minableByQuorum[k]
	if !ok {
		return nil
	}
	return bp.minable[h]
}

// AddMinableCommitment caches qc if it is the first or has more signers
// than the cached one for its quorum, and relays it in that case.
func (bp *BlockProcessor) AddMinableCommitment(qc *FinalCommitment) bool {
	hash := qc.Hash()
	k := quorumKey{llmqType: qc.LLMQType, quorumHash: qc.QuorumHash}

	relay := false
	bp.minableMtx.Lock()
	oldHash, ok := bp.minableByQuorum[k]
	switch {
	case !ok:
		bp.minableByQuorum[k] = hash
		bp.minable[hash] = qc.Copy()
		relay = true
	case qc.CountSigners() > bp.minable[oldHash].CountSigners():
		// more signers, replace the known one
		delete(bp.minable, oldHash)
		bp.minableByQuorum[k] = hash
		bp.minable[hash] = qc.Copy()
		relay = true
	}
	bp.metrics.minable.Update(int64(len(bp.minable)))
	bp.minableMtx.Unlock()

	if relay {
		bp.metrics.accepted.Inc(1)
		if bp.relayer != nil {
			bp.relayer.RelayCommitment(qc)
		}
	}
	return relay
}

// MinableCommitments returns a copy of every cached candidate.
func (bp *BlockProcessor) MinableCommitments() []*FinalCommitment {
	bp.minableMtx.Lock()
	defer bp.minableMtx.Unlock()
	qcs := make([]*FinalCommitment, 0, len(bp.minable))
	for _, qc := range bp.minable {
		qcs = append(qcs, qc.Copy())
	}
	return qcs
}

func (bp *BlockProcessor) HasMinableCommitment(hash types.Hash) bool {
	bp.minableMtx.Lock()
	defer bp.minableMtx.Unlock()
	_, ok := bp.minable[hash]
	return ok
}

func (bp *BlockProcessor) GetMinableCommitmentByHash(hash types.Hash) (*FinalCommitment, bool) {
	bp.minableMtx.Lock()
	defer bp.minableMtx.Unlock()
	qc, ok := bp.minable[hash]
	if !ok {
		return nil, false
	}
	return qc.Copy(), true
}

// GetMinableCommitment returns false if no commitment of llmqType is to be
// mined at height. Otherwise it returns the best known candidate, or a null
// commitment when none is known.
func (bp *BlockProcessor) GetMinableCommitment(llmqType types.LLMQType, height int64) (*FinalCommitment, bool) {
	params, ok := bp.params.Get(llmqType)
	if !ok {
		return nil, false
	}
	tip := bp.chain.Tip()
	if !bp.isCommitmentRequired(params, height, tip) {
		return nil, false
	}
	quorumHash := quorumBlockHash(params, height, tip)
	if quorumHash.IsZero() {
		return nil, false
	}

	if best := bp.bestMinable(quorumKey{llmqType: llmqType, quorumHash: quorumHash}); best != nil {
		return best.Copy(), true
	}
	return NewFinalCommitment(params, quorumHash), true
}

// GetMinableCommitmentTx wraps GetMinableCommitment into an LLMQCOMM
// transaction for a block at height.
func (bp *BlockProcessor) GetMinableCommitmentTx(llmqType types.LLMQType, height int64) (*types.Tx, bool) {
	qc, ok := bp.GetMinableCommitment(llmqType, height)
	if !ok {
		return nil, false
	}
	return NewCommitmentTx(&LLMQCommPL{
		Version:    CurrentPayloadVersion,
		Height:     uint32(height),
		Commitment: qc,
	}), true
}

// UpdatedBlockTip drops candidates that can no longer be mined on the new
// tip and sets up quorum connections for quorums this masternode is in.
func (bp *BlockProcessor) UpdatedBlockTip(tip *types.BlockIndex, initialDownload bool) {
	bp.evictMinable(tip)
	if initialDownload || bp.connector == nil || bp.myProTxHash.IsZero() {
		return
	}
	for _, llmqType := range bp.params.Types() {
		bp.ensureQuorumConnections(bp.params[llmqType], tip)
	}
}

func (bp *BlockProcessor) evictMinable(tip *types.BlockIndex) {
	bp.minableMtx.Lock()
	keys := make([]quorumKey, 0, len(bp.minableByQuorum))
	for k := range bp.minableByQuorum {
		keys = append(keys, k)
	}
	bp.minableMtx.Unlock()

	var evict []quorumKey
	for _, k := range keys {
		params := bp.params[k.llmqType]
		quorumIndex := bp.chain.Lookup(k.quorumHash)
		switch {
		case quorumIndex == nil:
			evict = append(evict, k)
		case tip.Height > quorumIndex.Height+int64(params.DkgMiningWindowEnd):
			// mining window closed
			evict = append(evict, k)
		case bp.HasMinedCommitment(k.llmqType, k.quorumHash):
			evict = append(evict, k)
		}
	}
	if len(evict) == 0 {
		return
	}

	bp.minableMtx.Lock()
	defer bp.minableMtx.Unlock()
	for _, k := range evict {
		if h, ok := bp.minableByQuorum[k]; ok {
			delete(bp.minable, h)
			delete(bp.minableByQuorum, k)
		}
	}
	bp.metrics.minable.Update(int64(len(bp.minable)))
	bp.logger.Debug("evicted minable commitments", "count", len(evict), "tip", tip.Height)
}

func (bp *BlockProcessor) ensureQuorumConnections(params types.LLMQParams, tip *types.BlockIndex) {
	quorumIndex := tip.GetAncestor(params.QuorumStartHeight(tip.Height))
	if quorumIndex == nil || quorumIndex.Height == 0 {
		return
	}

	bp.connectedMtx.Lock()
	done := bp.connected[params.Type] == quorumIndex.Hash
	bp.connected[params.Type] = quorumIndex.Hash
	bp.connectedMtx.Unlock()
	if done {
		return
	}

	members := bp.mnList.CalculateQuorum(params, quorumIndex.Hash)
	if !isQuorumMember(members, bp.myProTxHash) {
		return
	}
	connections := GetQuorumConnections(members, bp.myProTxHash, true)
	relayMembers := GetQuorumRelayMembers(members, bp.myProTxHash, true)
	bp.logger.Info("quorum connections", "type", params.Type, "quorumHash", quorumIndex.Hash,
		"connections", len(connections), "relayMembers", len(relayMembers))
	bp.connector.SetQuorumNodes(params.Type, quorumIndex.Hash, connections, relayMembers)
}

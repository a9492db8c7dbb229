package llmq

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/p2p"

	"llmq_node/types"
)

const (
	// QuorumChannel carries QFCOMMITMENT messages: one serialized
	// FinalCommitment each.
	QuorumChannel = byte(0x60)

	// peers reaching this score are disconnected
	BanScore = 100

	maxMsgSize = 64 * 1024
)

// QuorumNodes are the masternodes this node connects and relays to for one
// quorum.
type QuorumNodes struct {
	Connections  []types.Hash `json:"connections"`
	RelayMembers []types.Hash `json:"relay_members"`
}

// Reactor gossips candidate commitments between peers.
type Reactor struct {
	p2p.BaseReactor

	processor *BlockProcessor

	scoresMtx sync.Mutex
	scores    map[p2p.ID]int // 节点的累计惩罚分

	quorumMtx   sync.RWMutex
	quorumNodes map[quorumKey]QuorumNodes
}

// NewReactor also makes the reactor the processor's relayer.
func NewReactor(processor *BlockProcessor) *Reactor {
	r := &Reactor{
		processor:   processor,
		scores:      make(map[p2p.ID]int),
		quorumNodes: make(map[quorumKey]QuorumNodes),
	}
	r.BaseReactor = *p2p.NewBaseReactor("LLMQ", r)
	processor.SetRelayer(r)
	return r
}

// SetLogger sets the Logger on the reactor and the underlying processor.
func (r *Reactor) SetLogger(l log.Logger) {
	r.Logger = l
	r.processor.SetLogger(l)
}

// OnStart implements p2p.BaseReactor.
func (r *Reactor) OnStart() error {
	r.Logger.Info("LLMQ Reactor started.")
	return nil
}

// GetChannels implements Reactor.
func (r *Reactor) GetChannels() []*p2p.ChannelDescriptor {
	return []*p2p.ChannelDescriptor{
		{
			ID:                  QuorumChannel,
			Priority:            5,
			SendQueueCapacity:   100,
			RecvMessageCapacity: maxMsgSize,
		},
	}
}

// AddPeer implements Reactor.
// 新节点连接后把本地的minable commitments发给它
func (r *Reactor) AddPeer(peer p2p.Peer) {
	for _, qc := range r.processor.MinableCommitments() {
		if !peer.Send(QuorumChannel, qc.Bytes()) {
			r.Logger.Debug("send commitment failed", "peer", peer, "quorumHash", qc.QuorumHash)
		}
	}
}

// RemovePeer implements Reactor.
func (r *Reactor) RemovePeer(peer p2p.Peer, reason interface{}) {
	r.scoresMtx.Lock()
	delete(r.scores, peer.ID())
	r.scoresMtx.Unlock()
}

// Receive implements Reactor.
// A bad message is dropped without an answer, the peer only gets points.
func (r *Reactor) Receive(chID byte, src p2p.Peer, msgBytes []byte) {
	if chID != QuorumChannel {
		r.Logger.Error("unknown channel", "chID", chID, "src", src)
		return
	}
	qc, err := FinalCommitmentFromBytes(msgBytes)
	if err != nil {
		r.Misbehaving(src, 100, err.Error())
		return
	}

	err = r.processor.ProcessMessage(qc, string(src.ID()))
	var me *MisbehaviorError
	switch {
	case err == nil:
	case errors.As(err, &me):
		r.Logger.Debug("invalid QFCOMMITMENT message", "peer", src.ID(), "reason", me.Reason)
		if me.Score > 0 {
			r.Misbehaving(src, me.Score, me.Reason)
		}
	default:
		r.Logger.Error("process commitment", "peer", src.ID(), "err", err)
	}
}

// Misbehaving adds score to the peer and disconnects it at BanScore.
func (r *Reactor) Misbehaving(peer p2p.Peer, score int, reason string) {
	r.scoresMtx.Lock()
	r.scores[peer.ID()] += score
	total := r.scores[peer.ID()]
	r.scoresMtx.Unlock()

	r.Logger.Info("misbehaving peer", "peer", peer.ID(), "score", score, "total", total, "reason", reason)
	if total >= BanScore && r.Switch != nil {
		r.Switch.StopPeerForError(peer, errors.Errorf("misbehavior score %d: %s", total, reason))
	}
}

// PeerScore returns the accumulated misbehavior of a connected peer.
func (r *Reactor) PeerScore(id p2p.ID) int {
	r.scoresMtx.Lock()
	defer r.scoresMtx.Unlock()
	return r.scores[id]
}

// RelayCommitment implements Relayer.
func (r *Reactor) RelayCommitment(qc *FinalCommitment) {
	if r.Switch == nil || !r.IsRunning() {
		return
	}
	r.Logger.Debug("relay commitment", "type", qc.LLMQType, "quorumHash", qc.QuorumHash, "signers", qc.CountSigners())
	r.Switch.Broadcast(QuorumChannel, qc.Bytes())
}

// SetQuorumNodes implements QuorumConnector. Peers are not yet bound to
// proTxHashes, so the sets are only recorded for RPC.
func (r *Reactor) SetQuorumNodes(llmqType types.LLMQType, quorumHash types.Hash, connections, relayMembers []types.Hash) {
	r.quorumMtx.Lock()
	defer r.quorumMtx.Unlock()
	r.quorumNodes[quorumKey{llmqType: llmqType, quorumHash: quorumHash}] = QuorumNodes{
		Connections:  connections,
		RelayMembers: relayMembers,
	}
}

func (r *Reactor) GetQuorumNodes(llmqType types.LLMQType, quorumHash types.Hash) (QuorumNodes, bool) {
	r.quorumMtx.RLock()
	defer r.quorumMtx.RUnlock()
	n, ok := r.quorumNodes[quorumKey{llmqType: llmqType, quorumHash: quorumHash}]
	return n, ok
}

package types

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"llmq_node/crypto/bls"
)

var ErrDuplicatedMasternode = errors.New("masternode already registered")

type committeeKey struct {
	llmqType   LLMQType
	quorumHash Hash
}

// MasternodeList is the deterministic masternode list: the set of registered
// masternodes, and the committee every quorum block selects from it.
//
// The committee for (type, quorum block) is the Size masternodes with the
// lowest H(type, proTxHash, quorumHash), ordered by that score. Committees are
// cached until the list changes.
type MasternodeList struct {
	mtx   sync.RWMutex
	nodes map[Hash]*Masternode

	committees map[committeeKey][]*Masternode
}

// NewMasternodeList fails if two masternodes share a proTxHash.
func NewMasternodeList(mns []*Masternode) (*MasternodeList, error) {
	list := &MasternodeList{
		nodes:      make(map[Hash]*Masternode, len(mns)),
		committees: make(map[committeeKey][]*Masternode),
	}
	for _, mn := range mns {
		if err := list.Add(mn); err != nil {
			return nil, err
		}
	}
	return list, nil
}

func (l *MasternodeList) Add(mn *Masternode) error {
	if err := mn.ValidateBasic(); err != nil {
		return err
	}
	l.mtx.Lock()
	defer l.mtx.Unlock()

	if _, ok := l.nodes[mn.ProTxHash]; ok {
		return fmt.Errorf("%w: %v", ErrDuplicatedMasternode, mn.ProTxHash)
	}
	l.nodes[mn.ProTxHash] = mn.Copy()
	l.committees = make(map[committeeKey][]*Masternode)
	return nil
}

// Remove returns false if proTxHash was not registered.
func (l *MasternodeList) Remove(proTxHash Hash) bool {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	if _, ok := l.nodes[proTxHash]; !ok {
		return false
	}
	delete(l.nodes, proTxHash)
	l.committees = make(map[committeeKey][]*Masternode)
	return true
}

func (l *MasternodeList) Get(proTxHash Hash) (*Masternode, bool) {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	mn, ok := l.nodes[proTxHash]
	if !ok {
		return nil, false
	}
	return mn.Copy(), true
}

func (l *MasternodeList) Size() int {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	return len(l.nodes)
}

// All returns the masternodes ordered by proTxHash.
func (l *MasternodeList) All() []*Masternode {
	l.mtx.RLock()
	defer l.mtx.RUnlock()

	mns := make([]*Masternode, 0, len(l.nodes))
	for _, mn := range l.nodes {
		mns = append(mns, mn.Copy())
	}
	sort.Slice(mns, func(i, j int) bool { return mns[i].ProTxHash.Less(mns[j].ProTxHash) })
	return mns
}

// CalculateQuorum returns the ordered committee selected by quorumHash. It
// has fewer than params.Size members when not enough masternodes exist.
func (l *MasternodeList) CalculateQuorum(params LLMQParams, quorumHash Hash) []*Masternode {
	key := committeeKey{llmqType: params.Type, quorumHash: quorumHash}

	l.mtx.RLock()
	cached, ok := l.committees[key]
	l.mtx.RUnlock()
	if ok {
		return copyMasternodes(cached)
	}

	l.mtx.Lock()
	defer l.mtx.Unlock()

	type scored struct {
		mn    *Masternode
		score Hash
	}
	all := make([]scored, 0, len(l.nodes))
	for _, mn := range l.nodes {
		all = append(all, scored{mn: mn, score: mn.quorumScore(params.Type, quorumHash)})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].score.Less(all[j].score) })
	if len(all) > params.Size {
		all = all[:params.Size]
	}
	committee := make([]*Masternode, len(all))
	for i := range all {
		committee[i] = all[i].mn
	}
	l.committees[key] = committee
	return copyMasternodes(committee)
}

func copyMasternodes(mns []*Masternode) []*Masternode {
	out := make([]*Masternode, len(mns))
	for i, mn := range mns {
		out[i] = mn.Copy()
	}
	return out
}

func (l *MasternodeList) String() string {
	var mnStrings []string
	for _, mn := range l.All() {
		mnStrings = append(mnStrings, mn.String())
	}
	return fmt.Sprintf("MasternodeList{\n  %v\n}", strings.Join(mnStrings, "\n  "))
}

//----------------------------------------

// RandMasternodeList returns a list of n masternodes seeded from
// seed..seed+n-1 and their operator keys by proTxHash.
//
// EXPOSED FOR TESTING.
func RandMasternodeList(n int, seed int64) (*MasternodeList, map[Hash]bls.SecretKey) {
	mns := make([]*Masternode, n)
	keys := make(map[Hash]bls.SecretKey, n)
	for i := 0; i < n; i++ {
		mn, sk := RandMasternode(seed + int64(i))
		mns[i] = mn
		keys[mn.ProTxHash] = sk
	}
	list, err := NewMasternodeList(mns)
	if err != nil {
		panic(err)
	}
	return list, keys
}

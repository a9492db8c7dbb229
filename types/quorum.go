package types

import (
	"fmt"
	"sort"
)

type LLMQType uint8

const (
	LLMQNone   = LLMQType(0)
	LLMQ400_60 = LLMQType(1) // 400 members, 240 (60%) threshold, one per 12h
	LLMQ400_85 = LLMQType(2) // 400 members, 340 (85%) threshold, one per 24h
	LLMQ50_60  = LLMQType(3) // 50 members, 30 (60%) threshold, one per hour
	LLMQTest   = LLMQType(100)
)

func (t LLMQType) String() string {
	switch t {
	case LLMQ400_60:
		return "llmq_400_60"
	case LLMQ400_85:
		return "llmq_400_85"
	case LLMQ50_60:
		return "llmq_50_60"
	case LLMQTest:
		return "llmq_test"
	default:
		return fmt.Sprintf("llmq_unknown(%d)", uint8(t))
	}
}

// LLMQParams 是某种quorum类型的全部共识参数，和高度无关
type LLMQParams struct {
	Type LLMQType `json:"type"`
	Name string   `json:"name"`

	// committee size and the threshold needed for a valid commitment
	Size    int `json:"size"`
	MinSize int `json:"min_size"`

	// one DKG session per DkgInterval blocks
	DkgInterval int `json:"dkg_interval"`

	// phase indexes (height % DkgInterval) in which commitments are mined
	DkgMiningWindowStart int `json:"dkg_mining_window_start"`
	DkgMiningWindowEnd   int `json:"dkg_mining_window_end"`

	// how many recent quorums are considered active for signing
	SigningActiveQuorumCount int `json:"signing_active_quorum_count"`
}

// QuorumStartHeight is the height of the block that defines the session
// containing height.
func (p LLMQParams) QuorumStartHeight(height int64) int64 {
	return height - height%int64(p.DkgInterval)
}

func (p LLMQParams) PhaseIndex(height int64) int {
	return int(height % int64(p.DkgInterval))
}

func (p LLMQParams) IsMiningPhase(height int64) bool {
	phase := p.PhaseIndex(height)
	return phase >= p.DkgMiningWindowStart && phase <= p.DkgMiningWindowEnd
}

func (p LLMQParams) Validate() error {
	if p.Size <= 0 || p.MinSize <= 0 || p.MinSize > p.Size {
		return fmt.Errorf("%s: invalid size/threshold %d/%d", p.Name, p.MinSize, p.Size)
	}
	if p.DkgInterval <= 0 {
		return fmt.Errorf("%s: invalid dkg interval %d", p.Name, p.DkgInterval)
	}
	if p.DkgMiningWindowStart < 0 || p.DkgMiningWindowEnd < p.DkgMiningWindowStart ||
		p.DkgMiningWindowEnd >= p.DkgInterval {
		return fmt.Errorf("%s: invalid mining window [%d, %d]", p.Name, p.DkgMiningWindowStart, p.DkgMiningWindowEnd)
	}
	return nil
}

// LLMQParamsSet is the per-network parameter table. It is passed around by
// value/pointer, never kept in a package variable.
type LLMQParamsSet map[LLMQType]LLMQParams

func NewLLMQParamsSet(params ...LLMQParams) LLMQParamsSet {
	set := make(LLMQParamsSet, len(params))
	for _, p := range params {
		set[p.Type] = p
	}
	return set
}

func (set LLMQParamsSet) Get(t LLMQType) (LLMQParams, bool) {
	p, ok := set[t]
	return p, ok
}

// Types returns the configured types in ascending order so that callers
// iterate deterministically.
func (set LLMQParamsSet) Types() []LLMQType {
	types := make([]LLMQType, 0, len(set))
	for t := range set {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

func (set LLMQParamsSet) Validate() error {
	for _, t := range set.Types() {
		if set[t].Type != t {
			return fmt.Errorf("params for %v registered under %v", set[t].Type, t)
		}
		if err := set[t].Validate(); err != nil {
			return err
		}
	}
	return nil
}

var (
	llmq400_60 = LLMQParams{
		Type:                     LLMQ400_60,
		Name:                     "llmq_400_60",
		Size:                     400,
		MinSize:                  240,
		DkgInterval:              12 * 60,
		DkgMiningWindowStart:     28,
		DkgMiningWindowEnd:       48,
		SigningActiveQuorumCount: 4,
	}
	llmq400_85 = LLMQParams{
		Type:                     LLMQ400_85,
		Name:                     "llmq_400_85",
		Size:                     400,
		MinSize:                  340,
		DkgInterval:              24 * 60,
		DkgMiningWindowStart:     28,
		DkgMiningWindowEnd:       48,
		SigningActiveQuorumCount: 4,
	}
	llmq50_60 = LLMQParams{
		Type:                     LLMQ50_60,
		Name:                     "llmq_50_60",
		Size:                     50,
		MinSize:                  30,
		DkgInterval:              60,
		DkgMiningWindowStart:     20,
		DkgMiningWindowEnd:       28,
		SigningActiveQuorumCount: 24,
	}
	llmqTest = LLMQParams{
		Type:                     LLMQTest,
		Name:                     "llmq_test",
		Size:                     3,
		MinSize:                  2,
		DkgInterval:              24,
		DkgMiningWindowStart:     12,
		DkgMiningWindowEnd:       20,
		SigningActiveQuorumCount: 2,
	}
)

// LLMQParamsForNetwork returns the table for "main", "test" or "regtest".
func LLMQParamsForNetwork(network string) (LLMQParamsSet, error) {
	switch network {
	case "main", "test":
		return NewLLMQParamsSet(llmq50_60, llmq400_60, llmq400_85), nil
	case "regtest":
		return NewLLMQParamsSet(llmqTest), nil
	default:
		return nil, fmt.Errorf("unknown network %q", network)
	}
}

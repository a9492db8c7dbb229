package rpc

import (
	"encoding/hex"

	"github.com/pkg/errors"
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"

	"llmq_node/crypto/bls"
	"llmq_node/llmq"
	"llmq_node/types"
)

// maxMinedCommitments caps one mined_commitments call.
const maxMinedCommitments = 1000

type ResultMinedCommitment struct {
	Commitment   llmq.CommitmentJSON `json:"commitment"`
	MinedBlock   types.Hash          `json:"mined_block"`
	QuorumHeight int64               `json:"quorum_height"`
}

type ResultQuorumMember struct {
	ProTxHash      types.Hash    `json:"pro_tx_hash"`
	PubKeyOperator bls.PublicKey `json:"pub_key_operator"`
	Valid          bool          `json:"valid"`
	Signed         bool          `json:"signed"`
}

type ResultQuorumMembers struct {
	LLMQType   int                  `json:"llmq_type"`
	QuorumHash types.Hash           `json:"quorum_hash"`
	Mined      bool                 `json:"mined"`
	Members    []ResultQuorumMember `json:"members"`
}

type ResultMinableCommitment struct {
	Required bool              `json:"required"`
	Payload  *llmq.PayloadJSON `json:"payload,omitempty"`
}

type ResultMinedQuorum struct {
	Height     int64      `json:"height"`
	QuorumHash types.Hash `json:"quorum_hash"`
}

type ResultMinedCommitments struct {
	Quorums []ResultMinedQuorum `json:"quorums"`
}

type ResultSubmitCommitment struct {
	Hash     types.Hash `json:"hash"`
	Accepted bool       `json:"accepted"`
}

// MinedCommitment returns the commitment mined for a quorum and the block
// it was mined in.
func MinedCommitment(ctx *rpctypes.Context, llmqType int, quorumHash string) (*ResultMinedCommitment, error) {
	params, err := getLLMQParams(llmqType)
	if err != nil {
		return nil, err
	}
	h, err := parseHash("quorum_hash", quorumHash)
	if err != nil {
		return nil, err
	}
	qc, blockHash, ok := env.Processor.GetMinedCommitment(params.Type, h)
	if !ok {
		return nil, errors.Errorf("no commitment mined for quorum %v", h)
	}
	result := &ResultMinedCommitment{
		Commitment:   qc.ToJSON(),
		MinedBlock:   blockHash,
		QuorumHeight: -1,
	}
	if quorumIndex := env.chain().Lookup(h); quorumIndex != nil {
		result.QuorumHeight = quorumIndex.Height
	}
	return result, nil
}

// QuorumMembers returns the committee of a quorum, flagged with the valid
// members and signers of its mined commitment if there is one.
func QuorumMembers(ctx *rpctypes.Context, llmqType int, quorumHash string) (*ResultQuorumMembers, error) {
	params, err := getLLMQParams(llmqType)
	if err != nil {
		return nil, err
	}
	h, err := parseHash("quorum_hash", quorumHash)
	if err != nil {
		return nil, err
	}
	if env.chain().Lookup(h) == nil {
		return nil, errors.Errorf("unknown quorum block %v", h)
	}

	qc, _, mined := env.Processor.GetMinedCommitment(params.Type, h)
	members := env.MNList.CalculateQuorum(params, h)
	result := &ResultQuorumMembers{
		LLMQType:   llmqType,
		QuorumHash: h,
		Mined:      mined,
		Members:    make([]ResultQuorumMember, len(members)),
	}
	for i, mn := range members {
		result.Members[i] = ResultQuorumMember{
			ProTxHash:      mn.ProTxHash,
			PubKeyOperator: mn.PubKeyOperator,
		}
		if mined {
			result.Members[i].Valid = qc.ValidMembers.Get(i)
			result.Members[i].Signed = qc.Signers.Get(i)
		}
	}
	return result, nil
}

// MinableCommitment returns the commitment payload a block at height must
// carry, if any.
func MinableCommitment(ctx *rpctypes.Context, llmqType int, height int64) (*ResultMinableCommitment, error) {
	params, err := getLLMQParams(llmqType)
	if err != nil {
		return nil, err
	}
	if height <= 0 {
		height = env.chain().Height() + 1
	}
	tx, ok := env.Processor.GetMinableCommitmentTx(params.Type, height)
	if !ok {
		return &ResultMinableCommitment{Required: false}, nil
	}
	pl, err := llmq.PayloadFromTx(tx)
	if err != nil {
		return nil, err
	}
	view := pl.ToJSON()
	return &ResultMinableCommitment{Required: true, Payload: &view}, nil
}

// MinedCommitments lists the most recent quorums of a type with a mined
// commitment, newest first.
func MinedCommitments(ctx *rpctypes.Context, llmqType int, maxCount int) (*ResultMinedCommitments, error) {
	params, err := getLLMQParams(llmqType)
	if err != nil {
		return nil, err
	}
	if maxCount <= 0 {
		maxCount = params.SigningActiveQuorumCount
	}
	if maxCount > maxMinedCommitments {
		maxCount = maxMinedCommitments
	}
	quorums := env.Processor.GetMinedCommitmentsUntilBlock(params.Type, env.chain().Tip(), maxCount)
	result := &ResultMinedCommitments{Quorums: make([]ResultMinedQuorum, len(quorums))}
	for i, idx := range quorums {
		result.Quorums[i] = ResultMinedQuorum{Height: idx.Height, QuorumHash: idx.Hash}
	}
	return result, nil
}

// QuorumNodes returns the connections and relay members computed for this
// masternode in a quorum.
func QuorumNodes(ctx *rpctypes.Context, llmqType int, quorumHash string) (*llmq.QuorumNodes, error) {
	params, err := getLLMQParams(llmqType)
	if err != nil {
		return nil, err
	}
	h, err := parseHash("quorum_hash", quorumHash)
	if err != nil {
		return nil, err
	}
	nodes, ok := env.Reactor.GetQuorumNodes(params.Type, h)
	if !ok {
		return nil, errors.Errorf("not a member of quorum %v", h)
	}
	return &nodes, nil
}

// SubmitCommitment hands a hex serialized commitment to the processor as if
// a peer had sent it.
func SubmitCommitment(ctx *rpctypes.Context, commitment string) (*ResultSubmitCommitment, error) {
	bz, err := hex.DecodeString(commitment)
	if err != nil {
		return nil, errors.Wrap(err, "commitment is not hex")
	}
	qc, err := llmq.FinalCommitmentFromBytes(bz)
	if err != nil {
		return nil, err
	}
	if err := env.Processor.ProcessMessage(qc, "rpc"); err != nil {
		return nil, err
	}
	return &ResultSubmitCommitment{
		Hash:     qc.Hash(),
		Accepted: env.Processor.HasMinableCommitment(qc.Hash()),
	}, nil
}

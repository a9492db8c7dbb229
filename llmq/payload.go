package llmq

import (
	"github.com/pkg/errors"

	"llmq_node/types"
)

const CurrentPayloadVersion = uint16(1)

// LLMQCommPL is the payload of an LLMQCOMM special transaction.
type LLMQCommPL struct {
	Version    uint16
	Height     uint32
	Commitment *FinalCommitment
}

func (pl *LLMQCommPL) Bytes() []byte {
	e := types.NewEncoder()
	e.WriteUint16(pl.Version)
	e.WriteUint32(pl.Height)
	pl.Commitment.Encode(e)
	return e.Bytes()
}

func LLMQCommPLFromBytes(bz []byte) (*LLMQCommPL, error) {
	d := types.NewDecoder(bz)
	pl := &LLMQCommPL{}
	pl.Version = d.ReadUint16()
	pl.Height = d.ReadUint32()
	pl.Commitment = DecodeFinalCommitment(d)
	if d.Err() != nil {
		return nil, errors.Wrap(d.Err(), "llmqcomm payload")
	}
	if d.Remaining() != 0 {
		return nil, errors.Errorf("llmqcomm payload: %d trailing bytes", d.Remaining())
	}
	return pl, nil
}

// NewCommitmentTx wraps pl into an LLMQCOMM special transaction.
func NewCommitmentTx(pl *LLMQCommPL) *types.Tx {
	return types.NewSpecialTx(types.TxTypeLLMQComm, pl.Bytes())
}

// PayloadFromTx fails with bad-qc-payload if tx is not a well formed
// LLMQCOMM transaction.
func PayloadFromTx(tx *types.Tx) (*LLMQCommPL, error) {
	if !tx.IsQuorumCommitmentTx() {
		return nil, reject(RejectPayload, errors.Errorf("tx type %d", tx.Type))
	}
	pl, err := LLMQCommPLFromBytes(tx.Payload)
	if err != nil {
		return nil, reject(RejectPayload, err)
	}
	return pl, nil
}

// PayloadJSON is the RPC view of a payload.
type PayloadJSON struct {
	Version    uint16         `json:"version"`
	Height     uint32         `json:"height"`
	Commitment CommitmentJSON `json:"commitment"`
}

func (pl *LLMQCommPL) ToJSON() PayloadJSON {
	return PayloadJSON{
		Version:    pl.Version,
		Height:     pl.Height,
		Commitment: pl.Commitment.ToJSON(),
	}
}

// BlockLookup resolves block hashes to indexes on any known branch.
type BlockLookup interface {
	Lookup(hash types.Hash) *types.BlockIndex
}

// CommitteeLookup is the deterministic masternode list.
type CommitteeLookup interface {
	CalculateQuorum(params types.LLMQParams, quorumHash types.Hash) []*types.Masternode
}

// CheckLLMQCommitment is the contextual check of a commitment transaction
// that is to be included on top of prev. Signatures are not checked here,
// only when the block is connected. prev may be nil, then only the
// context free checks run.
func CheckLLMQCommitment(tx *types.Tx, prev *types.BlockIndex, paramsSet types.LLMQParamsSet,
	blocks BlockLookup, mnList CommitteeLookup) error {
	pl, err := PayloadFromTx(tx)
	if err != nil {
		return err
	}

	if pl.Version == 0 || pl.Version > CurrentPayloadVersion {
		return reject(RejectVersion, nil)
	}

	params, ok := paramsSet.Get(pl.Commitment.LLMQType)
	if !ok {
		return reject(RejectType, nil)
	}
	if err := pl.Commitment.VerifySizes(params); err != nil {
		return reject(RejectInvalidSizes, err)
	}

	if prev == nil {
		return nil
	}

	if int64(pl.Height) != prev.Height+1 {
		return reject(RejectHeight, errors.Errorf("height %d on top of %d", pl.Height, prev.Height))
	}

	quorumIndex := blocks.Lookup(pl.Commitment.QuorumHash)
	if quorumIndex == nil {
		return reject(RejectQuorumHash, nil)
	}
	if !quorumIndex.IsAncestorOf(prev) {
		// not part of active chain
		return reject(RejectQuorumHash, errors.New("quorum block not on this chain"))
	}

	members := mnList.CalculateQuorum(params, quorumIndex.Hash)
	if err := pl.Commitment.Verify(paramsSet, members, false); err != nil {
		return reject(RejectInvalid, err)
	}
	return nil
}

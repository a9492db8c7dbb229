package llmq

import (
	"math"

	"github.com/pkg/errors"
	tmdb "github.com/tendermint/tm-db"

	"llmq_node/store"
	"llmq_node/types"
)

const (
	dbMinedCommitment                 = "q_mc"
	dbMinedCommitmentByInversedHeight = "q_mcih"
)

// CommitmentDB is the transactional store the processor persists through.
type CommitmentDB interface {
	Read(key []byte) ([]byte, bool)
	Exists(key []byte) bool
	Write(key, value []byte)
	Erase(key []byte)
	Iterator(start, end []byte) tmdb.Iterator
}

// ("q_mc", type, quorumHash)
func minedCommitmentKey(llmqType types.LLMQType, quorumHash types.Hash) []byte {
	e := types.NewEncoder()
	e.WriteString(dbMinedCommitment)
	e.WriteUint8(uint8(llmqType))
	e.WriteHash(quorumHash)
	return e.Bytes()
}

// ("q_mcih", type, BE(MaxUint32 - minedHeight)). Ascending key order is
// descending mined height.
func inversedHeightKey(llmqType types.LLMQType, minedHeight int64) []byte {
	e := types.NewEncoder()
	e.WriteString(dbMinedCommitmentByInversedHeight)
	e.WriteUint8(uint8(llmqType))
	e.WriteUint32BE(math.MaxUint32 - uint32(minedHeight))
	return e.Bytes()
}

// parseInversedHeightKey returns ok=false when key is not an inversed
// height key of llmqType.
func parseInversedHeightKey(key []byte, llmqType types.LLMQType) (minedHeight int64, ok bool) {
	d := types.NewDecoder(key)
	prefix := d.ReadString()
	t := types.LLMQType(d.ReadUint8())
	inv := d.ReadUint32BE()
	if d.Err() != nil || d.Remaining() != 0 {
		return 0, false
	}
	if prefix != dbMinedCommitmentByInversedHeight || t != llmqType {
		return 0, false
	}
	return int64(math.MaxUint32 - inv), true
}

// minedRecord is the value under a q_mc key.
type minedRecord struct {
	Commitment *FinalCommitment
	BlockHash  types.Hash
}

func (r minedRecord) Bytes() []byte {
	e := types.NewEncoder()
	r.Commitment.Encode(e)
	e.WriteHash(r.BlockHash)
	return e.Bytes()
}

func minedRecordFromBytes(bz []byte) (minedRecord, error) {
	d := types.NewDecoder(bz)
	r := minedRecord{
		Commitment: DecodeFinalCommitment(d),
		BlockHash:  d.ReadHash(),
	}
	if d.Err() != nil {
		return r, d.Err()
	}
	if d.Remaining() != 0 {
		return r, errors.Errorf("%d trailing bytes", d.Remaining())
	}
	return r, nil
}

// quorumHeight is the value under a q_mcih key.
type quorumHeight uint32

func (h quorumHeight) Bytes() []byte {
	e := types.NewEncoder()
	e.WriteUint32(uint32(h))
	return e.Bytes()
}

func quorumHeightFromBytes(bz []byte) (quorumHeight, error) {
	d := types.NewDecoder(bz)
	h := d.ReadUint32()
	if d.Err() != nil {
		return 0, d.Err()
	}
	if d.Remaining() != 0 {
		return 0, errors.Errorf("%d trailing bytes", d.Remaining())
	}
	return quorumHeight(h), nil
}

// corrupt records are as fatal as engine errors
func corrupt(key []byte, err error) {
	panic(&store.FatalError{Op: "decode", Err: errors.Wrapf(err, "key %X", key)})
}

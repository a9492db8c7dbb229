package rpc

import (
	"github.com/pkg/errors"
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"

	"llmq_node/llmq"
	"llmq_node/types"
)

// maxGenerateBlocks bounds one generate_blocks call.
const maxGenerateBlocks = 1000

type ResultStatus struct {
	Network     string     `json:"network"`
	ChainID     string     `json:"chain_id"`
	Height      int64      `json:"height"`
	TipHash     types.Hash `json:"tip_hash"`
	ProTxHash   types.Hash `json:"pro_tx_hash"`
	Masternodes int        `json:"masternodes"`
	Minable     int        `json:"minable_commitments"`
	ReplayMode  bool       `json:"replay_mode"`
}

type ResultGeneratedBlock struct {
	Height      int64              `json:"height"`
	Hash        types.Hash         `json:"hash"`
	Commitments []llmq.PayloadJSON `json:"commitments"`
}

type ResultGenerateBlocks struct {
	Blocks []ResultGeneratedBlock `json:"blocks"`
}

func Status(ctx *rpctypes.Context) (*ResultStatus, error) {
	chain := env.chain()
	tip := chain.Tip()
	return &ResultStatus{
		Network:     env.Network,
		ChainID:     chain.ChainID(),
		Height:      tip.Height,
		TipHash:     tip.Hash,
		ProTxHash:   env.ProTxHash,
		Masternodes: env.MNList.Size(),
		Minable:     len(env.Processor.MinableCommitments()),
		ReplayMode:  env.Processor.IsReplayMode(),
	}, nil
}

// GenerateBlocks mines count blocks on the local tip, each carrying the
// commitments required at its height. Only for regtest.
func GenerateBlocks(ctx *rpctypes.Context, count int) (*ResultGenerateBlocks, error) {
	if env.Network != "regtest" {
		return nil, errors.New("generate_blocks is only available on regtest")
	}
	if count <= 0 || count > maxGenerateBlocks {
		return nil, errors.Errorf("count must be in [1, %d]", maxGenerateBlocks)
	}

	result := &ResultGenerateBlocks{Blocks: make([]ResultGeneratedBlock, 0, count)}
	for i := 0; i < count; i++ {
		block := env.BlockExec.CreateBlock(nil)
		idx, err := env.BlockExec.ConnectBlock(block)
		if err != nil {
			return result, errors.Wrapf(err, "block %d", block.Height)
		}
		generated := ResultGeneratedBlock{Height: idx.Height, Hash: idx.Hash}
		for _, tx := range block.Txs {
			if !tx.IsQuorumCommitmentTx() {
				continue
			}
			pl, err := llmq.PayloadFromTx(tx)
			if err != nil {
				return result, err
			}
			generated.Commitments = append(generated.Commitments, pl.ToJSON())
		}
		result.Blocks = append(result.Blocks, generated)
	}
	return result, nil
}

package rpc

import (
	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/log"

	"llmq_node/libs/metric"
	"llmq_node/llmq"
	"llmq_node/state"
	"llmq_node/types"
)

var env *Environment

func SetEnvironment(e *Environment) {
	env = e
}

// Environment contains the objects the routes read from. It is set once by
// the node before the server starts.
type Environment struct {
	Processor *llmq.BlockProcessor
	BlockExec *state.BlockExecutor
	MNList    *types.MasternodeList
	Reactor   *llmq.Reactor

	// empty when this node operates no masternode
	ProTxHash types.Hash
	Network   string

	MetricSet *metric.MetricSet
	Logger    log.Logger
}

func (e *Environment) chain() *state.Chain {
	return e.BlockExec.Chain()
}

func getLLMQParams(llmqType int) (types.LLMQParams, error) {
	if llmqType < 0 || llmqType > 0xff {
		return types.LLMQParams{}, errors.Errorf("invalid llmq type %d", llmqType)
	}
	params, ok := env.Processor.Params().Get(types.LLMQType(llmqType))
	if !ok {
		return types.LLMQParams{}, errors.Errorf("llmq type %d not enabled on this network", llmqType)
	}
	return params, nil
}

func parseHash(name, s string) (types.Hash, error) {
	h, err := types.HashFromHex(s)
	if err != nil {
		return types.ZeroHash, errors.Wrapf(err, "invalid %s", name)
	}
	return h, nil
}

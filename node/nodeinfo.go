package node

import (
	"github.com/tendermint/tendermint/p2p"
	"github.com/tendermint/tendermint/version"

	cfg "llmq_node/config"
	"llmq_node/llmq"
	"llmq_node/types"
)

// p2p protocol versions of this node. Peers must share the block version to
// agree on the commitment wire format.
const (
	p2pProtocol   = 8
	blockProtocol = 1
	appProtocol   = 0
)

// makeNodeInfo advertises the chain id as network, so nodes of other chains
// are refused at handshake.
func makeNodeInfo(
	config *cfg.Config,
	nodeKey *p2p.NodeKey,
	genDoc *types.GenesisDoc,
) (p2p.NodeInfo, error) {
	nodeInfo := p2p.DefaultNodeInfo{
		ProtocolVersion: p2p.NewProtocolVersion(
			p2pProtocol, // global
			blockProtocol,
			appProtocol,
		),
		DefaultNodeID: nodeKey.ID(),
		Network:       genDoc.ChainID,
		Version:       version.TMCoreSemVer,
		Channels: []byte{
			llmq.QuorumChannel,
		},
		Moniker: config.Moniker,
		Other: p2p.DefaultNodeInfoOther{
			TxIndex:    "off",
			RPCAddress: config.RPC.ListenAddress,
		},
	}

	lAddr := config.P2P.ExternalAddress

	if lAddr == "" {
		lAddr = config.P2P.ListenAddress
	}

	nodeInfo.ListenAddr = lAddr

	err := nodeInfo.Validate()
	return nodeInfo, err
}

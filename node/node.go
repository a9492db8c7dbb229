package node

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	metrics "github.com/rcrowley/go-metrics"
	"github.com/tendermint/tendermint/libs/log"
	tmos "github.com/tendermint/tendermint/libs/os"
	"github.com/tendermint/tendermint/libs/service"
	"github.com/tendermint/tendermint/p2p"
	"github.com/tendermint/tendermint/p2p/conn"
	rpcserver "github.com/tendermint/tendermint/rpc/jsonrpc/server"

	cfg "llmq_node/config"
	"llmq_node/libs/metric"
	"llmq_node/llmq"
	"llmq_node/privval"
	"llmq_node/rpc"
	"llmq_node/state"
	"llmq_node/store"
	"llmq_node/types"
)

// Provider takes a config and a logger and returns a ready to go Node.
type Provider func(*cfg.Config, log.Logger) (*Node, error)

// Node is the highest level interface to a full node: it owns the
// commitment store, the chain state, the commitment processor and the p2p
// and RPC servers.
type Node struct {
	service.BaseService

	// config
	config     *cfg.Config
	genesisDoc *types.GenesisDoc
	operator   *privval.FilePV // nil when this node operates no masternode

	// network
	transport *p2p.MultiplexTransport
	sw        *p2p.Switch // p2p connections
	nodeInfo  p2p.NodeInfo
	nodeKey   *p2p.NodeKey // our node privkey

	// services
	kv          *store.KVStore
	evoDB       *store.CommitmentStore
	chain       *state.Chain
	mnList      *types.MasternodeList
	processor   *llmq.BlockProcessor
	blockExec   *state.BlockExecutor
	llmqReactor *llmq.Reactor
	metricSet   *metric.MetricSet

	rpcListeners []net.Listener
}

// DefaultNewNode loads the node key, genesis file and, if present, the
// operator key from the locations in config.
func DefaultNewNode(config *cfg.Config, logger log.Logger) (*Node, error) {
	nodeKey, err := p2p.LoadOrGenNodeKey(config.NodeKeyFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load or gen node key %s: %w", config.NodeKeyFile(), err)
	}
	genDoc, err := types.GenesisDocFromFile(config.GenesisFile())
	if err != nil {
		return nil, err
	}
	var operator *privval.FilePV
	if tmos.FileExists(config.PrivOperatorKeyFile()) {
		if operator, err = privval.LoadFilePV(config.PrivOperatorKeyFile()); err != nil {
			return nil, err
		}
	}
	return NewNode(config, genDoc, nodeKey, operator, logger)
}

func createTransport(
	nodeInfo p2p.NodeInfo,
	nodeKey *p2p.NodeKey,
) *p2p.MultiplexTransport {
	var (
		mConnConfig = conn.DefaultMConnConfig()
		transport   = p2p.NewMultiplexTransport(nodeInfo, *nodeKey, mConnConfig)
	)
	return transport
}

func createSwitch(config *cfg.Config,
	transport p2p.Transport,
	llmqReactor *llmq.Reactor,
	nodeInfo p2p.NodeInfo,
	nodeKey *p2p.NodeKey,
	p2pLogger log.Logger) *p2p.Switch {

	sw := p2p.NewSwitch(
		config.P2P,
		transport,
	)
	sw.SetLogger(p2pLogger)
	sw.AddReactor("LLMQ", llmqReactor)

	sw.SetNodeInfo(nodeInfo)
	sw.SetNodeKey(nodeKey)

	p2pLogger.Info("P2P Node ID", "ID", nodeKey.ID(), "file", config.NodeKeyFile())
	return sw
}

// NewNode wires every component. The commitment store is replayed on start,
// not here.
func NewNode(config *cfg.Config,
	genDoc *types.GenesisDoc,
	nodeKey *p2p.NodeKey,
	operator *privval.FilePV,
	logger log.Logger) (*Node, error) {

	params, err := config.LLMQParams()
	if err != nil {
		return nil, err
	}
	mnList, err := genDoc.MasternodeList()
	if err != nil {
		return nil, err
	}

	kv, err := store.NewKVStore(config.EvoDB.Backend, "evodb", config.EvoDB.DBDir(), logger.With("module", "evodb"))
	if err != nil {
		return nil, err
	}
	evoDB := store.NewCommitmentStore(kv)
	evoDB.SetLogger(logger.With("module", "evodb"))

	chain := state.NewChain(genDoc.GenesisBlock())
	processor := llmq.NewBlockProcessor(params, evoDB, chain, mnList, llmq.WithMetrics(llmq.NewMetrics()))

	llmqReactor := llmq.NewReactor(processor)
	llmqReactor.SetLogger(logger.With("module", "llmq"))

	if operator != nil {
		proTxHash := operator.GetProTxHash()
		if _, ok := mnList.Get(proTxHash); !ok {
			logger.Error("operator key is not registered in the masternode list", "proTxHash", proTxHash)
		} else {
			logger.Info("running as masternode", "proTxHash", proTxHash)
		}
		processor.SetQuorumConnector(llmqReactor, proTxHash)
	}

	blockExec := state.NewBlockExecutor(chain, evoDB, processor, mnList,
		state.WithFlushInterval(config.EvoDB.FlushInterval),
		state.WithBlockStore(state.NewBlockStore(kv)))
	blockExec.SetLogger(logger.With("module", "state"))

	// setup node identity
	nodeInfo, err := makeNodeInfo(config, nodeKey, genDoc)
	if err != nil {
		kv.Close()
		return nil, err
	}

	// Setup Transport.
	transport := createTransport(nodeInfo, nodeKey)

	// Setup Switch.
	sw := createSwitch(
		config, transport, llmqReactor, nodeInfo, nodeKey, logger.With("module", "p2p"),
	)

	node := &Node{
		config:      config,
		genesisDoc:  genDoc,
		operator:    operator,
		transport:   transport,
		sw:          sw,
		nodeInfo:    nodeInfo,
		nodeKey:     nodeKey,
		kv:          kv,
		evoDB:       evoDB,
		chain:       chain,
		mnList:      mnList,
		processor:   processor,
		blockExec:   blockExec,
		llmqReactor: llmqReactor,
	}
	node.metricSet = node.createMetricSet()
	node.BaseService = *service.NewBaseService(logger, "Node", node)

	return node, nil
}

func (n *Node) createMetricSet() *metric.MetricSet {
	registry := metrics.NewRegistry()
	gauges := map[string]func() int64{
		"height":      func() int64 { return n.chain.Height() },
		"peers":       func() int64 { return int64(n.sw.Peers().Size()) },
		"masternodes": func() int64 { return int64(n.mnList.Size()) },
	}
	for name, f := range gauges {
		if err := registry.Register(name, metrics.NewFunctionalGauge(f)); err != nil {
			panic(err)
		}
	}

	ms := metric.NewMetricSet()
	if err := ms.SetMetrics("llmq", n.processor.Metrics()); err != nil {
		panic(err)
	}
	if err := ms.SetMetrics("node", metric.RegistryItem(registry)); err != nil {
		panic(err)
	}
	return ms
}

func (n *Node) ConfigureRPC() {
	env := &rpc.Environment{
		Processor: n.processor,
		BlockExec: n.blockExec,
		MNList:    n.mnList,
		Reactor:   n.llmqReactor,
		Network:   n.config.Network,
		MetricSet: n.metricSet,
		Logger:    n.Logger.With("module", "rpc"),
	}
	if n.operator != nil {
		env.ProTxHash = n.operator.GetProTxHash()
	}
	rpc.SetEnvironment(env)
}

func (n *Node) startRPC() ([]net.Listener, error) {
	n.ConfigureRPC()

	config := rpcserver.DefaultConfig()
	config.MaxOpenConnections = n.config.RPC.MaxOpenConnections
	config.MaxBodyBytes = n.config.RPC.MaxBodyBytes
	config.MaxHeaderBytes = n.config.RPC.MaxHeaderBytes

	rpcLogger := n.Logger.With("module", "rpc-server")
	mux := http.NewServeMux()
	wm := rpcserver.NewWebsocketManager(rpc.Routes, rpcserver.ReadLimit(config.MaxBodyBytes))
	wm.SetLogger(rpcLogger.With("protocol", "websocket"))
	mux.HandleFunc("/websocket", wm.WebsocketHandler)
	rpcserver.RegisterRPCFuncs(mux, rpc.Routes, rpcLogger)

	listeners := make([]net.Listener, 0, 1)
	for _, listenAddr := range splitAndTrimEmpty(n.config.RPC.ListenAddress, ",", " ") {
		listener, err := rpcserver.Listen(listenAddr, config)
		if err != nil {
			return nil, err
		}
		go func() {
			if err := rpcserver.Serve(listener, mux, rpcLogger, config); err != nil {
				n.Logger.Error("Error serving server", "err", err)
			}
		}()
		listeners = append(listeners, listener)
	}
	return listeners, nil
}

func (n *Node) OnStart() error {
	// 先重放区块，恢复commitment store
	if err := n.blockExec.Replay(); err != nil {
		return err
	}
	n.Logger.Info("chain loaded", "height", n.chain.Height(), "tip", n.chain.Tip().Hash)

	if n.config.RPC.ListenAddress != "" {
		listeners, err := n.startRPC()
		if err != nil {
			return err
		}
		n.rpcListeners = listeners
	}

	// start the transport
	addr, err := p2p.NewNetAddressString(p2p.IDAddressString(n.nodeKey.ID(), n.config.P2P.ListenAddress))
	if err != nil {
		return err
	}
	if err := n.transport.Listen(*addr); err != nil {
		return err
	}

	// start the Switch
	err = n.sw.Start()
	if err != nil {
		return err
	}

	err = n.sw.DialPeersAsync(splitAndTrimEmpty(n.config.P2P.PersistentPeers, ",", " "))
	if err != nil {
		return fmt.Errorf("could not dial peers from persistent_peers field: %w", err)
	}

	return nil
}

func (n *Node) OnStop() {
	n.Logger.Info("Stopping Node")

	if err := n.sw.Stop(); err != nil {
		n.Logger.Error("Error closing switch", "err", err)
	}
	if err := n.transport.Close(); err != nil {
		n.Logger.Error("Error closing transport", "err", err)
	}
	for _, l := range n.rpcListeners {
		n.Logger.Info("Closing rpc listener", "listener", l)
		if err := l.Close(); err != nil {
			n.Logger.Error("Error closing listener", "listener", l, "err", err)
		}
	}

	// 退出前把commitment store刷到磁盘
	if err := n.blockExec.Flush(); err != nil {
		n.Logger.Error("Error flushing evodb", "err", err)
	}
	if err := n.kv.Close(); err != nil {
		n.Logger.Error("Error closing evodb", "err", err)
	}
}

func (n *Node) Switch() *p2p.Switch {
	return n.sw
}

func (n *Node) NodeInfo() p2p.NodeInfo {
	return n.nodeInfo
}

func (n *Node) BlockExecutor() *state.BlockExecutor {
	return n.blockExec
}

func (n *Node) Processor() *llmq.BlockProcessor {
	return n.processor
}

func (n *Node) LLMQReactor() *llmq.Reactor {
	return n.llmqReactor
}

func (n *Node) MetricSet() *metric.MetricSet {
	return n.metricSet
}

// splitAndTrimEmpty slices s into all subslices separated by sep and returns a
// slice of the string s with all leading and trailing Unicode code points
// contained in cutset removed. If sep is empty, SplitAndTrim splits after each
// UTF-8 sequence. First part is equivalent to strings.SplitN with a count of
// -1.  also filter out empty strings, only return non-empty strings.
func splitAndTrimEmpty(s, sep, cutset string) []string {
	if s == "" {
		return []string{}
	}

	spl := strings.Split(s, sep)
	nonEmptyStrings := make([]string, 0, len(spl))
	for i := 0; i < len(spl); i++ {
		element := strings.Trim(spl[i], cutset)
		if element != "" {
			nonEmptyStrings = append(nonEmptyStrings, element)
		}
	}
	return nonEmptyStrings
}

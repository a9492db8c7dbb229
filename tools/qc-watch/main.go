package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	tmjson "github.com/tendermint/tendermint/libs/json"
	"github.com/tendermint/tendermint/libs/log"
	jsonrpc "github.com/tendermint/tendermint/rpc/jsonrpc/types"

	"llmq_node/rpc"
	"llmq_node/types"
)

const sendTimeout = 10 * time.Second

var (
	host     string
	llmqType int
	maxCount int
	interval time.Duration
)

func connect(host string) (*websocket.Conn, *http.Response, error) {
	u := url.URL{Scheme: "ws", Host: host, Path: "/websocket"}
	return websocket.DefaultDialer.Dial(u.String(), nil)
}

// watcher 轮询节点，打印新挖出的quorum
type watcher struct {
	conn   *websocket.Conn
	nextID int
	logger log.Logger

	lastHeight int64
	seen       map[types.Hash]bool
}

// call sends one request and waits for its response. The websocket carries
// one call at a time.
func (w *watcher) call(method string, params map[string]interface{}, result interface{}) error {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return err
	}
	w.nextID++
	w.conn.SetWriteDeadline(time.Now().Add(sendTimeout))
	err = w.conn.WriteJSON(jsonrpc.RPCRequest{
		JSONRPC: "2.0",
		ID:      jsonrpc.JSONRPCIntID(w.nextID),
		Method:  method,
		Params:  json.RawMessage(paramsJSON),
	})
	if err != nil {
		return errors.Wrapf(err, "failed to send %s", method)
	}

	var resp jsonrpc.RPCResponse
	w.conn.SetReadDeadline(time.Now().Add(sendTimeout))
	if err := w.conn.ReadJSON(&resp); err != nil {
		return errors.Wrapf(err, "failed to read %s response", method)
	}
	if resp.Error != nil {
		return errors.Errorf("%s: %v", method, resp.Error)
	}
	return tmjson.Unmarshal(resp.Result, result)
}

func (w *watcher) poll() error {
	var status rpc.ResultStatus
	if err := w.call("status", map[string]interface{}{}, &status); err != nil {
		return err
	}
	if status.Height == w.lastHeight {
		return nil
	}
	w.lastHeight = status.Height
	w.logger.Info("tip", "height", status.Height, "hash", status.TipHash, "minable", status.Minable)

	var mined rpc.ResultMinedCommitments
	err := w.call("mined_commitments", map[string]interface{}{
		"llmq_type": llmqType,
		"max_count": maxCount,
	}, &mined)
	if err != nil {
		return err
	}
	for _, q := range mined.Quorums {
		if w.seen[q.QuorumHash] {
			continue
		}
		w.seen[q.QuorumHash] = true

		var qc rpc.ResultMinedCommitment
		err := w.call("mined_commitment", map[string]interface{}{
			"llmq_type":   llmqType,
			"quorum_hash": q.QuorumHash.String(),
		}, &qc)
		if err != nil {
			return err
		}
		w.logger.Info("quorum mined",
			"quorumHeight", q.Height,
			"quorumHash", q.QuorumHash,
			"minedBlock", qc.MinedBlock,
			"signers", qc.Commitment.SignersCount,
			"validMembers", qc.Commitment.ValidMembersCount)
	}
	return nil
}

var rootCmd = &cobra.Command{
	Use:   "qc-watch",
	Short: "Follow the final commitments mined by a llmq node",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := log.NewTMLogger(log.NewSyncWriter(os.Stdout))
		c, _, err := connect(host)
		if err != nil {
			return err
		}
		defer c.Close()

		w := &watcher{conn: c, logger: logger, lastHeight: -1, seen: make(map[types.Hash]bool)}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			if err := w.poll(); err != nil {
				return err
			}
			<-ticker.C
		}
	},
}

func init() {
	rootCmd.Flags().StringVar(&host, "host", "127.0.0.1:26657", "rpc address of the node")
	rootCmd.Flags().IntVar(&llmqType, "llmq-type", int(types.LLMQTest), "llmq type to follow")
	rootCmd.Flags().IntVar(&maxCount, "max-count", 0, "quorums listed per poll, 0 for the active count")
	rootCmd.Flags().DurationVar(&interval, "interval", time.Second, "poll interval")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

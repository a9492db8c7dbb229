package main

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	metrics "github.com/rcrowley/go-metrics"
	"github.com/tendermint/tendermint/libs/log"
	jsonrpc "github.com/tendermint/tendermint/rpc/jsonrpc/types"
)

const (
	sendTimeout = 10 * time.Second
	// the rpc server closes the connection in the absence of pings
	pingPeriod = (30 * 9 / 10) * time.Second
)

// generator drives a regtest node: every connection asks for Rate
// generate_blocks calls per second and records the round trip of each call.
type generator struct {
	Target        string
	Rate          int
	Connections   int
	BlocksPerCall int

	conns       []*websocket.Conn
	connsBroken []bool
	startingWg  sync.WaitGroup
	endingWg    sync.WaitGroup
	stopped     int32

	// request id -> send time
	pending sync.Map
	nextID  int64

	sent     metrics.Meter
	failed   metrics.Counter
	latency  metrics.Timer
	registry metrics.Registry

	logger log.Logger
}

func newGenerator(target string, connections, rate, blocksPerCall int) *generator {
	g := &generator{
		Target:        target,
		Rate:          rate,
		Connections:   connections,
		BlocksPerCall: blocksPerCall,
		conns:         make([]*websocket.Conn, connections),
		connsBroken:   make([]bool, connections),
		sent:          metrics.NewMeter(),
		failed:        metrics.NewCounter(),
		latency:       metrics.NewTimer(),
		registry:      metrics.NewRegistry(),
		logger:        log.NewNopLogger(),
	}
	g.registry.Register("sent", g.sent)
	g.registry.Register("failed", g.failed)
	g.registry.Register("latency", g.latency)
	return g
}

// SetLogger lets you set your own logger
func (g *generator) SetLogger(l log.Logger) {
	g.logger = l
}

func (g *generator) isStopped() bool {
	return atomic.LoadInt32(&g.stopped) == 1
}

// Start opens N = `g.Connections` connections to the target and creates read
// and write goroutines for each connection.
func (g *generator) Start() error {
	atomic.StoreInt32(&g.stopped, 0)

	for i := 0; i < g.Connections; i++ {
		c, _, err := connect(g.Target)
		if err != nil {
			return err
		}
		g.conns[i] = c
	}

	g.startingWg.Add(g.Connections)
	g.endingWg.Add(2 * g.Connections)
	for i := 0; i < g.Connections; i++ {
		go g.sendLoop(i)
		go g.receiveLoop(i)
	}

	g.startingWg.Wait()

	return nil
}

// Stop closes the connections.
func (g *generator) Stop() {
	atomic.StoreInt32(&g.stopped, 1)
	g.endingWg.Wait()
	for _, c := range g.conns {
		c.Close()
	}
}

// receiveLoop matches responses to their requests.
func (g *generator) receiveLoop(connIndex int) {
	c := g.conns[connIndex]
	defer g.endingWg.Done()
	for {
		var resp jsonrpc.RPCResponse
		if err := c.ReadJSON(&resp); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) && !g.isStopped() {
				g.logger.Error(
					fmt.Sprintf("failed to read response on conn %d", connIndex),
					"err",
					err,
				)
			}
			return
		}
		if id, ok := resp.ID.(jsonrpc.JSONRPCIntID); ok {
			if sentAt, ok := g.pending.LoadAndDelete(int64(id)); ok {
				g.latency.UpdateSince(sentAt.(time.Time))
			}
		}
		if resp.Error != nil {
			g.failed.Inc(1)
			g.logger.Debug("call failed", "conn", connIndex, "err", resp.Error)
		}
		if g.isStopped() || g.connsBroken[connIndex] {
			return
		}
	}
}

// sendLoop calls generate_blocks at a given rate.
func (g *generator) sendLoop(connIndex int) {
	started := false
	// Close the starting waitgroup, in the event that this fails to start
	defer func() {
		if !started {
			g.startingWg.Done()
		}
	}()
	c := g.conns[connIndex]

	c.SetPingHandler(func(message string) error {
		err := c.WriteControl(websocket.PongMessage, []byte(message), time.Now().Add(sendTimeout))
		if err == websocket.ErrCloseSent {
			return nil
		} else if e, ok := err.(net.Error); ok && e.Timeout() {
			return nil
		}
		return err
	})

	logger := g.logger.With("addr", c.RemoteAddr())

	paramsJSON, err := json.Marshal(map[string]interface{}{"count": g.BlocksPerCall})
	if err != nil {
		panic(err)
	}

	pingsTicker := time.NewTicker(pingPeriod)
	callsTicker := time.NewTicker(1 * time.Second)
	defer func() {
		pingsTicker.Stop()
		callsTicker.Stop()
		g.endingWg.Done()
	}()

	for {
		select {
		case <-callsTicker.C:
			startTime := time.Now()
			endTime := startTime.Add(time.Second)
			numSent := g.Rate
			if !started {
				g.startingWg.Done()
				started = true
			}

			now := time.Now()
			for i := 0; i < g.Rate; i++ {
				id := atomic.AddInt64(&g.nextID, 1)
				g.pending.Store(id, now)

				c.SetWriteDeadline(now.Add(sendTimeout))
				err := c.WriteJSON(jsonrpc.RPCRequest{
					JSONRPC: "2.0",
					ID:      jsonrpc.JSONRPCIntID(id),
					Method:  "generate_blocks",
					Params:  json.RawMessage(paramsJSON),
				})
				if err != nil {
					err = errors.Wrapf(err, "calls send failed on connection #%d", connIndex)
					g.connsBroken[connIndex] = true
					logger.Error(err.Error())
					return
				}
				g.sent.Mark(1)

				// cache the time.Now() reads to save time.
				if i%5 == 0 {
					now = time.Now()
					if now.After(endTime) {
						// Plus one accounts for sending this call
						numSent = i + 1
						break
					}
				}
			}

			timeToSend := time.Since(startTime)
			logger.Info(fmt.Sprintf("sent %d calls", numSent), "took", timeToSend)
			if timeToSend < 1*time.Second {
				sleepTime := time.Second - timeToSend
				logger.Debug(fmt.Sprintf("connection #%d is sleeping for %f seconds", connIndex, sleepTime.Seconds()))
				time.Sleep(sleepTime)
			}

		case <-pingsTicker.C:
			c.SetWriteDeadline(time.Now().Add(sendTimeout))
			if err := c.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				err = errors.Wrapf(err, "failed to write ping message on conn #%d", connIndex)
				logger.Error(err.Error())
				g.connsBroken[connIndex] = true
			}
		}

		if g.isStopped() {
			// To cleanly close a connection, a client should send a close
			// frame and wait for the server to close the connection.
			c.SetWriteDeadline(time.Now().Add(sendTimeout))
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				err = errors.Wrapf(err, "failed to write close message on conn #%d", connIndex)
				logger.Error(err.Error())
				g.connsBroken[connIndex] = true
			}

			return
		}
	}
}

func connect(host string) (*websocket.Conn, *http.Response, error) {
	u := url.URL{Scheme: "ws", Host: host, Path: "/websocket"}
	return websocket.DefaultDialer.Dial(u.String(), nil)
}

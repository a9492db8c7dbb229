package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tendermint/tendermint/libs/log"

	"llmq_node/libs/metric"
)

var (
	target        string
	connections   int
	rate          int
	blocksPerCall int
	duration      time.Duration
	verbose       bool
)

var rootCmd = &cobra.Command{
	Use:   "llmq-bench",
	Short: "Mine blocks on a regtest llmq node through generate_blocks and report the rpc latency",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if connections <= 0 || rate <= 0 || blocksPerCall <= 0 {
			return fmt.Errorf("connections, rate and count must be positive")
		}

		logger := log.NewTMLogger(log.NewSyncWriter(os.Stdout))
		if !verbose {
			logger = log.NewFilter(logger, log.AllowInfo())
		}

		g := newGenerator(target, connections, rate, blocksPerCall)
		g.SetLogger(logger.With("module", "generator"))
		if err := g.Start(); err != nil {
			return err
		}
		time.Sleep(duration)
		g.Stop()

		fmt.Println(metric.RegistryItem(g.registry).JSONString())
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVar(&target, "target", "127.0.0.1:26657", "rpc address of the node")
	rootCmd.Flags().IntVar(&connections, "connections", 1, "websocket connections to open")
	rootCmd.Flags().IntVar(&rate, "rate", 10, "generate_blocks calls per second per connection")
	rootCmd.Flags().IntVar(&blocksPerCall, "count", 1, "blocks mined by each call")
	rootCmd.Flags().DurationVar(&duration, "duration", 10*time.Second, "how long to run")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log debug output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

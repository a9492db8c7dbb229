package main

import (
	"os"

	"github.com/tendermint/tendermint/libs/cli"

	cmd "llmq_node/cmd/commands"
	cfg "llmq_node/config"
	nm "llmq_node/node"
)

func main() {
	rootCmd := cmd.RootCmd
	rootCmd.AddCommand(
		cmd.InitFilesCmd,
		cmd.GenNodeKeyCmd,
		cmd.ShowNodeIDCmd,
		cmd.GenOperatorKeyCmd,
		cmd.ShowOperatorKeyCmd,
		cmd.GenGenesisCmd,
		cmd.VersionCmd,
		cli.NewCompletionCmd(rootCmd, true),
	)

	// 自定义节点（例如换掉evodb的实现）时替换这里的Provider
	nodeFunc := nm.DefaultNewNode

	// Create & start node
	rootCmd.AddCommand(cmd.NewRunNodeCmd(nodeFunc))

	cmd := cli.PrepareBaseCmd(rootCmd, cfg.EnvPrefix, cfg.DefaultHome())
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

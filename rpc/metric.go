package rpc

import (
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"
)

type ResultMetrics struct {
	Metrics map[string]string `json:"metrics"`
}

// LLMQMetrics returns the metrics of label, or of every module when label
// is empty.
func LLMQMetrics(ctx *rpctypes.Context, label string) (*ResultMetrics, error) {
	var labels []string
	if label != "" {
		labels = []string{label}
	}
	return &ResultMetrics{Metrics: env.MetricSet.JSONStrings(labels...)}, nil
}

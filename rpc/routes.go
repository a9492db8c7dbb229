package rpc

import rpc "github.com/tendermint/tendermint/rpc/jsonrpc/server"

var Routes = map[string]*rpc.RPCFunc{
	"status":             rpc.NewRPCFunc(Status, ""),
	"mined_commitment":   rpc.NewRPCFunc(MinedCommitment, "llmq_type,quorum_hash"),
	"mined_commitments":  rpc.NewRPCFunc(MinedCommitments, "llmq_type,max_count"),
	"minable_commitment": rpc.NewRPCFunc(MinableCommitment, "llmq_type,height"),
	"quorum_members":     rpc.NewRPCFunc(QuorumMembers, "llmq_type,quorum_hash"),
	"quorum_nodes":       rpc.NewRPCFunc(QuorumNodes, "llmq_type,quorum_hash"),
	"submit_commitment":  rpc.NewRPCFunc(SubmitCommitment, "commitment"),
	"generate_blocks":    rpc.NewRPCFunc(GenerateBlocks, "count"),
	"llmq_metrics":       rpc.NewRPCFunc(LLMQMetrics, "label"),
}

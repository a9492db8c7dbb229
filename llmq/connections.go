package llmq

import (
	"sort"

	"llmq_node/types"
)

// CalcRelayMemberIndexes returns the indexes member i of an n member quorum
// relays quorum messages to: (i+2^k)%n for k = 0..max(1, floor(log2(n-1))).
// The k=0 edge alone makes the relay graph a ring, so it is always strongly
// connected; the longer edges keep the diameter at O(log n).
func CalcRelayMemberIndexes(n, i int) []int {
	if n <= 1 {
		return nil
	}
	if n == 2 {
		return []int{(i + 1) % 2}
	}

	seen := make(map[int]struct{})
	gap := 1
	gapMax := n - 1
	for k := 0; ; k++ {
		gapMax >>= 1
		if gapMax == 0 && k > 1 {
			break
		}
		idx := (i + gap) % n
		if idx != i {
			seen[idx] = struct{}{}
		}
		gap <<= 1
	}

	r := make([]int, 0, len(seen))
	for idx := range seen {
		r = append(r, idx)
	}
	sort.Ints(r)
	return r
}

// DeterministicOutboundConnection picks which of two masternodes initiates
// the connection between them. Taking the lowest of
// H(min(a,b), max(a,b), x) for x in {a, b} avoids favouring numerically low
// proTxHashes.
func DeterministicOutboundConnection(proTxHash1, proTxHash2 types.Hash) types.Hash {
	lo, hi := proTxHash1, proTxHash2
	if hi.Less(lo) {
		lo, hi = hi, lo
	}
	score := func(x types.Hash) types.Hash {
		e := types.NewEncoder()
		e.WriteHash(lo)
		e.WriteHash(hi)
		e.WriteHash(x)
		return types.DoubleHash(e.Bytes())
	}
	if score(proTxHash1).Less(score(proTxHash2)) {
		return proTxHash1
	}
	return proTxHash2
}

// GetQuorumRelayMembers returns the members forMember relays to. Unless
// onlyOutbound is set, the members relaying to forMember are included too.
// The result is sorted.
func GetQuorumRelayMembers(members []*types.Masternode, forMember types.Hash, onlyOutbound bool) []types.Hash {
	result := make(map[types.Hash]struct{})
	for i, mn := range members {
		if mn.ProTxHash == forMember {
			for _, idx := range CalcRelayMemberIndexes(len(members), i) {
				result[members[idx].ProTxHash] = struct{}{}
			}
		} else if !onlyOutbound {
			for _, idx := range CalcRelayMemberIndexes(len(members), i) {
				if members[idx].ProTxHash == forMember {
					result[mn.ProTxHash] = struct{}{}
					break
				}
			}
		}
	}
	return sortedHashes(result)
}

// GetQuorumConnections returns the members forMember connects to: all other
// members, or with onlyOutbound the ones it is the deterministic initiator
// for.
func GetQuorumConnections(members []*types.Masternode, forMember types.Hash, onlyOutbound bool) []types.Hash {
	result := make(map[types.Hash]struct{})
	for _, mn := range members {
		if mn.ProTxHash == forMember {
			continue
		}
		if !onlyOutbound || DeterministicOutboundConnection(forMember, mn.ProTxHash) == forMember {
			result[mn.ProTxHash] = struct{}{}
		}
	}
	return sortedHashes(result)
}

func isQuorumMember(members []*types.Masternode, proTxHash types.Hash) bool {
	for _, mn := range members {
		if mn.ProTxHash == proTxHash {
			return true
		}
	}
	return false
}

func sortedHashes(set map[types.Hash]struct{}) []types.Hash {
	out := make([]types.Hash, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

package llmq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmq_node/types"
)

func reachable(n int, edges func(i int) []int) int {
	seen := make([]bool, n)
	seen[0] = true
	queue := []int{0}
	count := 1
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		for _, j := range edges(i) {
			if !seen[j] {
				seen[j] = true
				count++
				queue = append(queue, j)
			}
		}
	}
	return count
}

func TestCalcRelayMemberIndexes(t *testing.T) {
	assert.Empty(t, CalcRelayMemberIndexes(0, 0))
	assert.Empty(t, CalcRelayMemberIndexes(1, 0))
	assert.Equal(t, []int{1}, CalcRelayMemberIndexes(2, 0))
	assert.Equal(t, []int{0}, CalcRelayMemberIndexes(2, 1))
	assert.Equal(t, []int{0, 1}, CalcRelayMemberIndexes(3, 2))
	assert.Equal(t, []int{1, 2, 4, 8, 16}, CalcRelayMemberIndexes(50, 0))
	assert.Equal(t, []int{0, 1, 3, 7, 15}, CalcRelayMemberIndexes(50, 49))

	for n, want := range map[int]int{2: 1, 3: 2, 50: 5, 400: 8, 1200: 10} {
		forward := make([][]int, n)
		backward := make([][]int, n)
		for i := 0; i < n; i++ {
			forward[i] = CalcRelayMemberIndexes(n, i)
			require.Len(t, forward[i], want, "n=%d i=%d", n, i)
			for _, j := range forward[i] {
				require.NotEqual(t, i, j)
				backward[j] = append(backward[j], i)
			}
		}
		// strongly connected: everything reachable from 0 both ways
		assert.Equal(t, n, reachable(n, func(i int) []int { return forward[i] }), "n=%d", n)
		assert.Equal(t, n, reachable(n, func(i int) []int { return backward[i] }), "n=%d", n)
	}
}

func TestDeterministicOutboundConnection(t *testing.T) {
	a := types.DoubleHash([]byte("a"))
	b := types.DoubleHash([]byte("b"))
	c := types.DoubleHash([]byte("c"))

	for _, pair := range [][2]types.Hash{{a, b}, {b, c}, {a, c}} {
		x, y := pair[0], pair[1]
		r := DeterministicOutboundConnection(x, y)
		assert.Equal(t, r, DeterministicOutboundConnection(y, x))
		assert.True(t, r == x || r == y)
	}
}

func TestQuorumRelayMembersAndConnections(t *testing.T) {
	mnList, _ := types.RandMasternodeList(10, 7)
	params := testParams(10, 6)
	members := mnList.CalculateQuorum(params, types.DoubleHash([]byte("quorum")))
	require.Len(t, members, 10)

	for i, mn := range members {
		outbound := GetQuorumRelayMembers(members, mn.ProTxHash, true)
		require.Len(t, outbound, len(CalcRelayMemberIndexes(10, i)))
		for _, idx := range CalcRelayMemberIndexes(10, i) {
			assert.Contains(t, outbound, members[idx].ProTxHash)
		}

		all := GetQuorumRelayMembers(members, mn.ProTxHash, false)
		assert.Subset(t, all, outbound)
		assert.NotContains(t, all, mn.ProTxHash)
		for _, other := range members {
			if other.ProTxHash == mn.ProTxHash {
				continue
			}
			// inbound relays are the members having mn as their own target
			if contains(GetQuorumRelayMembers(members, other.ProTxHash, true), mn.ProTxHash) {
				assert.Contains(t, all, other.ProTxHash)
			}
		}
		for j := 1; j < len(all); j++ {
			assert.True(t, all[j-1].Less(all[j]))
		}

		conns := GetQuorumConnections(members, mn.ProTxHash, false)
		assert.Len(t, conns, 9)
		assert.NotContains(t, conns, mn.ProTxHash)
	}

	// every pair is connected by exactly one side
	for i, x := range members {
		for _, y := range members[i+1:] {
			xOut := contains(GetQuorumConnections(members, x.ProTxHash, true), y.ProTxHash)
			yOut := contains(GetQuorumConnections(members, y.ProTxHash, true), x.ProTxHash)
			assert.True(t, xOut != yOut)
		}
	}

	outsider := types.DoubleHash([]byte("outsider"))
	assert.Empty(t, GetQuorumRelayMembers(members, outsider, true))
	assert.False(t, isQuorumMember(members, outsider))
	assert.True(t, isQuorumMember(members, members[3].ProTxHash))
}

func contains(hashes []types.Hash, h types.Hash) bool {
	for _, x := range hashes {
		if x == h {
			return true
		}
	}
	return false
}

package types

import "fmt"

// VotingSetFamily maps a node id to the subset of peers (including
// itself) whose unanimous consent it needs, for one fixed cluster size.
// The family is precomputed configuration (spec.md §3), never derived at
// runtime.
type VotingSetFamily struct {
	ClusterSize int
	K           int
	Sets        map[NodeID][]NodeID
}

// builtinVotingSets carries the two sizes the original source exercises:
// N=3,K=2 and N=7,K=3. Both satisfy the spec.md §3 properties (self
// membership, pairwise intersection, constant size K, each node present
// in exactly K sets) by inspection, matching maekawa.c/fuchi.c's
// hard-coded voting_set[N][i] tables.
var builtinVotingSets = map[int]VotingSetFamily{
	3: {
		ClusterSize: 3,
		K:           2,
		Sets: map[NodeID][]NodeID{
			1: {1, 2},
			2: {2, 3},
			3: {1, 3},
		},
	},
	7: {
		ClusterSize: 7,
		K:           3,
		Sets: map[NodeID][]NodeID{
			1: {1, 2, 3},
			2: {2, 4, 6},
			3: {3, 5, 6},
			4: {1, 4, 5},
			5: {2, 5, 7},
			6: {1, 6, 7},
			7: {3, 4, 7},
		},
	},
}

// BuiltinVotingSetFamily returns the precomputed voting-set family for a
// cluster of the given size, or an error if none is configured. Callers
// that add a new (N, K) pair must verify the spec.md §3 properties
// themselves before registering it (spec.md DESIGN NOTES, Open Questions).
func BuiltinVotingSetFamily(clusterSize int) (VotingSetFamily, error) {
	family, ok := builtinVotingSets[clusterSize]
	if !ok {
		return VotingSetFamily{}, fmt.Errorf("dme: no voting-set family configured for cluster size %d", clusterSize)
	}
	return family, nil
}

// For returns node's voting set within the family, copied so callers
// cannot mutate the shared table.
func (f VotingSetFamily) For(node NodeID) []NodeID {
	set := f.Sets[node]
	out := make([]NodeID, len(set))
	copy(out, set)
	return out
}

// Validate checks the spec.md §3 properties hold for this family:
// self-membership, pairwise non-empty intersection, constant set size K,
// and every node appearing in exactly K sets.
func (f VotingSetFamily) Validate() error {
	membership := make(map[NodeID]int)
	for node, set := range f.Sets {
		if len(set) != f.K {
			return fmt.Errorf("dme: voting set for node %d has size %d, want K=%d", node, len(set), f.K)
		}
		found := false
		for _, member := range set {
			membership[member]++
			if member == node {
				found = true
			}
		}
		if !found {
			return fmt.Errorf("dme: voting set for node %d does not contain itself", node)
		}
	}
	for i, a := range f.Sets {
		for j, b := range f.Sets {
			if i == j {
				continue
			}
			if !intersects(a, b) {
				return fmt.Errorf("dme: voting sets for nodes %d and %d do not intersect", i, j)
			}
		}
	}
	for node, count := range membership {
		if count != f.K {
			return fmt.Errorf("dme: node %d appears in %d voting sets, want K=%d", node, count, f.K)
		}
	}
	return nil
}

func intersects(a, b []NodeID) bool {
	seen := make(map[NodeID]struct{}, len(a))
	for _, n := range a {
		seen[n] = struct{}{}
	}
	for _, n := range b {
		if _, ok := seen[n]; ok {
			return true
		}
	}
	return false
}

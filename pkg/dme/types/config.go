package types

import "fmt"

// Algorithm selects which pluggable DME protocol an Engine runs. All
// nodes in a cluster MUST run the same algorithm (spec.md §6).
type Algorithm uint8

const (
	Ricart Algorithm = iota
	Maekawa
	Fuchi
	// Simple is the unsafe "tell everyone, then just go" baseline from
	// original_source/src/simple.c. It is never offered by the CLI
	// algorithm selector (see SPEC_FULL.md §4); it exists only as a
	// negative control for the mutual-exclusion property tests.
	Simple
)

func (a Algorithm) String() string {
	switch a {
	case Ricart:
		return "ricart"
	case Maekawa:
		return "maekawa"
	case Fuchi:
		return "fuchi"
	case Simple:
		return "simple"
	default:
		return "unknown"
	}
}

// ParseAlgorithm maps a CLI-facing name to an Algorithm. "simple" is
// deliberately not accepted here; see Algorithm's doc comment.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch name {
	case "ricart":
		return Ricart, nil
	case "maekawa":
		return Maekawa, nil
	case "fuchi":
		return Fuchi, nil
	default:
		return 0, fmt.Errorf("dme: unknown algorithm %q", name)
	}
}

// Config is the start-up configuration for a single node's Engine. Every
// field is fixed for the process lifetime (spec.md §3 Lifecycle).
type Config struct {
	// NodeID is this process's fixed identity, in 1..ClusterSize.
	NodeID NodeID

	// ClusterSize is the fixed node count N.
	ClusterSize int

	// Algorithm selects the pluggable protocol.
	Algorithm Algorithm

	// VotingSet is this node's S[ClusterSize][NodeID], required by
	// Maekawa and Fuchi. Ricart ignores it.
	VotingSet []NodeID

	// Peers is the hostname (or address) of every node, indexed so that
	// Peers[id-1] names node id. Consumed by the transport, not by the
	// algorithm handlers themselves.
	Peers []string

	// Logger receives diagnostics from the engine and its handler.
	Logger Logger
}

// Validate checks the invariants every Config must satisfy before an
// Engine can be constructed: a node id inside the cluster, a non-empty
// voting set containing the node itself for quorum algorithms, and,
// when a peer list is given, one entry per node.
func (c Config) Validate() error {
	if c.ClusterSize < 1 {
		return fmt.Errorf("dme: cluster size must be >= 1, got %d", c.ClusterSize)
	}
	if c.NodeID < 1 || int(c.NodeID) > c.ClusterSize {
		return fmt.Errorf("dme: node id %d out of range 1..%d", c.NodeID, c.ClusterSize)
	}
	if len(c.Peers) != 0 && len(c.Peers) != c.ClusterSize {
		return fmt.Errorf("dme: peer list has %d entries, want %d", len(c.Peers), c.ClusterSize)
	}
	if c.Algorithm == Maekawa || c.Algorithm == Fuchi {
		if len(c.VotingSet) == 0 {
			return fmt.Errorf("dme: %s requires a non-empty voting set", c.Algorithm)
		}
		self := false
		for _, n := range c.VotingSet {
			if n == c.NodeID {
				self = true
			}
		}
		if !self {
			return fmt.Errorf("dme: voting set for node %d must contain itself", c.NodeID)
		}
	}
	return nil
}

// DefaultConfig builds a Config for the given node using the builtin
// voting-set family for clusterSize (when one is registered) and the
// default logger. Callers needing a custom voting-set table or
// transport peer list should override the returned fields directly,
// matching the teacher's Default*Configuration pattern
// (pkg/mcast/protocol.go's BaseConfiguration).
func DefaultConfig(node NodeID, clusterSize int, algorithm Algorithm, logger Logger) *Config {
	cfg := &Config{
		NodeID:      node,
		ClusterSize: clusterSize,
		Algorithm:   algorithm,
		Logger:      logger,
	}
	if family, err := BuiltinVotingSetFamily(clusterSize); err == nil {
		cfg.VotingSet = family.For(node)
	}
	return cfg
}

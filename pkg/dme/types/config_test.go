package types

import "testing"

func TestParseAlgorithmRejectsSimple(t *testing.T) {
	if _, err := ParseAlgorithm("simple"); err == nil {
		t.Fatal("ParseAlgorithm(\"simple\") must be rejected; it is not CLI-selectable")
	}
}

func TestParseAlgorithmKnownNames(t *testing.T) {
	cases := map[string]Algorithm{"ricart": Ricart, "maekawa": Maekawa, "fuchi": Fuchi}
	for name, want := range cases {
		got, err := ParseAlgorithm(name)
		if err != nil {
			t.Fatalf("ParseAlgorithm(%q): %v", name, err)
		}
		if got != want {
			t.Fatalf("ParseAlgorithm(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestConfigValidateRejectsNodeIDOutOfRange(t *testing.T) {
	cfg := Config{NodeID: 4, ClusterSize: 3, Algorithm: Ricart}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for node id beyond cluster size")
	}
}

func TestConfigValidateRequiresVotingSetForQuorumAlgorithms(t *testing.T) {
	cfg := Config{NodeID: 1, ClusterSize: 3, Algorithm: Maekawa}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing voting set")
	}

	cfg.VotingSet = []NodeID{2, 3}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when voting set excludes the node itself")
	}

	cfg.VotingSet = []NodeID{1, 2}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestConfigValidateIgnoresVotingSetForRicart(t *testing.T) {
	cfg := Config{NodeID: 1, ClusterSize: 3, Algorithm: Ricart}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestDefaultConfigAttachesBuiltinVotingSet(t *testing.T) {
	cfg := DefaultConfig(2, 3, Maekawa, nil)
	if len(cfg.VotingSet) == 0 {
		t.Fatal("DefaultConfig should attach the builtin voting set for cluster size 3")
	}
}

package types

import "testing"

func TestBuiltinVotingSetFamiliesValidate(t *testing.T) {
	for _, size := range []int{3, 7} {
		family, err := BuiltinVotingSetFamily(size)
		if err != nil {
			t.Fatalf("BuiltinVotingSetFamily(%d): %v", size, err)
		}
		if err := family.Validate(); err != nil {
			t.Errorf("cluster size %d: %v", size, err)
		}
	}
}

func TestBuiltinVotingSetFamilyUnknownSize(t *testing.T) {
	if _, err := BuiltinVotingSetFamily(4); err == nil {
		t.Fatal("expected error for unregistered cluster size 4")
	}
}

func TestVotingSetForCopiesSlice(t *testing.T) {
	family, err := BuiltinVotingSetFamily(3)
	if err != nil {
		t.Fatalf("BuiltinVotingSetFamily: %v", err)
	}
	set := family.For(1)
	set[0] = 99
	if fresh := family.For(1); fresh[0] == 99 {
		t.Fatal("For must return a copy, not the shared backing array")
	}
}

func TestValidateRejectsNonIntersectingSets(t *testing.T) {
	bad := VotingSetFamily{
		ClusterSize: 4,
		K:           1,
		Sets: map[NodeID][]NodeID{
			1: {1},
			2: {2},
		},
	}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for disjoint voting sets")
	}
}

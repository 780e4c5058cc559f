package core

import (
	"errors"
	"testing"
)

func TestParseNodeID(t *testing.T) {
	cases := map[string]NodeID{"C": 0, "c": 0, "0": 0, "P1": 1, "p3": 3, " 2 ": 2}
	for in, want := range cases {
		got, err := ParseNodeID(in)
		if err != nil || got != want {
			t.Errorf("ParseNodeID(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	for _, bad := range []string{"", "P", "Px", "-1", "node"} {
		if _, err := ParseNodeID(bad); !errors.Is(err, ErrUnknownNode) {
			t.Errorf("ParseNodeID(%q) should fail with ErrUnknownNode, got %v", bad, err)
		}
	}
}

func TestLinkKeyNormalizes(t *testing.T) {
	k := NewLinkKey(3, 1)
	if k != NewLinkKey(1, 3) || k.A != 1 || k.B != 3 {
		t.Fatalf("unexpected key %+v", k)
	}
	if !k.Touches(3) || k.Touches(0) || k.Other(1) != 3 {
		t.Fatalf("endpoint helpers disagree for %v", k)
	}
	if k.String() != "P1<->P3" {
		t.Fatalf("unexpected label %q", k.String())
	}
}

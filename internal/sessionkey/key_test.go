package sessionkey

import "testing"

func TestBuildParseRoundTrip(t *testing.T) {
	tests := []Key{
		{AgentID: "agent-1", Channel: "telegram", Kind: Direct, PeerID: "user-42"},
		{AgentID: "agent-1", Channel: "telegram", Kind: Group, PeerID: "chat-99"},
		{AgentID: "a", Channel: "cli", Kind: Direct, PeerID: ""},
	}
	for _, k := range tests {
		s := k.String()
		got, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
		if got != k {
			t.Errorf("round trip mismatch: got %+v, want %+v", got, k)
		}
	}
}

func TestParse_Malformed(t *testing.T) {
	cases := []string{
		"",
		"not-a-key",
		"agent:a:telegram:sideways:peer",
		"user:a:telegram:direct:peer",
	}
	for _, c := range cases {
		if _, err := Parse(c); err == nil {
			t.Errorf("Parse(%q) expected error, got nil", c)
		}
	}
}

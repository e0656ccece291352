// Package sessionkey builds and parses the canonical session key string
// used to deduplicate sessions per agent/channel/peer, the same colon-joined
// scheme the teacher's sessions package used for conversation keys.
package sessionkey

import (
	"fmt"
	"strings"
)

// Kind distinguishes a direct (1:1) conversation from a group one.
type Kind string

const (
	Direct Kind = "direct"
	Group  Kind = "group"
)

// Key is a parsed session key: agent:{agentID}:{channel}:{direct|group}:{peerID}
type Key struct {
	AgentID string
	Channel string
	Kind    Kind
	PeerID  string
}

// Build renders a Key to its canonical string form.
func Build(agentID, channel string, kind Kind, peerID string) string {
	return fmt.Sprintf("agent:%s:%s:%s:%s", agentID, channel, kind, peerID)
}

// String renders k to its canonical form.
func (k Key) String() string {
	return Build(k.AgentID, k.Channel, k.Kind, k.PeerID)
}

// Parse reverses Build. It returns an error if s isn't a 5-field canonical
// key with the literal "agent" tag and a recognized kind.
func Parse(s string) (Key, error) {
	parts := strings.SplitN(s, ":", 5)
	if len(parts) != 5 || parts[0] != "agent" {
		return Key{}, fmt.Errorf("sessionkey: malformed key %q", s)
	}
	kind := Kind(parts[3])
	if kind != Direct && kind != Group {
		return Key{}, fmt.Errorf("sessionkey: unknown kind %q in %q", parts[3], s)
	}
	return Key{
		AgentID: parts[1],
		Channel: parts[2],
		Kind:    kind,
		PeerID:  parts[4],
	}, nil
}

package mcpservers

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/nextlevelbuilder/goclaw/internal/config"
)

func TestResolveForAgent_SkipsUnknownAndDisabled(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := New(log)

	servers := map[string]config.MCPServerConfig{
		"disabled-server": {Transport: "stdio", Command: "true", Disabled: true},
	}

	got := m.ResolveForAgent(context.Background(), []string{"missing-server", "disabled-server"}, servers)
	if len(got) != 0 {
		t.Errorf("ResolveForAgent() = %v, want none connected", got)
	}
	if len(m.ServerStatus()) != 0 {
		t.Errorf("ServerStatus() = %v, want empty", m.ServerStatus())
	}
}

func TestResolveForAgent_UnsupportedTransportIsSkipped(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := New(log)

	servers := map[string]config.MCPServerConfig{
		"bad-transport": {Transport: "carrier-pigeon"},
	}
	got := m.ResolveForAgent(context.Background(), []string{"bad-transport"}, servers)
	if len(got) != 0 {
		t.Errorf("ResolveForAgent() = %v, want none connected for unsupported transport", got)
	}
}

func TestStop_IsSafeWithNoServers(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := New(log)
	m.Stop()
	if len(m.ServerStatus()) != 0 {
		t.Errorf("ServerStatus() after Stop() = %v, want empty", m.ServerStatus())
	}
}

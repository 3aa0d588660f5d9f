package memory

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"lattice/backend/domain"
)

func TestStore_DefaultInboundModeIsMixed(t *testing.T) {
	t.Parallel()

	store := NewStore(nil)
	mode, err := NewSettingsRepo(store).GetInboundMode(context.Background())
	if err != nil {
		t.Fatalf("GetInboundMode() error: %v", err)
	}
	if mode != domain.InboundMixed {
		t.Fatalf("expected default inbound mode mixed, got %q", mode)
	}
}

func TestStore_LoadState_Defaults(t *testing.T) {
	t.Parallel()

	store := NewStore(nil)
	store.LoadState(domain.ServiceState{
		Nodes: []domain.Node{{ID: "n1", Name: "a", Protocol: domain.ProtocolHTTP}},
		NodeGroups: []domain.NodeGroup{{
			ID: "g1", Tag: "g", Name: "G", Mode: domain.NodeGroupModeSelect,
			NodeIDs: []string{"n1", "gone"},
		}},
	})

	state := store.Snapshot()
	if state.InboundMode != domain.InboundMixed {
		t.Fatalf("expected fallback inbound mode mixed, got %q", state.InboundMode)
	}
	if state.DNS.Domestic.Address == "" || state.DNS.Foreign.Address == "" {
		t.Fatalf("expected default dns upstreams, got %+v", state.DNS)
	}
	if got := state.NodeGroups[0].NodeIDs; len(got) != 1 || got[0] != "n1" {
		t.Fatalf("expected dangling manual member dropped, got %v", got)
	}
	if state.Nodes[0].CreatedAt.IsZero() {
		t.Fatalf("expected CreatedAt backfilled")
	}
}

func TestStore_SnapshotIsDeepCopy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore(nil)
	nodes := NewNodeRepo(store)
	groups := NewNodeGroupRepo(store)

	node, _ := nodes.Create(ctx, domain.Node{Name: "a", Protocol: domain.ProtocolHTTP, Params: domain.HTTPParams{
		Username:  "u",
		Extension: domain.Extension{Extra: map[string]json.RawMessage{"path": json.RawMessage(`"/a"`)}},
	}})
	_, _ = nodes.UpdateHealth(ctx, node.ID, domain.HealthSample{
		Status: domain.HealthOnline, LatencyMS: domain.LatencyPtr(5), CheckedAt: time.Now(),
	})
	_, _ = groups.Create(ctx, domain.NodeGroup{Tag: "g", Name: "G", Mode: domain.NodeGroupModeSelect, IncludePatterns: []string{"a"}})

	snap := store.Snapshot()
	*snap.Nodes[0].Health.LatencyMS = 999
	snap.NodeGroups[0].IncludePatterns[0] = "mutated"
	snap.Nodes[0].Params.(domain.HTTPParams).Extra["path"] = json.RawMessage(`"/mutated"`)

	again := store.Snapshot()
	if ms, _ := again.Nodes[0].Health.Latency(); ms != 5 {
		t.Fatalf("expected stored latency untouched, got %d", ms)
	}
	if params := again.Nodes[0].Params.(domain.HTTPParams); string(params.Extra["path"]) != `"/a"` {
		t.Fatalf("expected stored params extra untouched, got %s", params.Extra["path"])
	}
	if again.NodeGroups[0].IncludePatterns[0] != "a" {
		t.Fatalf("expected stored patterns untouched, got %v", again.NodeGroups[0].IncludePatterns)
	}
}

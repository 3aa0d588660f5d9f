package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"lattice/backend/domain"
	"lattice/backend/repository/events"
	"lattice/backend/repository/memory"
)

type countingStore struct {
	mu     sync.Mutex
	count  int
	notify chan struct{}
}

func (s *countingStore) Snapshot() domain.ServiceState {
	s.mu.Lock()
	s.count++
	if s.notify != nil {
		select {
		case s.notify <- struct{}{}:
		default:
		}
	}
	n := s.count
	s.mu.Unlock()

	nodes := make([]domain.Node, 0, n)
	for i := 0; i < n; i++ {
		nodes = append(nodes, domain.Node{ID: fmt.Sprintf("n%d", i+1), Name: "n", Protocol: domain.ProtocolSocks})
	}
	return domain.ServiceState{Nodes: nodes}
}

func (s *countingStore) LoadState(_ domain.ServiceState) {}

func TestSnapshotter_Load_NoFileReturnsDefaultState(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	s := NewSnapshotter(path, &countingStore{}, nil)
	state, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if state.SchemaVersion != SchemaVersion {
		t.Fatalf("expected schemaVersion %q, got %q", SchemaVersion, state.SchemaVersion)
	}
}

func TestSnapshotter_SaveNow_StripsHealth(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	store := memory.NewStore(nil)
	nodes := memory.NewNodeRepo(store)
	node, err := nodes.Create(ctx, domain.Node{Name: "HK-01", Protocol: domain.ProtocolTrojan})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if _, err := nodes.UpdateHealth(ctx, node.ID, domain.HealthSample{Status: domain.HealthOnline, LatencyMS: domain.LatencyPtr(20), CheckedAt: time.Now()}); err != nil {
		t.Fatalf("UpdateHealth() error: %v", err)
	}

	s := NewSnapshotter(path, store, nil)
	if err := s.SaveNow(); err != nil {
		t.Fatalf("SaveNow() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read state file: %v", err)
	}
	var raw struct {
		SchemaVersion string `json:"schemaVersion"`
		Nodes         []struct {
			Health struct {
				Status string `json:"status"`
			} `json:"health"`
		} `json:"nodes"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("json.Unmarshal() error: %v", err)
	}
	if raw.SchemaVersion != SchemaVersion || len(raw.Nodes) != 1 {
		t.Fatalf("unexpected state file: %s", data)
	}
	if raw.Nodes[0].Health.Status != "" {
		t.Fatalf("expected health stripped on save, got %q", raw.Nodes[0].Health.Status)
	}

	// 存储中的样本不受影响
	live, _ := nodes.Get(ctx, node.ID)
	if !live.Health.Online() {
		t.Fatalf("expected live health kept, got %+v", live.Health)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(loaded.Nodes) != 1 || loaded.Nodes[0].ID != node.ID {
		t.Fatalf("unexpected loaded nodes: %+v", loaded.Nodes)
	}
}

func TestSnapshotter_Schedule_DirtyTriggersSecondSave(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	notify := make(chan struct{}, 4)
	store := &countingStore{notify: notify}
	s := NewSnapshotter(path, store, nil)
	s.SetDebounce(20 * time.Millisecond)

	s.Schedule()
	s.Schedule() // 标记 dirty，触发第二次保存

	deadline := time.After(1 * time.Second)
	for i := 0; i < 2; i++ {
		select {
		case <-notify:
		case <-deadline:
			t.Fatalf("timeout waiting for snapshot to be saved twice")
		}
	}

	if err := s.WaitIdle(1 * time.Second); err != nil {
		t.Fatalf("WaitIdle() error: %v", err)
	}
}

func TestSnapshotter_SubscribeEvents_IgnoresHealth(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	notify := make(chan struct{}, 4)
	s := NewSnapshotter(path, &countingStore{notify: notify}, nil)
	s.SetDebounce(5 * time.Millisecond)

	bus := events.NewBus()
	s.SubscribeEvents(bus)
	bus.PublishSync(events.NodeEvent{EventType: events.EventNodeHealthChanged, NodeID: "n1"})
	if err := s.WaitIdle(time.Second); err != nil {
		t.Fatalf("WaitIdle() error: %v", err)
	}
	select {
	case <-notify:
		t.Fatalf("health change should not be persisted")
	default:
	}

	bus.PublishSync(events.NodeEvent{EventType: events.EventNodeCreated, NodeID: "n1"})
	select {
	case <-notify:
	case <-time.After(time.Second):
		t.Fatalf("expected save after node created")
	}
}

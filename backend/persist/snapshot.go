package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"lattice/backend/domain"
	"lattice/backend/repository"
	"lattice/backend/repository/events"
	"lattice/backend/service/shared"
)

// Snapshotter 状态快照管理器（事件驱动、防抖、原子写入）
type Snapshotter struct {
	path     string
	store    repository.Snapshottable
	migrator *Migrator
	log      logrus.FieldLogger

	mu       sync.Mutex
	pending  bool
	dirty    bool
	debounce time.Duration

	saveMu sync.Mutex
}

func NewSnapshotter(path string, store repository.Snapshottable, log logrus.FieldLogger) *Snapshotter {
	return &Snapshotter{
		path:     path,
		store:    store,
		migrator: NewMigrator(),
		log:      shared.OrDiscard(log),
		debounce: 200 * time.Millisecond,
	}
}

// SetDebounce 设置防抖延迟
func (s *Snapshotter) SetDebounce(d time.Duration) {
	s.mu.Lock()
	s.debounce = d
	s.mu.Unlock()
}

// SubscribeEvents 订阅事件总线。健康样本不落盘，健康变化不触发保存。
func (s *Snapshotter) SubscribeEvents(bus *events.Bus) {
	bus.SubscribeAll(func(event events.Event) {
		if event.Type() == events.EventNodeHealthChanged {
			return
		}
		s.Schedule()
	})
}

// Schedule 调度快照（防抖）
func (s *Snapshotter) Schedule() {
	s.mu.Lock()
	if s.pending {
		s.dirty = true
		s.mu.Unlock()
		return
	}
	s.pending = true
	s.dirty = false
	s.mu.Unlock()

	go func() {
		for {
			s.mu.Lock()
			debounce := s.debounce
			s.mu.Unlock()

			time.Sleep(debounce)
			_ = s.save()

			s.mu.Lock()
			if s.dirty {
				s.dirty = false
				s.mu.Unlock()
				continue
			}
			s.pending = false
			s.mu.Unlock()
			return
		}
	}()
}

// WaitIdle 等待已调度的保存完成
func (s *Snapshotter) WaitIdle(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		s.mu.Lock()
		idle := !s.pending
		s.mu.Unlock()
		if idle {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("snapshot still pending after %s", timeout)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// SaveNow 立即保存（同步）
func (s *Snapshotter) SaveNow() error {
	return s.save()
}

func (s *Snapshotter) save() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if err := Save(s.path, s.store.Snapshot()); err != nil {
		s.log.WithError(err).WithField("path", s.path).Error("state snapshot failed")
		return err
	}
	return nil
}

// Load 加载状态（严格版本校验）；文件不存在时返回空状态
func (s *Snapshotter) Load() (domain.ServiceState, error) {
	return Load(s.path)
}

// Load 读取并校验状态文件
func Load(path string) (domain.ServiceState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.ServiceState{SchemaVersion: SchemaVersion}, nil
		}
		return domain.ServiceState{}, err
	}
	return NewMigrator().Migrate(data)
}

// Save 写入状态（剥离健康样本，原子替换）
func Save(path string, state domain.ServiceState) error {
	state = stripHealth(state)
	state.SchemaVersion = SchemaVersion
	state.GeneratedAt = time.Now()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func stripHealth(state domain.ServiceState) domain.ServiceState {
	nodes := make([]domain.Node, len(state.Nodes))
	for i, n := range state.Nodes {
		n.Health = domain.HealthSample{}
		nodes[i] = n
	}
	state.Nodes = nodes
	return state
}

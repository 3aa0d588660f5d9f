package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"lattice/backend/repository"
	"lattice/backend/repository/events"
	"lattice/backend/service/compiler"
	"lattice/backend/service/health"
	"lattice/backend/service/nodegroup"
	"lattice/backend/service/publish"
	"lattice/backend/service/ruleset"
	"lattice/backend/service/shared"
)

// Engine 对外的解析/编译入口：
// 从存储快照编译 CompiledConfig，保留最近一次成功的结果（last-known-good），
// 仅在 fingerprint 变化时发布。
type Engine struct {
	repos      repository.Repositories
	aggregator *health.Aggregator
	publisher  publish.Publisher
	log        logrus.FieldLogger

	compiles  singleflight.Group
	snapshots atomic.Uint64 // 每次编译取快照前递增

	mu        sync.RWMutex
	latest    *compiler.CompiledConfig
	published string // 已成功发布的 fingerprint
	lastErr   error
	lastAt    time.Time

	schedMu  sync.Mutex
	pending  bool
	dirty    bool
	debounce time.Duration
}

func NewEngine(repos repository.Repositories, aggregator *health.Aggregator, publisher publish.Publisher, log logrus.FieldLogger) *Engine {
	if publisher == nil {
		publisher = publish.Nop{}
	}
	return &Engine{
		repos:      repos,
		aggregator: aggregator,
		publisher:  publisher,
		log:        shared.OrDiscard(log),
		debounce:   shared.DefaultCompileDebounce,
	}
}

// SetDebounce 设置重新编译的防抖延迟
func (e *Engine) SetDebounce(d time.Duration) {
	e.schedMu.Lock()
	e.debounce = d
	e.schedMu.Unlock()
}

// Seed 设置启动时的 last-known-good（例如读回上次发布的文件），不会触发发布
func (e *Engine) Seed(cfg *compiler.CompiledConfig) {
	if cfg == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.latest == nil {
		e.latest = cfg
		e.published = cfg.Fingerprint
	}
}

// SubscribeEvents 订阅会影响编译结果的写事件
func (e *Engine) SubscribeEvents(bus *events.Bus) {
	bus.SubscribeAll(func(event events.Event) {
		if events.AffectsRouting(event) {
			e.ScheduleCompile()
		}
	})
}

// ResolveGroup 解析单个节点组（当前节点与健康状态）
func (e *Engine) ResolveGroup(ctx context.Context, groupID string) (nodegroup.Resolution, error) {
	group, err := e.repos.NodeGroup().Get(ctx, groupID)
	if err != nil {
		return nodegroup.Resolution{}, err
	}
	nodes, err := e.repos.Node().List(ctx)
	if err != nil {
		return nodegroup.Resolution{}, err
	}
	return nodegroup.Resolve(group, nodes)
}

// CanonicalCategory 规则集标识的展示分类
func (e *Engine) CanonicalCategory(id string) string {
	return ruleset.CanonicalCategory(id)
}

// ApplyProbeResults 写入探测结果；有 urltest 组受影响时调度重新编译。
// 中途失败时已写入的部分同样会触发重新编译。
func (e *Engine) ApplyProbeResults(ctx context.Context, results []health.ProbeResult) ([]string, error) {
	affected, err := e.aggregator.ApplyProbeResults(ctx, results)
	if len(affected) > 0 {
		e.log.WithField("groups", affected).Debug("probe results affect urltest groups")
		e.ScheduleCompile()
	}
	return affected, err
}

type compileResult struct {
	cfg *compiler.CompiledConfig
	seq uint64
}

// Compile 基于一致性快照编译。并发调用合并为一次，但结果的快照
// 一定晚于本次调用开始，调用前完成的写入总能体现在结果里。
// 失败时 last-known-good 保持不变；成功且 fingerprint 变化时发布。
func (e *Engine) Compile(ctx context.Context) (*compiler.CompiledConfig, error) {
	seen := e.snapshots.Load()
	for {
		v, err, _ := e.compiles.Do("compile", func() (any, error) {
			return e.compile(context.WithoutCancel(ctx))
		})
		res := v.(compileResult)
		if res.seq > seen {
			return res.cfg, err
		}
		// 合并到了本次调用之前取快照的编译，重新编译
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

// compile 的发布不随调用方取消：同一轮编译的结果由所有合并的调用方共享
func (e *Engine) compile(ctx context.Context) (compileResult, error) {
	res := compileResult{seq: e.snapshots.Add(1)}
	state := e.repos.Snapshot()
	cfg, err := compiler.Compile(compiler.FromState(state))

	e.mu.Lock()
	e.lastAt = time.Now()
	e.lastErr = err
	if err != nil {
		e.mu.Unlock()
		e.log.WithError(err).Warn("compile failed, keeping last known good config")
		return res, err
	}
	res.cfg = cfg
	e.latest = cfg
	needPublish := cfg.Fingerprint != e.published
	e.mu.Unlock()

	entry := e.log.WithField("fingerprint", cfg.Fingerprint)
	for _, w := range cfg.Warnings {
		entry.WithField("ruleset", w.Subject).WithField("kind", w.Kind).Warn(w.Message)
	}
	if !needPublish {
		entry.Debug("compiled config unchanged")
		return res, nil
	}

	if err := e.publisher.Publish(ctx, cfg); err != nil {
		// 未记录为已发布，下一次编译会重试
		entry.WithError(err).Error("publish compiled config failed")
		return res, nil
	}
	e.mu.Lock()
	e.published = cfg.Fingerprint
	e.mu.Unlock()
	entry.WithField("groups", len(cfg.Groups)).WithField("rules", len(cfg.Rules)).Info("compiled config published")
	return res, nil
}

// Latest 最近一次成功编译的结果（可能为 nil）
func (e *Engine) Latest() *compiler.CompiledConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.latest
}

// Status 最近一次编译的时间与错误
func (e *Engine) Status() (at time.Time, err error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastAt, e.lastErr
}

// ScheduleCompile 调度重新编译（防抖，编译期间的新请求合并为下一轮）
func (e *Engine) ScheduleCompile() {
	e.schedMu.Lock()
	if e.pending {
		e.dirty = true
		e.schedMu.Unlock()
		return
	}
	e.pending = true
	e.dirty = false
	e.schedMu.Unlock()

	go func() {
		for {
			e.schedMu.Lock()
			debounce := e.debounce
			e.schedMu.Unlock()

			time.Sleep(debounce)
			_, _ = e.Compile(context.Background())

			e.schedMu.Lock()
			if e.dirty {
				e.dirty = false
				e.schedMu.Unlock()
				continue
			}
			e.pending = false
			e.schedMu.Unlock()
			return
		}
	}()
}

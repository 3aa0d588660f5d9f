package health

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"lattice/backend/domain"
	"lattice/backend/repository"
	"lattice/backend/service/nodegroup"
	"lattice/backend/service/shared"
)

// ProbeResult 外部探测器上报的单条结果
type ProbeResult struct {
	NodeID    string              `json:"nodeId"`
	Status    domain.HealthStatus `json:"status"`
	LatencyMS *int64              `json:"latencyMs,omitempty"` // 缺省表示未知
	CheckedAt time.Time           `json:"checkedAt"`
}

func (r ProbeResult) sample() domain.HealthSample {
	return domain.HealthSample{Status: r.Status, LatencyMS: r.LatencyMS, CheckedAt: r.CheckedAt}
}

func (r ProbeResult) validate() error {
	if r.NodeID == "" {
		return errors.New("missing nodeId")
	}
	if r.Status != domain.HealthOnline && r.Status != domain.HealthOffline {
		return fmt.Errorf("invalid status %q", r.Status)
	}
	if r.LatencyMS != nil && *r.LatencyMS < 0 {
		return fmt.Errorf("negative latency %d", *r.LatencyMS)
	}
	if r.CheckedAt.IsZero() {
		return errors.New("missing checkedAt")
	}
	return nil
}

// Aggregator 接收探测结果并写入节点健康样本（单调接受）。
// 只负责写入并报告受影响的 urltest 组，不负责重新解析。
type Aggregator struct {
	nodes  repository.NodeRepository
	groups repository.NodeGroupRepository
	log    logrus.FieldLogger

	// 批次之间串行，保证受影响组的计算看到本批写入
	mu sync.Mutex
}

func NewAggregator(nodes repository.NodeRepository, groups repository.NodeGroupRepository, log logrus.FieldLogger) *Aggregator {
	return &Aggregator{nodes: nodes, groups: groups, log: shared.OrDiscard(log)}
}

// ApplyProbeResults 写入一批探测结果，返回候选集合包含已更新节点的 urltest 组 ID（按存储顺序）。
// 未知节点、过期或重复的结果被忽略；格式非法的结果记录警告后跳过。
// 中途取消或写入失败时停止处理，已写入部分的受影响组与错误一起返回。
func (a *Aggregator) ApplyProbeResults(ctx context.Context, results []ProbeResult) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	updated := make(map[string]struct{})
	for _, r := range results {
		if err := ctx.Err(); err != nil {
			return a.partial(ctx, updated, err)
		}
		entry := a.log.WithField("node", r.NodeID)
		if err := r.validate(); err != nil {
			entry.WithError(err).Warn("invalid probe result ignored")
			continue
		}
		applied, err := a.nodes.UpdateHealth(ctx, r.NodeID, r.sample())
		switch {
		case errors.Is(err, repository.ErrNodeNotFound):
			entry.Debug("probe result for unknown node ignored")
			continue
		case err != nil:
			return a.partial(ctx, updated, fmt.Errorf("update health %s: %w", r.NodeID, err))
		case !applied:
			entry.WithField("checkedAt", r.CheckedAt).Debug("stale probe result dropped")
			continue
		}
		updated[r.NodeID] = struct{}{}
	}
	if len(updated) == 0 {
		return []string{}, nil
	}
	return a.affectedGroups(context.WithoutCancel(ctx), updated)
}

// partial 已写入的样本不会回滚，调用方仍需要据此重新编译
func (a *Aggregator) partial(ctx context.Context, updated map[string]struct{}, cause error) ([]string, error) {
	if len(updated) == 0 {
		return []string{}, cause
	}
	ids, err := a.affectedGroups(context.WithoutCancel(ctx), updated)
	if err != nil {
		return nil, errors.Join(cause, err)
	}
	return ids, cause
}

// ApplyBatches 并发接收多路探测批次（fan-in），返回受影响组的并集（按存储顺序）。
// 任一批次失败会取消其余批次，已写入部分的并集仍随错误返回。
func (a *Aggregator) ApplyBatches(ctx context.Context, batches ...[]ProbeResult) ([]string, error) {
	g, gctx := errgroup.WithContext(ctx)
	var (
		mu       sync.Mutex
		affected = make(map[string]struct{})
	)
	for _, batch := range batches {
		batch := batch
		g.Go(func() error {
			ids, err := a.ApplyProbeResults(gctx, batch)
			mu.Lock()
			for _, id := range ids {
				affected[id] = struct{}{}
			}
			mu.Unlock()
			return err
		})
	}
	applyErr := g.Wait()
	if applyErr != nil && len(affected) == 0 {
		return []string{}, applyErr
	}

	groups, err := a.groups.List(context.WithoutCancel(ctx))
	if err != nil {
		return nil, errors.Join(applyErr, err)
	}
	out := make([]string, 0, len(affected))
	for _, grp := range groups {
		if _, ok := affected[grp.ID]; ok {
			out = append(out, grp.ID)
		}
	}
	return out, applyErr
}

func (a *Aggregator) affectedGroups(ctx context.Context, updated map[string]struct{}) ([]string, error) {
	groups, err := a.groups.List(ctx)
	if err != nil {
		return nil, err
	}
	nodes, err := a.nodes.List(ctx)
	if err != nil {
		return nil, err
	}
	touched := make([]domain.Node, 0, len(updated))
	for _, n := range nodes {
		if _, ok := updated[n.ID]; ok {
			touched = append(touched, n)
		}
	}

	out := make([]string, 0)
	for _, g := range groups {
		if g.Mode != domain.NodeGroupModeURLTest {
			continue
		}
		patterns, err := nodegroup.CompilePatterns(g.IncludePatterns, g.ExcludePatterns)
		if err != nil {
			// 非法正则在保存时已拦截
			a.log.WithField("group", g.ID).WithError(err).Warn("skip node group with invalid patterns")
			continue
		}
		if len(nodegroup.Candidates(g, patterns, touched)) > 0 {
			out = append(out, g.ID)
		}
	}
	return out, nil
}

package repository

import (
	"context"

	"lattice/backend/domain"
)

// NodeRepository 节点仓储接口（NodeStore）
type NodeRepository interface {
	// 基础 CRUD
	Get(ctx context.Context, id string) (domain.Node, error)
	List(ctx context.Context) ([]domain.Node, error)
	Create(ctx context.Context, node domain.Node) (domain.Node, error)
	Update(ctx context.Context, id string, node domain.Node) (domain.Node, error)
	Delete(ctx context.Context, id string) error

	// UpdateHealth 写入探测样本；checkedAt 早于当前样本时丢弃并返回 applied=false
	UpdateHealth(ctx context.Context, id string, sample domain.HealthSample) (applied bool, err error)
}

// NodeGroupRepository 节点组仓储接口
type NodeGroupRepository interface {
	Get(ctx context.Context, id string) (domain.NodeGroup, error)
	List(ctx context.Context) ([]domain.NodeGroup, error)
	Create(ctx context.Context, group domain.NodeGroup) (domain.NodeGroup, error)
	Update(ctx context.Context, id string, group domain.NodeGroup) (domain.NodeGroup, error)
	Delete(ctx context.Context, id string) error
}

// RuleSetRepository 规则集仓储接口（RuleSetStore）
type RuleSetRepository interface {
	Get(ctx context.Context, id string) (domain.RuleSet, error)
	List(ctx context.Context) ([]domain.RuleSet, error)
	Create(ctx context.Context, rs domain.RuleSet) (domain.RuleSet, error)
	Update(ctx context.Context, id string, rs domain.RuleSet) (domain.RuleSet, error)
	Delete(ctx context.Context, id string) error

	// MarkRefreshed 记录远程来源刷新结果（不改变 UpdatedAt）
	MarkRefreshed(ctx context.Context, id string, refreshErr string) error
}

// SettingsRepository 设置仓储接口（单例设置）
type SettingsRepository interface {
	GetDNS(ctx context.Context) (domain.DNSSettings, error)
	UpdateDNS(ctx context.Context, settings domain.DNSSettings) (domain.DNSSettings, error)

	GetInboundMode(ctx context.Context) (domain.InboundMode, error)
	UpdateInboundMode(ctx context.Context, mode domain.InboundMode) (domain.InboundMode, error)
}

// Repositories 聚合所有仓储的容器接口
type Repositories interface {
	Node() NodeRepository
	NodeGroup() NodeGroupRepository
	RuleSet() RuleSetRepository
	Settings() SettingsRepository

	// Snapshot 返回一致性快照（编译时使用，不会与写操作交错）
	Snapshot() domain.ServiceState
}

// RepositoriesImpl 仓储容器实现
type RepositoriesImpl struct {
	Store Snapshottable

	NodeRepo      NodeRepository
	NodeGroupRepo NodeGroupRepository
	RuleSetRepo   RuleSetRepository
	SettingsRepo  SettingsRepository
}

func NewRepositories(store Snapshottable, nodes NodeRepository, groups NodeGroupRepository, ruleSets RuleSetRepository, settings SettingsRepository) *RepositoriesImpl {
	return &RepositoriesImpl{
		Store:         store,
		NodeRepo:      nodes,
		NodeGroupRepo: groups,
		RuleSetRepo:   ruleSets,
		SettingsRepo:  settings,
	}
}

// 实现 Repositories 接口
func (r *RepositoriesImpl) Node() NodeRepository           { return r.NodeRepo }
func (r *RepositoriesImpl) NodeGroup() NodeGroupRepository { return r.NodeGroupRepo }
func (r *RepositoriesImpl) RuleSet() RuleSetRepository     { return r.RuleSetRepo }
func (r *RepositoriesImpl) Settings() SettingsRepository   { return r.SettingsRepo }

func (r *RepositoriesImpl) Snapshot() domain.ServiceState {
	if r.Store == nil {
		return domain.ServiceState{}
	}
	return r.Store.Snapshot()
}

func (r *RepositoriesImpl) LoadState(state domain.ServiceState) {
	if r.Store == nil {
		return
	}
	r.Store.LoadState(state)
}

// Snapshottable 可快照的存储接口
type Snapshottable interface {
	// Snapshot 生成状态快照
	Snapshot() domain.ServiceState

	// LoadState 加载状态
	LoadState(state domain.ServiceState)
}

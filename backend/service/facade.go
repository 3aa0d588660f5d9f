package service

import (
	"context"
	"time"

	"lattice/backend/domain"
	"lattice/backend/repository"
	"lattice/backend/service/applog"
	"lattice/backend/service/compiler"
	"lattice/backend/service/nodegroups"
	"lattice/backend/service/nodes"
	"lattice/backend/service/ruleset"
	"lattice/backend/service/shared"
)

// Facade 服务门面（API 聚合层）
type Facade struct {
	nodes    *nodes.Service
	groups   *nodegroups.Service
	ruleSets *ruleset.Service
	engine   *Engine
	appLog   *applog.Reader

	// Repositories 用于直接访问设置
	repos repository.Repositories
}

func NewFacade(
	nodeSvc *nodes.Service,
	groupSvc *nodegroups.Service,
	ruleSetSvc *ruleset.Service,
	engine *Engine,
	repos repository.Repositories,
) *Facade {
	return &Facade{
		nodes:    nodeSvc,
		groups:   groupSvc,
		ruleSets: ruleSetSvc,
		engine:   engine,
		appLog:   applog.NewReader("", time.Time{}),
		repos:    repos,
	}
}

// SetAppLog 日志输出为文件时启用 /logs
func (f *Facade) SetAppLog(reader *applog.Reader) {
	if reader != nil {
		f.appLog = reader
	}
}

func (f *Facade) Nodes() *nodes.Service           { return f.nodes }
func (f *Facade) NodeGroups() *nodegroups.Service { return f.groups }
func (f *Facade) RuleSets() *ruleset.Service      { return f.ruleSets }
func (f *Facade) Engine() *Engine                 { return f.engine }

// Snapshot 获取完整状态快照
func (f *Facade) Snapshot() domain.ServiceState {
	return f.repos.Snapshot()
}

func (f *Facade) GetDNS(ctx context.Context) (domain.DNSSettings, error) {
	return f.repos.Settings().GetDNS(ctx)
}

// UpdateDNS 保存前按编译规则校验地址与传输方式
func (f *Facade) UpdateDNS(ctx context.Context, settings domain.DNSSettings) (domain.DNSSettings, error) {
	if _, err := compiler.ValidateDNS(settings); err != nil {
		return domain.DNSSettings{}, err
	}
	return f.repos.Settings().UpdateDNS(ctx, settings)
}

func (f *Facade) GetInboundMode(ctx context.Context) (domain.InboundMode, error) {
	return f.repos.Settings().GetInboundMode(ctx)
}

func (f *Facade) UpdateInboundMode(ctx context.Context, mode domain.InboundMode) (domain.InboundMode, error) {
	if !mode.Valid() {
		var problems shared.Problems
		problems.Addf("unknown inbound mode %q", mode)
		return "", problems.Validation()
	}
	return f.repos.Settings().UpdateInboundMode(ctx, mode)
}

func (f *Facade) GetAppLogs(since int64) applog.Chunk {
	return f.appLog.Since(since)
}

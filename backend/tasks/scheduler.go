package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"lattice/backend/service/shared"
)

// RuleSetRefresher 刷新所有启用的远程规则集
type RuleSetRefresher interface {
	RefreshAll(ctx context.Context) (failed int, err error)
}

// Compiler 周期性重新编译（兜底：即使漏掉事件也能收敛）
type Compiler interface {
	ScheduleCompile()
}

type Scheduler struct {
	refresher RuleSetRefresher
	compiler  Compiler
	log       logrus.FieldLogger

	cron            *cron.Cron
	refreshCron     string
	compileInterval time.Duration
}

// NewScheduler refreshCron 为 6 段（含秒）cron 表达式，空串表示不定时刷新；
// compileInterval <= 0 表示不做周期性重新编译。
func NewScheduler(refresher RuleSetRefresher, compiler Compiler, refreshCron string, compileInterval time.Duration, log logrus.FieldLogger) *Scheduler {
	return &Scheduler{
		refresher:       refresher,
		compiler:        compiler,
		log:             shared.OrDiscard(log),
		cron:            cron.New(cron.WithSeconds()),
		refreshCron:     refreshCron,
		compileInterval: compileInterval,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}

	if s.refresher != nil && s.refreshCron != "" {
		_, err := s.cron.AddFunc(s.refreshCron, func() {
			s.safeRun(ctx, "rule set refresh", s.refreshRuleSets)
		})
		if err != nil {
			return fmt.Errorf("add refresh job %q: %w", s.refreshCron, err)
		}
		s.cron.Start()
		go func() {
			<-ctx.Done()
			s.Stop()
		}()
	}

	if s.compiler != nil && s.compileInterval > 0 {
		go s.runWithTicker(ctx, s.compileInterval, "compile resync", func(context.Context) {
			s.compiler.ScheduleCompile()
		})
	}
	return nil
}

// Stop 停止 cron（等待正在运行的任务结束）
func (s *Scheduler) Stop() {
	if s == nil || s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

func (s *Scheduler) refreshRuleSets(ctx context.Context) {
	failed, err := s.refresher.RefreshAll(ctx)
	if err != nil {
		s.log.WithError(err).Error("rule set refresh failed")
		return
	}
	if failed > 0 {
		s.log.WithField("failed", failed).Warn("some rule set sources failed to refresh")
	}
}

func (s *Scheduler) runWithTicker(ctx context.Context, interval time.Duration, name string, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.safeRun(ctx, name, fn)
		}
	}
}

func (s *Scheduler) safeRun(ctx context.Context, name string, fn func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("task", name).Errorf("task panicked: %v", r)
		}
	}()
	fn(ctx)
}

package ruleset

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"lattice/backend/domain"
	"lattice/backend/repository"
	"lattice/backend/service/shared"
)

const refreshWorkers = 4

// Service RuleSet 服务（保存时校验、预设导入、远程来源刷新）
type Service struct {
	repo    repository.RuleSetRepository
	fetcher Fetcher
	log     logrus.FieldLogger

	refreshTimeout time.Duration
}

func NewService(repo repository.RuleSetRepository, fetcher Fetcher, log logrus.FieldLogger) *Service {
	return &Service{
		repo:           repo,
		fetcher:        fetcher,
		log:            shared.OrDiscard(log),
		refreshTimeout: time.Minute,
	}
}

// SetRefreshTimeout 单个来源的刷新超时
func (s *Service) SetRefreshTimeout(d time.Duration) {
	if d > 0 {
		s.refreshTimeout = d
	}
}

func (s *Service) List(ctx context.Context) ([]domain.RuleSet, error) {
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (domain.RuleSet, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, rs domain.RuleSet) (domain.RuleSet, error) {
	rs, err := Normalize(rs)
	if err != nil {
		return domain.RuleSet{}, err
	}
	rs.LastRefreshedAt = nil
	rs.LastRefreshError = ""
	return s.repo.Create(ctx, rs)
}

func (s *Service) Update(ctx context.Context, id string, updateFn func(domain.RuleSet) (domain.RuleSet, error)) (domain.RuleSet, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.RuleSet{}, err
	}
	next, err := updateFn(current)
	if err != nil {
		return domain.RuleSet{}, err
	}
	next, err = Normalize(next)
	if err != nil {
		return domain.RuleSet{}, err
	}
	return s.repo.Update(ctx, id, next)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// ========== 分类 ==========

// Category 按展示分类聚合的规则集
type Category struct {
	Label      string   `json:"label"`
	RuleSetIDs []string `json:"ruleSetIds"`
}

// Categories 按 CanonicalCategory 聚类，分类按名称排序，组内保持存储顺序
func (s *Service) Categories(ctx context.Context) ([]Category, error) {
	items, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	index := make(map[string]int)
	out := make([]Category, 0)
	for _, rs := range items {
		label := CanonicalCategory(rs.Name)
		i, ok := index[label]
		if !ok {
			i = len(out)
			index[label] = i
			out = append(out, Category{Label: label})
		}
		out[i].RuleSetIDs = append(out[i].RuleSetIDs, rs.ID)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Label) < strings.ToLower(out[j].Label)
	})
	return out, nil
}

// ========== 刷新 ==========

// Refresh 拉取远程来源并记录结果。拉取失败会写入 LastRefreshError 并返回错误。
func (s *Service) Refresh(ctx context.Context, id string) (domain.RuleSet, error) {
	rs, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.RuleSet{}, err
	}
	url := domain.SourceURL(rs.Source)
	if !rs.Type.Remote() || url == "" {
		return domain.RuleSet{}, fmt.Errorf("%w: rule set %s has no remote source", repository.ErrInvalidData, id)
	}
	if s.fetcher == nil {
		return domain.RuleSet{}, errors.New("rule set fetcher not configured")
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.refreshTimeout)
	defer cancel()
	result, fetchErr := s.fetcher.Fetch(fetchCtx, url)

	entry := s.log.WithFields(logrus.Fields{"ruleset": id, "url": url})
	refreshErr := ""
	if fetchErr != nil {
		refreshErr = fetchErr.Error()
		entry.WithError(fetchErr).Warn("rule set refresh failed")
	} else {
		entry.WithFields(logrus.Fields{"bytes": result.Size, "sha256": result.Checksum}).Debug("rule set refreshed")
	}
	if err := s.repo.MarkRefreshed(ctx, id, refreshErr); err != nil {
		return domain.RuleSet{}, err
	}
	if fetchErr != nil {
		return domain.RuleSet{}, fmt.Errorf("refresh rule set %s: %w", id, fetchErr)
	}
	return s.repo.Get(ctx, id)
}

// RefreshAll 并发刷新所有启用的远程规则集。单个失败不会中断其它刷新，返回失败数量。
func (s *Service) RefreshAll(ctx context.Context) (int, error) {
	items, err := s.repo.List(ctx)
	if err != nil {
		return 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshWorkers)
	failures := make([]bool, len(items))
	for i, rs := range items {
		if !rs.Enabled || !rs.Type.Remote() || domain.SourceURL(rs.Source) == "" {
			continue
		}
		i, id := i, rs.ID
		g.Go(func() error {
			if _, err := s.Refresh(gctx, id); err != nil {
				if errors.Is(err, repository.ErrRuleSetNotFound) {
					return nil
				}
				failures[i] = true
			}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, f := range failures {
		if f {
			failed++
		}
	}
	return failed, ctx.Err()
}

package nodes

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"lattice/backend/domain"
	"lattice/backend/repository"
	"lattice/backend/service/shared"
)

// Service Node 服务（保存时校验）。健康样本只由 health.Aggregator 写入。
type Service struct {
	repo repository.NodeRepository
	log  logrus.FieldLogger
}

func NewService(repo repository.NodeRepository, log logrus.FieldLogger) *Service {
	return &Service{repo: repo, log: shared.OrDiscard(log)}
}

func (s *Service) List(ctx context.Context) ([]domain.Node, error) {
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (domain.Node, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, node domain.Node) (domain.Node, error) {
	node, err := normalizeNodeForWrite(node)
	if err != nil {
		return domain.Node{}, err
	}
	node.Health = domain.HealthSample{}
	created, err := s.repo.Create(ctx, node)
	if err != nil {
		return domain.Node{}, err
	}
	s.log.WithField("node", created.ID).WithField("name", created.Name).Debug("node created")
	return created, nil
}

// Update 读取当前节点交给 updateFn 修改，校验后写回（健康样本由仓储保留）
func (s *Service) Update(ctx context.Context, id string, updateFn func(domain.Node) (domain.Node, error)) (domain.Node, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Node{}, err
	}
	next, err := updateFn(current)
	if err != nil {
		return domain.Node{}, err
	}
	next, err = normalizeNodeForWrite(next)
	if err != nil {
		return domain.Node{}, err
	}
	return s.repo.Update(ctx, id, next)
}

// Delete 删除节点，同时从所有节点组的手动成员中移除
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.log.WithField("node", id).Debug("node deleted")
	return nil
}

// LinkImportResult 分享链接导入统计
type LinkImportResult struct {
	Created []string `json:"created"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors"`
}

// ImportLinks 从分享链接（或 base64 订阅内容）批量创建节点。
// 与已有节点 (协议, 地址, 端口, 名称) 相同的链接视为重复并跳过；解析失败的链接记入 Errors。
func (s *Service) ImportLinks(ctx context.Context, text string) (LinkImportResult, error) {
	parsed, parseErrs := ParseShareLinks(text)
	result := LinkImportResult{Created: []string{}, Errors: []string{}}
	for _, err := range parseErrs {
		result.Errors = append(result.Errors, err.Error())
	}
	if len(parsed) == 0 && len(parseErrs) == 0 {
		return result, &shared.ValidationError{Problems: []string{"no share links found"}}
	}

	existing, err := s.repo.List(ctx)
	if err != nil {
		return result, err
	}
	seen := make(map[string]struct{}, len(existing)+len(parsed))
	for _, n := range existing {
		seen[linkKey(n)] = struct{}{}
	}

	for _, n := range parsed {
		key := linkKey(n)
		if _, dup := seen[key]; dup {
			result.Skipped++
			continue
		}
		created, err := s.Create(ctx, n)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", n.Name, err))
			continue
		}
		seen[key] = struct{}{}
		result.Created = append(result.Created, created.ID)
	}
	s.log.WithFields(logrus.Fields{
		"created": len(result.Created),
		"skipped": result.Skipped,
		"errors":  len(result.Errors),
	}).Info("nodes imported from share links")
	return result, nil
}

func linkKey(n domain.Node) string {
	return strings.Join([]string{string(n.Protocol), strings.ToLower(n.Address), strconv.Itoa(n.Port), n.Name}, "|")
}

func normalizeNodeForWrite(node domain.Node) (domain.Node, error) {
	node.Name = strings.TrimSpace(node.Name)
	node.Address = strings.TrimSpace(node.Address)

	var problems shared.Problems
	shared.ValidateStruct("node", node, &problems)
	if node.Protocol != "" && !node.Protocol.Valid() {
		problems.Addf("node: unknown protocol %q", node.Protocol)
	}
	if node.Params != nil && node.Params.Protocol() != node.Protocol {
		problems.Addf("node: params are for protocol %q, node protocol is %q", node.Params.Protocol(), node.Protocol)
	}
	if err := problems.Validation(); err != nil {
		return domain.Node{}, err
	}
	return node, nil
}

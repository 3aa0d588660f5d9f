package nodegroups

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"lattice/backend/domain"
	"lattice/backend/repository"
	"lattice/backend/service/nodegroup"
	"lattice/backend/service/shared"
)

// Service NodeGroup 服务（保存时校验正则、模式与 tag）
type Service struct {
	repo  repository.NodeGroupRepository
	nodes repository.NodeRepository
	log   logrus.FieldLogger
}

func NewService(repo repository.NodeGroupRepository, nodes repository.NodeRepository, log logrus.FieldLogger) *Service {
	return &Service{repo: repo, nodes: nodes, log: shared.OrDiscard(log)}
}

func (s *Service) List(ctx context.Context) ([]domain.NodeGroup, error) {
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (domain.NodeGroup, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, group domain.NodeGroup) (domain.NodeGroup, error) {
	group, err := normalizeNodeGroupForWrite(group)
	if err != nil {
		return domain.NodeGroup{}, err
	}
	created, err := s.repo.Create(ctx, group)
	if err != nil {
		return domain.NodeGroup{}, err
	}
	s.log.WithField("group", created.ID).WithField("tag", created.Tag).Debug("node group created")
	return created, nil
}

func (s *Service) Update(ctx context.Context, id string, updateFn func(domain.NodeGroup) (domain.NodeGroup, error)) (domain.NodeGroup, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.NodeGroup{}, err
	}
	next, err := updateFn(current)
	if err != nil {
		return domain.NodeGroup{}, err
	}
	next, err = normalizeNodeGroupForWrite(next)
	if err != nil {
		return domain.NodeGroup{}, err
	}
	return s.repo.Update(ctx, id, next)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// Resolve 用当前节点列表解析节点组成员（预览用，不落盘）
func (s *Service) Resolve(ctx context.Context, id string) (nodegroup.Resolution, error) {
	group, err := s.repo.Get(ctx, id)
	if err != nil {
		return nodegroup.Resolution{}, err
	}
	nodes, err := s.nodes.List(ctx)
	if err != nil {
		return nodegroup.Resolution{}, err
	}
	return nodegroup.Resolve(group, nodes)
}

func normalizeNodeGroupForWrite(group domain.NodeGroup) (domain.NodeGroup, error) {
	group.Tag = strings.TrimSpace(group.Tag)
	group.Name = strings.TrimSpace(group.Name)
	group.IncludePatterns = dropBlank(group.IncludePatterns)
	group.ExcludePatterns = dropBlank(group.ExcludePatterns)

	var problems shared.Problems
	shared.ValidateStruct("node group", group, &problems)
	if domain.IsBuiltinOutbound(group.Tag) {
		problems.Addf("node group: tag %q is reserved for a builtin outbound", group.Tag)
	}
	if _, err := nodegroup.CompilePatterns(group.IncludePatterns, group.ExcludePatterns); err != nil {
		var verr *shared.ValidationError
		if errors.As(err, &verr) {
			problems = append(problems, verr.Problems...)
		} else {
			problems.Addf("node group: %v", err)
		}
	}
	if err := problems.Validation(); err != nil {
		return domain.NodeGroup{}, err
	}
	return group, nil
}

// dropBlank 去掉空白项；正则中的首尾空白有含义，保留原样
func dropBlank(items []string) []string {
	if items == nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item) != "" {
			out = append(out, item)
		}
	}
	return out
}

package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"lattice/backend/domain"
	"lattice/backend/repository"
	"lattice/backend/repository/events"
)

// NodeGroupRepo NodeGroup 仓储实现（内存）
type NodeGroupRepo struct {
	store *Store
}

func NewNodeGroupRepo(store *Store) *NodeGroupRepo {
	return &NodeGroupRepo{store: store}
}

func (r *NodeGroupRepo) Get(_ context.Context, id string) (domain.NodeGroup, error) {
	r.store.RLock()
	defer r.store.RUnlock()
	group, ok := r.store.nodeGroups[id]
	if !ok {
		return domain.NodeGroup{}, repository.ErrNodeGroupNotFound
	}
	return cloneGroup(group), nil
}

func (r *NodeGroupRepo) List(_ context.Context) ([]domain.NodeGroup, error) {
	r.store.RLock()
	defer r.store.RUnlock()
	return r.store.listGroups(), nil
}

func (r *NodeGroupRepo) Create(_ context.Context, group domain.NodeGroup) (domain.NodeGroup, error) {
	group = normalizeGroup(group)

	r.store.Lock()
	if group.ID == "" {
		group.ID = uuid.NewString()
	} else if _, exists := r.store.nodeGroups[group.ID]; exists {
		r.store.Unlock()
		return domain.NodeGroup{}, fmt.Errorf("%w: node group %s", repository.ErrAlreadyExists, group.ID)
	}
	if err := r.checkLocked(group); err != nil {
		r.store.Unlock()
		return domain.NodeGroup{}, err
	}
	now := r.store.Now()
	if group.CreatedAt.IsZero() {
		group.CreatedAt = now
	}
	group.UpdatedAt = now
	r.store.putGroup(group)
	r.store.Unlock()

	r.store.PublishEvent(events.NodeGroupEvent{
		EventType:   events.EventNodeGroupCreated,
		NodeGroupID: group.ID,
		NodeGroup:   cloneGroup(group),
	})
	return cloneGroup(group), nil
}

func (r *NodeGroupRepo) Update(_ context.Context, id string, group domain.NodeGroup) (domain.NodeGroup, error) {
	group = normalizeGroup(group)

	r.store.Lock()
	current, ok := r.store.nodeGroups[id]
	if !ok {
		r.store.Unlock()
		return domain.NodeGroup{}, repository.ErrNodeGroupNotFound
	}
	group.ID = id
	if err := r.checkLocked(group); err != nil {
		r.store.Unlock()
		return domain.NodeGroup{}, err
	}
	group.CreatedAt = current.CreatedAt
	group.UpdatedAt = r.store.Now()
	r.store.putGroup(group)
	r.store.Unlock()

	r.store.PublishEvent(events.NodeGroupEvent{
		EventType:   events.EventNodeGroupUpdated,
		NodeGroupID: id,
		NodeGroup:   cloneGroup(group),
	})
	return cloneGroup(group), nil
}

func (r *NodeGroupRepo) Delete(_ context.Context, id string) error {
	r.store.Lock()
	current, ok := r.store.nodeGroups[id]
	if !ok {
		r.store.Unlock()
		return repository.ErrNodeGroupNotFound
	}
	r.store.deleteGroup(id)
	r.store.Unlock()

	r.store.PublishEvent(events.NodeGroupEvent{
		EventType:   events.EventNodeGroupDeleted,
		NodeGroupID: id,
		NodeGroup:   current,
	})
	return nil
}

// checkLocked 校验 tag 在启用的节点组中唯一、手动成员均存在（需持有写锁）
func (r *NodeGroupRepo) checkLocked(group domain.NodeGroup) error {
	if group.Active {
		for _, other := range r.store.nodeGroups {
			if other.ID != group.ID && other.Active && other.Tag == group.Tag {
				return fmt.Errorf("%w: %s", repository.ErrNodeGroupTagTaken, group.Tag)
			}
		}
	}
	for _, nodeID := range group.NodeIDs {
		if _, ok := r.store.nodes[nodeID]; !ok {
			return fmt.Errorf("%w: node %s", repository.ErrReference, nodeID)
		}
	}
	return nil
}

func normalizeGroup(group domain.NodeGroup) domain.NodeGroup {
	group.Tag = strings.TrimSpace(group.Tag)
	group.IncludePatterns = normalizePatterns(group.IncludePatterns)
	group.ExcludePatterns = normalizePatterns(group.ExcludePatterns)
	group.NodeIDs = normalizeList(group.NodeIDs)
	return group
}

// normalizeList 去除空白项与重复项，保留首次出现的顺序
func normalizeList(items []string) []string {
	return dedupeNonBlank(items, strings.TrimSpace)
}

// normalizePatterns 同 normalizeList，但正则原样保存：首尾空白也是匹配内容
func normalizePatterns(items []string) []string {
	return dedupeNonBlank(items, func(s string) string { return s })
}

func dedupeNonBlank(items []string, normalize func(string) string) []string {
	if items == nil {
		return nil
	}
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if strings.TrimSpace(item) == "" {
			continue
		}
		item = normalize(item)
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

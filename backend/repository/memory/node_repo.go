package memory

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"lattice/backend/domain"
	"lattice/backend/repository"
	"lattice/backend/repository/events"
)

// NodeRepo Node 仓储实现（内存）
type NodeRepo struct {
	store *Store
}

func NewNodeRepo(store *Store) *NodeRepo {
	return &NodeRepo{store: store}
}

func (r *NodeRepo) Get(_ context.Context, id string) (domain.Node, error) {
	r.store.RLock()
	defer r.store.RUnlock()
	node, ok := r.store.nodes[id]
	if !ok {
		return domain.Node{}, repository.ErrNodeNotFound
	}
	return cloneNode(node), nil
}

// List 按插入顺序返回（urltest 同延迟时的稳定排序依赖该顺序）
func (r *NodeRepo) List(_ context.Context) ([]domain.Node, error) {
	r.store.RLock()
	defer r.store.RUnlock()
	return r.store.listNodes(), nil
}

func (r *NodeRepo) Create(_ context.Context, node domain.Node) (domain.Node, error) {
	r.store.Lock()
	if node.ID == "" {
		node.ID = uuid.NewString()
	} else if _, exists := r.store.nodes[node.ID]; exists {
		r.store.Unlock()
		return domain.Node{}, fmt.Errorf("%w: node %s", repository.ErrAlreadyExists, node.ID)
	}
	now := r.store.Now()
	if node.CreatedAt.IsZero() {
		node.CreatedAt = now
	}
	node.UpdatedAt = now
	node = cloneNode(node)
	r.store.putNode(node)
	r.store.Unlock()

	r.store.PublishEvent(events.NodeEvent{
		EventType: events.EventNodeCreated,
		NodeID:    node.ID,
		Node:      node,
	})
	return node, nil
}

func (r *NodeRepo) Update(_ context.Context, id string, node domain.Node) (domain.Node, error) {
	r.store.Lock()
	current, ok := r.store.nodes[id]
	if !ok {
		r.store.Unlock()
		return domain.Node{}, repository.ErrNodeNotFound
	}
	node.ID = id
	node.CreatedAt = current.CreatedAt
	node.UpdatedAt = r.store.Now()
	// 健康样本只由 HealthAggregator 写入
	node.Health = current.Health
	node = cloneNode(node)

	r.store.putNode(node)
	r.store.Unlock()

	r.store.PublishEvent(events.NodeEvent{
		EventType: events.EventNodeUpdated,
		NodeID:    id,
		Node:      node,
	})
	return node, nil
}

// Delete 删除节点，并在同一把锁内从所有节点组的手动成员中移除
func (r *NodeRepo) Delete(_ context.Context, id string) error {
	r.store.Lock()
	current, ok := r.store.nodes[id]
	if !ok {
		r.store.Unlock()
		return repository.ErrNodeNotFound
	}
	r.store.deleteNode(id)

	batch := []events.Event{events.NodeEvent{
		EventType: events.EventNodeDeleted,
		NodeID:    id,
		Node:      current,
	}}
	now := r.store.Now()
	for _, groupID := range r.store.groupOrder {
		group := r.store.nodeGroups[groupID]
		remaining := removeID(cloneStrings(group.NodeIDs), id)
		if len(remaining) == len(group.NodeIDs) {
			continue
		}
		group.NodeIDs = remaining
		group.UpdatedAt = now
		r.store.putGroup(group)
		batch = append(batch, events.NodeGroupEvent{
			EventType:   events.EventNodeGroupUpdated,
			NodeGroupID: group.ID,
			NodeGroup:   cloneGroup(group),
		})
	}
	r.store.Unlock()

	r.store.PublishEvents(batch)
	return nil
}

// UpdateHealth 单调接受：checkedAt 早于当前样本的结果被丢弃；与当前样本完全相同视为无变化
func (r *NodeRepo) UpdateHealth(_ context.Context, id string, sample domain.HealthSample) (bool, error) {
	r.store.Lock()
	current, ok := r.store.nodes[id]
	if !ok {
		r.store.Unlock()
		return false, repository.ErrNodeNotFound
	}
	if sample.CheckedAt.Before(current.Health.CheckedAt) || sample.Equal(current.Health) {
		r.store.Unlock()
		return false, nil
	}
	if sample.LatencyMS != nil {
		sample.LatencyMS = domain.LatencyPtr(*sample.LatencyMS)
	}
	current.Health = sample
	r.store.putNode(current)
	r.store.Unlock()

	r.store.PublishEvent(events.NodeEvent{
		EventType: events.EventNodeHealthChanged,
		NodeID:    id,
		Node:      cloneNode(current),
	})
	return true, nil
}

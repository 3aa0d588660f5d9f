package memory

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"lattice/backend/domain"
	"lattice/backend/repository"
	"lattice/backend/repository/events"
)

// RuleSetRepo RuleSet 仓储实现（内存）
type RuleSetRepo struct {
	store *Store
}

func NewRuleSetRepo(store *Store) *RuleSetRepo {
	return &RuleSetRepo{store: store}
}

func (r *RuleSetRepo) Get(_ context.Context, id string) (domain.RuleSet, error) {
	r.store.RLock()
	defer r.store.RUnlock()
	rs, ok := r.store.ruleSets[id]
	if !ok {
		return domain.RuleSet{}, repository.ErrRuleSetNotFound
	}
	return cloneRuleSet(rs), nil
}

func (r *RuleSetRepo) List(_ context.Context) ([]domain.RuleSet, error) {
	r.store.RLock()
	defer r.store.RUnlock()
	return r.store.listRuleSets(), nil
}

func (r *RuleSetRepo) Create(_ context.Context, rs domain.RuleSet) (domain.RuleSet, error) {
	r.store.Lock()
	if rs.ID == "" {
		rs.ID = uuid.NewString()
	} else if _, exists := r.store.ruleSets[rs.ID]; exists {
		r.store.Unlock()
		return domain.RuleSet{}, fmt.Errorf("%w: rule set %s", repository.ErrAlreadyExists, rs.ID)
	}
	now := r.store.Now()
	if rs.CreatedAt.IsZero() {
		rs.CreatedAt = now
	}
	rs.UpdatedAt = now
	rs = cloneRuleSet(rs)
	r.store.putRuleSet(rs)
	r.store.Unlock()

	r.store.PublishEvent(events.RuleSetEvent{
		EventType: events.EventRuleSetCreated,
		RuleSetID: rs.ID,
		RuleSet:   rs,
	})
	return cloneRuleSet(rs), nil
}

func (r *RuleSetRepo) Update(_ context.Context, id string, rs domain.RuleSet) (domain.RuleSet, error) {
	r.store.Lock()
	current, ok := r.store.ruleSets[id]
	if !ok {
		r.store.Unlock()
		return domain.RuleSet{}, repository.ErrRuleSetNotFound
	}
	rs.ID = id
	rs.CreatedAt = current.CreatedAt
	rs.UpdatedAt = r.store.Now()
	// 刷新状态随来源保留；来源变化后旧的刷新结果不再有意义
	if domain.SourceURL(rs.Source) == domain.SourceURL(current.Source) && rs.Type == current.Type {
		rs.LastRefreshedAt = current.LastRefreshedAt
		rs.LastRefreshError = current.LastRefreshError
	} else {
		rs.LastRefreshedAt = nil
		rs.LastRefreshError = ""
	}
	rs = cloneRuleSet(rs)
	r.store.putRuleSet(rs)
	r.store.Unlock()

	r.store.PublishEvent(events.RuleSetEvent{
		EventType: events.EventRuleSetUpdated,
		RuleSetID: id,
		RuleSet:   rs,
	})
	return cloneRuleSet(rs), nil
}

func (r *RuleSetRepo) Delete(_ context.Context, id string) error {
	r.store.Lock()
	current, ok := r.store.ruleSets[id]
	if !ok {
		r.store.Unlock()
		return repository.ErrRuleSetNotFound
	}
	r.store.deleteRuleSet(id)
	r.store.Unlock()

	r.store.PublishEvent(events.RuleSetEvent{
		EventType: events.EventRuleSetDeleted,
		RuleSetID: id,
		RuleSet:   current,
	})
	return nil
}

// MarkRefreshed 成功时记录刷新时间并清空错误；失败时只记录错误
func (r *RuleSetRepo) MarkRefreshed(_ context.Context, id string, refreshErr string) error {
	r.store.Lock()
	current, ok := r.store.ruleSets[id]
	if !ok {
		r.store.Unlock()
		return repository.ErrRuleSetNotFound
	}
	if refreshErr == "" {
		at := r.store.Now()
		current.LastRefreshedAt = &at
	}
	current.LastRefreshError = refreshErr
	r.store.putRuleSet(current)
	r.store.Unlock()

	r.store.PublishEvent(events.RuleSetEvent{
		EventType: events.EventRuleSetRefreshed,
		RuleSetID: id,
		RuleSet:   cloneRuleSet(current),
	})
	return nil
}

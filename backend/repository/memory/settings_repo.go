package memory

import (
	"context"

	"lattice/backend/domain"
	"lattice/backend/repository/events"
)

// SettingsRepo 设置仓储实现
type SettingsRepo struct {
	store *Store
}

// NewSettingsRepo 创建设置仓储
func NewSettingsRepo(store *Store) *SettingsRepo {
	return &SettingsRepo{store: store}
}

// GetDNS 获取 DNS 设置
func (r *SettingsRepo) GetDNS(_ context.Context) (domain.DNSSettings, error) {
	r.store.RLock()
	defer r.store.RUnlock()
	return r.store.dns, nil
}

// UpdateDNS 更新 DNS 设置（调用方负责校验）
func (r *SettingsRepo) UpdateDNS(_ context.Context, settings domain.DNSSettings) (domain.DNSSettings, error) {
	r.store.Lock()
	settings.UpdatedAt = r.store.Now()
	r.store.dns = settings
	r.store.Unlock()

	// 在锁外发布事件
	r.store.PublishEvent(events.SettingsEvent{
		EventType: events.EventDNSChanged,
	})

	return settings, nil
}

// GetInboundMode 获取入站模式
func (r *SettingsRepo) GetInboundMode(_ context.Context) (domain.InboundMode, error) {
	r.store.RLock()
	defer r.store.RUnlock()
	return r.store.inboundMode, nil
}

// UpdateInboundMode 更新入站模式
func (r *SettingsRepo) UpdateInboundMode(_ context.Context, mode domain.InboundMode) (domain.InboundMode, error) {
	r.store.Lock()
	changed := r.store.inboundMode != mode
	r.store.inboundMode = mode
	r.store.Unlock()

	if changed {
		r.store.PublishEvent(events.SettingsEvent{
			EventType: events.EventInboundChanged,
		})
	}
	return mode, nil
}

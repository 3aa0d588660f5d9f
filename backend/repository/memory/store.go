package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"lattice/backend/domain"
	"lattice/backend/repository/events"
)

// Store 内存存储引擎
// 所有写操作在同一把写锁内完成（单写者），Snapshot 在读锁内复制，保证编译看到一致视图。
type Store struct {
	mu sync.RWMutex

	// 数据存储（order 切片记录插入顺序，作为确定性排序依据）
	nodes        map[string]domain.Node
	nodeOrder    []string
	nodeGroups   map[string]domain.NodeGroup
	groupOrder   []string
	ruleSets     map[string]domain.RuleSet
	ruleSetOrder []string

	// 单例设置
	dns         domain.DNSSettings
	inboundMode domain.InboundMode

	now func() time.Time

	// 事件总线
	eventBus *events.Bus
}

// NewStore 创建新的内存存储
func NewStore(eventBus *events.Bus) *Store {
	return &Store{
		nodes:       make(map[string]domain.Node),
		nodeGroups:  make(map[string]domain.NodeGroup),
		ruleSets:    make(map[string]domain.RuleSet),
		dns:         DefaultDNSSettings(),
		inboundMode: domain.InboundMixed,
		now:         time.Now,
		eventBus:    eventBus,
	}
}

// DefaultDNSSettings 默认 DNS 设置
func DefaultDNSSettings() domain.DNSSettings {
	return domain.DNSSettings{
		Domestic: domain.DNSUpstream{Address: "223.5.5.5", Transport: domain.DNSTransportUDP},
		Foreign:  domain.DNSUpstream{Address: "https://1.1.1.1/dns-query", Transport: domain.DNSTransportDoH},
	}
}

// SetClock 替换时间源（测试使用）
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now == nil {
		now = time.Now
	}
	s.now = now
}

// ========== 锁操作（供仓储使用）==========

// RLock 获取读锁
func (s *Store) RLock() { s.mu.RLock() }

// RUnlock 释放读锁
func (s *Store) RUnlock() { s.mu.RUnlock() }

// Lock 获取写锁
func (s *Store) Lock() { s.mu.Lock() }

// Unlock 释放写锁
func (s *Store) Unlock() { s.mu.Unlock() }

// ========== 事件发布 ==========

// PublishEvent 发布事件（异步，应在锁外调用）
func (s *Store) PublishEvent(event events.Event) {
	if s.eventBus != nil {
		s.eventBus.Publish(event)
	}
}

// PublishEvents 发布一组事件（异步，应在锁外调用）
func (s *Store) PublishEvents(batch []events.Event) {
	if s.eventBus != nil {
		s.eventBus.PublishBatch(batch)
	}
}

// Now 当前时间（需持有锁）
func (s *Store) Now() time.Time { return s.now() }

// ========== 数据访问（供仓储内部使用，需持有锁）==========

func (s *Store) putNode(node domain.Node) {
	if _, ok := s.nodes[node.ID]; !ok {
		s.nodeOrder = append(s.nodeOrder, node.ID)
	}
	s.nodes[node.ID] = node
}

func (s *Store) deleteNode(id string) {
	delete(s.nodes, id)
	s.nodeOrder = removeID(s.nodeOrder, id)
}

func (s *Store) putGroup(group domain.NodeGroup) {
	if _, ok := s.nodeGroups[group.ID]; !ok {
		s.groupOrder = append(s.groupOrder, group.ID)
	}
	s.nodeGroups[group.ID] = group
}

func (s *Store) deleteGroup(id string) {
	delete(s.nodeGroups, id)
	s.groupOrder = removeID(s.groupOrder, id)
}

func (s *Store) putRuleSet(rs domain.RuleSet) {
	if _, ok := s.ruleSets[rs.ID]; !ok {
		s.ruleSetOrder = append(s.ruleSetOrder, rs.ID)
	}
	s.ruleSets[rs.ID] = rs
}

func (s *Store) deleteRuleSet(id string) {
	delete(s.ruleSets, id)
	s.ruleSetOrder = removeID(s.ruleSetOrder, id)
}

func (s *Store) listNodes() []domain.Node {
	out := make([]domain.Node, 0, len(s.nodeOrder))
	for _, id := range s.nodeOrder {
		out = append(out, cloneNode(s.nodes[id]))
	}
	return out
}

func (s *Store) listGroups() []domain.NodeGroup {
	out := make([]domain.NodeGroup, 0, len(s.groupOrder))
	for _, id := range s.groupOrder {
		out = append(out, cloneGroup(s.nodeGroups[id]))
	}
	return out
}

func (s *Store) listRuleSets() []domain.RuleSet {
	out := make([]domain.RuleSet, 0, len(s.ruleSetOrder))
	for _, id := range s.ruleSetOrder {
		out = append(out, cloneRuleSet(s.ruleSets[id]))
	}
	return out
}

// ========== 快照与恢复 ==========

// Snapshot 生成状态快照（插入顺序，深拷贝）
func (s *Store) Snapshot() domain.ServiceState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return domain.ServiceState{
		Nodes:       s.listNodes(),
		NodeGroups:  s.listGroups(),
		RuleSets:    s.listRuleSets(),
		DNS:         s.dns,
		InboundMode: s.inboundMode,
		GeneratedAt: s.now(),
	}
}

// LoadState 加载状态
func (s *Store) LoadState(state domain.ServiceState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	// 加载节点
	s.nodes = make(map[string]domain.Node)
	s.nodeOrder = nil
	for _, node := range state.Nodes {
		if node.ID == "" {
			node.ID = uuid.NewString()
		}
		if node.CreatedAt.IsZero() {
			node.CreatedAt = now
		}
		if node.UpdatedAt.IsZero() {
			node.UpdatedAt = node.CreatedAt
		}
		s.putNode(cloneNode(node))
	}

	// 加载 NodeGroup
	s.nodeGroups = make(map[string]domain.NodeGroup)
	s.groupOrder = nil
	for _, group := range state.NodeGroups {
		if group.ID == "" {
			group.ID = uuid.NewString()
		}
		if group.CreatedAt.IsZero() {
			group.CreatedAt = now
		}
		if group.UpdatedAt.IsZero() {
			group.UpdatedAt = group.CreatedAt
		}
		// 丢弃指向已不存在节点的手动成员
		group.NodeIDs = filterKnown(group.NodeIDs, s.nodes)
		s.putGroup(cloneGroup(group))
	}

	// 加载 RuleSet
	s.ruleSets = make(map[string]domain.RuleSet)
	s.ruleSetOrder = nil
	for _, rs := range state.RuleSets {
		if rs.ID == "" {
			rs.ID = uuid.NewString()
		}
		if rs.CreatedAt.IsZero() {
			rs.CreatedAt = now
		}
		if rs.UpdatedAt.IsZero() {
			rs.UpdatedAt = rs.CreatedAt
		}
		s.putRuleSet(cloneRuleSet(rs))
	}

	s.dns = state.DNS
	if s.dns.Domestic.Address == "" && s.dns.Foreign.Address == "" {
		defaults := DefaultDNSSettings()
		defaults.ClientSubnet = s.dns.ClientSubnet
		s.dns = defaults
	}
	if s.dns.UpdatedAt.IsZero() {
		s.dns.UpdatedAt = now
	}

	s.inboundMode = state.InboundMode
	if s.inboundMode == "" {
		s.inboundMode = domain.InboundMixed
	}
}

func removeID(order []string, id string) []string {
	for i, existing := range order {
		if existing == id {
			return append(order[:i:i], order[i+1:]...)
		}
	}
	return order
}

func filterKnown(ids []string, nodes map[string]domain.Node) []string {
	if ids == nil {
		return nil
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := nodes[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneNode(node domain.Node) domain.Node {
	node.Params = domain.CloneParams(node.Params)
	if node.Health.LatencyMS != nil {
		node.Health.LatencyMS = domain.LatencyPtr(*node.Health.LatencyMS)
	}
	return node
}

func cloneGroup(group domain.NodeGroup) domain.NodeGroup {
	group.IncludePatterns = cloneStrings(group.IncludePatterns)
	group.ExcludePatterns = cloneStrings(group.ExcludePatterns)
	group.NodeIDs = cloneStrings(group.NodeIDs)
	return group
}

func cloneRuleSet(rs domain.RuleSet) domain.RuleSet {
	if inline, ok := rs.Source.(domain.InlineSource); ok {
		rs.Source = domain.InlineSource{Entries: cloneStrings(inline.Entries)}
	}
	if rs.LastRefreshedAt != nil {
		at := *rs.LastRefreshedAt
		rs.LastRefreshedAt = &at
	}
	return rs
}

package events

import "lattice/backend/domain"

// EventType 事件类型
type EventType string

const (
	// Node 事件
	EventNodeCreated       EventType = "node.created"
	EventNodeUpdated       EventType = "node.updated"
	EventNodeDeleted       EventType = "node.deleted"
	EventNodeHealthChanged EventType = "node.health_changed"

	// NodeGroup 事件
	EventNodeGroupCreated EventType = "nodegroup.created"
	EventNodeGroupUpdated EventType = "nodegroup.updated"
	EventNodeGroupDeleted EventType = "nodegroup.deleted"

	// RuleSet 事件
	EventRuleSetCreated   EventType = "ruleset.created"
	EventRuleSetUpdated   EventType = "ruleset.updated"
	EventRuleSetDeleted   EventType = "ruleset.deleted"
	EventRuleSetRefreshed EventType = "ruleset.refreshed"

	// 设置事件
	EventDNSChanged     EventType = "settings.dns_changed"
	EventInboundChanged EventType = "settings.inbound_changed"
)

// Event 事件接口
type Event interface {
	Type() EventType
}

// NodeEvent Node 事件
type NodeEvent struct {
	EventType EventType
	NodeID    string
	Node      domain.Node
}

func (e NodeEvent) Type() EventType { return e.EventType }

// NodeGroupEvent NodeGroup 事件
type NodeGroupEvent struct {
	EventType   EventType
	NodeGroupID string
	NodeGroup   domain.NodeGroup
}

func (e NodeGroupEvent) Type() EventType { return e.EventType }

// RuleSetEvent RuleSet 事件
type RuleSetEvent struct {
	EventType EventType
	RuleSetID string
	RuleSet   domain.RuleSet
}

func (e RuleSetEvent) Type() EventType { return e.EventType }

// SettingsEvent 设置事件
type SettingsEvent struct {
	EventType EventType
}

func (e SettingsEvent) Type() EventType { return e.EventType }

// AffectsRouting 该事件是否需要触发重新编译。
// 刷新时间戳只影响展示；健康变化由聚合器按受影响的 urltest 组单独触发。
func AffectsRouting(event Event) bool {
	if event == nil {
		return false
	}
	switch event.Type() {
	case EventRuleSetRefreshed, EventNodeHealthChanged:
		return false
	}
	return true
}

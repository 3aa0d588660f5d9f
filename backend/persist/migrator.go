package persist

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"lattice/backend/domain"
)

// SchemaVersion 当前状态文件版本
const SchemaVersion = "1.1.0"

const legacySchemaVersion_1_0_0 = "1.0.0"

// 1.0.0 的节点组用 enabled 表示是否参与路由，规则集的来源平铺在顶层
type legacyNodeGroup_1_0_0 struct {
	domain.NodeGroup
	Enabled *bool `json:"enabled,omitempty"`
}

type legacyRuleSet_1_0_0 struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Type      domain.RuleSetType `json:"type"`
	Outbound  string             `json:"outbound"`
	Enabled   bool               `json:"enabled"`
	URL       string             `json:"url,omitempty"`
	Entries   []string           `json:"entries,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

type legacyServiceState_1_0_0 struct {
	SchemaVersion string                  `json:"schemaVersion,omitempty"`
	Nodes         []domain.Node           `json:"nodes"`
	NodeGroups    []legacyNodeGroup_1_0_0 `json:"nodeGroups"`
	RuleSets      []legacyRuleSet_1_0_0   `json:"ruleSets"`
	DNS           domain.DNSSettings      `json:"dns"`
	InboundMode   domain.InboundMode      `json:"inboundMode"`
	GeneratedAt   time.Time               `json:"generatedAt"`
}

// Migrator 版本校验器（接受当前版本与 1.0.0）
type Migrator struct{}

func NewMigrator() *Migrator {
	return &Migrator{}
}

// Migrate 解析并校验版本
func (m *Migrator) Migrate(data []byte) (domain.ServiceState, error) {
	if len(data) == 0 {
		return domain.ServiceState{SchemaVersion: SchemaVersion}, nil
	}

	// 先只解析 schemaVersion，避免按错误的结构解析导致字段丢失
	var meta struct {
		SchemaVersion string `json:"schemaVersion,omitempty"`
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return domain.ServiceState{}, fmt.Errorf("failed to parse state: %w", err)
	}

	switch meta.SchemaVersion {
	case SchemaVersion, "":
		// 未写入 schemaVersion 的文件按当前结构尽力解析
		var state domain.ServiceState
		if err := json.Unmarshal(data, &state); err != nil {
			return domain.ServiceState{}, fmt.Errorf("failed to parse state: %w", err)
		}
		return sanitizeServiceState(state), nil
	case legacySchemaVersion_1_0_0:
		var legacy legacyServiceState_1_0_0
		if err := json.Unmarshal(data, &legacy); err != nil {
			return domain.ServiceState{}, fmt.Errorf("failed to parse legacy state: %w", err)
		}
		return sanitizeServiceState(migrate_1_0_0_to_1_1_0(legacy)), nil
	default:
		return domain.ServiceState{}, fmt.Errorf("unsupported schemaVersion %s (expected %s)", meta.SchemaVersion, SchemaVersion)
	}
}

func migrate_1_0_0_to_1_1_0(legacy legacyServiceState_1_0_0) domain.ServiceState {
	groups := make([]domain.NodeGroup, 0, len(legacy.NodeGroups))
	for _, g := range legacy.NodeGroups {
		group := g.NodeGroup
		if g.Enabled != nil {
			group.Active = *g.Enabled
		}
		groups = append(groups, group)
	}

	ruleSets := make([]domain.RuleSet, 0, len(legacy.RuleSets))
	for _, rs := range legacy.RuleSets {
		next := domain.RuleSet{
			ID:        rs.ID,
			Name:      rs.Name,
			Type:      rs.Type,
			Outbound:  rs.Outbound,
			Enabled:   rs.Enabled,
			CreatedAt: rs.CreatedAt,
			UpdatedAt: rs.UpdatedAt,
		}
		switch {
		case rs.Type.Remote() && rs.URL != "":
			next.Source = domain.RemoteSource{URL: rs.URL}
		case len(rs.Entries) > 0:
			next.Source = domain.InlineSource{Entries: rs.Entries}
		}
		ruleSets = append(ruleSets, next)
	}

	return domain.ServiceState{
		SchemaVersion: SchemaVersion,
		Nodes:         legacy.Nodes,
		NodeGroups:    groups,
		RuleSets:      ruleSets,
		DNS:           legacy.DNS,
		InboundMode:   legacy.InboundMode,
		GeneratedAt:   time.Now(),
	}
}

func sanitizeServiceState(state domain.ServiceState) domain.ServiceState {
	state.SchemaVersion = SchemaVersion

	// 健康样本只在运行时有意义，旧文件中残留的样本不再信任
	for i := range state.Nodes {
		state.Nodes[i].Health = domain.HealthSample{}
	}

	// 入站模式：未知取值回退为 mixed，避免启动后每次编译都失败
	mode := domain.InboundMode(strings.ToLower(strings.TrimSpace(string(state.InboundMode))))
	if !mode.Valid() {
		mode = domain.InboundMixed
	}
	state.InboundMode = mode

	return state
}

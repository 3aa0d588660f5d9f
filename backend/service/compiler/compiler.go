package compiler

import (
	"errors"
	"fmt"

	"lattice/backend/domain"
	"lattice/backend/service/nodegroup"
	"lattice/backend/service/ruleset"
	"lattice/backend/service/shared"
)

// Input 编译输入（通常来自一次存储快照）
type Input struct {
	Nodes       []domain.Node
	Groups      []domain.NodeGroup
	RuleSets    []domain.RuleSet
	DNS         domain.DNSSettings
	InboundMode domain.InboundMode
}

// FromState 从全量状态构造编译输入
func FromState(state domain.ServiceState) Input {
	return Input{
		Nodes:       state.Nodes,
		Groups:      state.NodeGroups,
		RuleSets:    state.RuleSets,
		DNS:         state.DNS,
		InboundMode: state.InboundMode,
	}
}

// Compile 把存储快照编译为不可变的 CompiledConfig。
//
//  1. 解析全部节点组（非法正则为 ValidationError）；
//  2. 只保留启用的规则集，并重新校验类型与来源；
//  3. 出站为内置出站或启用节点组的 tag，否则为 ReferenceError（致命，不跳过）；
//  4. 校验 DNS 设置；
//  5. 同分类同类型的规则集只保留最近更新的一条，其余产生 dedup 警告。
//
// 存在任何错误时不产出配置，返回 errors.Join(ValidationError, ReferenceError)。
// 输入不会被修改。
func Compile(in Input) (*CompiledConfig, error) {
	var (
		invalid    shared.Problems
		unresolved shared.Problems
	)

	if !in.InboundMode.Valid() {
		invalid.Addf("unknown inbound mode %q", in.InboundMode)
	}

	groups, activeByTag := resolveGroups(in, &invalid)
	rules := enabledRules(in.RuleSets, &invalid)

	for _, rs := range rules {
		if domain.IsBuiltinOutbound(rs.Outbound) {
			continue
		}
		if _, ok := activeByTag[rs.Outbound]; ok {
			continue
		}
		if hasInactiveTag(in.Groups, rs.Outbound) {
			unresolved.Addf("rule set %s (%s): outbound node group %q is not active", rs.ID, rs.Name, rs.Outbound)
		} else {
			unresolved.Addf("rule set %s (%s): outbound node group %q does not exist", rs.ID, rs.Name, rs.Outbound)
		}
	}

	dnsOut, err := ValidateDNS(in.DNS)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			invalid = append(invalid, verr.Problems...)
		} else {
			invalid.Addf("dns: %v", err)
		}
	}

	if err := errors.Join(invalid.Validation(), unresolved.Reference()); err != nil {
		return nil, err
	}

	kept, dedupWarnings := dedupe(rules)

	cfg := &CompiledConfig{
		Groups:      make([]CompiledGroup, 0, len(activeByTag)),
		Rules:       make([]CompiledRule, 0, len(kept)),
		DNS:         dnsOut,
		InboundMode: in.InboundMode,
		Warnings:    []Warning{},
	}
	for _, g := range groups {
		if g.active {
			cfg.Groups = append(cfg.Groups, g.compiled)
		}
	}
	for _, rs := range kept {
		cfg.Rules = append(cfg.Rules, compileRule(rs))
		if g, ok := activeByTag[rs.Outbound]; ok && len(g.Members) == 0 {
			cfg.Warnings = append(cfg.Warnings, Warning{
				Kind:    WarningResolution,
				Subject: rs.ID,
				Message: fmt.Sprintf("rule set %q routes to node group %q which currently has no members", rs.Name, rs.Outbound),
			})
		}
	}
	cfg.Warnings = append(cfg.Warnings, dedupWarnings...)
	cfg.Fingerprint = cfg.computeFingerprint()
	return cfg, nil
}

type resolvedGroup struct {
	active   bool
	compiled CompiledGroup
}

func resolveGroups(in Input, invalid *shared.Problems) ([]resolvedGroup, map[string]CompiledGroup) {
	out := make([]resolvedGroup, 0, len(in.Groups))
	activeByTag := make(map[string]CompiledGroup)
	for _, g := range in.Groups {
		res, err := nodegroup.Resolve(g, in.Nodes)
		if err != nil {
			invalid.Addf("%v", err)
			continue
		}
		compiled := CompiledGroup{
			ID:        g.ID,
			Tag:       g.Tag,
			Name:      g.Name,
			Mode:      g.Mode,
			Members:   res.Members,
			Preferred: res.Preferred,
		}
		if g.Active {
			switch {
			case g.Tag == "":
				invalid.Addf("node group %s: tag is required", g.ID)
				continue
			case domain.IsBuiltinOutbound(g.Tag):
				invalid.Addf("node group %s: tag %q is reserved", g.ID, g.Tag)
				continue
			}
			if _, dup := activeByTag[g.Tag]; dup {
				invalid.Addf("node group %s: tag %q is used by another active group", g.ID, g.Tag)
				continue
			}
			activeByTag[g.Tag] = compiled
		}
		out = append(out, resolvedGroup{active: g.Active, compiled: compiled})
	}
	return out, activeByTag
}

func enabledRules(items []domain.RuleSet, invalid *shared.Problems) []domain.RuleSet {
	out := make([]domain.RuleSet, 0, len(items))
	for _, rs := range items {
		if !rs.Enabled {
			continue
		}
		normalized, err := ruleset.Normalize(rs)
		if err != nil {
			invalid.Addf("rule set %s: %v", rs.ID, err)
			continue
		}
		out = append(out, normalized)
	}
	return out
}

func hasInactiveTag(groups []domain.NodeGroup, tag string) bool {
	for _, g := range groups {
		if !g.Active && g.Tag == tag {
			return true
		}
	}
	return false
}

// dedupe 同键保留 UpdatedAt 最大的记录（相同时保留先出现的），输出保持输入顺序
func dedupe(rules []domain.RuleSet) ([]domain.RuleSet, []Warning) {
	winner := make(map[string]int, len(rules))
	superseded := make(map[int]struct{})
	for i, rs := range rules {
		key := ruleset.DedupKey(rs.Name, rs.Type)
		j, seen := winner[key]
		if !seen {
			winner[key] = i
			continue
		}
		if rs.UpdatedAt.After(rules[j].UpdatedAt) {
			superseded[j] = struct{}{}
			winner[key] = i
		} else {
			superseded[i] = struct{}{}
		}
	}

	kept := make([]domain.RuleSet, 0, len(rules))
	warnings := make([]Warning, 0, len(superseded))
	for i, rs := range rules {
		if _, gone := superseded[i]; !gone {
			kept = append(kept, rs)
			continue
		}
		w := rules[winner[ruleset.DedupKey(rs.Name, rs.Type)]]
		warnings = append(warnings, Warning{
			Kind:    WarningDedup,
			Subject: rs.ID,
			Message: fmt.Sprintf("rule set %q superseded by more recently updated %q (category %q, type %s)",
				rs.Name, w.Name, ruleset.CanonicalCategory(rs.Name), rs.Type),
		})
	}
	return kept, warnings
}

func compileRule(rs domain.RuleSet) CompiledRule {
	out := CompiledRule{
		ID:       rs.ID,
		Name:     rs.Name,
		Category: ruleset.CanonicalCategory(rs.Name),
		Type:     rs.Type,
		Outbound: rs.Outbound,
		URL:      domain.SourceURL(rs.Source),
	}
	if entries := domain.SourceEntries(rs.Source); len(entries) > 0 {
		out.Entries = append([]string(nil), entries...)
	}
	return out
}

package ruleset

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"lattice/backend/domain"
	"lattice/backend/repository"
	"lattice/backend/service/shared"
)

// Preset 预设规则集（YAML）
//
//	rulesets:
//	  - name: geosite:netflix
//	    type: geosite
//	    outbound: proxy-select
//	    url: https://example.com/geosite-netflix.srs
//	  - name: lan
//	    type: ip_is_private
//	    outbound: direct
type Preset struct {
	Name     string   `yaml:"name"`
	Type     string   `yaml:"type"`
	Outbound string   `yaml:"outbound"`
	Enabled  *bool    `yaml:"enabled,omitempty"`
	URL      string   `yaml:"url,omitempty"`
	Entries  []string `yaml:"entries,omitempty"`
}

type presetFile struct {
	RuleSets []Preset `yaml:"rulesets"`
}

// ImportResult 导入统计
type ImportResult struct {
	Created []string `json:"created"`
	Updated []string `json:"updated"`
}

func (p Preset) toRuleSet() domain.RuleSet {
	rs := domain.RuleSet{
		Name:     p.Name,
		Type:     domain.RuleSetType(p.Type),
		Outbound: p.Outbound,
		Enabled:  p.Enabled == nil || *p.Enabled,
	}
	switch {
	case rs.Type.Remote() && p.URL != "":
		rs.Source = domain.RemoteSource{URL: p.URL}
	case len(p.Entries) > 0:
		rs.Source = domain.InlineSource{Entries: p.Entries}
	}
	return rs
}

// ImportPresets 导入预设。以 (分类, 类型) 为键合并：已存在的规则集原地更新来源与名称，
// 保留操作员设置的出站与启用状态；新规则集使用稳定 ID，重复导入不会产生新记录。
// 任一预设非法时整批拒绝，不写入任何数据。
func (s *Service) ImportPresets(ctx context.Context, r io.Reader) (ImportResult, error) {
	var file presetFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return ImportResult{}, &shared.ValidationError{Problems: []string{"preset yaml: " + err.Error()}}
	}

	var problems shared.Problems
	incoming := make([]domain.RuleSet, 0, len(file.RuleSets))
	for i, p := range file.RuleSets {
		rs, err := Normalize(p.toRuleSet())
		if err != nil {
			problems.Addf("preset #%d (%s): %v", i+1, p.Name, err)
			continue
		}
		incoming = append(incoming, rs)
	}
	if err := problems.Validation(); err != nil {
		return ImportResult{}, err
	}

	existing, err := s.repo.List(ctx)
	if err != nil {
		return ImportResult{}, err
	}
	byKey := make(map[string]domain.RuleSet, len(existing))
	for _, rs := range existing {
		key := DedupKey(rs.Name, rs.Type)
		// 多条同键记录时以最近更新的为合并目标
		if cur, ok := byKey[key]; !ok || rs.UpdatedAt.After(cur.UpdatedAt) {
			byKey[key] = rs
		}
	}

	result := ImportResult{Created: []string{}, Updated: []string{}}
	for _, rs := range incoming {
		key := DedupKey(rs.Name, rs.Type)
		if cur, ok := byKey[key]; ok {
			rs.Outbound = cur.Outbound
			rs.Enabled = cur.Enabled
			updated, err := s.repo.Update(ctx, cur.ID, rs)
			if err != nil {
				return result, fmt.Errorf("update preset %s: %w", rs.Name, err)
			}
			byKey[key] = updated
			result.Updated = append(result.Updated, updated.ID)
			continue
		}

		rs.ID = domain.StableRuleSetID(CanonicalCategory(rs.Name), rs.Type)
		created, err := s.repo.Create(ctx, rs)
		if errors.Is(err, repository.ErrAlreadyExists) {
			created, err = s.repo.Update(ctx, rs.ID, rs)
		}
		if err != nil {
			return result, fmt.Errorf("create preset %s: %w", rs.Name, err)
		}
		byKey[key] = created
		result.Created = append(result.Created, created.ID)
	}
	s.log.WithField("created", len(result.Created)).WithField("updated", len(result.Updated)).Info("rule set presets imported")
	return result, nil
}

package domain

import (
	"encoding/json"
	"fmt"
)

// RuleSource 规则集来源（和类型），由 RuleSet.Type 决定变体：
// - geosite/geoip: RemoteSource（恰好一个 URL）
// - domain/ip/port/protocol: InlineSource（零个或多个字面量）
// - ip_is_private: 无来源（nil）
type RuleSource interface {
	ruleSource()
}

type RemoteSource struct {
	URL string `json:"url"`
}

type InlineSource struct {
	Entries []string `json:"entries"`
}

func (RemoteSource) ruleSource() {}
func (InlineSource) ruleSource() {}

// SourceEntries 返回内联条目；非 InlineSource 返回 nil
func SourceEntries(src RuleSource) []string {
	if inline, ok := src.(InlineSource); ok {
		return inline.Entries
	}
	return nil
}

// SourceURL 返回远程 URL；非 RemoteSource 返回空串
func SourceURL(src RuleSource) string {
	if remote, ok := src.(RemoteSource); ok {
		return remote.URL
	}
	return ""
}

// DecodeRuleSource 按规则集类型解析来源 JSON
func DecodeRuleSource(t RuleSetType, raw json.RawMessage) (RuleSource, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if t.Remote() {
		var src RemoteSource
		if err := json.Unmarshal(raw, &src); err != nil {
			return nil, err
		}
		return src, nil
	}
	// ip_is_private 也按内联解析，交给校验逻辑拒绝非空条目
	var src InlineSource
	if err := json.Unmarshal(raw, &src); err != nil {
		return nil, err
	}
	return src, nil
}

func (r RuleSet) MarshalJSON() ([]byte, error) {
	type alias RuleSet
	return json.Marshal(struct {
		alias
		Source RuleSource `json:"source,omitempty"`
	}{alias: alias(r), Source: r.Source})
}

func (r *RuleSet) UnmarshalJSON(data []byte) error {
	type alias RuleSet
	aux := struct {
		*alias
		Source json.RawMessage `json:"source"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	src, err := DecodeRuleSource(r.Type, aux.Source)
	if err != nil {
		return fmt.Errorf("rule set %s source: %w", r.ID, err)
	}
	r.Source = src
	return nil
}

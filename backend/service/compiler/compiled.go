package compiler

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"

	"lattice/backend/domain"
)

// CompiledGroup 启用节点组的解析结果
type CompiledGroup struct {
	ID        string               `json:"id" yaml:"id"`
	Tag       string               `json:"tag" yaml:"tag"`
	Name      string               `json:"name" yaml:"name"`
	Mode      domain.NodeGroupMode `json:"mode" yaml:"mode"`
	Members   []string             `json:"members" yaml:"members"`
	Preferred string               `json:"preferred,omitempty" yaml:"preferred,omitempty"`
}

// CompiledRule 启用且出站校验通过的规则集
type CompiledRule struct {
	ID       string             `json:"id" yaml:"id"`
	Name     string             `json:"name" yaml:"name"`
	Category string             `json:"category" yaml:"category"`
	Type     domain.RuleSetType `json:"type" yaml:"type"`
	Outbound string             `json:"outbound" yaml:"outbound"`
	URL      string             `json:"url,omitempty" yaml:"url,omitempty"`
	Entries  []string           `json:"entries,omitempty" yaml:"entries,omitempty"`
}

// CompiledConfig 不可变的编译快照；下游整体比较/替换，不做原地修改。
// 相同输入产生字节级相同的结果（不含时间戳、不依赖 map 遍历顺序）。
type CompiledConfig struct {
	Groups      []CompiledGroup    `json:"groups" yaml:"groups"`
	Rules       []CompiledRule     `json:"rules" yaml:"rules"`
	DNS         CompiledDNS        `json:"dns" yaml:"dns"`
	InboundMode domain.InboundMode `json:"inboundMode" yaml:"inboundMode"`
	Warnings    []Warning          `json:"warnings" yaml:"warnings"`
	Fingerprint string             `json:"fingerprint" yaml:"fingerprint"`
}

// computeFingerprint 对除 Fingerprint 外的全部字段做 sha256
func (c CompiledConfig) computeFingerprint() string {
	c.Fingerprint = ""
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Group 按 tag 查找节点组
func (c *CompiledConfig) Group(tag string) (CompiledGroup, bool) {
	if c == nil {
		return CompiledGroup{}, false
	}
	for _, g := range c.Groups {
		if g.Tag == tag {
			return g, true
		}
	}
	return CompiledGroup{}, false
}

// Explain 返回用于排障/提示的可读摘要（不包含来源条目等细节）
func (c *CompiledConfig) Explain() string {
	if c == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString("inboundMode=")
	b.WriteString(string(c.InboundMode))
	b.WriteString("\ngroups=")
	b.WriteString(strconv.Itoa(len(c.Groups)))
	empty := 0
	for _, g := range c.Groups {
		if len(g.Members) == 0 {
			empty++
		}
	}
	if empty > 0 {
		b.WriteString(" (empty=")
		b.WriteString(strconv.Itoa(empty))
		b.WriteString(")")
	}
	b.WriteString("\nrules=")
	b.WriteString(strconv.Itoa(len(c.Rules)))
	b.WriteString("\ndns=")
	b.WriteString(string(c.DNS.Domestic.Transport) + "://" + c.DNS.Domestic.Address)
	b.WriteString(",")
	b.WriteString(string(c.DNS.Foreign.Transport) + "://" + c.DNS.Foreign.Address)
	if c.DNS.ClientSubnet != "" {
		b.WriteString("\necs=")
		b.WriteString(c.DNS.ClientSubnet)
	}
	if len(c.Warnings) > 0 {
		b.WriteString("\nwarnings=")
		b.WriteString(strconv.Itoa(len(c.Warnings)))
	}
	if c.Fingerprint != "" {
		b.WriteString("\nfingerprint=")
		b.WriteString(c.Fingerprint[:min(12, len(c.Fingerprint))])
	}
	return b.String()
}

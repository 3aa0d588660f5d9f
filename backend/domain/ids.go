package domain

import (
	"strings"

	"github.com/google/uuid"
)

// StableRuleSetID 基于语义分类与类型生成稳定的规则集 ID。
// 用于预设导入：同一预设重复导入时命中同一 ID，而不是产生新记录。
func StableRuleSetID(category string, t RuleSetType) string {
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" {
		return ""
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("ruleset|"+string(t)+"|"+category)).String()
}

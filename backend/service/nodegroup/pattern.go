package nodegroup

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"lattice/backend/service/shared"
)

// PatternSet 预编译的 include/exclude 正则
type PatternSet struct {
	include []*regexp.Regexp
	exclude []*regexp.Regexp
}

// CompilePatterns 编译节点组的匹配规则。匹配不区分大小写。
// 任一正则非法都会在返回的 ValidationError 中列出（不会被静默忽略）。
func CompilePatterns(include, exclude []string) (PatternSet, error) {
	var problems shared.Problems
	set := PatternSet{
		include: compileList("include", include, &problems),
		exclude: compileList("exclude", exclude, &problems),
	}
	if err := problems.Validation(); err != nil {
		return PatternSet{}, err
	}
	return set, nil
}

func compileList(kind string, patterns []string, problems *shared.Problems) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			problems.Addf("%s pattern #%d %q: %v", kind, i+1, p, err)
			continue
		}
		out = append(out, re)
	}
	return out
}

// Match 判断节点显示名是否属于该组：
// include 为空时默认满足，否则需命中任一 include；命中任一 exclude 时一律拒绝。
func (s PatternSet) Match(name string) bool {
	name = DecodeName(name)
	if anyMatch(s.exclude, name) {
		return false
	}
	return len(s.include) == 0 || anyMatch(s.include, name)
}

// Excluded 仅检查 exclude（手动成员不需要命中 include）
func (s PatternSet) Excluded(name string) bool {
	return anyMatch(s.exclude, DecodeName(name))
}

func anyMatch(list []*regexp.Regexp, name string) bool {
	for _, re := range list {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// Matches 一次性匹配（内部编译正则）
func Matches(name string, include, exclude []string) (bool, error) {
	set, err := CompilePatterns(include, exclude)
	if err != nil {
		return false, err
	}
	return set.Match(name), nil
}

// DecodeName 节点名可能经过 URL 编码（订阅链接中的 #fragment），解码失败时使用原始字符串
func DecodeName(raw string) string {
	if !strings.Contains(raw, "%") {
		return raw
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ValidatePatterns 保存节点组前校验正则
func ValidatePatterns(include, exclude []string) error {
	if _, err := CompilePatterns(include, exclude); err != nil {
		return fmt.Errorf("node group patterns: %w", err)
	}
	return nil
}

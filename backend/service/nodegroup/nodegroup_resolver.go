package nodegroup

import (
	"fmt"
	"sort"

	"lattice/backend/domain"
)

// Resolution 节点组的派生成员（纯计算结果，不落盘）
type Resolution struct {
	GroupID   string               `json:"groupId"`
	Tag       string               `json:"tag"`
	Mode      domain.NodeGroupMode `json:"mode"`
	Members   []string             `json:"members"`
	Preferred string               `json:"preferred,omitempty"` // 仅 urltest
}

// Empty 组当前没有任何成员
func (r Resolution) Empty() bool { return len(r.Members) == 0 }

// Resolve 计算节点组成员。
//   - 候选：名称通过 include/exclude 匹配的节点，加上手动成员（手动成员同样受 exclude 约束）。
//   - select：按 nodes 的输入顺序（NodeStore 插入顺序）输出。
//   - urltest：在线且延迟已知的按延迟升序，在线未知延迟其次，离线与未探测的最后；
//     同级保持输入顺序，Preferred 取第一个。
//
// 正则非法时返回 ValidationError。
func Resolve(group domain.NodeGroup, nodes []domain.Node) (Resolution, error) {
	patterns, err := CompilePatterns(group.IncludePatterns, group.ExcludePatterns)
	if err != nil {
		return Resolution{}, fmt.Errorf("node group %s: %w", group.Tag, err)
	}
	return ResolveWith(group, patterns, nodes)
}

// ResolveWith 使用已编译的正则解析（批量编译时避免重复编译）
func ResolveWith(group domain.NodeGroup, patterns PatternSet, nodes []domain.Node) (Resolution, error) {
	res := Resolution{
		GroupID: group.ID,
		Tag:     group.Tag,
		Mode:    group.Mode,
		Members: []string{},
	}

	isCandidate := candidateFunc(group, patterns)
	candidates := make([]domain.Node, 0, len(nodes))
	seen := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		if _, dup := seen[n.ID]; dup {
			continue
		}
		if isCandidate(n) {
			seen[n.ID] = struct{}{}
			candidates = append(candidates, n)
		}
	}

	switch group.Mode {
	case domain.NodeGroupModeSelect:
	case domain.NodeGroupModeURLTest:
		sortByHealth(candidates)
	default:
		return Resolution{}, fmt.Errorf("node group %s has invalid mode: %q", group.Tag, group.Mode)
	}

	for _, n := range candidates {
		res.Members = append(res.Members, n.ID)
	}
	if group.Mode == domain.NodeGroupModeURLTest && len(res.Members) > 0 {
		res.Preferred = res.Members[0]
	}
	return res, nil
}

// Candidates 返回组的候选节点 ID 集合（不排序）；HealthAggregator 用它判断受影响的组
func Candidates(group domain.NodeGroup, patterns PatternSet, nodes []domain.Node) map[string]struct{} {
	isCandidate := candidateFunc(group, patterns)
	out := make(map[string]struct{})
	for _, n := range nodes {
		if isCandidate(n) {
			out[n.ID] = struct{}{}
		}
	}
	return out
}

func candidateFunc(group domain.NodeGroup, patterns PatternSet) func(domain.Node) bool {
	manual := make(map[string]struct{}, len(group.NodeIDs))
	for _, id := range group.NodeIDs {
		manual[id] = struct{}{}
	}
	return func(n domain.Node) bool {
		if patterns.Match(n.Name) {
			return true
		}
		_, isManual := manual[n.ID]
		return isManual && !patterns.Excluded(n.Name)
	}
}

// healthRank 0: 在线且延迟已知；1: 在线但延迟未知；2: 离线或从未探测
func healthRank(n domain.Node) int {
	if !n.Health.Online() {
		return 2
	}
	if _, ok := n.Health.Latency(); !ok {
		return 1
	}
	return 0
}

func sortByHealth(nodes []domain.Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		ri, rj := healthRank(nodes[i]), healthRank(nodes[j])
		if ri != rj {
			return ri < rj
		}
		if ri != 0 {
			return false
		}
		li, _ := nodes[i].Health.Latency()
		lj, _ := nodes[j].Health.Latency()
		return li < lj
	})
}

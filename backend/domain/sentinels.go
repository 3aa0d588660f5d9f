package domain

// 内置出站（RuleSet.Outbound 的保留值），其余取值视为 NodeGroup tag
const (
	OutboundProxySelect = "proxy-select"
	OutboundDirect      = "direct"
	OutboundBlock       = "block"
)

// IsBuiltinOutbound 检查是否是内置出站
func IsBuiltinOutbound(outbound string) bool {
	switch outbound {
	case OutboundProxySelect, OutboundDirect, OutboundBlock:
		return true
	}
	return false
}

package domain

import (
	"time"
)

type NodeProtocol string

const (
	ProtocolShadowsocks NodeProtocol = "shadowsocks"
	ProtocolVMess       NodeProtocol = "vmess"
	ProtocolTrojan      NodeProtocol = "trojan"
	ProtocolNaive       NodeProtocol = "naive"
	ProtocolHysteria    NodeProtocol = "hysteria"
	ProtocolHysteria2   NodeProtocol = "hysteria2"
	ProtocolShadowTLS   NodeProtocol = "shadowtls"
	ProtocolTun         NodeProtocol = "tun"
	ProtocolRedirect    NodeProtocol = "redirect"
	ProtocolTProxy      NodeProtocol = "tproxy"
	ProtocolSocks       NodeProtocol = "socks"
	ProtocolHTTP        NodeProtocol = "http"
)

// Protocols 按声明顺序列出全部协议类型
var Protocols = []NodeProtocol{
	ProtocolShadowsocks, ProtocolVMess, ProtocolTrojan, ProtocolNaive,
	ProtocolHysteria, ProtocolHysteria2, ProtocolShadowTLS, ProtocolTun,
	ProtocolRedirect, ProtocolTProxy, ProtocolSocks, ProtocolHTTP,
}

func (p NodeProtocol) Valid() bool {
	for _, known := range Protocols {
		if p == known {
			return true
		}
	}
	return false
}

// Node 出站节点
// - Params 为协议相关参数（和类型），由 Protocol 决定具体变体。
// - Health 只允许 HealthAggregator 写入；操作员的编辑不会覆盖它。
type Node struct {
	ID        string         `json:"id"`
	Name      string         `json:"name" validate:"required"`
	Protocol  NodeProtocol   `json:"protocol" validate:"required"`
	Address   string         `json:"address"`
	Port      int            `json:"port" validate:"gte=0,lte=65535"`
	Params    ProtocolParams `json:"-"`
	Health    HealthSample   `json:"health"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

type HealthStatus string

const (
	HealthUnknown HealthStatus = ""
	HealthOnline  HealthStatus = "online"
	HealthOffline HealthStatus = "offline"
)

// HealthSample 节点最近一次探测结果
type HealthSample struct {
	Status    HealthStatus `json:"status,omitempty"`
	LatencyMS *int64       `json:"latencyMs,omitempty"` // nil 表示 unknown
	CheckedAt time.Time    `json:"checkedAt"`
}

// Latency 返回延迟（毫秒）以及是否已知
func (h HealthSample) Latency() (int64, bool) {
	if h.LatencyMS == nil {
		return 0, false
	}
	return *h.LatencyMS, true
}

func (h HealthSample) Online() bool { return h.Status == HealthOnline }

// Equal 比较两个样本的取值（不比较指针本身）
func (h HealthSample) Equal(other HealthSample) bool {
	if h.Status != other.Status || !h.CheckedAt.Equal(other.CheckedAt) {
		return false
	}
	a, aok := h.Latency()
	b, bok := other.Latency()
	return aok == bok && a == b
}

// LatencyPtr 便于构造 HealthSample
func LatencyPtr(ms int64) *int64 { return &ms }

type NodeGroupMode string

const (
	NodeGroupModeSelect  NodeGroupMode = "select"
	NodeGroupModeURLTest NodeGroupMode = "urltest"
)

// NodeGroup 节点组（以 Tag 作为路由目标）
// 成员由 IncludePatterns/ExcludePatterns 与 NodeIDs 推导，派生结果不落盘。
type NodeGroup struct {
	ID              string        `json:"id"`
	Tag             string        `json:"tag" validate:"required"`
	Name            string        `json:"name" validate:"required"`
	Mode            NodeGroupMode `json:"mode" validate:"required,oneof=select urltest"`
	IncludePatterns []string      `json:"includePatterns,omitempty"`
	ExcludePatterns []string      `json:"excludePatterns,omitempty"`
	NodeIDs         []string      `json:"nodeIds,omitempty"` // 手动成员
	Active          bool          `json:"active"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

type RuleSetType string

const (
	RuleSetGeoSite     RuleSetType = "geosite"
	RuleSetGeoIP       RuleSetType = "geoip"
	RuleSetDomain      RuleSetType = "domain"
	RuleSetIP          RuleSetType = "ip"
	RuleSetPort        RuleSetType = "port"
	RuleSetProtocol    RuleSetType = "protocol"
	RuleSetIPIsPrivate RuleSetType = "ip_is_private"
)

func (t RuleSetType) Valid() bool {
	switch t {
	case RuleSetGeoSite, RuleSetGeoIP, RuleSetDomain, RuleSetIP, RuleSetPort, RuleSetProtocol, RuleSetIPIsPrivate:
		return true
	}
	return false
}

// Remote 远程规则集（geosite/geoip）只接受一个 URL
func (t RuleSetType) Remote() bool {
	return t == RuleSetGeoSite || t == RuleSetGeoIP
}

// RuleSet 流量分类规则，绑定到一个出站
type RuleSet struct {
	ID               string      `json:"id"`
	Name             string      `json:"name" validate:"required"`
	Type             RuleSetType `json:"type" validate:"required"`
	Outbound         string      `json:"outbound" validate:"required"`
	Enabled          bool        `json:"enabled"`
	Source           RuleSource  `json:"-"`
	LastRefreshedAt  *time.Time  `json:"lastRefreshedAt,omitempty"`
	LastRefreshError string      `json:"lastRefreshError,omitempty"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

type DNSTransport string

const (
	DNSTransportUDP DNSTransport = "udp"
	DNSTransportTCP DNSTransport = "tcp"
	DNSTransportDoH DNSTransport = "doh"
)

// DNSUpstream 上游 DNS 描述
type DNSUpstream struct {
	Address   string       `json:"address"`
	Transport DNSTransport `json:"transport"`
}

// DNSSettings DNS 配置（国内/国外上游 + 可选 ECS）
type DNSSettings struct {
	Domestic     DNSUpstream `json:"domestic"`
	Foreign      DNSUpstream `json:"foreign"`
	ClientSubnet string      `json:"clientSubnet,omitempty"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// InboundMode 入站模式
type InboundMode string

const (
	InboundMixed    InboundMode = "mixed"
	InboundSOCKS    InboundMode = "socks"
	InboundHTTP     InboundMode = "http"
	InboundTUN      InboundMode = "tun"
	InboundRedirect InboundMode = "redirect"
	InboundTProxy   InboundMode = "tproxy"
)

func (m InboundMode) Valid() bool {
	switch m {
	case InboundMixed, InboundSOCKS, InboundHTTP, InboundTUN, InboundRedirect, InboundTProxy:
		return true
	}
	return false
}

// ServiceState 全量状态（持久化与编译快照共用）
type ServiceState struct {
	SchemaVersion string `json:"schemaVersion,omitempty"`

	Nodes       []Node      `json:"nodes"`
	NodeGroups  []NodeGroup `json:"nodeGroups"`
	RuleSets    []RuleSet   `json:"ruleSets"`
	DNS         DNSSettings `json:"dns"`
	InboundMode InboundMode `json:"inboundMode"`

	GeneratedAt time.Time `json:"generatedAt"`
}

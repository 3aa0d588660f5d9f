package nodes

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"lattice/backend/domain"
	"lattice/backend/repository"
)

// ErrInvalidShareLink 无法识别的分享链接
var ErrInvalidShareLink = fmt.Errorf("invalid share link: %w", repository.ErrInvalidData)

var shareLinkSchemes = []string{"vmess://", "trojan://", "ss://", "hysteria2://", "hy2://"}

// ParseShareLink 解析单条分享链接为节点（尚未分配 ID）
func ParseShareLink(link string) (domain.Node, error) {
	link = strings.TrimSpace(link)
	var (
		node domain.Node
		err  error
	)
	switch {
	case strings.HasPrefix(link, "vmess://"):
		node, err = parseVMess(link)
	case strings.HasPrefix(link, "trojan://"):
		node, err = parseTrojan(link)
	case strings.HasPrefix(link, "ss://"):
		node, err = parseShadowsocks(link)
	case strings.HasPrefix(link, "hysteria2://"), strings.HasPrefix(link, "hy2://"):
		node, err = parseHysteria2(link)
	default:
		return domain.Node{}, ErrInvalidShareLink
	}
	if err != nil {
		return domain.Node{}, fmt.Errorf("%w: %v", ErrInvalidShareLink, err)
	}
	if node.Name == "" {
		node.Name = node.Address
	}
	return node, nil
}

// ParseShareLinks 解析多行分享链接，支持整体 base64 编码的订阅内容。
// 单条失败不影响其余链接，错误按出现顺序返回。
func ParseShareLinks(text string) ([]domain.Node, []error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	cleaned := strings.NewReplacer("\r", "", "\n", "").Replace(text)
	if decoded, err := decodeBase64Flexible(cleaned); err == nil && containsShareLink(string(decoded)) {
		text = string(decoded)
	}

	var (
		nodes []domain.Node
		errs  []error
	)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || !isShareLink(line) {
			continue
		}
		node, err := ParseShareLink(line)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if isSubscriptionNotice(node) {
			continue
		}
		nodes = append(nodes, node)
	}
	return nodes, errs
}

func parseVMess(link string) (domain.Node, error) {
	decoded, err := decodeBase64Flexible(strings.TrimPrefix(link, "vmess://"))
	if err != nil {
		return domain.Node{}, errors.New("invalid vmess base64")
	}

	// 端口与 aid 在不同客户端里可能是字符串或数字
	var cfg struct {
		PS   string          `json:"ps"`
		Add  string          `json:"add"`
		Port json.RawMessage `json:"port"`
		ID   string          `json:"id"`
		Aid  json.RawMessage `json:"aid"`
		Scy  string          `json:"scy"`
		Net  string          `json:"net"`
		Host string          `json:"host"`
		Path string          `json:"path"`
		TLS  string          `json:"tls"`
		SNI  string          `json:"sni"`
	}
	if err := json.Unmarshal(decoded, &cfg); err != nil {
		return domain.Node{}, fmt.Errorf("invalid vmess json: %v", err)
	}

	port := flexibleInt(cfg.Port)
	if port == 0 {
		port = 443
	}
	params := domain.VMessParams{
		UUID:     cfg.ID,
		AlterID:  flexibleInt(cfg.Aid),
		Security: cfg.Scy,
		Network:  cfg.Net,
		TLS:      cfg.TLS == "tls",
	}
	if params.Security == "" {
		params.Security = "auto"
	}
	if params.Network == "" {
		params.Network = "tcp"
	}
	if params.TLS {
		params.ServerName = cfg.SNI
		if params.ServerName == "" {
			params.ServerName = cfg.Host
		}
	}
	params.Extra = transportExtras(cfg.Host, cfg.Path)

	return domain.Node{
		Name:     cfg.PS,
		Protocol: domain.ProtocolVMess,
		Address:  cfg.Add,
		Port:     port,
		Params:   params,
	}, nil
}

func parseTrojan(link string) (domain.Node, error) {
	u, err := url.Parse(link)
	if err != nil {
		return domain.Node{}, err
	}
	q := u.Query()
	insecure := q.Get("allowInsecure") == "1" || q.Get("insecure") == "1"
	params := domain.TrojanParams{
		Password:   u.User.Username(),
		ServerName: q.Get("sni"),
		Insecure:   insecure,
	}
	if params.Password == "" {
		return domain.Node{}, errors.New("missing trojan password")
	}
	params.Extra = transportExtras(q.Get("host"), q.Get("path"))

	return domain.Node{
		Name:     u.Fragment,
		Protocol: domain.ProtocolTrojan,
		Address:  u.Hostname(),
		Port:     portOrDefault(u.Port(), 443),
		Params:   params,
	}, nil
}

func parseHysteria2(link string) (domain.Node, error) {
	u, err := url.Parse(link)
	if err != nil {
		return domain.Node{}, err
	}
	q := u.Query()
	params := domain.Hysteria2Params{
		Password:     u.User.Username(),
		ObfsType:     q.Get("obfs"),
		ObfsPassword: q.Get("obfs-password"),
		ServerName:   q.Get("sni"),
	}
	if pass, ok := u.User.Password(); ok {
		params.Password += ":" + pass
	}

	return domain.Node{
		Name:     u.Fragment,
		Protocol: domain.ProtocolHysteria2,
		Address:  u.Hostname(),
		Port:     portOrDefault(u.Port(), 443),
		Params:   params,
	}, nil
}

// parseShadowsocks 只支持 SIP002：ss://userinfo@host:port/?plugin=...#name，
// userinfo 为 base64(method:password) 或百分号编码的明文。
func parseShadowsocks(link string) (domain.Node, error) {
	body := strings.TrimPrefix(link, "ss://")

	var name string
	if idx := strings.LastIndex(body, "#"); idx != -1 {
		name, _ = url.QueryUnescape(body[idx+1:])
		body = body[:idx]
	}

	userinfo, rest, ok := strings.Cut(body, "@")
	if !ok {
		return domain.Node{}, errors.New("unsupported ss link format")
	}
	var creds string
	if decoded, err := decodeBase64Flexible(userinfo); err == nil && strings.Contains(string(decoded), ":") {
		creds = string(decoded)
	} else if unescaped, err := url.PathUnescape(userinfo); err == nil {
		creds = unescaped
	}
	method, password, ok := strings.Cut(creds, ":")
	if !ok || method == "" {
		return domain.Node{}, errors.New("invalid ss userinfo")
	}

	var query string
	if before, after, found := strings.Cut(rest, "?"); found {
		rest, query = before, after
	}
	rest = strings.TrimSuffix(rest, "/")
	if idx := strings.Index(rest, "/"); idx != -1 {
		rest = rest[:idx]
	}
	host, portStr, err := net.SplitHostPort(rest)
	if err != nil {
		return domain.Node{}, fmt.Errorf("invalid host:port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return domain.Node{}, fmt.Errorf("invalid port: %s", portStr)
	}

	params := domain.ShadowsocksParams{Method: method, Password: password}
	if query != "" {
		// plugin 选项常以未编码的 ';' 分隔，ParseQuery 会拒绝
		values, _ := url.ParseQuery(strings.ReplaceAll(query, ";", "%3B"))
		if plugin := values.Get("plugin"); plugin != "" {
			pluginName, pluginOpts, _ := strings.Cut(plugin, ";")
			params.Plugin, params.PluginOpts = normalizePlugin(pluginName, pluginOpts)
		}
	}

	return domain.Node{
		Name:     name,
		Protocol: domain.ProtocolShadowsocks,
		Address:  host,
		Port:     port,
		Params:   params,
	}, nil
}

// normalizePlugin 把 Clash 风格的 obfs 插件名与选项统一为 obfs-local 形式
func normalizePlugin(plugin, opts string) (string, string) {
	plugin = strings.TrimSpace(plugin)
	opts = strings.TrimSpace(opts)
	if !strings.EqualFold(plugin, "obfs") && !strings.EqualFold(plugin, "obfs-local") {
		return plugin, opts
	}

	kv := make(map[string]string)
	for _, part := range strings.Split(opts, ";") {
		k, v, _ := strings.Cut(part, "=")
		if k = strings.TrimSpace(k); k != "" {
			kv[k] = strings.TrimSpace(v)
		}
	}
	var parts []string
	for _, key := range [][2]string{{"obfs", "mode"}, {"obfs-host", "host"}, {"obfs-uri", "path"}} {
		v := kv[key[0]]
		if v == "" {
			v = kv[key[1]]
		}
		if v != "" {
			parts = append(parts, key[0]+"="+v)
		}
	}
	if len(parts) == 0 {
		return "obfs-local", opts
	}
	return "obfs-local", strings.Join(parts, ";")
}

func transportExtras(host, path string) map[string]json.RawMessage {
	extra := make(map[string]json.RawMessage)
	if host != "" {
		extra["host"], _ = json.Marshal(host)
	}
	if path != "" {
		extra["path"], _ = json.Marshal(path)
	}
	if len(extra) == 0 {
		return nil
	}
	return extra
}

func flexibleInt(raw json.RawMessage) int {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	n, _ := strconv.Atoi(s)
	return n
}

func portOrDefault(s string, def int) int {
	if port, err := strconv.Atoi(s); err == nil && port > 0 {
		return port
	}
	return def
}

// decodeBase64Flexible 自动补齐 padding，依次尝试标准与 URL 编码
func decodeBase64Flexible(value string) ([]byte, error) {
	value = strings.TrimRight(strings.TrimSpace(value), "=")
	if data, err := base64.RawStdEncoding.DecodeString(value); err == nil {
		return data, nil
	}
	return base64.RawURLEncoding.DecodeString(value)
}

func isShareLink(line string) bool {
	for _, scheme := range shareLinkSchemes {
		if strings.HasPrefix(line, scheme) {
			return true
		}
	}
	return false
}

func containsShareLink(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		if isShareLink(strings.TrimSpace(line)) {
			return true
		}
	}
	return false
}

var noticeKeywords = []string{
	"剩余", "流量", "到期", "过期", "有效期", "官网",
	"traffic", "expire", "expired", "upgrade", "version",
}

// isSubscriptionNotice 订阅里的“提示节点”指向本地回环，名称是流量/到期说明
func isSubscriptionNotice(node domain.Node) bool {
	addr := strings.ToLower(node.Address)
	if addr != "127.0.0.1" && addr != "localhost" && addr != "0.0.0.0" {
		return false
	}
	name := strings.ToLower(node.Name)
	for _, kw := range noticeKeywords {
		if strings.Contains(name, kw) {
			return true
		}
	}
	return false
}

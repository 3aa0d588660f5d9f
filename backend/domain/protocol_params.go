package domain

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// ProtocolParams 协议相关参数（和类型）。
// 每个协议对应一个变体；未识别的字段保存在 Extension.Extra 中，序列化时原样写回。
type ProtocolParams interface {
	Protocol() NodeProtocol
	extras() map[string]json.RawMessage
}

// Extension 保存未识别字段
type Extension struct {
	Extra map[string]json.RawMessage `json:"-"`
}

func (e Extension) extras() map[string]json.RawMessage { return e.Extra }

type ShadowsocksParams struct {
	Method     string `json:"method,omitempty"`
	Password   string `json:"password,omitempty"`
	Plugin     string `json:"plugin,omitempty"`
	PluginOpts string `json:"pluginOpts,omitempty"`
	Extension
}

type VMessParams struct {
	UUID       string `json:"uuid,omitempty"`
	AlterID    int    `json:"alterId,omitempty"`
	Security   string `json:"security,omitempty"`
	Network    string `json:"network,omitempty"`
	TLS        bool   `json:"tls,omitempty"`
	ServerName string `json:"serverName,omitempty"`
	Extension
}

type TrojanParams struct {
	Password   string `json:"password,omitempty"`
	ServerName string `json:"serverName,omitempty"`
	Insecure   bool   `json:"insecure,omitempty"`
	Extension
}

type NaiveParams struct {
	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"`
	ServerName string `json:"serverName,omitempty"`
	Extension
}

type HysteriaParams struct {
	AuthStr    string `json:"authStr,omitempty"`
	UpMbps     int    `json:"upMbps,omitempty"`
	DownMbps   int    `json:"downMbps,omitempty"`
	Obfs       string `json:"obfs,omitempty"`
	ServerName string `json:"serverName,omitempty"`
	Extension
}

type Hysteria2Params struct {
	Password     string `json:"password,omitempty"`
	ObfsType     string `json:"obfsType,omitempty"`
	ObfsPassword string `json:"obfsPassword,omitempty"`
	ServerName   string `json:"serverName,omitempty"`
	Extension
}

type ShadowTLSParams struct {
	Version    int    `json:"version,omitempty"`
	Password   string `json:"password,omitempty"`
	ServerName string `json:"serverName,omitempty"`
	Extension
}

type TunParams struct {
	InterfaceName string `json:"interfaceName,omitempty"`
	MTU           int    `json:"mtu,omitempty"`
	Stack         string `json:"stack,omitempty"` // system, gvisor, mixed
	AutoRoute     bool   `json:"autoRoute,omitempty"`
	Extension
}

type RedirectParams struct {
	Extension
}

type TProxyParams struct {
	Network string `json:"network,omitempty"`
	Extension
}

type SocksParams struct {
	Version  string `json:"version,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Extension
}

type HTTPParams struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	TLS      bool   `json:"tls,omitempty"`
	Extension
}

func (ShadowsocksParams) Protocol() NodeProtocol { return ProtocolShadowsocks }
func (VMessParams) Protocol() NodeProtocol       { return ProtocolVMess }
func (TrojanParams) Protocol() NodeProtocol      { return ProtocolTrojan }
func (NaiveParams) Protocol() NodeProtocol       { return ProtocolNaive }
func (HysteriaParams) Protocol() NodeProtocol    { return ProtocolHysteria }
func (Hysteria2Params) Protocol() NodeProtocol   { return ProtocolHysteria2 }
func (ShadowTLSParams) Protocol() NodeProtocol   { return ProtocolShadowTLS }
func (TunParams) Protocol() NodeProtocol         { return ProtocolTun }
func (RedirectParams) Protocol() NodeProtocol    { return ProtocolRedirect }
func (TProxyParams) Protocol() NodeProtocol      { return ProtocolTProxy }
func (SocksParams) Protocol() NodeProtocol       { return ProtocolSocks }
func (HTTPParams) Protocol() NodeProtocol        { return ProtocolHTTP }

// DecodeParams 按协议类型解析参数 JSON
func DecodeParams(protocol NodeProtocol, raw json.RawMessage) (ProtocolParams, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	switch protocol {
	case ProtocolShadowsocks:
		var p ShadowsocksParams
		err := decodeVariant(raw, &p, &p.Extension)
		return p, err
	case ProtocolVMess:
		var p VMessParams
		err := decodeVariant(raw, &p, &p.Extension)
		return p, err
	case ProtocolTrojan:
		var p TrojanParams
		err := decodeVariant(raw, &p, &p.Extension)
		return p, err
	case ProtocolNaive:
		var p NaiveParams
		err := decodeVariant(raw, &p, &p.Extension)
		return p, err
	case ProtocolHysteria:
		var p HysteriaParams
		err := decodeVariant(raw, &p, &p.Extension)
		return p, err
	case ProtocolHysteria2:
		var p Hysteria2Params
		err := decodeVariant(raw, &p, &p.Extension)
		return p, err
	case ProtocolShadowTLS:
		var p ShadowTLSParams
		err := decodeVariant(raw, &p, &p.Extension)
		return p, err
	case ProtocolTun:
		var p TunParams
		err := decodeVariant(raw, &p, &p.Extension)
		return p, err
	case ProtocolRedirect:
		var p RedirectParams
		err := decodeVariant(raw, &p, &p.Extension)
		return p, err
	case ProtocolTProxy:
		var p TProxyParams
		err := decodeVariant(raw, &p, &p.Extension)
		return p, err
	case ProtocolSocks:
		var p SocksParams
		err := decodeVariant(raw, &p, &p.Extension)
		return p, err
	case ProtocolHTTP:
		var p HTTPParams
		err := decodeVariant(raw, &p, &p.Extension)
		return p, err
	default:
		return nil, fmt.Errorf("unknown protocol: %q", protocol)
	}
}

// EncodeParams 序列化参数（合并未识别字段，map 键有序保证输出稳定）
func EncodeParams(p ProtocolParams) (json.RawMessage, error) {
	if p == nil {
		return nil, nil
	}
	known, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	extra := p.extras()
	if len(extra) == 0 {
		return known, nil
	}
	merged := make(map[string]json.RawMessage, len(extra)+4)
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, ok := merged[k]; ok {
			continue
		}
		merged[k] = v
	}
	return json.Marshal(merged)
}

// CloneParams 深拷贝参数，Extra 不与原值共享
func CloneParams(p ProtocolParams) ProtocolParams {
	if p == nil || len(p.extras()) == 0 {
		return p
	}
	v := reflect.New(reflect.TypeOf(p)).Elem()
	v.Set(reflect.ValueOf(p))
	if v.Kind() != reflect.Struct {
		return p
	}
	extra := make(map[string]json.RawMessage, len(p.extras()))
	for k, raw := range p.extras() {
		extra[k] = append(json.RawMessage(nil), raw...)
	}
	v.FieldByName("Extension").FieldByName("Extra").Set(reflect.ValueOf(extra))
	return v.Interface().(ProtocolParams)
}

func decodeVariant(raw json.RawMessage, target any, ext *Extension) error {
	if err := json.Unmarshal(raw, target); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(raw, &all); err != nil {
		return err
	}
	// encoding/json 按字段名大小写不敏感匹配，已被字段接收的键不再进入 Extra
	known := knownKeys(reflect.TypeOf(target).Elem())
	for k, v := range all {
		if _, ok := known[strings.ToLower(k)]; ok {
			continue
		}
		if ext.Extra == nil {
			ext.Extra = make(map[string]json.RawMessage)
		}
		ext.Extra[k] = v
	}
	return nil
}

var knownKeysCache sync.Map // reflect.Type -> map[string]struct{}，键为小写

func knownKeys(t reflect.Type) map[string]struct{} {
	if cached, ok := knownKeysCache.Load(t); ok {
		return cached.(map[string]struct{})
	}
	keys := make(map[string]struct{}, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		keys[strings.ToLower(name)] = struct{}{}
	}
	knownKeysCache.Store(t, keys)
	return keys
}

func (n Node) MarshalJSON() ([]byte, error) {
	type alias Node
	params, err := EncodeParams(n.Params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		alias
		Params json.RawMessage `json:"params,omitempty"`
	}{alias: alias(n), Params: params})
}

func (n *Node) UnmarshalJSON(data []byte) error {
	type alias Node
	aux := struct {
		*alias
		Params json.RawMessage `json:"params"`
	}{alias: (*alias)(n)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	params, err := DecodeParams(n.Protocol, aux.Params)
	if err != nil {
		return fmt.Errorf("node %s params: %w", n.ID, err)
	}
	n.Params = params
	return nil
}

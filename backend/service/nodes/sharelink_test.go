package nodes

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"lattice/backend/domain"
	"lattice/backend/repository"
)

func TestParseShareLink_VMess(t *testing.T) {
	t.Parallel()

	payload := `{"v":"2","ps":"HK-01","add":"hk.example.com","port":"8443","id":"11111111-1111-1111-1111-111111111111","aid":0,"net":"ws","host":"cdn.example.com","path":"/ray","tls":"tls"}`
	node, err := ParseShareLink("vmess://" + base64.StdEncoding.EncodeToString([]byte(payload)))
	if err != nil {
		t.Fatalf("ParseShareLink() error: %v", err)
	}
	if node.Name != "HK-01" || node.Protocol != domain.ProtocolVMess || node.Address != "hk.example.com" || node.Port != 8443 {
		t.Fatalf("unexpected node: %+v", node)
	}
	params, ok := node.Params.(domain.VMessParams)
	if !ok {
		t.Fatalf("expected VMessParams, got %T", node.Params)
	}
	if params.UUID != "11111111-1111-1111-1111-111111111111" || params.Network != "ws" || !params.TLS || params.ServerName != "cdn.example.com" {
		t.Fatalf("unexpected params: %+v", params)
	}
	if string(params.Extra["path"]) != `"/ray"` {
		t.Fatalf("expected transport path kept as extra, got %v", params.Extra)
	}
}

func TestParseShareLink_TrojanAndHysteria2(t *testing.T) {
	t.Parallel()

	node, err := ParseShareLink("trojan://secret@sg.example.com?sni=sg.example.com&allowInsecure=1#SG-01")
	if err != nil {
		t.Fatalf("trojan: %v", err)
	}
	tp, ok := node.Params.(domain.TrojanParams)
	if !ok || tp.Password != "secret" || !tp.Insecure || node.Port != 443 || node.Name != "SG-01" {
		t.Fatalf("unexpected trojan node: %+v params %+v", node, node.Params)
	}

	node, err = ParseShareLink("hy2://pass@jp.example.com:8443/?obfs=salamander&obfs-password=x#JP-01")
	if err != nil {
		t.Fatalf("hysteria2: %v", err)
	}
	hp, ok := node.Params.(domain.Hysteria2Params)
	if !ok || hp.Password != "pass" || hp.ObfsType != "salamander" || node.Port != 8443 {
		t.Fatalf("unexpected hysteria2 node: %+v params %+v", node, node.Params)
	}
}

func TestParseShareLink_Shadowsocks(t *testing.T) {
	t.Parallel()

	userinfo := base64.RawURLEncoding.EncodeToString([]byte("aes-256-gcm:secret"))
	node, err := ParseShareLink("ss://" + userinfo + "@1.2.3.4:8388/?plugin=obfs;mode=http;host=example.com#US%2001")
	if err != nil {
		t.Fatalf("ParseShareLink() error: %v", err)
	}
	params, ok := node.Params.(domain.ShadowsocksParams)
	if !ok {
		t.Fatalf("expected ShadowsocksParams, got %T", node.Params)
	}
	if node.Name != "US 01" || node.Address != "1.2.3.4" || node.Port != 8388 {
		t.Fatalf("unexpected node: %+v", node)
	}
	if params.Method != "aes-256-gcm" || params.Password != "secret" {
		t.Fatalf("unexpected credentials: %+v", params)
	}
	if params.Plugin != "obfs-local" || params.PluginOpts != "obfs=http;obfs-host=example.com" {
		t.Fatalf("expected normalized obfs plugin, got %q %q", params.Plugin, params.PluginOpts)
	}

	if _, err := ParseShareLink("ss://" + userinfo + "@1.2.3.4"); !errors.Is(err, repository.ErrInvalidData) {
		t.Fatalf("expected ErrInvalidData for missing port, got %v", err)
	}
	if _, err := ParseShareLink("vless://x@example.com:443"); !errors.Is(err, ErrInvalidShareLink) {
		t.Fatalf("expected unsupported scheme rejected, got %v", err)
	}
}

func TestParseShareLinks_Base64SubscriptionSkipsNotices(t *testing.T) {
	t.Parallel()

	lines := strings.Join([]string{
		"trojan://secret@127.0.0.1:1080#剩余流量 10GB",
		"trojan://secret@hk.example.com:443#HK-01",
		"trojan://%zz@bad",
		"# comment",
	}, "\n")
	nodes, errs := ParseShareLinks(base64.StdEncoding.EncodeToString([]byte(lines)))
	if len(nodes) != 1 || nodes[0].Name != "HK-01" {
		t.Fatalf("expected only HK-01, got %+v", nodes)
	}
	if len(errs) != 1 {
		t.Fatalf("expected one parse error, got %v", errs)
	}
}

func TestService_ImportLinksSkipsDuplicates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, _ := newTestService()
	text := "trojan://secret@hk.example.com:443#HK-01\ntrojan://secret@sg.example.com:443#SG-01\n"

	first, err := svc.ImportLinks(ctx, text)
	if err != nil {
		t.Fatalf("ImportLinks() error: %v", err)
	}
	if len(first.Created) != 2 || first.Skipped != 0 || len(first.Errors) != 0 {
		t.Fatalf("unexpected first import: %+v", first)
	}

	second, err := svc.ImportLinks(ctx, text+"trojan://secret@jp.example.com:443#JP-01\n")
	if err != nil {
		t.Fatalf("ImportLinks() error: %v", err)
	}
	if len(second.Created) != 1 || second.Skipped != 2 {
		t.Fatalf("expected duplicates skipped, got %+v", second)
	}

	if _, err := svc.ImportLinks(ctx, "nothing here"); !errors.Is(err, repository.ErrInvalidData) {
		t.Fatalf("expected ErrInvalidData for empty import, got %v", err)
	}
}

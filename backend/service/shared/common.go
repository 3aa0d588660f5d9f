package shared

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// 常量定义
const (
	MaxDownloadSize        = 50 << 20 // 50 MiB
	DefaultDownloadTimeout = 2 * time.Minute
	DefaultCompileDebounce = 300 * time.Millisecond
)

// NewHTTPClient 创建下载用 HTTP 客户端。
// socksAddr 非空时所有连接经由该 SOCKS5 代理（host:port），否则直连（忽略环境变量代理）。
func NewHTTPClient(timeout time.Duration, socksAddr string) (*http.Client, error) {
	if timeout <= 0 {
		timeout = DefaultDownloadTimeout
	}
	tr := &http.Transport{
		DialContext:         (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		ForceAttemptHTTP2:   true,
		TLSHandshakeTimeout: 30 * time.Second,
	}
	if socksAddr = strings.TrimSpace(socksAddr); socksAddr != "" {
		dialer, err := proxy.SOCKS5("tcp", socksAddr, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("创建 SOCKS5 dialer 失败: %w", err)
		}
		tr.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			if cd, ok := dialer.(proxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, addr)
			}
			return dialer.Dial(network, addr)
		}
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: tr,
	}, nil
}

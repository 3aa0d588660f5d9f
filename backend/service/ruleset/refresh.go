package ruleset

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"

	"lattice/backend/service/shared"
)

// Fetcher 拉取远程规则集来源（geosite/geoip）
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResult, error)
}

// FetchResult 拉取结果摘要
type FetchResult struct {
	Size     int64
	Checksum string
}

// HTTPFetcher 通过 HTTP GET 拉取来源，只校验可达性与大小，不解析内容
type HTTPFetcher struct {
	Client   *http.Client
	MaxBytes int64
}

func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	return &HTTPFetcher{Client: client, MaxBytes: shared.MaxDownloadSize}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (FetchResult, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return FetchResult{}, err
	}
	req.Header.Set("User-Agent", "lattice-ruleset-refresh")

	resp, err := client.Do(req)
	if err != nil {
		return FetchResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return FetchResult{}, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	limit := f.MaxBytes
	if limit <= 0 {
		limit = shared.MaxDownloadSize
	}
	h := sha256.New()
	n, err := io.Copy(h, io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return FetchResult{}, err
	}
	if n > limit {
		return FetchResult{}, fmt.Errorf("source exceeds %d bytes", limit)
	}
	if n == 0 {
		return FetchResult{}, errors.New("empty source")
	}
	return FetchResult{Size: n, Checksum: hex.EncodeToString(h.Sum(nil))}, nil
}

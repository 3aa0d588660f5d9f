package publish

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"lattice/backend/domain"
	"lattice/backend/service/compiler"
)

func sampleConfig() *compiler.CompiledConfig {
	return &compiler.CompiledConfig{
		Groups: []compiler.CompiledGroup{
			{ID: "g1", Tag: "hk", Name: "HK", Mode: domain.NodeGroupModeURLTest, Members: []string{"n2", "n1"}, Preferred: "n2"},
		},
		Rules: []compiler.CompiledRule{
			{ID: "r1", Name: "geosite:netflix", Category: "Netflix", Type: domain.RuleSetGeoSite, Outbound: "hk", URL: "https://example.com/a.srs"},
		},
		InboundMode: domain.InboundMixed,
		Warnings:    []compiler.Warning{},
		Fingerprint: "abc123",
	}
}

func TestFilePublisher(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out", "compiled.yaml")
	p := NewFilePublisher(path)
	if err := p.Publish(context.Background(), sampleConfig()); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if !strings.Contains(string(data), "preferred: n2") || !strings.Contains(string(data), "fingerprint: abc123") {
		t.Fatalf("unexpected yaml:\n%s", data)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("expected temp file renamed away")
	}

	loaded, err := p.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if g, ok := loaded.Group("hk"); !ok || g.Preferred != "n2" {
		t.Fatalf("unexpected loaded config: %+v", loaded)
	}
}

type fakeRedis struct {
	keys      map[string]any
	published []string
	setErr    error
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	if f.setErr != nil {
		cmd.SetErr(f.setErr)
		return cmd
	}
	f.keys[key] = value
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	f.published = append(f.published, channel+"="+message.(string))
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(1)
	return cmd
}

func TestRedisPublisher(t *testing.T) {
	t.Parallel()

	fake := &fakeRedis{keys: map[string]any{}}
	p := NewRedisPublisher(fake, "lattice:compiled", "lattice:updates")
	if err := p.Publish(context.Background(), sampleConfig()); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}
	raw, ok := fake.keys["lattice:compiled"].([]byte)
	if !ok || !strings.Contains(string(raw), `"fingerprint":"abc123"`) {
		t.Fatalf("unexpected stored value: %v", fake.keys)
	}
	if len(fake.published) != 1 || fake.published[0] != "lattice:updates=abc123" {
		t.Fatalf("unexpected publish calls: %v", fake.published)
	}

	fake.setErr = errors.New("connection refused")
	if err := p.Publish(context.Background(), sampleConfig()); err == nil {
		t.Fatalf("expected set error")
	}
	if len(fake.published) != 1 {
		t.Fatalf("expected no broadcast after failed write")
	}
}

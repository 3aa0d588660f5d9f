package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"lattice/backend/service/compiler"
)

// Publisher 把新的编译快照交给下游（调用方保证只在 fingerprint 变化时调用）
type Publisher interface {
	Publish(ctx context.Context, cfg *compiler.CompiledConfig) error
}

// Nop 不发布
type Nop struct{}

func (Nop) Publish(context.Context, *compiler.CompiledConfig) error { return nil }

// FilePublisher 以 YAML 形式原子写入文件
type FilePublisher struct {
	path string
}

func NewFilePublisher(path string) *FilePublisher {
	return &FilePublisher{path: path}
}

func (p *FilePublisher) Publish(_ context.Context, cfg *compiler.CompiledConfig) error {
	if cfg == nil {
		return fmt.Errorf("publish: nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal compiled config: %w", err)
	}
	return atomicWrite(p.path, data)
}

// Load 读回已发布的快照（启动时作为 last-known-good 的初始值）
func (p *FilePublisher) Load() (*compiler.CompiledConfig, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, err
	}
	var cfg compiler.CompiledConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", p.path, err)
	}
	return &cfg, nil
}

func atomicWrite(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// redisClient RedisPublisher 用到的命令子集（*redis.Client 满足）
type redisClient interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisPublisher 把 JSON 快照写入 key，并在 channel 上广播 fingerprint
type RedisPublisher struct {
	client  redisClient
	key     string
	channel string
}

func NewRedisPublisher(client redisClient, key, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, key: key, channel: channel}
}

// NewRedisClient 按 violet-dns 的超时约定创建客户端
func NewRedisClient(addr, password string, db int) *redis.Client {
	const redisTimeout = 5 * time.Second
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  redisTimeout,
		ReadTimeout:  redisTimeout * 2,
		WriteTimeout: redisTimeout * 2,
		PoolTimeout:  redisTimeout * 3,
	})
}

func (p *RedisPublisher) Publish(ctx context.Context, cfg *compiler.CompiledConfig) error {
	if cfg == nil {
		return fmt.Errorf("publish: nil config")
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal compiled config: %w", err)
	}
	if err := p.client.Set(ctx, p.key, data, 0).Err(); err != nil {
		return fmt.Errorf("write redis key %s: %w", p.key, err)
	}
	if p.channel == "" {
		return nil
	}
	if err := p.client.Publish(ctx, p.channel, cfg.Fingerprint).Err(); err != nil {
		return fmt.Errorf("publish redis channel %s: %w", p.channel, err)
	}
	return nil
}

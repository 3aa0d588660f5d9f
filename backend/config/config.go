package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"lattice/backend/service/shared"
)

// Config 进程配置（YAML 文件 + LATTICE_* 环境变量 + 命令行参数，后者优先）
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	State   StateConfig   `mapstructure:"state"`
	Log     LogConfig     `mapstructure:"log"`
	Compile CompileConfig `mapstructure:"compile"`
	Publish PublishConfig `mapstructure:"publish"`
	Refresh RefreshConfig `mapstructure:"refresh"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
	Dev  bool   `mapstructure:"dev"`
}

type StateConfig struct {
	Path    string `mapstructure:"path" validate:"required"`
	Presets string `mapstructure:"presets"` // 启动时导入的预设文件，可为空
}

type LogConfig struct {
	Level  string        `mapstructure:"level" validate:"oneof=trace debug info warn warning error"`
	Format string        `mapstructure:"format" validate:"oneof=text json"`
	Output string        `mapstructure:"output"`
	Retain time.Duration `mapstructure:"retain" validate:"gte=0"`
}

type CompileConfig struct {
	Debounce time.Duration `mapstructure:"debounce" validate:"gte=0"`
	Interval time.Duration `mapstructure:"interval" validate:"gte=0"`
}

type PublishConfig struct {
	Mode  string      `mapstructure:"mode" validate:"oneof=none file redis"`
	Path  string      `mapstructure:"path" validate:"required_if=Mode file"`
	Redis RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
	Key      string `mapstructure:"key"`
	Channel  string `mapstructure:"channel"`
}

type RefreshConfig struct {
	Cron    string        `mapstructure:"cron"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
	Proxy   string        `mapstructure:"proxy"` // SOCKS5 地址，拉取规则集来源时使用
}

// LogOptions 转换为 logger 构造参数
func (c LogConfig) LogOptions() shared.LogOptions {
	return shared.LogOptions{Level: c.Level, Format: c.Format, Output: c.Output, Retain: c.Retain}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":19080")
	v.SetDefault("server.dev", false)
	v.SetDefault("state.path", "data/state.json")
	v.SetDefault("state.presets", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.retain", 7*24*time.Hour)
	v.SetDefault("compile.debounce", shared.DefaultCompileDebounce)
	v.SetDefault("compile.interval", 10*time.Minute)
	v.SetDefault("publish.mode", "file")
	v.SetDefault("publish.path", "data/compiled.yaml")
	v.SetDefault("publish.redis.addr", "127.0.0.1:6379")
	v.SetDefault("publish.redis.password", "")
	v.SetDefault("publish.redis.db", 0)
	v.SetDefault("publish.redis.key", "lattice:compiled")
	v.SetDefault("publish.redis.channel", "lattice:compiled:updates")
	v.SetDefault("refresh.cron", "0 0 */6 * * *")
	v.SetDefault("refresh.timeout", time.Minute)
	v.SetDefault("refresh.proxy", "")
}

// flags 命令行参数名与配置键一致
func flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "config file (yaml)")
	fs.String("server.addr", ":19080", "HTTP listen address")
	fs.Bool("server.dev", false, "enable development mode with verbose logging")
	fs.String("state.path", "data/state.json", "path to state snapshot")
	fs.String("state.presets", "", "rule set preset file imported at startup")
	fs.String("log.level", "info", "log level")
	fs.String("log.format", "text", "log format (text|json)")
	fs.String("log.output", "stdout", "log output (stdout|stderr|file path)")
	fs.String("publish.mode", "file", "compiled config publisher (none|file|redis)")
	fs.String("publish.path", "data/compiled.yaml", "compiled config output path")
	return fs
}

// Load 解析命令行参数并读取配置
func Load(args []string) (*Config, error) {
	fs := flags("lattice")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	// 只绑定显式设置的参数，未设置的参数不覆盖配置文件
	fs.Visit(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
	})

	v.SetEnvPrefix("LATTICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("lattice")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/lattice")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置取值
func (c *Config) Validate() error {
	var problems shared.Problems
	shared.ValidateStruct("config", c, &problems)
	if c.Publish.Mode == "redis" && (c.Publish.Redis.Addr == "" || c.Publish.Redis.Key == "") {
		problems.Add("config: publish.redis.addr and publish.redis.key are required for redis mode")
	}
	return problems.Validation()
}

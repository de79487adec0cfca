package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 EVENTLOG_DATABASE_DSN
const EnvPrefix = "EVENTLOG"

// DatabaseConfig 统计库配置
type DatabaseConfig struct {
	// DSN 连接描述符：postgres URL、libpq 关键字串或 sqlite 路径
	DSN            string        `yaml:"dsn" mapstructure:"dsn"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout"`
}

// HeartbeatConfig 心跳配置
type HeartbeatConfig struct {
	IntervalTicks int `yaml:"interval_ticks" mapstructure:"interval_ticks"`
	// TickRate 独立运行时每秒驱动的帧数
	TickRate int `yaml:"tick_rate" mapstructure:"tick_rate"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// HTTPConfig 管理接口配置
type HTTPConfig struct {
	Enabled        bool     `yaml:"enabled" mapstructure:"enabled"`
	Addr           string   `yaml:"addr" mapstructure:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// GRPCConfig 事件接入配置
type GRPCConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Addr    string `yaml:"addr" mapstructure:"addr"`
}

// Config 事件记录服务配置
type Config struct {
	Database  DatabaseConfig  `yaml:"database" mapstructure:"database"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat" mapstructure:"heartbeat"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	HTTP      HTTPConfig      `yaml:"http" mapstructure:"http"`
	GRPC      GRPCConfig      `yaml:"grpc" mapstructure:"grpc"`
}

// TickInterval 帧间隔
func (c *Config) TickInterval() time.Duration {
	if c.Heartbeat.TickRate <= 0 {
		return 0
	}
	return time.Second / time.Duration(c.Heartbeat.TickRate)
}

// Validate 验证配置
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Database.ConnectTimeout < 0 {
		return fmt.Errorf("database.connect_timeout must not be negative")
	}
	if c.Heartbeat.IntervalTicks <= 0 {
		return fmt.Errorf("heartbeat.interval_ticks must be positive, got %d", c.Heartbeat.IntervalTicks)
	}
	if c.Heartbeat.TickRate <= 0 || c.Heartbeat.TickRate > 1000 {
		return fmt.Errorf("heartbeat.tick_rate must be in (0, 1000], got %d", c.Heartbeat.TickRate)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.HTTP.Enabled && c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required when http is enabled")
	}
	if c.GRPC.Enabled && c.GRPC.Addr == "" {
		return fmt.Errorf("grpc.addr is required when grpc is enabled")
	}
	return nil
}

// Load 加载配置。path 为空时在 ./configs 和当前目录中查找 eventlogger.yaml，
// 找不到文件时使用默认值；环境变量优先于文件。
func Load(path string) (*Config, error) {
	cfg, _, err := load(path)
	return cfg, err
}

func load(path string) (*Config, *viper.Viper, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("eventlogger")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaultValues(v)

	if err := v.ReadInConfig(); err != nil {
		// 显式指定的文件必须存在
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, v, nil
}

func setDefaultValues(v *viper.Viper) {
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.connect_timeout", 5*time.Second)

	v.SetDefault("heartbeat.interval_ticks", 1800)
	v.SetDefault("heartbeat.tick_rate", 60)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.allowed_origins", []string{"*"})

	v.SetDefault("grpc.enabled", true)
	v.SetDefault("grpc.addr", ":9090")
}

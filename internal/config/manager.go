package config

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ChangeFunc 配置变更回调
type ChangeFunc func(old, updated *Config)

// Manager 配置管理器，支持文件变更时热加载
type Manager struct {
	mu           sync.RWMutex
	config       *Config
	v            *viper.Viper
	configPath   string
	watchEnabled bool
	listeners    []ChangeFunc
	logger       *slog.Logger
}

// ManagerOption 配置管理器选项
type ManagerOption func(*Manager)

// WithConfigPath 设置配置文件路径
func WithConfigPath(path string) ManagerOption {
	return func(m *Manager) {
		m.configPath = path
	}
}

// WithWatchEnabled 启用配置文件监控
func WithWatchEnabled(enabled bool) ManagerOption {
	return func(m *Manager) {
		m.watchEnabled = enabled
	}
}

// WithManagerLogger 设置日志器
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager 创建配置管理器
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load 加载配置（已加载时直接返回）
func (m *Manager) Load() (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.config != nil {
		return m.config, nil
	}

	cfg, v, err := load(m.configPath)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	m.config = cfg
	m.v = v

	if m.watchEnabled && v.ConfigFileUsed() != "" {
		m.watch()
	}
	return cfg, nil
}

// Get 返回当前配置，未加载时为 nil
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// ConfigFile 实际读取的配置文件，未使用文件时为空
func (m *Manager) ConfigFile() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.v == nil {
		return ""
	}
	return m.v.ConfigFileUsed()
}

// OnChange 注册配置变更回调
func (m *Manager) OnChange(fn ChangeFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Reload 重新读取配置文件并通知订阅者。新配置无效时保留旧配置。
func (m *Manager) Reload() error {
	m.mu.Lock()
	cfg, v, err := load(m.configPath)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("重新加载配置失败: %w", err)
	}
	old := m.config
	m.config = cfg
	if m.v == nil {
		m.v = v
	}
	listeners := append([]ChangeFunc(nil), m.listeners...)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(old, cfg)
	}
	return nil
}

// watch 监控配置文件变化，调用方持有锁
func (m *Manager) watch() {
	m.v.OnConfigChange(func(e fsnotify.Event) {
		m.logger.Info("Config file changed", "file", e.Name, "op", e.Op.String())
		if err := m.Reload(); err != nil {
			m.logger.Warn("Config reload rejected, keeping previous config", "error", err)
		}
	})
	m.v.WatchConfig()
}

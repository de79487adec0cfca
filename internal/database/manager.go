package database

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	recerrors "GoEventLogger/internal/errors"
)

// State 连接状态
type State int32

const (
	StateDisconnected State = iota
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Manager 存储连接管理器，独占持有唯一的连接句柄。
// Connect 从不内部重试，由调用方（心跳）决定重连节奏。
type Manager struct {
	descriptor string
	dial       Dialer
	logger     *slog.Logger
	timeout    time.Duration

	// mu 仅保护 conn 指针，供状态查询并发读取
	mu    sync.RWMutex
	conn  Conn
	state atomic.Int32
}

// ManagerOption 管理器选项
type ManagerOption func(*Manager)

// WithDialer 指定拨号函数（默认按描述符自动选择后端）
func WithDialer(d Dialer) ManagerOption {
	return func(m *Manager) {
		m.dial = d
	}
}

// WithLogger 指定日志器
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithConnectTimeout 限制单次连接尝试的时长，0 表示不限制（由后端决定）
func WithConnectTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.timeout = d
	}
}

// NewManager 创建连接管理器，descriptor 原样传给后端
func NewManager(descriptor string, opts ...ManagerOption) *Manager {
	m := &Manager{
		descriptor: descriptor,
		dial:       Dial,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.state.Store(int32(StateDisconnected))
	return m
}

// Dial 按描述符选择后端：sqlite:/file: 前缀或 .db/.sqlite 后缀走嵌入式SQLite，其余交给pgx
func Dial(ctx context.Context, descriptor string) (Conn, error) {
	if IsSQLiteDescriptor(descriptor) {
		return OpenSQLite(ctx, descriptor)
	}
	return ConnectPostgres(ctx, descriptor)
}

// IsSQLiteDescriptor 判断描述符是否指向SQLite
func IsSQLiteDescriptor(descriptor string) bool {
	d := strings.TrimSpace(descriptor)
	return strings.HasPrefix(d, "sqlite:") ||
		strings.HasPrefix(d, "file:") ||
		strings.HasSuffix(d, ".db") ||
		strings.HasSuffix(d, ".sqlite")
}

// Connect 建立连接。已有连接会先被关闭。
func (m *Manager) Connect(ctx context.Context) error {
	m.Disconnect(ctx)

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	m.logger.Info("Connecting to stats database...")
	conn, err := m.dial(ctx, m.descriptor)
	if err != nil {
		m.logger.Warn("Failed to connect to stats database", "error", err)
		return recerrors.Wrap(recerrors.CategoryConnection, recerrors.CodeConnectFailed,
			"failed to connect to stats database", err)
	}

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
	m.state.Store(int32(StateConnected))

	m.logger.Info("Successfully connected to stats database.")
	return nil
}

// IsHealthy 廉价的存活检查，每次写入前调用
func (m *Manager) IsHealthy() bool {
	conn := m.Conn()
	if conn == nil {
		return false
	}
	return conn.Alive()
}

// Disconnect 释放连接，可重复调用
func (m *Manager) Disconnect(ctx context.Context) {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()
	m.state.Store(int32(StateDisconnected))

	if conn == nil {
		return
	}
	if err := conn.Close(ctx); err != nil {
		m.logger.Warn("Error while closing stats database connection", "error", err)
		return
	}
	m.logger.Info("Disconnected from stats database.")
}

// Conn 返回当前连接，未连接时为 nil
func (m *Manager) Conn() Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conn
}

// State 返回连接状态
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Descriptor 返回连接描述符
func (m *Manager) Descriptor() string {
	return m.descriptor
}

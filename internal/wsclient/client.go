package wsclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"GoEventLogger/internal/logger"
)

// ClientState 客户端连接状态
type ClientState int32

const (
	StateDisconnected ClientState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s ClientState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// EntryHandler 事件流条目处理器，在读取协程中调用
type EntryHandler func(entry logger.FeedEntry)

// StateChangeHandler 状态变化处理器
type StateChangeHandler func(oldState, newState ClientState)

// ClientConfig 客户端配置
type ClientConfig struct {
	URL                  string
	HandshakeTimeout     time.Duration
	ReconnectInterval    time.Duration
	MaxReconnectInterval time.Duration
	// MaxReconnectTries 单次断线后的最大重试次数，0 表示不限
	MaxReconnectTries int
	UserAgent         string
}

// DefaultClientConfig 返回默认配置
func DefaultClientConfig(url string) *ClientConfig {
	return &ClientConfig{
		URL:                  url,
		HandshakeTimeout:     10 * time.Second,
		ReconnectInterval:    500 * time.Millisecond,
		MaxReconnectInterval: 30 * time.Second,
		UserAgent:            "eventlogger-tail/1.0",
	}
}

// Client 实时事件流订阅客户端，断线后按指数退避自动重连
type Client struct {
	config *ClientConfig
	dialer *websocket.Dialer
	logger *slog.Logger
	state  atomic.Int32

	mu            sync.RWMutex
	onEntry       EntryHandler
	onStateChange StateChangeHandler

	received   atomic.Int64
	reconnects atomic.Int32
}

// New 创建客户端
func New(config *ClientConfig, l *slog.Logger) *Client {
	if config == nil {
		panic("config cannot be nil")
	}
	if l == nil {
		l = slog.Default()
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = config.HandshakeTimeout

	c := &Client{
		config: config,
		dialer: &dialer,
		logger: l,
	}
	c.state.Store(int32(StateDisconnected))
	return c
}

// SetEntryHandler 设置条目处理器
func (c *Client) SetEntryHandler(handler EntryHandler) {
	c.mu.Lock()
	c.onEntry = handler
	c.mu.Unlock()
}

// SetStateChangeHandler 设置状态变化处理器
func (c *Client) SetStateChangeHandler(handler StateChangeHandler) {
	c.mu.Lock()
	c.onStateChange = handler
	c.mu.Unlock()
}

// Run 连接并持续读取事件流，直到 ctx 取消（返回 nil）或重连耗尽（返回错误）
func (c *Client) Run(ctx context.Context) error {
	if !c.compareAndSwapState(StateDisconnected, StateConnecting) {
		return errors.New("client is not in disconnected state")
	}
	defer c.setState(StateClosed)

	first := true
	for {
		conn, err := c.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.setState(StateDisconnected)
			return err
		}
		if !first {
			c.reconnects.Add(1)
			c.logger.Info("Event feed reconnected", "url", c.config.URL)
		}
		first = false
		c.setState(StateConnected)

		err = c.readLoop(ctx, conn)
		if ctx.Err() != nil {
			return nil
		}
		c.logger.Warn("Event feed connection lost", "error", err)
		c.setState(StateReconnecting)
	}
}

// connect 带退避的建连
func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.config.ReconnectInterval
	b.MaxInterval = c.config.MaxReconnectInterval
	b.MaxElapsedTime = 0

	var policy backoff.BackOff = b
	if c.config.MaxReconnectTries > 0 {
		policy = backoff.WithMaxRetries(b, uint64(c.config.MaxReconnectTries))
	}

	dial := func() (*websocket.Conn, error) {
		headers := http.Header{"User-Agent": []string{c.config.UserAgent}}
		conn, resp, err := c.dialer.DialContext(ctx, c.config.URL, headers)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return nil, backoff.Permanent(fmt.Errorf("dial failed: %s", resp.Status))
			}
			return nil, fmt.Errorf("dial failed: %w", err)
		}
		return conn, nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Debug("Event feed dial failed, retrying", "error", err, "wait", wait)
	}
	return backoff.RetryNotifyWithData(dial, backoff.WithContext(policy, ctx), notify)
}

// readLoop 读取JSON条目直到连接出错或 ctx 取消
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	for {
		var entry logger.FeedEntry
		if err := conn.ReadJSON(&entry); err != nil {
			return err
		}
		c.received.Add(1)

		c.mu.RLock()
		h := c.onEntry
		c.mu.RUnlock()
		if h != nil {
			h(entry)
		}
	}
}

// State 当前状态
func (c *Client) State() ClientState {
	return ClientState(c.state.Load())
}

func (c *Client) setState(newState ClientState) {
	oldState := ClientState(c.state.Swap(int32(newState)))
	if oldState != newState {
		c.notifyState(oldState, newState)
	}
}

func (c *Client) compareAndSwapState(oldState, newState ClientState) bool {
	swapped := c.state.CompareAndSwap(int32(oldState), int32(newState))
	if swapped {
		c.notifyState(oldState, newState)
	}
	return swapped
}

func (c *Client) notifyState(oldState, newState ClientState) {
	c.mu.RLock()
	h := c.onStateChange
	c.mu.RUnlock()
	if h != nil {
		h(oldState, newState)
	}
}

// Received 已收到的条目数
func (c *Client) Received() int64 {
	return c.received.Load()
}

// Reconnects 成功重连次数
func (c *Client) Reconnects() int {
	return int(c.reconnects.Load())
}

// GetStats 获取客户端统计信息
func (c *Client) GetStats() map[string]any {
	return map[string]any{
		"state":      c.State().String(),
		"received":   c.received.Load(),
		"reconnects": c.reconnects.Load(),
	}
}

package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"GoEventLogger/internal/database"
	"GoEventLogger/internal/event"
	"GoEventLogger/internal/session"
)

// Observer 在事件记录前观察事件（例如维护宿主名册）
type Observer interface {
	Observe(ev *event.Event)
}

// EngineConfig 引擎配置
type EngineConfig struct {
	// Descriptor 存储连接描述符，原样交给后端
	Descriptor string
	// HeartbeatInterval 心跳间隔帧数，<=0 使用默认值
	HeartbeatInterval int
	// Host 宿主快照，用于会话补录；若同时实现 Observer 则会观察每个事件
	Host session.Host
	// Publisher 实时事件流，可为 nil
	Publisher Publisher
	// ConnectTimeout 单次连接尝试的超时
	ConnectTimeout time.Duration
	// Dialer 自定义拨号（测试用），为 nil 时按描述符选择后端
	Dialer database.Dialer
	Logger *slog.Logger
}

// Engine 持有连接、会话、记录器与心跳的唯一对象。
// 宿主通常在同一控制线程上调用；来自gRPC或定时循环的并发调用由互斥锁串行化，
// 保证存储看到的仍是单一、有序的调用者。
type Engine struct {
	mu        sync.Mutex
	mgr       *database.Manager
	tracker   *session.Tracker
	recorder  *Recorder
	heartbeat *Heartbeat
	observer  Observer
	stats     *Stats
	logger    *slog.Logger
	startedAt time.Time
}

// Status 引擎状态快照
type Status struct {
	State             string           `json:"state"`
	Healthy           bool             `json:"healthy"`
	Dialect           database.Dialect `json:"dialect"`
	Session           *session.Session `json:"session,omitempty"`
	SessionsOpened    int64            `json:"sessions_opened"`
	HeartbeatState    string           `json:"heartbeat_state"`
	HeartbeatInterval int              `json:"heartbeat_interval_ticks"`
	HeartbeatPending  int              `json:"heartbeat_pending_ticks"`
	StartedAt         time.Time        `json:"started_at"`
	Uptime            string           `json:"uptime"`
	Stats             StatsSnapshot    `json:"stats"`
}

// NewEngine 组装引擎
func NewEngine(cfg EngineConfig) *Engine {
	l := cfg.Logger
	if l == nil {
		l = slog.Default()
	}

	mgrOpts := []database.ManagerOption{
		database.WithLogger(l),
		database.WithConnectTimeout(cfg.ConnectTimeout),
	}
	if cfg.Dialer != nil {
		mgrOpts = append(mgrOpts, database.WithDialer(cfg.Dialer))
	}
	mgr := database.NewManager(cfg.Descriptor, mgrOpts...)

	stats := &Stats{}
	recOpts := []Option{WithStats(stats), WithRecorderLogger(l)}
	if cfg.Publisher != nil {
		recOpts = append(recOpts, WithPublisher(cfg.Publisher))
	}
	rec := New(mgr, recOpts...)

	tracker := session.NewTracker(mgr, cfg.Host, rec, session.WithTrackerLogger(l))

	e := &Engine{
		mgr:       mgr,
		tracker:   tracker,
		recorder:  rec,
		heartbeat: NewHeartbeat(mgr, tracker, cfg.HeartbeatInterval, stats, l),
		stats:     stats,
		logger:    l,
		startedAt: time.Now(),
	}
	if obs, ok := cfg.Host.(Observer); ok {
		e.observer = obs
	}
	return e
}

// Start 建立连接与会话并记录 _plugin_load。
// 连接失败不是致命错误：事件会被丢弃，直到心跳重连成功。
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, err := e.tracker.Establish(ctx)
	if err != nil {
		e.logger.Warn("Stats database unavailable at startup, will retry on heartbeat", "error", err)
	}
	e.logLocked(ctx, event.New(event.NamePluginLoad))
	return err
}

// Log 以当前会话记录事件。生产者无需关心结果；返回值供传输层回报。
func (e *Engine) Log(ctx context.Context, ev *event.Event) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.logLocked(ctx, ev)
}

func (e *Engine) logLocked(ctx context.Context, ev *event.Event) (Result, error) {
	if e.observer != nil {
		e.observer.Observe(ev)
	}

	var id database.SessionID
	if sess := e.tracker.Current(); sess != nil {
		id = sess.ID
	}
	return e.recorder.Record(ctx, ev, id)
}

// Tick 每帧调用，驱动心跳
func (e *Engine) Tick(ctx context.Context, simulating bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.heartbeat.Tick(ctx, simulating)
}

// Stop 记录 _plugin_unload 并断开连接，可重复调用
func (e *Engine) Stop(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.tracker.Current() != nil {
		e.logLocked(ctx, event.New(event.NamePluginUnload))
	}
	e.tracker.Close(ctx)
}

// Status 返回状态快照，不等待正在进行的存储调用
func (e *Engine) Status() Status {
	return Status{
		State:             e.mgr.State().String(),
		Healthy:           e.mgr.IsHealthy(),
		Dialect:           database.DialectOf(e.mgr.Descriptor()),
		Session:           e.tracker.Current(),
		SessionsOpened:    e.tracker.Opened(),
		HeartbeatState:    e.heartbeat.State().String(),
		HeartbeatInterval: e.heartbeat.Interval(),
		HeartbeatPending:  e.heartbeat.Pending(),
		StartedAt:         e.startedAt,
		Uptime:            time.Since(e.startedAt).Round(time.Second).String(),
		Stats:             e.stats.Snapshot(),
	}
}

// Ready 连接健康且持有会话
func (e *Engine) Ready() bool {
	return e.mgr.IsHealthy() && e.tracker.Current() != nil
}

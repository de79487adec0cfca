package session

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"GoEventLogger/internal/database"
	recerrors "GoEventLogger/internal/errors"
	"GoEventLogger/internal/event"
)

// Sink 接收会话建立时补录的事件，调用方不关心结果
type Sink interface {
	Submit(ctx context.Context, ev *event.Event, id database.SessionID)
}

// Tracker 会话跟踪器：连接成功后开启会话行，并补录已存在的宿主状态。
// 不变量：Current() 非空当且仅当管理器持有连接。
type Tracker struct {
	mgr    *database.Manager
	host   Host
	sink   Sink
	logger *slog.Logger
	now    func() time.Time

	current atomic.Pointer[Session]
	opened  atomic.Int64
}

// TrackerOption 跟踪器选项
type TrackerOption func(*Tracker)

// WithTrackerLogger 指定日志器
func WithTrackerLogger(l *slog.Logger) TrackerOption {
	return func(t *Tracker) {
		t.logger = l
	}
}

// WithClock 指定时钟（测试用）
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		t.now = now
	}
}

// NewTracker 创建会话跟踪器，host 和 sink 可以为 nil
func NewTracker(mgr *database.Manager, host Host, sink Sink, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		mgr:    mgr,
		host:   host,
		sink:   sink,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetSink 设置补录事件的接收者
func (t *Tracker) SetSink(sink Sink) {
	t.sink = sink
}

// Open 在已建立的连接上插入会话行。
// 失败时拆除连接，系统不会处于"有连接无会话"的状态。
func (t *Tracker) Open(ctx context.Context) (*Session, error) {
	conn := t.mgr.Conn()
	if conn == nil || !conn.Alive() {
		return nil, recerrors.ErrConnectionLost
	}

	id, err := conn.CreateSession(ctx)
	if err != nil {
		t.logger.Warn("\"INSERT INTO GameSession\" failed", "error", err)
		t.mgr.Disconnect(ctx)
		return nil, recerrors.Wrap(recerrors.CategorySession, recerrors.CodeSessionInsertFailed,
			"failed to open game session", err)
	}

	sess := &Session{
		ID:       id,
		MapName:  t.mapName(),
		OpenedAt: t.now(),
	}
	t.current.Store(sess)
	t.opened.Add(1)
	t.logger.Info("Game session opened", "session_id", id, "map_name", sess.MapName)
	return sess, nil
}

// Establish 完整的（重新）连接：丢弃旧会话、连接、开会话、补录状态
func (t *Tracker) Establish(ctx context.Context) (*Session, error) {
	t.Drop()

	if err := t.mgr.Connect(ctx); err != nil {
		return nil, err
	}

	sess, err := t.Open(ctx)
	if err != nil {
		return nil, err
	}

	t.Seed(ctx, sess)
	return sess, nil
}

// Seed 补录 _new_gamesession 以及每个已连接客户端的 _existing_client。
// 尽力而为：取不到玩家信息的客户端直接跳过。
func (t *Tracker) Seed(ctx context.Context, sess *Session) {
	if t.sink == nil || sess == nil {
		return
	}

	ev := event.New(event.NameNewGameSession)
	if sess.MapName != "" {
		ev.SetString(event.KeyMapName, sess.MapName)
	}
	t.sink.Submit(ctx, ev, sess.ID)

	if t.host == nil {
		return
	}

	skipped := 0
	for _, c := range t.host.Clients() {
		if c.Info == nil {
			skipped++
			continue
		}
		t.sink.Submit(ctx, ExistingClientEvent(c.Info), sess.ID)
	}
	if skipped > 0 {
		t.logger.Debug("Skipped clients without player info", "count", skipped)
	}
}

// ExistingClientEvent 构造 _existing_client 事件
func ExistingClientEvent(info *PlayerInfo) *event.Event {
	ev := event.New(event.NameExistingClient).
		SetString(event.KeyPlayerName, info.Name).
		SetInt(event.KeyUserID, info.UserID).
		SetInt(event.KeyTeam, info.Team)
	if info.NetworkID != "" {
		ev.SetString(event.KeyNetworkID, info.NetworkID)
	}
	ev.SetInt(event.KeyHealth, info.Health)
	return ev
}

// Current 返回当前会话，未连接时为 nil
func (t *Tracker) Current() *Session {
	return t.current.Load()
}

// Drop 遗忘当前会话（连接已断开或即将重连）
func (t *Tracker) Drop() {
	if old := t.current.Swap(nil); old != nil {
		t.logger.Debug("Game session dropped", "session_id", old.ID)
	}
}

// Close 遗忘会话并断开连接
func (t *Tracker) Close(ctx context.Context) {
	t.Drop()
	t.mgr.Disconnect(ctx)
}

// Opened 进程启动以来开启过的会话数
func (t *Tracker) Opened() int64 {
	return t.opened.Load()
}

func (t *Tracker) mapName() string {
	if t.host == nil {
		return ""
	}
	return t.host.MapName()
}

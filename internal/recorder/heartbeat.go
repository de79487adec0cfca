package recorder

import (
	"context"
	"log/slog"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"GoEventLogger/internal/database"
	"GoEventLogger/internal/session"
)

// DefaultHeartbeatInterval 默认心跳间隔（帧数）：30秒 × 每秒60帧
const DefaultHeartbeatInterval = 1800

// HeartbeatState 心跳状态机的状态
type HeartbeatState int32

const (
	HeartbeatIdle HeartbeatState = iota
	HeartbeatDue
)

func (s HeartbeatState) String() string {
	switch s {
	case HeartbeatIdle:
		return "IDLE"
	case HeartbeatDue:
		return "DUE"
	default:
		return "UNKNOWN"
	}
}

// Heartbeat 帧驱动的心跳调度器。
// 每 interval 帧触发一次：连接不健康则完整重连（新会话），否则刷新会话心跳时间。
type Heartbeat struct {
	interval int64
	mgr      *database.Manager
	tracker  *session.Tracker
	stats    *Stats
	logger   *slog.Logger

	counter atomic.Int64
	state   atomic.Int32
}

// NewHeartbeat 创建心跳调度器，interval<=0 时使用默认值
func NewHeartbeat(mgr *database.Manager, tracker *session.Tracker, interval int, stats *Stats, l *slog.Logger) *Heartbeat {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	if stats == nil {
		stats = &Stats{}
	}
	if l == nil {
		l = slog.Default()
	}
	return &Heartbeat{
		interval: int64(interval),
		mgr:      mgr,
		tracker:  tracker,
		stats:    stats,
		logger:   l,
	}
}

// Tick 每帧调用一次。仅在宿主正在模拟时计数，返回本帧是否触发了一次心跳周期。
func (h *Heartbeat) Tick(ctx context.Context, simulating bool) bool {
	if !simulating {
		return false
	}
	if h.counter.Add(1) < h.interval {
		return false
	}

	h.counter.Store(0)
	h.state.Store(int32(HeartbeatDue))
	defer h.state.Store(int32(HeartbeatIdle))

	h.beat(ctx)
	return true
}

// Interval 心跳间隔帧数
func (h *Heartbeat) Interval() int {
	return int(h.interval)
}

// Pending 距上次触发已计数的帧数
func (h *Heartbeat) Pending() int {
	return int(h.counter.Load())
}

// State 当前状态
func (h *Heartbeat) State() HeartbeatState {
	return HeartbeatState(h.state.Load())
}

func (h *Heartbeat) beat(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "recorder.Heartbeat")
	defer span.End()

	sess := h.tracker.Current()
	if !h.mgr.IsHealthy() || sess == nil {
		span.SetAttributes(attribute.String("heartbeat.action", "reconnect"))
		h.reconnect(ctx, span)
		return
	}

	span.SetAttributes(
		attribute.String("heartbeat.action", "update"),
		attribute.String("session.id", string(sess.ID)),
	)
	if err := h.mgr.Conn().TouchSession(ctx, sess.ID); err != nil {
		// 下一个周期会重试
		h.stats.heartbeatFailures.Add(1)
		span.RecordError(err)
		h.logger.Warn("\"UPDATE GameSession SET Heartbeat\" failed", "session_id", sess.ID, "error", err)
		return
	}
	h.stats.heartbeats.Add(1)
}

func (h *Heartbeat) reconnect(ctx context.Context, span trace.Span) {
	h.logger.Info("Stats database connection is not healthy, reconnecting")
	sess, err := h.tracker.Establish(ctx)
	if err != nil {
		h.stats.reconnectFailures.Add(1)
		span.RecordError(err)
		h.logger.Warn("Reconnect to stats database failed", "error", err)
		return
	}
	h.stats.reconnects.Add(1)
	h.logger.Info("Reconnected to stats database", "session_id", sess.ID)
}

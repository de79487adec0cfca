package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"GoEventLogger/internal/database"
	recerrors "GoEventLogger/internal/errors"
	"GoEventLogger/internal/event"
	"GoEventLogger/internal/logger"
)

const instrumentationName = "GoEventLogger/internal/recorder"

var (
	tracer = otel.Tracer(instrumentationName)
	meter  = otel.Meter(instrumentationName)
)

// Outcome 一次记录的结果
type Outcome int

const (
	OutcomeCommitted Outcome = iota
	OutcomeDropped
	OutcomeRolledBack
	OutcomeFailed
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCommitted:
		return "committed"
	case OutcomeDropped:
		return "dropped"
	case OutcomeRolledBack:
		return "rolled_back"
	case OutcomeFailed:
		return "failed"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Result 记录结果
type Result struct {
	Outcome Outcome
	EventID database.EventID
	// Written 成功写入的属性行数
	Written int
	// Skipped 因类型不受支持而跳过的属性键
	Skipped []string
}

// Publisher 接收已处理事件的旁路订阅者（实时事件流）
type Publisher interface {
	Publish(entry logger.FeedEntry)
}

// Recorder 事件记录器：在一个事务中写入事件头和每个属性行。
// 不做并发保护，调用方需保证单一调用者。
type Recorder struct {
	mgr       *database.Manager
	stats     *Stats
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time

	events metric.Int64Counter
	attrs  metric.Int64Counter
}

// Option 记录器选项
type Option func(*Recorder)

// WithPublisher 设置事件流发布者
func WithPublisher(p Publisher) Option {
	return func(r *Recorder) {
		r.publisher = p
	}
}

// WithRecorderLogger 设置日志器
func WithRecorderLogger(l *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = l
	}
}

// WithStats 共享统计计数器
func WithStats(s *Stats) Option {
	return func(r *Recorder) {
		r.stats = s
	}
}

// New 创建记录器
func New(mgr *database.Manager, opts ...Option) *Recorder {
	r := &Recorder{
		mgr:    mgr,
		stats:  &Stats{},
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	var err error
	r.events, err = meter.Int64Counter("eventlogger.events",
		metric.WithDescription("Events handled by the recorder, by outcome"))
	if err != nil {
		r.logger.Warn("Failed to create events counter", "error", err)
	}
	r.attrs, err = meter.Int64Counter("eventlogger.attributes",
		metric.WithDescription("Attribute rows handled by the recorder, by result"))
	if err != nil {
		r.logger.Warn("Failed to create attributes counter", "error", err)
	}
	return r
}

// Stats 返回统计计数器
func (r *Recorder) Stats() *Stats {
	return r.stats
}

// Record 将事件写入存储。
// 连接不可用时静默丢弃（至多一次、尽力而为），返回 OutcomeDropped 且无错误。
// 不支持的属性类型只跳过该属性；任一属性写入在存储层失败则整个事件回滚。
func (r *Recorder) Record(ctx context.Context, ev *event.Event, id database.SessionID) (Result, error) {
	name := ""
	if ev != nil {
		name = ev.Name
	}
	ctx, span := tracer.Start(ctx, "recorder.Record", trace.WithAttributes(
		attribute.String("event.name", name),
		attribute.String("session.id", string(id)),
	))
	defer span.End()

	res, err := r.record(ctx, ev, id)

	span.SetAttributes(attribute.String("event.outcome", res.Outcome.String()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	r.stats.count(res)
	if r.events != nil {
		r.events.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", res.Outcome.String())))
	}
	r.publish(ev, id, res, err)
	return res, err
}

// Submit 实现 session.Sink，结果只记录日志
func (r *Recorder) Submit(ctx context.Context, ev *event.Event, id database.SessionID) {
	_, _ = r.Record(ctx, ev, id)
}

func (r *Recorder) record(ctx context.Context, ev *event.Event, id database.SessionID) (Result, error) {
	if err := ev.Validate(); err != nil {
		r.logger.Warn("Rejected invalid event", "error", err)
		return Result{Outcome: OutcomeRejected}, recerrors.Wrap(recerrors.CategoryRecord,
			recerrors.CodeInvalidEvent, "event rejected", err)
	}

	conn := r.mgr.Conn()
	if conn == nil || !conn.Alive() || id == "" {
		r.logger.Debug("Stats database not connected, event dropped", "event", ev.Name)
		return Result{Outcome: OutcomeDropped}, nil
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		r.logger.Warn("\"BEGIN TRANSACTION\" for event data failed", "event", ev.Name, "error", err)
		return Result{Outcome: OutcomeFailed}, recerrors.Wrap(recerrors.CategoryRecord,
			recerrors.CodeBeginFailed, "begin transaction failed", err)
	}

	eventID, err := tx.InsertEvent(ctx, id, ev.Name)
	if err != nil {
		r.logger.Warn("\"INSERT INTO Event\" failed", "event", ev.Name, "error", err)
		r.rollback(ctx, tx, ev.Name)
		return Result{Outcome: OutcomeRolledBack}, recerrors.Wrap(recerrors.CategoryRecord,
			recerrors.CodeHeaderInsertFailed, "event header insert failed", err)
	}

	res := Result{EventID: eventID}
	var failures []error
	for _, a := range ev.Attrs {
		column, ok := columnFor(a.Value.Kind())
		if !ok || !a.Value.Finite() {
			r.logger.Warn(fmt.Sprintf("Event %s has key %s with data type <%s> that could not be logged",
				ev.Name, a.Key, a.Value.TypeName()),
				"event", ev.Name, "key", a.Key, "value", a.Value.String(),
				"error", recerrors.ErrUnsupportedAttributeType)
			res.Skipped = append(res.Skipped, a.Key)
			r.countAttr(ctx, "skipped")
			continue
		}

		// 失败后继续尝试剩余属性，以暴露所有错误
		if err := tx.InsertAttribute(ctx, eventID, a.Key, column, a.Value.Text()); err != nil {
			r.logger.Warn("\"INSERT INTO EventData\" failed",
				"event", ev.Name, "key", a.Key, "column", column.Name(), "error", err)
			failures = append(failures, fmt.Errorf("%s: %w", a.Key, err))
			r.countAttr(ctx, "failed")
			continue
		}
		res.Written++
		r.countAttr(ctx, "written")
	}

	if len(failures) > 0 {
		r.rollback(ctx, tx, ev.Name)
		res.Outcome = OutcomeRolledBack
		return res, recerrors.Wrap(recerrors.CategoryRecord, recerrors.CodeAttributeWriteFailed,
			fmt.Sprintf("%d of %d attribute writes failed", len(failures), len(ev.Attrs)),
			errors.Join(failures...))
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.Warn("\"COMMIT TRANSACTION\" for event failed", "event", ev.Name, "error", err)
		res.Outcome = OutcomeFailed
		return res, recerrors.Wrap(recerrors.CategoryRecord, recerrors.CodeCommitFailed,
			"commit failed", err)
	}

	res.Outcome = OutcomeCommitted
	r.logger.Debug("Event recorded",
		"event", ev.Name, "event_id", eventID, "session_id", id,
		"attributes", res.Written, "skipped", len(res.Skipped))
	return res, nil
}

// columnFor 按值的类型标签选择目标列
func columnFor(kind event.Kind) (database.Column, bool) {
	switch kind {
	case event.KindString:
		return database.ColumnString, true
	case event.KindInt:
		return database.ColumnInt, true
	case event.KindFloat:
		return database.ColumnFloat, true
	default:
		return 0, false
	}
}

func (r *Recorder) rollback(ctx context.Context, tx database.Tx, name string) {
	if err := tx.Rollback(ctx); err != nil {
		r.logger.Warn("\"ROLLBACK TRANSACTION\" for failed event failed", "event", name, "error", err)
	}
}

func (r *Recorder) countAttr(ctx context.Context, result string) {
	if r.attrs != nil {
		r.attrs.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	}
}

func (r *Recorder) publish(ev *event.Event, id database.SessionID, res Result, err error) {
	if r.publisher == nil || ev == nil {
		return
	}

	entry := logger.FeedEntry{
		Time:      r.now(),
		SessionID: string(id),
		EventID:   string(res.EventID),
		Name:      ev.Name,
		Outcome:   res.Outcome.String(),
		Skipped:   res.Skipped,
	}
	if len(ev.Attrs) > 0 {
		entry.Attributes = make([]logger.FeedAttr, 0, len(ev.Attrs))
		for _, a := range ev.Attrs {
			entry.Attributes = append(entry.Attributes, logger.FeedAttr{
				Key:   a.Key,
				Type:  a.Value.TypeName(),
				Value: feedValue(a.Value),
			})
		}
	}
	if err != nil {
		entry.Error = err.Error()
	}
	r.publisher.Publish(entry)
}

// feedValue NaN/±Inf 无法编码为JSON，以文本形式下发
func feedValue(v event.Value) any {
	if !v.Finite() {
		return v.Text()
	}
	return v.Any()
}

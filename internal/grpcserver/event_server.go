package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"GoEventLogger/internal/event"
	"GoEventLogger/internal/recorder"
)

const (
	// ServiceName 事件接入服务名
	ServiceName = "eventlogger.v1.EventIngest"
	// RecordMethod Record 方法的完整名称
	RecordMethod = "/" + ServiceName + "/Record"
	// RequestIDHeader 请求ID元数据键
	RequestIDHeader = "x-request-id"
)

// IngestServer 事件接入服务
type IngestServer interface {
	Record(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc 事件接入服务描述。请求与响应都是 google.protobuf.Struct，无需生成代码。
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*IngestServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Record",
			Handler:    recordHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "eventlogger/v1/ingest.proto",
}

func recordHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IngestServer).Record(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: RecordMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(IngestServer).Record(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Recorder 接收事件的记录引擎
type Recorder interface {
	Log(ctx context.Context, ev *event.Event) (recorder.Result, error)
}

// EventServer 把gRPC请求转换为事件交给记录引擎
type EventServer struct {
	rec    Recorder
	logger *slog.Logger

	// 统计信息
	requestCount atomic.Int64
	startTime    time.Time
}

// NewEventServer 创建事件接入服务
func NewEventServer(rec Recorder, l *slog.Logger) *EventServer {
	if l == nil {
		l = slog.Default()
	}
	return &EventServer{
		rec:       rec,
		logger:    l,
		startTime: time.Now(),
	}
}

// Record 记录一个事件。存储侧的失败属于记录结果，通过响应中的 outcome/error 返回；
// 只有格式错误的请求返回 InvalidArgument。
func (s *EventServer) Record(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s.requestCount.Add(1)

	ev, err := DecodeEvent(req)
	if err != nil {
		s.logger.Debug("Rejected malformed event request", "error", err)
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	res, recErr := s.rec.Log(ctx, ev)
	if res.Outcome == recorder.OutcomeRejected && recErr != nil {
		return nil, status.Error(codes.InvalidArgument, recErr.Error())
	}

	resp, err := EncodeResult(res, recErr)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return resp, nil
}

// GetStats 获取服务统计信息
func (s *EventServer) GetStats() map[string]any {
	return map[string]any{
		"uptime_seconds": time.Since(s.startTime).Seconds(),
		"total_requests": s.requestCount.Load(),
	}
}

// RequestIDInterceptor 为每个请求分配请求ID（沿用调用方提供的），写入响应头并记录日志
func RequestIDInterceptor(l *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		requestID := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if v := md.Get(RequestIDHeader); len(v) > 0 {
				requestID = v[0]
			}
		}
		if requestID == "" {
			requestID = uuid.NewString()
		}
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, requestID))

		start := time.Now()
		resp, err := handler(ctx, req)
		l.Debug("gRPC request",
			"method", info.FullMethod, "request_id", requestID,
			"code", status.Code(err).String(), "duration", time.Since(start))
		return resp, err
	}
}

// Server 事件接入gRPC服务器
type Server struct {
	addr   string
	gs     *grpc.Server
	events *EventServer
	logger *slog.Logger
}

// NewServer 创建gRPC服务器并注册事件接入服务
func NewServer(addr string, rec Recorder, l *slog.Logger, opts ...grpc.ServerOption) *Server {
	if l == nil {
		l = slog.Default()
	}
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(RequestIDInterceptor(l)),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             10 * time.Second,
			PermitWithoutStream: true,
		}),
	}, opts...)
	gs := grpc.NewServer(opts...)
	events := NewEventServer(rec, l)
	gs.RegisterService(&ServiceDesc, events)

	return &Server{addr: addr, gs: gs, events: events, logger: l}
}

// Serve 在给定监听器上提供服务
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("Starting gRPC ingest server", "addr", lis.Addr().String())
	if err := s.gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Start 监听配置的地址并提供服务
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(lis)
}

// Stop 优雅停止，ctx 到期后强制停止
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("Stopping gRPC ingest server")
	done := make(chan struct{})
	go func() {
		s.gs.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.gs.Stop()
	}
}

// Events 返回事件接入服务
func (s *Server) Events() *EventServer {
	return s.events
}

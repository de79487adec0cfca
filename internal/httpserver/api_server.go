package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"GoEventLogger/internal/recorder"
)

// StatusProvider 提供记录引擎状态
type StatusProvider interface {
	Status() recorder.Status
	Ready() bool
}

// Options 服务器选项
type Options struct {
	Addr           string
	AllowedOrigins []string
	// Feed 事件流的WebSocket处理器，为 nil 时不注册该路由
	Feed   http.HandlerFunc
	Logger *slog.Logger
}

// APIServer 管理接口：健康检查、状态与实时事件流
type APIServer struct {
	router *mux.Router
	server *http.Server
	status StatusProvider
	feed   http.HandlerFunc
	logger *slog.Logger

	// 统计信息
	requestCount atomic.Int64
	errorCount   atomic.Int64
	startTime    time.Time
}

// APIResponse API响应结构
type APIResponse struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Message   string `json:"message,omitempty"`
	Code      string `json:"code,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// NewAPIServer 创建管理接口服务器
func NewAPIServer(status StatusProvider, opts Options) *APIServer {
	l := opts.Logger
	if l == nil {
		l = slog.Default()
	}
	s := &APIServer{
		router:    mux.NewRouter(),
		status:    status,
		feed:      opts.Feed,
		logger:    l,
		startTime: time.Now(),
	}

	s.setupRoutes()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})

	s.server = &http.Server{
		Addr:        opts.Addr,
		Handler:     c.Handler(s.router),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	return s
}

// setupRoutes 设置路由
func (s *APIServer) setupRoutes() {
	s.router.Use(s.loggingMiddleware)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", s.healthCheckHandler).Methods("GET")
	api.HandleFunc("/status", s.statusHandler).Methods("GET")
	api.HandleFunc("/metrics", s.metricsHandler).Methods("GET")
	if s.feed != nil {
		api.HandleFunc("/events/ws", s.feed).Methods("GET")
	}
}

// statusRecorder 记录响应码
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *APIServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// WebSocket 升级需要原始 ResponseWriter 的 Hijacker
		if r.Header.Get("Upgrade") != "" {
			s.requestCount.Add(1)
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.requestCount.Add(1)
		if rec.code >= http.StatusInternalServerError {
			s.errorCount.Add(1)
		}
		s.logger.Debug("HTTP request",
			"method", r.Method, "uri", r.RequestURI, "status", rec.code,
			"remote", r.RemoteAddr, "duration", time.Since(start))
	})
}

// healthCheckHandler 连接且持有会话时返回200，否则503
func (s *APIServer) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	st := s.status.Status()
	body := map[string]any{
		"state":  st.State,
		"uptime": time.Since(s.startTime).Seconds(),
	}
	if st.Session != nil {
		body["session_id"] = st.Session.ID
	}

	if !s.status.Ready() {
		s.writeJSONResponse(w, http.StatusServiceUnavailable, APIResponse{
			Success:   false,
			Data:      body,
			Code:      "store_unavailable",
			Message:   "Stats database is not connected",
			Timestamp: time.Now().UnixMilli(),
		})
		return
	}
	s.writeSuccessResponse(w, body)
}

func (s *APIServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	s.writeSuccessResponse(w, s.status.Status())
}

func (s *APIServer) metricsHandler(w http.ResponseWriter, r *http.Request) {
	s.writeSuccessResponse(w, s.GetStats())
}

func (s *APIServer) writeSuccessResponse(w http.ResponseWriter, data any) {
	s.writeJSONResponse(w, http.StatusOK, APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *APIServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("Failed to encode response", "error", err)
	}
}

// Handler 返回带CORS的根处理器
func (s *APIServer) Handler() http.Handler {
	return s.server.Handler
}

// Addr 监听地址
func (s *APIServer) Addr() string {
	return s.server.Addr
}

// Start 启动服务器，正常关闭时返回 nil
func (s *APIServer) Start() error {
	s.logger.Info("Starting HTTP admin server", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop 停止服务器
func (s *APIServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP admin server")
	return s.server.Shutdown(ctx)
}

// GetStats 获取服务器统计信息
func (s *APIServer) GetStats() map[string]any {
	return map[string]any{
		"uptime_seconds": time.Since(s.startTime).Seconds(),
		"total_requests": s.requestCount.Load(),
		"error_count":    s.errorCount.Load(),
	}
}

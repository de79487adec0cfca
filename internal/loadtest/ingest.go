package loadtest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	"GoEventLogger/internal/event"
	"GoEventLogger/internal/grpcserver"
)

const (
	// maxLatencySamples 保留的延迟样本上限
	maxLatencySamples = 10000
	// maxErrorKeyLen 错误分类键的最大字符数
	maxErrorKeyLen = 50
)

// IngestLoadTestConfig 事件接入负载测试配置
type IngestLoadTestConfig struct {
	ServerAddr        string
	ConcurrentClients int
	Duration          time.Duration
	TargetRPS         int // 目标每秒请求数（所有客户端合计）

	// EventNames 轮流发送的事件名
	EventNames         []string
	AttributesPerEvent int
	RequestTimeout     time.Duration
	KeepAliveTime      time.Duration
	KeepAliveTimeout   time.Duration

	// MaxConnections 共享的gRPC连接数，<=0 时每个客户端一条
	MaxConnections int
	DialOptions    []grpc.DialOption
}

// IngestLoadTestResult 负载测试结果
type IngestLoadTestResult struct {
	TotalRequests      int64            `json:"total_requests"`
	SuccessfulRequests int64            `json:"successful_requests"`
	FailedRequests     int64            `json:"failed_requests"`
	Duration           time.Duration    `json:"duration"`
	RequestsPerSecond  float64          `json:"requests_per_second"`
	Outcomes           map[string]int64 `json:"outcomes"`
	ErrorsByType       map[string]int64 `json:"errors_by_type"`

	// 延迟指标（毫秒）
	MinLatency float64 `json:"min_latency_ms"`
	MaxLatency float64 `json:"max_latency_ms"`
	AvgLatency float64 `json:"avg_latency_ms"`
	P50Latency float64 `json:"p50_latency_ms"`
	P95Latency float64 `json:"p95_latency_ms"`
	P99Latency float64 `json:"p99_latency_ms"`
}

// IngestLoadTester 事件接入负载测试器
type IngestLoadTester struct {
	config  *IngestLoadTestConfig
	logger  *slog.Logger
	clients []*grpcserver.Client
	metrics *ingestMetrics
}

type ingestMetrics struct {
	totalRequests   atomic.Int64
	successRequests atomic.Int64
	failedRequests  atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
	outcomes  map[string]int64
	errors    map[string]int64
}

// NewIngestLoadTester 创建负载测试器
func NewIngestLoadTester(config *IngestLoadTestConfig, l *slog.Logger) *IngestLoadTester {
	if l == nil {
		l = slog.Default()
	}
	return &IngestLoadTester{
		config: config,
		logger: l,
		metrics: &ingestMetrics{
			outcomes: make(map[string]int64),
			errors:   make(map[string]int64),
		},
	}
}

// Run 执行负载测试直到 Duration 到期或 ctx 取消，返回汇总结果
func (t *IngestLoadTester) Run(ctx context.Context) (*IngestLoadTestResult, error) {
	if t.config.ConcurrentClients <= 0 {
		return nil, fmt.Errorf("concurrent clients must be positive")
	}
	t.logger.Info("Starting ingest load test",
		"addr", t.config.ServerAddr, "clients", t.config.ConcurrentClients,
		"duration", t.config.Duration, "target_rps", t.config.TargetRPS)

	if err := t.initConnections(); err != nil {
		return nil, fmt.Errorf("failed to initialize connections: %w", err)
	}
	defer t.cleanup()

	ctx, cancel := context.WithTimeout(ctx, t.config.Duration)
	defer cancel()

	rpsPerClient := float64(t.config.TargetRPS) / float64(t.config.ConcurrentClients)
	if rpsPerClient <= 0 {
		rpsPerClient = 1
	}

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < t.config.ConcurrentClients; i++ {
		wg.Add(1)
		go func(clientID int) {
			defer wg.Done()
			t.clientWorker(ctx, clientID, rpsPerClient)
		}(i)
	}
	wg.Wait()

	result := t.generateResult(time.Since(start))
	t.logger.Info("Ingest load test completed",
		"requests", result.TotalRequests, "rps", result.RequestsPerSecond, "p99_ms", result.P99Latency)
	return result, nil
}

func (t *IngestLoadTester) initConnections() error {
	count := t.config.MaxConnections
	if count <= 0 {
		count = t.config.ConcurrentClients
	}

	opts := append([]grpc.DialOption{}, t.config.DialOptions...)
	if t.config.KeepAliveTime > 0 {
		opts = append(opts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                t.config.KeepAliveTime,
			Timeout:             t.config.KeepAliveTimeout,
			PermitWithoutStream: true,
		}))
	}

	for i := 0; i < count; i++ {
		c, err := grpcserver.Dial(t.config.ServerAddr, opts...)
		if err != nil {
			t.cleanup()
			return err
		}
		t.clients = append(t.clients, c)
	}
	return nil
}

// clientWorker 按固定间隔发送事件
func (t *IngestLoadTester) clientWorker(ctx context.Context, clientID int, rps float64) {
	client := t.clients[clientID%len(t.clients)]
	ticker := time.NewTicker(time.Duration(float64(time.Second) / rps))
	defer ticker.Stop()

	for requestID := 0; ; requestID++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// 截止后不再发起新请求
			if ctx.Err() != nil {
				return
			}
			t.executeRequest(ctx, client, clientID, requestID)
		}
	}
}

func (t *IngestLoadTester) executeRequest(ctx context.Context, client *grpcserver.Client, clientID, requestID int) {
	ev := t.buildEvent(clientID, requestID)

	// 已发出的请求不受测试截止时间影响，只受 RequestTimeout 约束
	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.config.RequestTimeout)
	defer cancel()

	start := time.Now()
	res, err := client.Record(reqCtx, ev)
	t.recordMetrics(time.Since(start), res.Outcome, err)
}

// buildEvent 构造测试事件，属性类型在 string/int/float 之间轮换
func (t *IngestLoadTester) buildEvent(clientID, requestID int) *event.Event {
	name := "loadtest_event"
	if n := len(t.config.EventNames); n > 0 {
		name = t.config.EventNames[requestID%n]
	}

	ev := event.New(name)
	for i := 0; i < t.config.AttributesPerEvent; i++ {
		key := "attr_" + strconv.Itoa(i)
		switch i % 3 {
		case 0:
			ev.SetInt(key, int64(clientID*1_000_000+requestID))
		case 1:
			ev.SetString(key, fmt.Sprintf("client_%d", clientID))
		default:
			ev.SetFloat(key, float64(requestID)/7)
		}
	}
	return ev
}

func (t *IngestLoadTester) recordMetrics(latency time.Duration, outcome string, err error) {
	t.metrics.totalRequests.Add(1)
	if err == nil && outcome == "committed" {
		t.metrics.successRequests.Add(1)
	} else {
		t.metrics.failedRequests.Add(1)
	}

	t.metrics.mu.Lock()
	defer t.metrics.mu.Unlock()

	t.metrics.latencies = append(t.metrics.latencies, latency)
	if len(t.metrics.latencies) > maxLatencySamples {
		t.metrics.latencies = t.metrics.latencies[1:]
	}

	if err != nil {
		t.metrics.errors[truncate(err.Error(), maxErrorKeyLen)]++
		return
	}
	t.metrics.outcomes[outcome]++
}

func (t *IngestLoadTester) generateResult(duration time.Duration) *IngestLoadTestResult {
	result := &IngestLoadTestResult{
		TotalRequests:      t.metrics.totalRequests.Load(),
		SuccessfulRequests: t.metrics.successRequests.Load(),
		FailedRequests:     t.metrics.failedRequests.Load(),
		Duration:           duration,
		Outcomes:           make(map[string]int64),
		ErrorsByType:       make(map[string]int64),
	}
	if duration > 0 {
		result.RequestsPerSecond = float64(result.TotalRequests) / duration.Seconds()
	}

	t.metrics.mu.Lock()
	defer t.metrics.mu.Unlock()

	for k, v := range t.metrics.outcomes {
		result.Outcomes[k] = v
	}
	for k, v := range t.metrics.errors {
		result.ErrorsByType[k] = v
	}

	latencies := append([]time.Duration(nil), t.metrics.latencies...)
	if len(latencies) == 0 {
		return result
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var total time.Duration
	for _, lat := range latencies {
		total += lat
	}
	result.MinLatency = ms(latencies[0])
	result.MaxLatency = ms(latencies[len(latencies)-1])
	result.AvgLatency = ms(total) / float64(len(latencies))
	result.P50Latency = ms(percentile(latencies, 0.50))
	result.P95Latency = ms(percentile(latencies, 0.95))
	result.P99Latency = ms(percentile(latencies, 0.99))
	return result
}

// percentile 已排序样本的百分位
func percentile(sorted []time.Duration, p float64) time.Duration {
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func ms(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}

func (t *IngestLoadTester) cleanup() {
	for _, c := range t.clients {
		c.Close()
	}
	t.clients = nil
}

// DefaultIngestLoadTestConfig 返回默认配置
func DefaultIngestLoadTestConfig(serverAddr string) *IngestLoadTestConfig {
	return &IngestLoadTestConfig{
		ServerAddr:         serverAddr,
		ConcurrentClients:  10,
		Duration:           time.Minute,
		TargetRPS:          100,
		EventNames:         []string{"player_death", "player_hurt", "round_start"},
		AttributesPerEvent: 4,
		RequestTimeout:     10 * time.Second,
		KeepAliveTime:      30 * time.Second,
		KeepAliveTimeout:   5 * time.Second,
		MaxConnections:     5,
	}
}

// truncate 按字符截断，不拆分多字节字符
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

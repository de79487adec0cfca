package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"GoEventLogger/internal/loadtest"
)

// NewBenchCommand 创建 bench 命令，对运行中记录器的 gRPC 接入做负载测试
func NewBenchCommand() *cobra.Command {
	var asJSON bool
	cfg := loadtest.DefaultIngestLoadTestConfig("localhost:9090")

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Load test the gRPC ingest endpoint",
		Long: `Send synthetic events to a running recorder from concurrent clients
and report throughput, latency percentiles and outcomes.

Examples:
  eventlogger bench --duration 30s --rps 500 --clients 20
  eventlogger bench --addr stats-host:9090 --events player_death,player_hurt --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := loadtest.NewIngestLoadTester(cfg, slog.Default()).Run(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			printBenchResult(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().StringVar(&cfg.ServerAddr, "addr", cfg.ServerAddr, "recorder gRPC address")
	cmd.Flags().IntVar(&cfg.ConcurrentClients, "clients", cfg.ConcurrentClients, "concurrent clients")
	cmd.Flags().IntVar(&cfg.MaxConnections, "connections", cfg.MaxConnections, "shared gRPC connections")
	cmd.Flags().DurationVar(&cfg.Duration, "duration", cfg.Duration, "test duration")
	cmd.Flags().IntVar(&cfg.TargetRPS, "rps", cfg.TargetRPS, "target requests per second")
	cmd.Flags().StringSliceVar(&cfg.EventNames, "events", cfg.EventNames, "event names to rotate through")
	cmd.Flags().IntVar(&cfg.AttributesPerEvent, "attributes", cfg.AttributesPerEvent, "attributes per event")
	cmd.Flags().DurationVar(&cfg.RequestTimeout, "timeout", cfg.RequestTimeout, "per-request timeout")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func printBenchResult(w io.Writer, r *loadtest.IngestLoadTestResult) {
	fmt.Fprintf(w, "📊 %d requests in %s (%.1f req/s)\n", r.TotalRequests, r.Duration.Round(time.Millisecond), r.RequestsPerSecond)
	fmt.Fprintf(w, "   committed %d, failed %d\n", r.SuccessfulRequests, r.FailedRequests)
	fmt.Fprintf(w, "   latency ms: min %.2f avg %.2f p50 %.2f p95 %.2f p99 %.2f max %.2f\n",
		r.MinLatency, r.AvgLatency, r.P50Latency, r.P95Latency, r.P99Latency, r.MaxLatency)

	for _, k := range sortedKeys(r.Outcomes) {
		fmt.Fprintf(w, "   outcome %-12s %d\n", k, r.Outcomes[k])
	}
	for _, k := range sortedKeys(r.ErrorsByType) {
		fmt.Fprintf(w, "   ❌ %s: %d\n", k, r.ErrorsByType[k])
	}
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

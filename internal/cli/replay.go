package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"GoEventLogger/internal/grpcserver"
)

// ReplayOptions replay 命令参数
type ReplayOptions struct {
	Addr       string
	File       string
	MaxElapsed time.Duration
	Timeout    time.Duration

	dialOptions []grpc.DialOption
}

// ReplaySummary 回放统计
type ReplaySummary struct {
	Sent     int
	Outcomes map[string]int
}

// NewReplayCommand 创建 replay 命令，把场景文件中的事件经 gRPC 发送给运行中的记录器
func NewReplayCommand() *cobra.Command {
	opts := &ReplayOptions{}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Send a scenario of events to a running recorder",
		Long: `Decode a YAML scenario and send each event to the recorder's gRPC
ingest endpoint. Transient transport failures are retried with exponential
backoff; malformed events fail immediately.

Examples:
  eventlogger replay --file testdata/round.yaml
  eventlogger replay --addr stats-host:9090 --file round.yaml --max-elapsed 1m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := runReplay(cmd.Context(), opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if n := summary.Sent - summary.Outcomes["committed"]; n > 0 {
				return fmt.Errorf("%d of %d events were not committed", n, summary.Sent)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "localhost:9090", "recorder gRPC address")
	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "scenario file (required)")
	_ = cmd.MarkFlagRequired("file")
	cmd.Flags().DurationVar(&opts.MaxElapsed, "max-elapsed", 30*time.Second, "give up retrying an event after this long")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 5*time.Second, "per-request timeout")

	return cmd
}

func runReplay(ctx context.Context, opts *ReplayOptions, out io.Writer) (*ReplaySummary, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	scenario, err := LoadScenario(opts.File)
	if err != nil {
		return nil, err
	}

	client, err := grpcserver.Dial(opts.Addr, opts.dialOptions...)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	summary := &ReplaySummary{Outcomes: make(map[string]int)}
	for i, se := range scenario.Events {
		ev, err := se.Event()
		if err != nil {
			return summary, err
		}

		if se.Delay > 0 {
			select {
			case <-time.After(se.Delay):
			case <-ctx.Done():
				return summary, ctx.Err()
			}
		}

		requestID := fmt.Sprintf("replay-%d", i)
		var res grpcserver.RecordResult
		send := func() error {
			callCtx, cancel := context.WithTimeout(grpcserver.WithRequestID(ctx, requestID), opts.Timeout)
			defer cancel()

			r, err := client.Record(callCtx, ev, grpc.WaitForReady(true))
			if err != nil {
				if retryable(err) {
					return err
				}
				return backoff.Permanent(err)
			}
			res = r
			return nil
		}

		b := backoff.NewExponentialBackOff()
		b.MaxElapsedTime = opts.MaxElapsed
		notify := func(err error, wait time.Duration) {
			fmt.Fprintf(out, "⚠️  %s: %v, retrying in %s\n", ev.Name, err, wait.Round(time.Millisecond))
		}
		if err := backoff.RetryNotify(send, backoff.WithContext(b, ctx), notify); err != nil {
			return summary, fmt.Errorf("failed to send %s (event %d): %w", ev.Name, i, err)
		}

		summary.Sent++
		summary.Outcomes[res.Outcome]++
		line := fmt.Sprintf("%-28s %-12s", ev.Name, res.Outcome)
		if res.EventID != "" {
			line += " id=" + res.EventID
		}
		if len(res.Skipped) > 0 {
			line += fmt.Sprintf(" skipped=%v", res.Skipped)
		}
		if res.Error != "" {
			line += " error=" + res.Error
		}
		fmt.Fprintln(out, line)
	}

	fmt.Fprintf(out, "📊 sent %d events: %d committed, %d dropped, %d rolled back, %d failed\n",
		summary.Sent, summary.Outcomes["committed"], summary.Outcomes["dropped"],
		summary.Outcomes["rolled_back"], summary.Outcomes["failed"])
	return summary, nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return true
	default:
		return false
	}
}

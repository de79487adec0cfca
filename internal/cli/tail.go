package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"GoEventLogger/internal/logger"
	"GoEventLogger/internal/wsclient"
)

// TailOptions tail 命令参数
type TailOptions struct {
	URL   string
	JSON  bool
	Tries int
}

// NewTailCommand 创建 tail 命令，订阅运行中记录器的实时事件流
func NewTailCommand() *cobra.Command {
	opts := &TailOptions{}

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow the live event feed of a running recorder",
		Long: `Subscribe to the recorder's WebSocket event feed and print every
processed event with its outcome. Reconnects automatically when the
recorder restarts.

Examples:
  eventlogger tail
  eventlogger tail --url ws://stats-host:8080/api/v1/events/ws --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg := wsclient.DefaultClientConfig(opts.URL)
			cfg.MaxReconnectTries = opts.Tries
			client := wsclient.New(cfg, slog.Default())

			out := cmd.OutOrStdout()
			client.SetEntryHandler(func(e logger.FeedEntry) {
				if opts.JSON {
					_ = json.NewEncoder(out).Encode(e)
					return
				}
				printEntry(out, e)
			})
			return client.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&opts.URL, "url", "ws://localhost:8080/api/v1/events/ws", "event feed URL")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "print raw JSON entries")
	cmd.Flags().IntVar(&opts.Tries, "max-retries", 0, "reconnect attempts per outage (0 = unlimited)")
	return cmd
}

func printEntry(w io.Writer, e logger.FeedEntry) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-12s %-28s", e.Time.Format("15:04:05.000"), e.Outcome, e.Name)
	if e.EventID != "" {
		fmt.Fprintf(&b, " id=%s", e.EventID)
	}
	for _, a := range e.Attributes {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
	}
	if len(e.Skipped) > 0 {
		fmt.Fprintf(&b, " skipped=%v", e.Skipped)
	}
	if e.Error != "" {
		fmt.Fprintf(&b, " error=%q", e.Error)
	}
	fmt.Fprintln(w, b.String())
}

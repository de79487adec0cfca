package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"GoEventLogger/internal/config"
	"GoEventLogger/internal/grpcserver"
	"GoEventLogger/internal/httpserver"
	"GoEventLogger/internal/lifecycle"
	"GoEventLogger/internal/logger"
	"GoEventLogger/internal/recorder"
	"GoEventLogger/internal/session"
)

// shutdownTimeout 关闭时等待服务器与存储的最长时间
const shutdownTimeout = 10 * time.Second

// NewRunCommand 创建 run 命令：以独立进程运行记录器
func NewRunCommand(root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the recorder as a standalone process",
		Long: `Connect to the statistics store, open a session and drive the
heartbeat from a local tick loop. Events arrive over the gRPC ingest
endpoint; health, status and a live event feed are served over HTTP.

Stops cleanly on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			mgr := config.NewManager(
				config.WithConfigPath(root.ConfigPath),
				config.WithWatchEnabled(true),
			)
			cfg, err := mgr.Load()
			if err != nil {
				return err
			}

			l, err := logger.Init(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			if f := mgr.ConfigFile(); f != "" {
				l.Info("Loaded config", "file", f)
			}
			mgr.OnChange(func(old, updated *config.Config) {
				if old.Log.Level != updated.Log.Level {
					if err := logger.SetLevel(updated.Log.Level); err != nil {
						l.Warn("Ignoring log level change", "error", err)
						return
					}
					l.Info("Log level changed", "from", old.Log.Level, "to", updated.Log.Level)
				}
				if old.Database != updated.Database || old.Heartbeat != updated.Heartbeat {
					l.Warn("Database and heartbeat settings take effect after restart")
				}
			})

			return NewService(cfg, l).Run(ctx)
		},
	}
	return cmd
}

// Service 独立运行的记录器进程：引擎、帧循环与对外接口
type Service struct {
	cfg    *config.Config
	logger *slog.Logger

	feed   *logger.EventFeed
	roster *session.Roster
	engine *recorder.Engine
	plugin *lifecycle.Plugin
	api    *httpserver.APIServer
	ingest *grpcserver.Server
}

// NewService 按配置组装服务
func NewService(cfg *config.Config, l *slog.Logger) *Service {
	if l == nil {
		l = slog.Default()
	}
	s := &Service{
		cfg:    cfg,
		logger: l,
		feed:   logger.NewEventFeed(l),
		roster: session.NewRoster(),
	}

	s.engine = recorder.NewEngine(recorder.EngineConfig{
		Descriptor:        cfg.Database.DSN,
		HeartbeatInterval: cfg.Heartbeat.IntervalTicks,
		Host:              s.roster,
		Publisher:         s.feed,
		ConnectTimeout:    cfg.Database.ConnectTimeout,
		Logger:            l,
	})
	s.plugin = lifecycle.NewPlugin(s.engine)

	if cfg.HTTP.Enabled {
		s.api = httpserver.NewAPIServer(s.engine, httpserver.Options{
			Addr:           cfg.HTTP.Addr,
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
			Feed:           s.feed.ServeWS,
			Logger:         l,
		})
	}
	if cfg.GRPC.Enabled {
		s.ingest = grpcserver.NewServer(cfg.GRPC.Addr, s.engine, l)
	}
	return s
}

// Engine 返回记录引擎
func (s *Service) Engine() *recorder.Engine {
	return s.engine
}

// Run 启动并阻塞到 ctx 取消或某个服务器失败，随后按顺序关闭
func (s *Service) Run(ctx context.Context) error {
	feedCtx, cancelFeed := context.WithCancel(context.Background())
	defer cancelFeed()
	go s.feed.Run(feedCtx)

	if err := s.plugin.Load(ctx); err != nil {
		s.logger.Warn("Store unavailable at startup, heartbeat will keep retrying", "error", err)
	}

	errCh := make(chan error, 2)
	if s.api != nil {
		go func() {
			if err := s.api.Start(); err != nil {
				errCh <- fmt.Errorf("http server: %w", err)
			}
		}()
	}
	if s.ingest != nil {
		go func() {
			if err := s.ingest.Start(); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	s.logger.Info("🚀 Event recorder running",
		"dialect", s.engine.Status().Dialect,
		"tick_interval", s.cfg.TickInterval(),
		"heartbeat_interval_ticks", s.cfg.Heartbeat.IntervalTicks)

	var runErr error
	ticker := time.NewTicker(s.cfg.TickInterval())
	defer ticker.Stop()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err := <-errCh:
			runErr = err
			break loop
		case <-ticker.C:
			s.plugin.GameFrame(ctx, true)
		}
	}

	s.shutdown()
	return runErr
}

func (s *Service) shutdown() {
	s.logger.Info("Shutting down event recorder")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if s.ingest != nil {
		s.ingest.Stop(ctx)
	}
	if s.api != nil {
		if err := s.api.Stop(ctx); err != nil {
			s.logger.Warn("HTTP server shutdown", "error", err)
		}
	}
	s.plugin.Unload(ctx)
	s.feed.Close()

	st := s.engine.Status().Stats
	s.logger.Info("👋 Event recorder stopped",
		"committed", st.Committed, "dropped", st.Dropped, "rolled_back", st.RolledBack)
}

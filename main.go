package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"streambreakout/client"
	"streambreakout/protocol"
	"streambreakout/server"
)

// Stream Breakout 入口：serve 启动聚合服务，play 启动无界面玩家端
func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "streambreakout",
		Short:         "Live-stream driven breakout: aggregation server and headless player",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newPlayCmd())
	return root
}

type serveOptions struct {
	configPath string
	port       int
	logLevel   string
	noAuto     bool
}

func (o *serveOptions) bind(fs *pflag.FlagSet) {
	fs.StringVarP(&o.configPath, "config", "c", "", "YAML config file (defaults are used when empty)")
	fs.IntVarP(&o.port, "port", "p", 0, "listen port, overrides config and PORT")
	fs.StringVar(&o.logLevel, "log-level", "", "log level override: debug|info|warn|error")
	fs.BoolVar(&o.noAuto, "no-auto-events", false, "disable simulated audience events")
}

func newServeCmd() *cobra.Command {
	var o serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the websocket aggregation server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), o)
		},
	}
	o.bind(cmd.Flags())
	return cmd
}

func runServe(ctx context.Context, o serveOptions) error {
	cfg, err := server.LoadConfig(o.configPath)
	if err != nil {
		return err
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.noAuto {
		cfg.AutoEvent.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	// 使用第三方 zap 日志库写入日志文件（带滚动）
	if err := server.InitLogger(cfg.Log); err != nil {
		return err
	}
	defer server.SyncLogger()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := server.NewMetrics()
	session := server.NewSession(cfg, metrics)
	auto := server.NewAutoEventer(session, cfg.AutoEvent)

	addr := ":" + strconv.Itoa(cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           server.NewHandler(cfg, session, auto, metrics),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		session.Run(ctx)
		return nil
	})
	g.Go(func() error {
		auto.Run(ctx)
		return nil
	})
	g.Go(func() error {
		server.Log.Infof("Stream Breakout listening on %s (ws endpoint: /ws)", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	// 优雅退出（Ctrl+C）
	g.Go(func() error {
		<-ctx.Done()
		server.Log.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

type playOptions struct {
	url          string
	origin       string
	logFile      string
	logLevel     string
	restartDelay time.Duration
	simulate     []string
	name         string
	level        int
}

func (o *playOptions) bind(fs *pflag.FlagSet) {
	fs.StringVar(&o.url, "url", "ws://localhost:3001/ws", "server websocket endpoint")
	fs.StringVar(&o.origin, "origin", "http://localhost:3000", "Origin header sent on connect")
	fs.StringVar(&o.logFile, "log-file", "play.log", "log file")
	fs.StringVar(&o.logLevel, "log-level", "info", "log level: debug|info|warn|error")
	fs.DurationVar(&o.restartDelay, "restart-delay", client.DefaultRestartDelay, "auto restart after game over; negative disables")
	fs.StringSliceVar(&o.simulate, "simulate", nil, "event types to inject once connected (like,comment,subscription)")
	fs.StringVar(&o.name, "name", "TestUser", "viewer name for --simulate")
	fs.IntVar(&o.level, "level", 1, "viewer level for --simulate")
}

func newPlayCmd() *cobra.Command {
	var o playOptions
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Run a headless player that connects to a server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPlay(cmd.Context(), o)
		},
	}
	o.bind(cmd.Flags())
	return cmd
}

func runPlay(ctx context.Context, o playOptions) error {
	events := make([]protocol.EventType, 0, len(o.simulate))
	for _, s := range o.simulate {
		t, err := protocol.ParseEventType(s)
		if err != nil {
			return err
		}
		events = append(events, t)
	}
	if err := server.InitLogger(server.LogConfig{File: o.logFile, Level: o.logLevel, Console: true}); err != nil {
		return err
	}
	defer server.SyncLogger()
	log := server.Log.Named("play")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var game *client.Game
	connected := make(chan struct{}, 1)
	sock := client.NewSocket(client.SocketOptions{
		URL:     o.url,
		Origin:  o.origin,
		OnFrame: func(b []byte) { game.Deliver(b) },
		OnState: func(s client.ConnState) {
			log.Infow("connection state", "state", s)
			if s == client.StateConnected {
				select {
				case connected <- struct{}{}:
				default:
				}
			}
		},
		Logger: log,
	})
	game = client.NewGame(sock, client.GameOptions{RestartDelay: o.restartDelay, Logger: log})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sock.Run(ctx) })
	g.Go(func() error { return game.Run(ctx) })
	if len(events) > 0 {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return nil
			case <-connected:
			}
			for _, t := range events {
				ev := protocol.StreamEvent{Type: t, UserData: protocol.UserData{Name: o.name, Level: o.level}}
				if err := ev.Validate(); err != nil {
					return err
				}
				if !sock.Send(protocol.MsgSimulateEvent, ev) {
					log.Warnw("simulate event not sent", "type", t)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

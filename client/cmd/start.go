package cmd

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/julienstroheker/wsockify/client/tunnel"
	"github.com/julienstroheker/wsockify/gateway/http"
	"github.com/julienstroheker/wsockify/internal/config"
	"github.com/julienstroheker/wsockify/internal/logging"
	"github.com/julienstroheker/wsockify/internal/metrics"
)

const defaultListenAddr = "127.0.0.1:5901"

var (
	listenFlag          string
	remoteURLFlag       string
	backlogFlag         int
	maxSessionsFlag     int64
	dialTimeoutFlag     time.Duration
	shutdownTimeoutFlag time.Duration
	metricsAddrFlag     string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Listen for TCP clients and relay them to a WebSocket",
	Long: `Listen for TCP clients and relay each one over its own WebSocket connection
to the remote URL. Closing either side closes the other.`,
	Example: `  unwebsockify start --remote-url ws://vnc.example.com:6080/websockify
  unwebsockify start --listen 127.0.0.1:5901 --remote-url wss://host/ws --metrics-addr :9090`,
	RunE: func(cmd *cobra.Command, args []string) error {
		applyStartFlags(cmd)
		return runUnwebsockify(cmd)
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
	startCmd.Flags().StringVarP(&listenFlag, "listen", "l", defaultListenAddr, "Local TCP address to listen on")
	startCmd.Flags().StringVarP(&remoteURLFlag, "remote-url", "u", "", "ws:// or wss:// URL clients are relayed to")
	startCmd.Flags().IntVar(&backlogFlag, "backlog", config.RecommendedListenBacklog, "TCP accept backlog (minimum 128)")
	startCmd.Flags().Int64Var(&maxSessionsFlag, "max-sessions", 0, "Maximum concurrent sessions (0 = unbounded)")
	startCmd.Flags().DurationVar(&dialTimeoutFlag, "dial-timeout", 30*time.Second, "Timeout for the WebSocket handshake")
	startCmd.Flags().DurationVar(&shutdownTimeoutFlag, "shutdown-timeout", 30*time.Second, "Graceful shutdown timeout")
	startCmd.Flags().StringVar(&metricsAddrFlag, "metrics-addr", "", "Address serving /metrics and /healthz (disabled when empty)")
}

// applyStartFlags overrides configuration with flags set on the command line
func applyStartFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.Unwebsockify.ListenAddr = listenFlag
	}
	if flags.Changed("remote-url") {
		cfg.Unwebsockify.RemoteURL = remoteURLFlag
	}
	if flags.Changed("backlog") {
		cfg.Unwebsockify.ListenBacklog = backlogFlag
	}
	if flags.Changed("max-sessions") {
		cfg.MaxSessions = maxSessionsFlag
	}
	if flags.Changed("dial-timeout") {
		cfg.DialTimeout = dialTimeoutFlag
	}
	if flags.Changed("shutdown-timeout") {
		cfg.ShutdownTimeout = shutdownTimeoutFlag
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = metricsAddrFlag
	}
}

func runUnwebsockify(cmd *cobra.Command) error {
	defer func() { _ = logger.Close() }()

	if err := cfg.Validate(config.ModeUnwebsockify); err != nil {
		return err
	}

	var m *metrics.Metrics
	if cfg.MetricsAddr != "" {
		m = metrics.New("wsockify", config.ModeUnwebsockify.String())
	}

	u, err := tunnel.New(&tunnel.Options{
		RemoteURL:         cfg.Unwebsockify.RemoteURL,
		ListenAddr:        cfg.Unwebsockify.ListenAddr,
		ListenBacklog:     cfg.Unwebsockify.ListenBacklog,
		ReceiveBufferSize: cfg.Unwebsockify.ReceiveBufferSize,
		SendBufferSize:    cfg.Unwebsockify.SendBufferSize,
		MaxSessions:       cfg.MaxSessions,
		DialTimeout:       cfg.DialTimeout,
		Subprotocols:      cfg.Unwebsockify.Subprotocols,
		Logger:            logger,
		Metrics:           m,
	})
	if err != nil {
		return fmt.Errorf("failed to create unwebsockify: %w", err)
	}

	cmd.Printf("Relaying %s to %s\n", cfg.Unwebsockify.ListenAddr, cfg.Unwebsockify.RemoteURL)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return u.Start(gctx)
	})

	var server *http.Server
	if m != nil {
		server = http.NewServer(&http.Options{
			Addr:    cfg.MetricsAddr,
			Health:  u.Healthy,
			Logger:  logger,
			Metrics: m,
		})
		g.Go(func() error {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
				return fmt.Errorf("metrics server error: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down", logging.Duration("timeout", cfg.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := u.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("could not stop relay sessions: %w", err))
		}
		if server != nil {
			if err := server.Shutdown(shutdownCtx); err != nil {
				_ = server.Close()
				errs = append(errs, fmt.Errorf("could not gracefully shutdown the metrics server: %w", err))
			}
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	cmd.Println("Relay stopped")
	return nil
}

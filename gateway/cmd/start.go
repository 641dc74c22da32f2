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

	"github.com/julienstroheker/wsockify/gateway/http"
	"github.com/julienstroheker/wsockify/gateway/tunnel"
	"github.com/julienstroheker/wsockify/internal/config"
	"github.com/julienstroheker/wsockify/internal/logging"
	"github.com/julienstroheker/wsockify/internal/metrics"
)

const (
	defaultListenAddr      = ":8080"
	defaultShutdownTimeout = 30 * time.Second
)

var (
	listenFlag          string
	pathFlag            string
	targetHostFlag      string
	targetPortFlag      int
	bufferSizeFlag      int
	maxSessionsFlag     int64
	dialTimeoutFlag     time.Duration
	shutdownTimeoutFlag time.Duration
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the websockify HTTP server",
	Long: `Start the HTTP server that upgrades WebSocket clients on the configured path
and relays each one to the TCP target. /healthz and /metrics are served alongside.`,
	Example: `  websockify start --target-host localhost --target-port 5900
  WSOCKIFY_WEBSOCKIFY_TARGET_PORT=5900 websockify start --listen :6080`,
	RunE: func(cmd *cobra.Command, args []string) error {
		applyStartFlags(cmd)
		return runWebsockify(cmd)
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
	startCmd.Flags().StringVarP(&listenFlag, "listen", "l", defaultListenAddr, "HTTP address to listen on")
	startCmd.Flags().StringVar(&pathFlag, "path", http.DefaultPath, "Route WebSocket clients connect to")
	startCmd.Flags().StringVar(&targetHostFlag, "target-host", "localhost", "TCP host sessions are relayed to")
	startCmd.Flags().IntVarP(&targetPortFlag, "target-port", "p", 0, "TCP port sessions are relayed to")
	startCmd.Flags().IntVar(&bufferSizeFlag, "buffer-size", config.RecommendedBufferSize,
		"Relay buffer size in bytes, for both directions")
	startCmd.Flags().Int64Var(&maxSessionsFlag, "max-sessions", 0, "Maximum concurrent sessions (0 = unbounded)")
	startCmd.Flags().DurationVar(&dialTimeoutFlag, "dial-timeout", 30*time.Second, "Timeout for connecting to the target")
	startCmd.Flags().DurationVar(&shutdownTimeoutFlag, "shutdown-timeout", defaultShutdownTimeout,
		"Graceful shutdown timeout")
}

// applyStartFlags overrides configuration with flags set on the command line
func applyStartFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.Websockify.ListenAddr = listenFlag
	}
	if flags.Changed("path") {
		cfg.Websockify.Path = pathFlag
	}
	if flags.Changed("target-host") {
		cfg.Websockify.TargetHost = targetHostFlag
	}
	if flags.Changed("target-port") {
		cfg.Websockify.TargetPort = targetPortFlag
	}
	if flags.Changed("buffer-size") {
		cfg.Websockify.BufferSize = bufferSizeFlag
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
}

func runWebsockify(cmd *cobra.Command) error {
	defer func() { _ = logger.Close() }()

	if err := cfg.Validate(config.ModeWebsockify); err != nil {
		return err
	}

	m := metrics.New("wsockify", config.ModeWebsockify.String())

	ws, err := tunnel.New(&tunnel.Options{
		TargetHost:   cfg.Websockify.TargetHost,
		TargetPort:   cfg.Websockify.TargetPort,
		BufferSize:   cfg.Websockify.BufferSize,
		MaxSessions:  cfg.MaxSessions,
		DialTimeout:  cfg.DialTimeout,
		Subprotocols: cfg.Websockify.Subprotocols,
		Path:         cfg.Websockify.Path,
		Logger:       logger,
		Metrics:      m,
	})
	if err != nil {
		return fmt.Errorf("failed to create websockify: %w", err)
	}

	server := http.NewServer(&http.Options{
		Addr:       cfg.Websockify.ListenAddr,
		Websockify: ws.Handler(),
		Path:       cfg.Websockify.Path,
		Health:     ws.Healthy,
		Logger:     logger,
		Metrics:    m,
	})

	cmd.Printf("Relaying %s%s to %s\n", cfg.Websockify.ListenAddr, cfg.Websockify.Path, ws.Target())

	// Channel to listen for an interrupt or terminate signal from the OS.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ws.Start(gctx)
	})

	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down", logging.Duration("timeout", cfg.ShutdownTimeout))

		// Give outstanding requests and sessions a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := server.Shutdown(shutdownCtx); err != nil {
			_ = server.Close()
			errs = append(errs, fmt.Errorf("could not gracefully shutdown the server: %w", err))
		}
		if err := ws.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("could not stop relay sessions: %w", err))
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	cmd.Println("Server stopped gracefully")
	return nil
}

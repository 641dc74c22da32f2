package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/julienstroheker/wsockify/internal/httpclient"
)

var (
	healthURLFlag     string
	healthTimeoutFlag time.Duration
	healthRetriesFlag int
)

var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check a running websockify server",
	Long: `Query the /healthz endpoint of a running websockify server and exit non-zero
unless it reports healthy. Suitable for container health checks.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHealthcheck(cmd)
	},
}

func init() {
	rootCmd.AddCommand(healthcheckCmd)
	healthcheckCmd.Flags().StringVar(&healthURLFlag, "url", "http://127.0.0.1:8080/healthz", "Health endpoint to query")
	healthcheckCmd.Flags().DurationVar(&healthTimeoutFlag, "timeout", 5*time.Second, "Overall health check deadline")
	healthcheckCmd.Flags().IntVar(&healthRetriesFlag, "retries", 3, "Retries while the server is unavailable")
}

func runHealthcheck(cmd *cobra.Command) error {
	defer func() { _ = logger.Close() }()

	opts := httpclient.DefaultOptions()
	opts.MaxRetries = healthRetriesFlag
	opts.Logger = logger
	opts.UserAgent = httpclient.UserAgent(rootCmd.Name() + "-healthcheck")
	client := httpclient.NewClient(opts)

	ctx, cancel := context.WithTimeout(cmd.Context(), healthTimeoutFlag)
	defer cancel()

	resp, err := client.Get(ctx, healthURLFlag)
	if err != nil {
		var reqErr *httpclient.RequestError
		if errors.As(err, &reqErr) && reqErr.Timeout() {
			return fmt.Errorf("health check timed out after %s: %w", healthTimeoutFlag, err)
		}
		return fmt.Errorf("health check failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode != nethttp.StatusOK {
		return fmt.Errorf("health check failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	cmd.Println(strings.TrimSpace(string(body)))
	return nil
}

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/julienstroheker/wsockify/internal/config"
	"github.com/julienstroheker/wsockify/internal/logging"
)

var (
	cfg         *config.Config
	logger      *logging.Logger
	verboseFlag bool
	jsonFlag    bool
	configFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "unwebsockify",
	Short: "TCP to WebSocket relay",
	Long: `unwebsockify - accepts plain TCP clients and relays each one over a fresh
WebSocket connection to a fixed remote URL, such as a websockify server`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Load configuration
		loaded, err := config.Load(configFlag)
		if err != nil {
			return err
		}
		cfg = loaded

		// Determine log level
		level := logging.ParseLevel(cfg.LogLevel)
		if verboseFlag {
			level = logging.DebugLevel
		}

		// Determine format
		format := logging.ParseFormat(cfg.LogFormat)
		if jsonFlag {
			format = logging.FormatJSON
		}

		// Initialize logger
		logger = logging.NewWithConfig(level, format, logging.FileConfig{Path: cfg.LogFile})
		logger.Debug("Logger initialized",
			logging.String("level", level.String()),
			logging.String("format", format.String()),
		)
		return nil
	},
}

func init() {
	// Disable default completion and help commands
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	// Add persistent flags
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose logging (debug level)")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Path to a YAML configuration file")
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GetLogger returns the global logger instance
func GetLogger() *logging.Logger {
	return logger
}

// GetConfig returns the global config instance
func GetConfig() *config.Config {
	return cfg
}

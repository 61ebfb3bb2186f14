package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bamsammich/beamsplit/internal/config"
	"github.com/bamsammich/beamsplit/internal/ui"
)

var version = "dev"

func main() {
	os.Exit(run())
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logFile    string
	verbose    bool
	quiet      bool
}

// closers run after the command finishes.
var closers []io.Closer

func run() int {
	var (
		gf          globalFlags
		showVersion bool
	)

	rootCmd := &cobra.Command{
		Use:   "beamsplit",
		Short: "Split large directory trees into chunks and copy them in parallel with robocopy",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setupLogging(gf)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if showVersion {
				fmt.Fprintf(os.Stdout, "beamsplit %s\n", version)
				return nil
			}
			return cmd.Help()
		},
	}

	rootCmd.Flags().BoolVar(&showVersion, "version", false, "print version and exit")
	rootCmd.PersistentFlags().
		StringVarP(&gf.configPath, "config", "c", "", "config file (default: $XDG_CONFIG_HOME/beamsplit/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&gf.verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&gf.quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.PersistentFlags().StringVar(&gf.logFile, "log", "", "write structured JSON log to FILE")

	rootCmd.AddCommand(newRunCmd(&gf))
	rootCmd.AddCommand(newPlanCmd(&gf))
	rootCmd.AddCommand(newValidateCmd(&gf))
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newRetryCmd())
	rootCmd.AddCommand(newSkipCmd())
	rootCmd.AddCommand(docsCmd)

	err := rootCmd.Execute()
	for _, c := range closers {
		_ = c.Close() //nolint:errcheck // best-effort flush of the log file
	}
	if err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			if exitErr.err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", exitErr.err)
			}
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	return 0
}

// setupLogging installs the default slog logger: text on stderr at a level
// chosen by -v/-q, plus a debug-level JSON handler when --log is set.
func setupLogging(gf globalFlags) error {
	logLevel := slog.LevelWarn
	if gf.verbose {
		logLevel = slog.LevelDebug
	} else if !gf.quiet {
		logLevel = slog.LevelInfo
	}
	textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	var logHandler slog.Handler = textHandler
	if gf.logFile != "" {
		lf, err := os.Create(gf.logFile)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		closers = append(closers, lf)
		jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
		logHandler = ui.NewMultiHandler(textHandler, jsonHandler)
	}
	slog.SetDefault(slog.New(logHandler))
	return nil
}

// loadConfig reads and validates the config file and resolves run settings
// from it, the environment and explicitly set flags.
func loadConfig(gf *globalFlags) (config.Config, config.Settings, error) {
	cfg, err := config.Load(gf.configPath)
	if err != nil {
		return config.Config{}, config.Settings{}, usageError(err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, config.Settings{}, usageError(fmt.Errorf("invalid config: %w", err))
	}
	settings, err := cfg.Settings()
	if err != nil {
		return config.Config{}, config.Settings{}, usageError(err)
	}
	if err := settings.ApplyEnv(os.LookupEnv); err != nil {
		return config.Config{}, config.Settings{}, usageError(err)
	}
	return cfg, settings, nil
}

// exitError carries a process exit code: 1 for a failed or stopped run,
// 2 for usage and configuration errors.
type exitError struct {
	err  error
	code int
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit code %d", e.code)
}

func (e *exitError) Unwrap() error { return e.err }

func usageError(err error) error { return &exitError{err: err, code: 2} }

func newValidateCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config file and print the resolved settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, s, err := loadConfig(gf)
			if err != nil {
				return err
			}
			if err := s.Validate(); err != nil {
				return usageError(err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config ok: %d profiles\n", len(cfg.Profiles))
			fmt.Fprintf(out, "max_concurrent_jobs=%d max_retries=%d copy_tool=%s checkpoint=%t\n",
				s.MaxConcurrentJobs, s.MaxRetries, s.CopyTool, s.Checkpoint)
			for _, p := range cfg.Profiles {
				state := "enabled"
				if p.Disabled {
					state = "disabled"
				}
				fmt.Fprintf(out, "  %s (%s): %s -> %s\n", p.Name, state, p.Source, p.Destination)
			}
			return nil
		},
	}
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/sydney-stream/sydney/config"
	"github.com/ZanzyTHEbar/sydney-stream/sydney/credentials"
	"github.com/ZanzyTHEbar/sydney-stream/sydney/db"
	"github.com/ZanzyTHEbar/sydney-stream/sydney/harness"
	ports "github.com/ZanzyTHEbar/sydney-stream/sydney/harness/ports"
	"github.com/ZanzyTHEbar/sydney-stream/sydney/logging"
)

var version = "0.1.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sydney",
	Short: "Streaming client for the Bing chat service",
	Long: `sydney sends one turn at a time to the Bing chat service and streams
the reply to the terminal. Conversations are kept as flat annotated
transcripts, either in a file or in a named workspace.

Examples:
  sydney ask "What is a quasar?"
  sydney ask --transcript chat.md --no-search "Summarize the above"
  sydney ask --workspace research --image diagram.png "Explain this"
  sydney revoke --transcript chat.md
  sydney upload photo.jpg`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(revokeCmd)
	rootCmd.AddCommand(uploadCmd)

	rootCmd.PersistentFlags().String("config", "", "Path to the config file")
	rootCmd.PersistentFlags().String("cookies", "", "Path to the exported cookies file (overrides config)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
}

// app is the wired runtime shared by the subcommands.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	orch   *harness.Orchestrator
	close  func()
}

func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Logging.Level = "debug"
	}

	logger, err := logging.New(cfg.Logging, os.Stderr)
	if err != nil {
		return nil, err
	}

	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	cookies := cfg.Credentials.CookiesFile
	if override, _ := cmd.Flags().GetString("cookies"); override != "" {
		cookies = override
	}
	creds, stop, err := credentialSource(ctx, cookies, cfg.Credentials.Watch, logger)
	if err != nil {
		return nil, err
	}
	closers = append(closers, stop)

	var database *sql.DB
	if cfg.Harness.PersistTranscripts {
		database, err = db.ConnectToDB(ctx, cfg.Database.DSN, logger)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("open transcript database: %w", err)
		}
		closers = append(closers, func() { _ = database.Close() })
	}

	orch, err := harness.NewFactory(cfg, database, logger).CreateOrchestrator(creds)
	if err != nil {
		closeAll()
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, orch: orch, close: closeAll}, nil
}

// credentialSource loads the cookies file once, or keeps it fresh when
// watching is enabled.
func credentialSource(ctx context.Context, path string, watch bool, logger zerolog.Logger) (ports.CredentialSource, func(), error) {
	if !watch {
		creds, err := credentials.Load(path)
		if err != nil {
			return nil, nil, err
		}
		if len(creds) == 0 {
			logger.Warn().Str("path", path).Msg("no cookies found, continuing anonymously")
		}
		return credentials.Static(creds), func() {}, nil
	}

	w, err := credentials.NewWatcher(path, logger)
	if err != nil {
		return nil, nil, err
	}
	w.Start(ctx)
	return w, func() {
		if err := w.Close(); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn().Err(err).Msg("failed to stop cookies watcher")
		}
	}, nil
}

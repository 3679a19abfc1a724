package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"ArbusChat/internal/backend"
	"ArbusChat/internal/chatbot"
	"ArbusChat/internal/config"
	"ArbusChat/internal/credential"
	"ArbusChat/internal/shell"
	"ArbusChat/internal/store"
	"ArbusChat/internal/telemetry"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var version = "dev"

// flags holds the persistent flags shared by every command.
type flags struct {
	envFile string
	dataDir string
	debug   bool
	plain   bool
	model   string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:   "arbuschat",
		Short: "Chat with Claude from your terminal",
		Long: `Chat with Claude, Anthropic's AI assistant, from your terminal.

You need your own Anthropic API key. It is asked for on first start and
kept in a local database under the data directory; it is only ever sent
to the Anthropic API.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			return runChat(cmd, cfg)
		},
	}

	cmd.PersistentFlags().StringVar(&f.envFile, "env-file", ".env", "Load ARBUSCHAT_* settings from this file when it exists")
	cmd.PersistentFlags().StringVar(&f.dataDir, "data-dir", "", "Directory for the settings database and logs (default $HOME/.arbuschat)")
	cmd.PersistentFlags().BoolVar(&f.debug, "debug", false, "Enable debug logging")
	cmd.Flags().BoolVar(&f.plain, "plain", false, "Print replies without markdown rendering")
	cmd.Flags().StringVar(&f.model, "model", "", "Model to chat with")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "Per-request timeout, 0 to wait indefinitely")

	cmd.AddCommand(newKeyCmd(f))
	return cmd
}

// load reads the configuration and applies the flags the user set.
func (f *flags) load(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(f.envFile)
	if err != nil {
		return config.Config{}, err
	}

	if f.dataDir != "" {
		logDirDefault := cfg.LogDir == config.Default(cfg.DataDir).LogDir
		cfg.DataDir = f.dataDir
		if logDirDefault {
			cfg.LogDir = config.Default(f.dataDir).LogDir
		}
	}
	if f.debug {
		cfg.Debug = true
	}
	if fl := cmd.Flags().Lookup("plain"); fl != nil && fl.Changed {
		cfg.Plain = f.plain
	}
	if fl := cmd.Flags().Lookup("model"); fl != nil && fl.Changed {
		cfg.Model = f.model
	}
	if fl := cmd.Flags().Lookup("timeout"); fl != nil && fl.Changed {
		cfg.RequestTimeout = f.timeout
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func openCredentials(cfg config.Config) (credential.Store, func() error, error) {
	db, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return credential.NewSettingsStore(store.NewSettings(db), cfg.CredentialKey), db.Close, nil
}

func runChat(cmd *cobra.Command, cfg config.Config) error {
	logger, closeLog, err := telemetry.InitLogger(cfg.LogDir, cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer closeLog()

	if cfg.Debug {
		logger.Info("Debug mode enabled")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	providers, err := telemetry.InitTelemetry(ctx, cfg.LogDir, version)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown telemetry", "error", err)
		}
	}()

	creds, closeDB, err := openCredentials(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	client := backend.NewAnthropicClient(cfg,
		backend.WithLogger(logger),
		backend.WithTelemetry(providers.Tracer, providers.Meter),
	)

	sh := shell.New(shell.Options{
		In:         cmd.InOrStdin(),
		Out:        cmd.OutOrStdout(),
		ReadSecret: secretReader(cmd.InOrStdin()),
		Plain:      cfg.Plain,
		Width:      terminalWidth(cmd.OutOrStdout()),
	})

	bot, err := chatbot.NewChatBot(ctx, chatbot.Options{
		Credentials:   creds,
		Transport:     client,
		Notifier:      sh,
		Logger:        logger,
		Timeout:       cfg.RequestTimeout,
		OnStateChange: sh.StateChanged,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize chat session: %w", err)
	}

	logger.Info("chat started", "model", cfg.Model, "state", bot.State().String())
	if err := sh.Run(ctx, bot); err != nil {
		slog.Error("chat ended with error", "error", err)
		return err
	}
	return nil
}

// secretReader returns a no-echo reader when in is a terminal, nil otherwise.
func secretReader(in io.Reader) func() (string, error) {
	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return nil
	}
	return func() (string, error) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", fmt.Errorf("failed to read API key: %w", err)
		}
		return string(b), nil
	}
}

func terminalWidth(out io.Writer) int {
	f, ok := out.(*os.File)
	if !ok {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}

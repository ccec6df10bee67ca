package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/opd-ai/mangeomic"
	"github.com/opd-ai/mangeomic/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRunCmd(v *viper.Viper) *cobra.Command {
	var headless bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the desktop peer",
		Long: `Start searching for the phone. In the terminal dashboard press p to toggle
the search, s to toggle audio, d to disconnect and q to quit. With --headless
audio starts as soon as a phone pairs and the session log goes to the logger.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			closer, err := setupLogging(cfg, !headless)
			if err != nil {
				return err
			}
			defer closer.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			desktop := newDesktop(cfg)
			desktop.Start(ctx)
			defer desktop.Close()

			if headless {
				return runHeadless(ctx, desktop, 200*time.Millisecond)
			}
			_, err = tea.NewProgram(newModel(desktop), tea.WithContext(ctx), tea.WithAltScreen()).Run()
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("dashboard: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&headless, "headless", false, "run without the dashboard and stream automatically")
	return cmd
}

func newCheckSinkCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "check-sink",
		Short: "Create the virtual microphone if needed and report its status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			closer, err := setupLogging(cfg, false)
			if err != nil {
				return err
			}
			defer closer.Close()

			provider, _ := cfg.AudioSink()
			if !provider.EnsureReady() {
				return fmt.Errorf("virtual microphone %q is not available", cfg.SourceName)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "virtual microphone %q ready\n", cfg.SourceName)
			return nil
		},
	}
}

func loadConfig(cmd *cobra.Command, v *viper.Viper) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(v, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newDesktop(cfg *config.Config) *mangeomic.Desktop {
	provider, opener := cfg.AudioSink()
	return mangeomic.New(mangeomic.Options{
		Discovery: cfg.Discovery(),
		Relay:     cfg.Relay(),
		Provider:  provider,
		Opener:    opener,
	})
}

// setupLogging applies the configured level and destination. With an
// interactive dashboard, logs without a file are discarded so they don't
// tear the screen.
func setupLogging(cfg *config.Config, interactive bool) (io.Closer, error) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	switch {
	case cfg.LogFile != "":
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		logrus.SetOutput(f)
		return f, nil
	case interactive:
		logrus.SetOutput(io.Discard)
	default:
		logrus.SetOutput(os.Stderr)
	}
	return nopCloser{}, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// runHeadless keeps the session going without a user until ctx is cancelled.
// Audio starts once per pairing and the search restarts once after a paired
// session ends. A search or relay that fails to start is not attempted
// again; its reason stays in the session log.
func runHeadless(ctx context.Context, c controller, poll time.Duration) error {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	var wasPaired, streamRequested bool
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		snap := c.Snapshot()
		if snap.Paired {
			wasPaired = true
			if !snap.Streaming && !streamRequested {
				streamRequested = true
				if err := c.ToggleStreaming(); err != nil {
					logrus.WithError(err).Debug("Could not start streaming")
				}
			}
			continue
		}

		streamRequested = false
		if wasPaired && !snap.PairingActive {
			wasPaired = false
			if err := c.TogglePairing(); err != nil {
				logrus.WithError(err).Debug("Could not restart search")
			}
		}
	}
}

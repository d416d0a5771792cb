package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

type options struct {
	configPath string
	forceLogin bool
	debug      bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "deliverance",
		Short:         "Watch a grocery retailer's checkout for open delivery slots",
		Long:          `Reuses a stored login session in Chrome, walks to the delivery slot page and polls it until a slot opens, then notifies you.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.forceLogin, "force_login", "f", false, "Login and refresh session cookie if it exists")
	cmd.Flags().StringVar(&opts.configPath, "config", "config.yaml", "Path to configuration file")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Enable detailed debug logging")

	return cmd
}

func main() {
	if err := InitLocale(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Locale initialization failed, using default English: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("deliverance failed", "err", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, opts *options) error {
	config, err := LoadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if opts.debug {
		config.DebugMode = true
	}

	logger := newLogger(config.DebugMode)
	slog.SetDefault(logger)

	printSummary(config, opts)

	backend, err := NewSnapshotBackend(config)
	if err != nil {
		return err
	}
	sessions := NewSessionStore(backend, logger)
	notifier := NewNotifications(config.Notify, logger)

	driver, err := LaunchBrowser(config, logger)
	if err != nil {
		return err
	}
	defer driver.Close()

	if err := NewWorkflow(config, driver, sessions, notifier, logger).Run(ctx, opts.forceLogin); err != nil {
		return err
	}

	fmt.Println(T("done"))
	return nil
}

func printSummary(config *Config, opts *options) {
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Printf("║ %-57s ║\n", T("banner_title"))
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendRows([]table.Row{
		{"Base URL", config.BaseURL},
		{"Session", config.Session.Backend + " " + sessionLocation(config)},
		{"Browser Profile", config.Browser.ProfilePath},
		{"Poll Interval", fmt.Sprintf("%v ±%.0f%%", config.Timing.PollInterval, config.Timing.JitterPct)},
		{"Channels", enabledChannels(config.Notify)},
	})
	t.Render()

	if opts.forceLogin {
		fmt.Println(T("force_login_mode"))
	}
	if config.DebugMode {
		fmt.Println(T("debug_mode"))
	}
	fmt.Println()
}

func sessionLocation(config *Config) string {
	if config.Session.Backend == "redis" {
		return config.Session.RedisAddr
	}
	return config.Session.Path
}

func enabledChannels(n NotifyConfig) string {
	channels := "alert"
	if n.Twilio.AccountSID != "" && n.Twilio.AuthToken != "" && n.Twilio.To != "" {
		channels += ", sms"
	}
	if n.Telegram.BotToken != "" && n.Telegram.ChatID != "" {
		channels += ", telegram"
	}
	if n.Email.SMTPServer != "" && len(n.Email.To) > 0 {
		channels += ", email"
	}
	return channels
}

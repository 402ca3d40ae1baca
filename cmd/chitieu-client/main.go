// Command chitieu-client drives the dashboard from a terminal. It loads the
// same HTML the browser gets and runs the inline edit controller on it.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"

	"chitieu/internal/cli"
	"chitieu/internal/core"
	"chitieu/internal/daterange"
	"chitieu/internal/log"
	"chitieu/internal/webui"
)

type rootFlags struct {
	url      string
	user     int64
	resync   string
	logLevel string
	timeout  time.Duration
}

func main() {
	cli.LoadEnvFile()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "chitieu-client",
		Short:         "Edit expenses on a chitieu server from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.url, "url", envOr("CHITIEU_URL", "http://localhost:8081"), "Server base URL")
	pf.Int64Var(&flags.user, "user", 1, "User ID to sign in as")
	pf.StringVar(&flags.resync, "resync", "full", "Resync strategy after a failed edit (full|record)")
	pf.StringVar(&flags.logLevel, "log-level", envOr("LOG_LEVEL", "warn"), "Log level")
	pf.DurationVar(&flags.timeout, "timeout", 30*time.Second, "Overall command timeout")

	root.AddCommand(
		newShowCmd(flags),
		newEditCmd(flags),
		newAddCmd(flags),
		newPresetsCmd(),
	)
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// page is a signed in controller running in the background.
type page struct {
	ctl      *webui.PageController
	notes    *webui.Recorder
	logger   *log.Logger
	stop     context.CancelFunc
	finished chan struct{}
}

func openPage(ctx context.Context, flags *rootFlags) (*page, error) {
	lvl := log.ParseLevel(flags.logLevel)
	logger := log.New(log.Config{
		Level:     lvl,
		Component: log.ComponentClient,
		Handler:   slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}),
	})

	client, err := webui.NewClient(flags.url)
	if err != nil {
		return nil, err
	}
	if err := client.Login(ctx, flags.user); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	var resyncer webui.Resyncer
	switch flags.resync {
	case "full", "":
		resyncer = webui.FullReload{Client: client}
	case "record":
		resyncer = webui.NewRecordRefresh(client)
	default:
		return nil, fmt.Errorf("unknown resync strategy %q", flags.resync)
	}

	notes := &webui.Recorder{}
	ctl := webui.NewPageController(client, webui.Options{
		Logger:   logger,
		Resyncer: resyncer,
		Notifier: notes,
	})

	runCtx, stop := context.WithCancel(ctx)
	p := &page{ctl: ctl, notes: notes, logger: logger, stop: stop, finished: make(chan struct{})}
	go func() {
		defer close(p.finished)
		_ = ctl.Run(runCtx)
	}()
	return p, nil
}

// load navigates to q and waits for the page.
func (p *page) load(ctx context.Context, q url.Values) error {
	p.ctl.Dispatch(&webui.Navigate{Query: q})
	if err := p.ctl.Settle(ctx); err != nil {
		return err
	}
	if _, err := p.ctl.Snapshot(ctx); err != nil {
		return err
	}
	return nil
}

func (p *page) close() {
	p.stop()
	<-p.finished
}

// printNotes writes the notifications raised so far and reports whether
// any of them was an error.
func (p *page) printNotes(cmd *cobra.Command) bool {
	failed := false
	for _, n := range p.notes.Notifications() {
		if n.Level == webui.LevelError {
			failed = true
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "[%s] %s\n", n.Level, n.Message)
	}
	return failed
}

func newPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List the named date ranges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			presets := daterange.Default()
			now := time.Now().In(core.Location)
			for _, p := range presets.List() {
				r, err := presets.Resolve(p.Key, now)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-14s %-22s %s\n", p.Key, p.Label, daterange.Format(r))
			}
			return nil
		},
	}
}

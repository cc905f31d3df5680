package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"meetfeed/internal/clock"
	"meetfeed/internal/engine"
	"meetfeed/internal/export"
	"meetfeed/internal/format"
	appLog "meetfeed/internal/log"
	"meetfeed/internal/session"
	"meetfeed/internal/web"
)

const version = "0.1.0"

// errBSExport refuses ICS export for views that read dates as Bikram Sambat.
var errBSExport = errors.New("meeting dates in this view are Bikram Sambat and cannot be exported as iCalendar")

var (
	configPath string
	envFiles   []string
)

var rootCmd = &cobra.Command{
	Use:           "meetfeed",
	Short:         "Fetch, filter and page through a meeting feed",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "/etc/meetfeed/config.yaml", "path to config file")
	pf.StringSliceVar(&envFiles, "env-file", []string{".env"}, ".env files to load (missing files are skipped)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newTokenCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "meetfeed: %v\n", err)
		os.Exit(1)
	}
}

// signalContext is cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

func newServeCmd() *cobra.Command {
	var (
		listen   string
		viewName string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the refresh and token-check loops and serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := lookupView(viewName)
			if err != nil {
				return err
			}
			a, err := loadApp(configPath, envFiles)
			if err != nil {
				return err
			}
			if listen != "" {
				a.cfg.Listen = listen
			}

			refreshSched, err := clock.ParseSchedule(a.cfg.Refresh)
			if err != nil {
				return fmt.Errorf("refresh schedule: %w", err)
			}
			checkSched, err := clock.ParseSchedule(a.cfg.TokenCheck)
			if err != nil {
				return fmt.Errorf("token_check schedule: %w", err)
			}

			eng, err := a.newEngine(v)
			if err != nil {
				return err
			}

			appLog.Info("meetfeed starting",
				"version", version,
				"listen", a.cfg.Listen,
				"feed_url", a.cfg.FeedURL,
				"timezone", a.loc.String(),
				"view", v.name,
				"refresh", a.cfg.Refresh,
				"token_check", a.cfg.TokenCheck,
			)

			ctx, cancel := signalContext()
			defer cancel()

			monitor := a.watchSession(ctx, eng, session.WithSchedule(checkSched))
			monitor.Start(ctx)
			defer monitor.Stop()

			go eng.Run(ctx, refreshSched)

			var webOpts []web.Option
			if v.filters(a.cfg.Filters).BSDates() {
				webOpts = append(webOpts, web.WithoutICS(errBSExport.Error()))
			}
			err = web.NewServer(a.cfg, eng, a.loc, webOpts...).ListenAndServe(ctx)
			cancel()
			appLog.Info("meetfeed exiting")
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	flags.StringVar(&viewName, "view", "config", "view preset: "+viewNames())

	return cmd
}

// refreshOnce runs one refresh with the given timeout. A missing or
// expired token is reported as an error; fetch failures leave an empty
// view and are returned too.
func refreshOnce(a *app, v view, timeout time.Duration) (*engine.Engine, error) {
	eng, err := a.newEngine(v)
	if err != nil {
		return nil, err
	}

	if tok := a.token(); tok != "" {
		exp, err := session.Expiry(tok)
		if err == nil && session.Expired(exp, time.Now()) {
			a.dropToken()
			return eng, fmt.Errorf("%w at %s; set a new token", session.ErrSessionExpired, exp.Format(time.RFC3339))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return eng, eng.Refresh(ctx)
}

func newListCmd() *cobra.Command {
	var (
		viewName   string
		page       int
		formatFlag string
		selected   []int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Fetch the feed once and print one page",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := lookupView(viewName)
			if err != nil {
				return err
			}
			a, err := loadApp(configPath, envFiles)
			if err != nil {
				return err
			}

			timeout := time.Duration(a.cfg.RequestTimeoutSeconds) * time.Second
			eng, err := refreshOnce(a, v, timeout)
			if err != nil && (eng == nil || errors.Is(err, session.ErrSessionExpired)) {
				return err
			}
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
			}

			for _, rank := range selected {
				if _, err := eng.Toggle(rank); err != nil {
					return err
				}
			}
			for eng.CurrentPage().Page < page {
				before := eng.CurrentPage().Page
				if eng.NextPage() == before {
					break
				}
			}

			return format.WritePage(cmd.OutOrStdout(), eng.CurrentPage(), strings.ToLower(formatFlag))
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&viewName, "view", "config", "view preset: "+viewNames())
	flags.IntVar(&page, "page", 1, "page to print (clamped to the last page)")
	flags.StringVar(&formatFlag, "format", "tsv", "output format: tsv or json")
	flags.IntSliceVar(&selected, "select", nil, "mark meetings at these 1-based ranks as selected")

	return cmd
}

func newExportCmd() *cobra.Command {
	var (
		viewName string
		output   string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Fetch the feed once and write it as an iCalendar file",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := lookupView(viewName)
			if err != nil {
				return err
			}
			a, err := loadApp(configPath, envFiles)
			if err != nil {
				return err
			}

			if v.filters(a.cfg.Filters).BSDates() {
				return fmt.Errorf("view %q: %w", v.name, errBSExport)
			}

			timeout := time.Duration(a.cfg.RequestTimeoutSeconds) * time.Second
			eng, err := refreshOnce(a, v, timeout)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			return export.WriteICS(out, eng.Feed(), a.loc, time.Now())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&viewName, "view", "config", "view preset: "+viewNames())
	flags.StringVarP(&output, "output", "o", "-", "output file (- for stdout)")

	return cmd
}

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the stored session token",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <token>",
		Short: "Store a session token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(configPath, envFiles)
			if err != nil {
				return err
			}
			tok := strings.TrimSpace(args[0])
			if _, err := session.Expiry(tok); err != nil {
				return err
			}
			return a.store.Set(a.cfg.TokenKey, tok)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove the stored session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(configPath, envFiles)
			if err != nil {
				return err
			}
			return a.store.Delete(a.cfg.TokenKey)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the session token expiry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(configPath, envFiles)
			if err != nil {
				return err
			}
			return tokenStatus(cmd, a.token(), time.Now())
		},
	})

	return cmd
}

func tokenStatus(cmd *cobra.Command, tok string, now time.Time) error {
	out := cmd.OutOrStdout()
	if tok == "" {
		_, err := fmt.Fprintln(out, "no token")
		return err
	}
	exp, err := session.Expiry(tok)
	if err != nil {
		return err
	}
	if session.Expired(exp, now) {
		_, err = fmt.Fprintf(out, "expired at %s\n", exp.Format(time.RFC3339))
		return err
	}
	_, err = fmt.Fprintf(out, "valid until %s (%s left)\n", exp.Format(time.RFC3339), exp.Sub(now).Round(time.Second))
	return err
}

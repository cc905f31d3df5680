package main

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"meetfeed/internal/bsdate"
	"meetfeed/internal/config"
	"meetfeed/internal/engine"
	"meetfeed/internal/feed"
	appLog "meetfeed/internal/log"
	"meetfeed/internal/session"
	"meetfeed/internal/tokenstore"
)

// app holds the wiring shared by every subcommand.
type app struct {
	cfg   *config.Config
	loc   *time.Location
	store *tokenstore.Store

	envExpiredLogged atomic.Bool
}

func loadApp(configPath string, envFiles []string) (*app, error) {
	if err := config.LoadEnv(envFiles...); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}
	cfg.ApplyEnv()
	appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))

	loc, err := cfg.Location()
	if err != nil {
		appLog.Error("failed to load timezone; using fallback", err, "name", cfg.Timezone, "fallback", loc.String())
	}

	store, err := tokenstore.Open(cfg.TokenStore)
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, loc: loc, store: store}, nil
}

// token returns the session token. MEETFEED_TOKEN wins over the store.
func (a *app) token() string {
	if tok := os.Getenv(config.EnvToken); tok != "" {
		return tok
	}
	tok, err := a.store.Get(a.cfg.TokenKey)
	if err != nil {
		appLog.Error("failed to read token store", err, "path", a.cfg.TokenStore)
		return ""
	}
	return tok
}

// dropToken removes the expired token from the store. A token supplied
// through MEETFEED_TOKEN cannot be removed; that is logged once.
func (a *app) dropToken() {
	if os.Getenv(config.EnvToken) != "" {
		if a.envExpiredLogged.CompareAndSwap(false, true) {
			appLog.Warn("expired token is set in the environment and cannot be removed; replace it and restart", "env", config.EnvToken)
		}
		return
	}

	tok, err := a.store.Get(a.cfg.TokenKey)
	if err != nil {
		appLog.Error("failed to read token store", err, "path", a.cfg.TokenStore)
		return
	}
	if tok == "" {
		return
	}
	if err := a.store.Delete(a.cfg.TokenKey); err != nil {
		appLog.Error("failed to remove expired token", err, "path", a.cfg.TokenStore)
		return
	}
	appLog.Info("expired token removed", "key", a.cfg.TokenKey)
}

// watchSession builds the token monitor for eng. An expired token is
// removed and pauses fetching; the first valid token seen afterwards
// resumes it with an immediate refresh.
func (a *app) watchSession(ctx context.Context, eng *engine.Engine, opts ...session.Option) *session.Monitor {
	resume := session.WithOnValid(func() {
		if !eng.Expired() {
			return
		}
		eng.ClearExpired()
		appLog.Info("valid session token found; resuming refresh")
		_ = eng.Refresh(ctx)
	})
	return session.NewMonitor(a.token, func() {
		a.dropToken()
		eng.MarkExpired()
	}, append([]session.Option{resume}, opts...)...)
}

func (a *app) newEngine(v view) (*engine.Engine, error) {
	fetcher := feed.NewFetcher(a.cfg.FeedURL,
		feed.WithTimeout(time.Duration(a.cfg.RequestTimeoutSeconds)*time.Second))

	spec := v.filters(a.cfg.Filters)
	conv := bsdate.Default()

	pageSize := a.cfg.PageSize
	if v.pageSize > 0 {
		pageSize = v.pageSize
	}

	return engine.New(fetcher, a.token,
		engine.WithLocation(a.loc),
		engine.WithPageSize(pageSize),
		engine.WithClampOnRefresh(a.cfg.Clamp()),
		engine.WithFilters(func(now time.Time) []feed.Filter {
			return spec.Build(conv, now)
		}),
	)
}

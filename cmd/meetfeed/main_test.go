package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetfeed/internal/clock"
	"meetfeed/internal/config"
	appLog "meetfeed/internal/log"
	"meetfeed/internal/session"
)

func signToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()}).SignedString([]byte("k"))
	require.NoError(t, err)
	return tok
}

func newTestApp(t *testing.T, feedURL string) *app {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	cfg := config.DefaultConfig()
	cfg.TokenStore = filepath.Join(dir, "store.yaml")
	if feedURL != "" {
		cfg.FeedURL = feedURL
	}
	require.NoError(t, cfg.Save(cfgPath))

	t.Setenv(config.EnvToken, "")
	t.Setenv(config.EnvFeedURL, "")
	a, err := loadApp(cfgPath, nil)
	require.NoError(t, err)
	return a
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	appLog.SetOutput(&buf)
	t.Cleanup(func() { appLog.SetOutput(os.Stderr) })
	return &buf
}

func TestLookupView(t *testing.T) {
	offset := 5
	fc := config.FilterConfig{TodayLunar: true, Category: "internal", DayOffset: &offset}

	v, err := lookupView("config")
	require.NoError(t, err)
	spec := v.filters(fc)
	assert.True(t, spec.TodayLunar)
	assert.Equal(t, 5, *spec.DayOffset)

	v, err = lookupView("Tomorrow")
	require.NoError(t, err)
	spec = v.filters(fc)
	assert.False(t, spec.TodayLunar)
	assert.Equal(t, 1, *spec.DayOffset)
	assert.Equal(t, "internal", spec.Category)

	v, err = lookupView("today")
	require.NoError(t, err)
	assert.Equal(t, 6, v.pageSize)
	spec = v.filters(config.FilterConfig{})
	assert.True(t, spec.TodayLunar)
	assert.Nil(t, spec.DayOffset)

	v, err = lookupView("all")
	require.NoError(t, err)
	spec = v.filters(fc)
	assert.False(t, spec.TodayLunar)
	assert.Empty(t, spec.Category)
	assert.Nil(t, spec.DayOffset)

	_, err = lookupView("weekly")
	assert.ErrorContains(t, err, "unknown view")
}

func TestViewsReadingBSDates(t *testing.T) {
	for name, want := range map[string]bool{"today": true, "tomorrow": false, "all": false, "internal": false} {
		v, err := lookupView(name)
		require.NoError(t, err)
		assert.Equal(t, want, v.filters(config.FilterConfig{}).BSDates(), name)
	}

	v, err := lookupView("config")
	require.NoError(t, err)
	assert.True(t, v.filters(config.FilterConfig{TodayLunar: true}).BSDates())
}

func TestAppTokenPrefersEnvironment(t *testing.T) {
	a := newTestApp(t, "")

	assert.Empty(t, a.token())
	require.NoError(t, a.store.Set(a.cfg.TokenKey, "stored"))
	assert.Equal(t, "stored", a.token())

	t.Setenv(config.EnvToken, "from-env")
	assert.Equal(t, "from-env", a.token())

	t.Setenv(config.EnvToken, "")
	a.dropToken()
	assert.Empty(t, a.token())
}

func TestTokenStatus(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	sign := func(exp time.Time) string { return signToken(t, exp) }

	run := func(tok string) (string, error) {
		cmd := &cobra.Command{}
		var buf bytes.Buffer
		cmd.SetOut(&buf)
		err := tokenStatus(cmd, tok, now)
		return buf.String(), err
	}

	out, err := run("")
	require.NoError(t, err)
	assert.Equal(t, "no token\n", out)

	out, err = run(sign(now.Add(-time.Minute)))
	require.NoError(t, err)
	assert.Contains(t, out, "expired at")

	out, err = run(sign(now.Add(time.Hour)))
	require.NoError(t, err)
	assert.Contains(t, out, "1h0m0s left")

	_, err = run("not-a-jwt")
	assert.Error(t, err)
}

func TestDropTokenLogsOnlyWhenSomethingIsRemoved(t *testing.T) {
	a := newTestApp(t, "")
	logs := captureLog(t)

	require.NoError(t, a.store.Set(a.cfg.TokenKey, "stale"))
	a.dropToken()
	a.dropToken()
	assert.Empty(t, a.token())
	assert.Equal(t, 1, strings.Count(logs.String(), "expired token removed"))
}

func TestDropTokenFromEnvironmentWarnsOnce(t *testing.T) {
	a := newTestApp(t, "")
	logs := captureLog(t)

	require.NoError(t, a.store.Set(a.cfg.TokenKey, "stored"))
	t.Setenv(config.EnvToken, "from-env")
	a.dropToken()
	a.dropToken()
	a.dropToken()

	assert.Equal(t, 1, strings.Count(logs.String(), "cannot be removed"))
	assert.NotContains(t, logs.String(), "expired token removed")

	stored, err := a.store.Get(a.cfg.TokenKey)
	require.NoError(t, err)
	assert.Equal(t, "stored", stored)
}

func TestWatchSessionResumesAfterNewToken(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"a","date":"2024-03-01","time":"09:00"},{"id":"b","date":"2024-03-01","time":"10:00"}]`))
	}))
	t.Cleanup(up.Close)

	a := newTestApp(t, up.URL)
	v, err := lookupView("all")
	require.NoError(t, err)
	eng, err := a.newEngine(v)
	require.NoError(t, err)

	t0 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	fc := clock.NewFake(t0)
	require.NoError(t, a.store.Set(a.cfg.TokenKey, signToken(t, t0.Add(-time.Hour))))

	m := a.watchSession(context.Background(), eng,
		session.WithClock(fc),
		session.WithSchedule(cron.Every(time.Minute)),
	)
	m.Start(context.Background())
	defer m.Stop()

	assert.True(t, eng.Expired())
	assert.Empty(t, a.token())
	assert.ErrorIs(t, eng.Refresh(context.Background()), session.ErrSessionExpired)

	require.NoError(t, a.store.Set(a.cfg.TokenKey, signToken(t, t0.Add(time.Hour))))
	fc.BlockUntil(1)
	fc.Advance(time.Minute)
	fc.BlockUntil(1)

	assert.False(t, eng.Expired())
	assert.Equal(t, 2, eng.CurrentPage().Total)
}

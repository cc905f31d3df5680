package log

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func capture(t *testing.T, level Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(level)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(LevelInfo)
	})
	return &buf
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, LevelError, ParseLevel("ERROR"))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t, LevelWarn)

	Debug("hidden debug")
	Info("hidden info")
	Warn("shown warn", "k", 1)
	Error("shown error", errors.New("boom"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] shown warn k=1")
	assert.Contains(t, out, "[ERROR] shown error err=boom")
}

func TestKeyValueQuoting(t *testing.T) {
	buf := capture(t, LevelDebug)

	Info("fetch", "url", "http://x/api", "reason", "two words", "odd")

	out := buf.String()
	assert.Contains(t, out, "url=http://x/api")
	assert.Contains(t, out, `reason="two words"`)
	assert.NotContains(t, out, "odd")
}

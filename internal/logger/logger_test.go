package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput redirects logger output to a buffer and returns a cleanup
// function restoring the previous sink, level and format.
func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := new(bytes.Buffer)

	mu.Lock()
	originalOutput := output
	originalColor := useColor
	output = buf
	useColor = false
	mu.Unlock()
	originalLevel := Level(currentLevel.Load())
	originalFormat, _ := currentFormat.Load().(string)

	reconfigure()

	t.Cleanup(func() {
		mu.Lock()
		output = originalOutput
		useColor = originalColor
		mu.Unlock()
		SetLevel(originalLevel.String())
		SetFormat(originalFormat)
	})
	return buf
}

// ============================================================================
// Level Filtering
// ============================================================================

func TestLevelFiltering(t *testing.T) {
	t.Run("DebugLevelShowsAllMessages", func(t *testing.T) {
		buf := captureOutput(t)
		SetLevel("DEBUG")

		Debug("debug message")
		Info("info message")
		Warn("warn message")
		Error("error message")

		out := buf.String()
		for _, want := range []string{"[DEBUG] debug message", "[INFO] info message", "[WARN] warn message", "[ERROR] error message"} {
			assert.Contains(t, out, want)
		}
	})

	t.Run("WarnLevelFiltersDebugAndInfo", func(t *testing.T) {
		buf := captureOutput(t)
		SetLevel("WARN")

		Debug("debug message")
		Info("info message")
		Warn("warn message")

		out := buf.String()
		assert.NotContains(t, out, "debug message")
		assert.NotContains(t, out, "info message")
		assert.Contains(t, out, "warn message")
	})

	t.Run("ErrorAlwaysLogged", func(t *testing.T) {
		buf := captureOutput(t)
		SetLevel("ERROR")

		Warn("warn message")
		Error("error message")

		assert.NotContains(t, buf.String(), "warn message")
		assert.Contains(t, buf.String(), "error message")
	})
}

func TestSetLevel(t *testing.T) {
	t.Run("CaseInsensitive", func(t *testing.T) {
		captureOutput(t)
		SetLevel("debug")
		assert.Equal(t, LevelDebug, Level(currentLevel.Load()))
	})

	t.Run("IgnoresInvalidValues", func(t *testing.T) {
		captureOutput(t)
		SetLevel("WARN")
		SetLevel("LOUD")
		assert.Equal(t, LevelWarn, Level(currentLevel.Load()))
	})
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
}

// ============================================================================
// Text Formatting
// ============================================================================

func TestTextFormatting(t *testing.T) {
	t.Run("TimestampAndLevelPrefix", func(t *testing.T) {
		buf := captureOutput(t)
		SetLevel("INFO")

		Info("waiting for database")

		line := strings.TrimSpace(buf.String())
		assert.Regexp(t, `^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] \[INFO\] waiting for database$`, line)
	})

	t.Run("StructuredFields", func(t *testing.T) {
		buf := captureOutput(t)
		SetLevel("INFO")

		Info("probe failed", KeyTarget, "db:5432", KeyAttempt, 3)

		assert.Contains(t, buf.String(), "target=db:5432 attempt=3")
	})

	t.Run("QuotesValuesWithSpaces", func(t *testing.T) {
		buf := captureOutput(t)
		SetLevel("INFO")

		Info("handing off", Command([]string{"gunicorn", "julie.wsgi"}))

		assert.Contains(t, buf.String(), `command="gunicorn julie.wsgi"`)
	})

	t.Run("GroupsPrefixKeys", func(t *testing.T) {
		buf := captureOutput(t)
		SetLevel("INFO")

		With("boot_id", "abc").WithGroup("gate").Info("ready", "attempts", 2)

		out := buf.String()
		assert.Contains(t, out, "boot_id=abc")
		assert.Contains(t, out, "gate.attempts=2")
	})

	t.Run("ErrorValues", func(t *testing.T) {
		buf := captureOutput(t)
		SetLevel("INFO")

		Error("stage failed", "cause", errors.New("connection refused"))

		assert.Contains(t, buf.String(), `cause="connection refused"`)
	})
}

// ============================================================================
// JSON Formatting
// ============================================================================

func TestJSONFormat(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("INFO")
	SetFormat("json")

	Info("assets materialized", KeyCopied, 12, KeyPath, "/app/staticfiles")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "assets materialized", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
	assert.EqualValues(t, 12, entry[KeyCopied])
	assert.Equal(t, "/app/staticfiles", entry[KeyPath])
	assert.Contains(t, entry, "time")
}

func TestSetFormatIgnoresInvalid(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("INFO")
	SetFormat("text")
	SetFormat("xml")

	Info("still text")
	assert.True(t, strings.HasPrefix(buf.String(), "["))
}

// ============================================================================
// Context Logging
// ============================================================================

func TestContextLogging(t *testing.T) {
	t.Run("LogContextInjectsFields", func(t *testing.T) {
		buf := captureOutput(t)
		SetLevel("DEBUG")

		lc := NewLogContext("boot-1").WithStage("gate")
		ctx := WithContext(context.Background(), lc)

		InfoCtx(ctx, "dependency reachable", KeyAttempt, 1)

		out := buf.String()
		assert.Contains(t, out, "boot_id=boot-1 stage=gate attempt=1")
	})

	t.Run("ContextWithoutLogContext", func(t *testing.T) {
		buf := captureOutput(t)
		SetLevel("INFO")

		WarnCtx(context.Background(), "plain")

		assert.Contains(t, buf.String(), "plain")
		assert.NotContains(t, buf.String(), KeyBootID)
	})

	t.Run("NilContext", func(t *testing.T) {
		assert.Nil(t, FromContext(nil)) //nolint:staticcheck // nil context is part of the contract
	})
}

func TestLogContext(t *testing.T) {
	t.Run("CloneIsIndependent", func(t *testing.T) {
		lc := NewLogContext("boot-1")
		clone := lc.WithStage("schema")

		assert.Empty(t, lc.Stage)
		assert.Equal(t, "schema", clone.Stage)
		assert.Equal(t, lc.BootID, clone.BootID)
	})

	t.Run("NilReceivers", func(t *testing.T) {
		var lc *LogContext
		assert.Nil(t, lc.Clone())
		assert.Nil(t, lc.WithStage("gate"))
		assert.Zero(t, lc.Elapsed())
	})

	t.Run("WithTrace", func(t *testing.T) {
		lc := NewLogContext("boot-1").WithTrace("t1", "s1")
		assert.Equal(t, "t1", lc.TraceID)
		assert.Equal(t, "s1", lc.SpanID)
		assert.GreaterOrEqual(t, lc.Elapsed().Nanoseconds(), int64(0))
	})
}

func TestFieldHelpers(t *testing.T) {
	assert.True(t, Err(nil).Equal(Err(nil)))
	assert.Equal(t, "boom", Err(errors.New("boom")).Value.String())
	assert.Equal(t, KeyStage, Stage("gate").Key)
	assert.Equal(t, "a b", Command([]string{"a", "b"}).Value.String())
}

// ============================================================================
// Sink Failures
// ============================================================================

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestBrokenSinkNeverFailsCaller(t *testing.T) {
	captureOutput(t)
	InitWithWriter(failingWriter{}, "DEBUG", "text", false)

	assert.NotPanics(t, func() {
		Info("lost line")
		ErrorCtx(context.Background(), "also lost")
	})
}

// ============================================================================
// Init
// ============================================================================

func TestInit(t *testing.T) {
	t.Run("FileOutput", func(t *testing.T) {
		captureOutput(t)
		path := filepath.Join(t.TempDir(), "boot.log")

		require.NoError(t, Init(Config{Level: "INFO", Format: "text", Output: path}))
		Info("to file")
		require.NoError(t, Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "to file")
	})

	t.Run("UnwritablePath", func(t *testing.T) {
		captureOutput(t)
		err := Init(Config{Output: filepath.Join(t.TempDir(), "missing", "dir", "boot.log")})
		assert.Error(t, err)
	})

	t.Run("EmptyConfigKeepsSettings", func(t *testing.T) {
		captureOutput(t)
		SetLevel("WARN")
		require.NoError(t, Init(Config{}))
		assert.Equal(t, LevelWarn, Level(currentLevel.Load()))
	})
}

func TestConcurrentLogging(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("INFO")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				Info("tick", "worker", n)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 500, strings.Count(buf.String(), "\n"))
}

func BenchmarkLogText(b *testing.B) {
	InitWithWriter(&bytes.Buffer{}, "INFO", "text", false)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Info("benchmark", KeyAttempt, i)
	}
}

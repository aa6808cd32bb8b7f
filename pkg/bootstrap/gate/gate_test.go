package gate

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juliehq/julie-entrypoint/internal/logger"
	"github.com/juliehq/julie-entrypoint/pkg/bootstrap"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := new(bytes.Buffer)
	logger.InitWithWriter(buf, "INFO", "text", false)
	t.Cleanup(func() { logger.InitWithWriter(&bytes.Buffer{}, "INFO", "text", false) })
	return buf
}

// failingProber fails the first n probes, then succeeds. n < 0 never succeeds.
type failingProber struct {
	n     int
	calls atomic.Int32
}

func (p *failingProber) Probe(context.Context, Target) error {
	c := int(p.calls.Add(1))
	if p.n < 0 || c <= p.n {
		return errors.New("connection refused")
	}
	return nil
}

type countingObserver struct{ ok, failed int }

func (o *countingObserver) GateAttempt(ok bool) {
	if ok {
		o.ok++
	} else {
		o.failed++
	}
}

func listen(t *testing.T, handle func(net.Conn)) Target {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go handle(conn)
		}
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, _ := strconv.Atoi(portStr)
	return Target{Host: host, Port: port}
}

// closedPort returns a target nothing listens on.
func closedPort(t *testing.T) Target {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return Target{Host: "127.0.0.1", Port: port}
}

func TestAwaitReady_NoDependency(t *testing.T) {
	captureLogs(t)
	prober := &failingProber{n: -1}
	g := New(Target{}, prober, Config{Interval: time.Millisecond})

	res := g.AwaitReady(context.Background())

	assert.Equal(t, bootstrap.KindSuccess, res.Kind)
	assert.Zero(t, prober.calls.Load())
	assert.Zero(t, g.State().Attempts)
}

func TestAwaitReady_ImmediatelyReachable(t *testing.T) {
	captureLogs(t)
	target := listen(t, func(c net.Conn) {
		time.Sleep(200 * time.Millisecond)
		_ = c.Close()
	})
	g := New(target, &TCPProber{Window: 20 * time.Millisecond}, Config{Interval: 10 * time.Millisecond})

	res := g.AwaitReady(context.Background())

	assert.Equal(t, bootstrap.KindSuccess, res.Kind)
	assert.Equal(t, 1, g.State().Attempts)
}

func TestAwaitReady_RetriesAtInterval(t *testing.T) {
	buf := captureLogs(t)
	prober := &failingProber{n: 3}
	obs := &countingObserver{}
	g := New(Target{Host: "db", Port: 5432}, prober, Config{Interval: 10 * time.Millisecond})
	g.SetObserver(obs)

	start := time.Now()
	res := g.AwaitReady(context.Background())

	assert.Equal(t, bootstrap.KindSuccess, res.Kind)
	assert.Equal(t, 4, g.State().Attempts)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Equal(t, 3, strings.Count(buf.String(), "dependency not ready, retrying"))
	assert.Equal(t, 1, obs.ok)
	assert.Equal(t, 3, obs.failed)
}

func TestAwaitReady_DeadlineExceeded(t *testing.T) {
	captureLogs(t)
	const deadline = 150 * time.Millisecond
	const interval = 40 * time.Millisecond
	g := New(Target{Host: "db", Port: 5432}, &failingProber{n: -1}, Config{Interval: interval, Deadline: deadline})

	res := g.AwaitReady(context.Background())
	state := g.State()

	require.Equal(t, bootstrap.KindHardFailure, res.Kind)
	assert.Equal(t, "dependency unreachable", res.Reason)
	assert.ErrorIs(t, res.Err, ErrUnreachable)
	assert.Contains(t, res.Err.Error(), "connection refused")
	assert.GreaterOrEqual(t, state.Elapsed, deadline)
	assert.Less(t, state.Elapsed, deadline+interval+50*time.Millisecond)
	assert.Equal(t, deadline, state.Deadline)
}

func TestAwaitReady_UnboundedKeepsPolling(t *testing.T) {
	captureLogs(t)
	prober := &failingProber{n: 25}
	g := New(Target{Host: "db", Port: 5432}, prober, Config{Interval: time.Millisecond})

	res := g.AwaitReady(context.Background())

	assert.Equal(t, bootstrap.KindSuccess, res.Kind)
	assert.Equal(t, 26, g.State().Attempts)
}

func TestAwaitReady_Cancelled(t *testing.T) {
	captureLogs(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	g := New(Target{Host: "db", Port: 5432}, &failingProber{n: -1}, Config{Interval: 5 * time.Millisecond})

	res := g.AwaitReady(ctx)

	require.Equal(t, bootstrap.KindHardFailure, res.Kind)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.Contains(t, res.Reason, "interrupted")
}

func TestAwaitReady_BrokenLogSink(t *testing.T) {
	captureLogs(t)
	logger.InitWithWriter(brokenWriter{}, "DEBUG", "text", false)
	g := New(Target{Host: "db", Port: 5432}, &failingProber{n: 2}, Config{Interval: time.Millisecond})

	res := g.AwaitReady(context.Background())

	assert.Equal(t, bootstrap.KindSuccess, res.Kind)
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestTCPProber(t *testing.T) {
	t.Run("AcceptThenCloseIsNotReady", func(t *testing.T) {
		target := listen(t, func(c net.Conn) { _ = c.Close() })
		p := &TCPProber{Window: 200 * time.Millisecond}

		err := p.Probe(context.Background(), target)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection closed during probe window")
	})

	t.Run("HeldOpenIsReady", func(t *testing.T) {
		target := listen(t, func(c net.Conn) {
			time.Sleep(300 * time.Millisecond)
			_ = c.Close()
		})
		p := &TCPProber{Window: 50 * time.Millisecond}

		assert.NoError(t, p.Probe(context.Background(), target))
	})

	t.Run("BannerIsReady", func(t *testing.T) {
		target := listen(t, func(c net.Conn) {
			_, _ = c.Write([]byte("+OK\r\n"))
			_ = c.Close()
		})
		p := &TCPProber{Window: 200 * time.Millisecond}

		assert.NoError(t, p.Probe(context.Background(), target))
	})

	t.Run("RefusedIsNotReady", func(t *testing.T) {
		p := &TCPProber{DialTimeout: 200 * time.Millisecond}
		assert.Error(t, p.Probe(context.Background(), closedPort(t)))
	})

	t.Run("ZeroWindowOnlyDials", func(t *testing.T) {
		target := listen(t, func(c net.Conn) { _ = c.Close() })
		p := &TCPProber{}
		assert.NoError(t, p.Probe(context.Background(), target))
	})
}

func TestAwaitReady_ClosedPortUntilDeadline(t *testing.T) {
	captureLogs(t)
	target := closedPort(t)
	g := New(target, &TCPProber{DialTimeout: 100 * time.Millisecond}, Config{Interval: 20 * time.Millisecond, Deadline: 100 * time.Millisecond})

	res := g.AwaitReady(context.Background())

	assert.Equal(t, bootstrap.KindHardFailure, res.Kind)
	assert.Greater(t, g.State().Attempts, 1)
}

func TestTarget(t *testing.T) {
	assert.False(t, Target{}.Declared())
	assert.Equal(t, "<none>", Target{}.String())
	assert.Equal(t, "db:5432", Target{Host: "db", Port: 5432}.Address())
	assert.Equal(t, "[::1]:5432", Target{Host: "::1", Port: 5432}.Address())
}

func TestPostgresProberBadDSN(t *testing.T) {
	p := &PostgresProber{DSN: "host=db port=notanumber"}
	assert.Error(t, p.Probe(context.Background(), Target{Host: "db", Port: 5432}))
}

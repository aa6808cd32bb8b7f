// Package gate blocks bootstrap until the database accepts connections.
package gate

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/juliehq/julie-entrypoint/internal/logger"
	"github.com/juliehq/julie-entrypoint/pkg/bootstrap"
)

// StageName is the name the driver and logs use for this stage.
const StageName = "gate"

// ErrUnreachable wraps the last probe error once the deadline passed.
var ErrUnreachable = errors.New("dependency unreachable")

// Target is the network dependency the server needs. An empty Host means
// no dependency is declared and the gate passes immediately.
type Target struct {
	Host string
	Port int
}

// Declared reports whether a dependency host is set.
func (t Target) Declared() bool { return t.Host != "" }

// Address returns host:port, bracketing IPv6 literals.
func (t Target) Address() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

func (t Target) String() string {
	if !t.Declared() {
		return "<none>"
	}
	return t.Address()
}

// PollState is the progress of one AwaitReady call.
type PollState struct {
	Attempts int
	Elapsed  time.Duration
	Deadline time.Duration // 0 = unbounded
}

// Prober tests reachability once.
type Prober interface {
	Probe(ctx context.Context, target Target) error
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, target Target) error

func (f ProberFunc) Probe(ctx context.Context, target Target) error { return f(ctx, target) }

// Observer is told about every probe.
type Observer interface {
	GateAttempt(ok bool)
}

// Config holds the poll timings.
type Config struct {
	Interval time.Duration
	Deadline time.Duration // 0 polls forever
}

// Gate polls a Target at a fixed interval until it answers.
type Gate struct {
	target   Target
	prober   Prober
	cfg      Config
	observer Observer

	mu   sync.Mutex
	last PollState
}

// New creates a Gate. A nil prober defaults to a TCP probe.
func New(target Target, prober Prober, cfg Config) *Gate {
	if prober == nil {
		prober = &TCPProber{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	return &Gate{target: target, prober: prober, cfg: cfg}
}

// SetObserver attaches a probe observer. Must be called before AwaitReady.
func (g *Gate) SetObserver(o Observer) { g.observer = o }

// Name implements bootstrap.Stage.
func (g *Gate) Name() string { return StageName }

// Run implements bootstrap.Stage.
func (g *Gate) Run(ctx context.Context) bootstrap.Result { return g.AwaitReady(ctx) }

// State returns the PollState of the most recent AwaitReady call.
func (g *Gate) State() PollState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

// AwaitReady probes the target until it is reachable, the deadline passes,
// or ctx is cancelled. Every failed probe that will be retried logs one
// progress line.
func (g *Gate) AwaitReady(ctx context.Context) bootstrap.Result {
	state := PollState{Deadline: g.cfg.Deadline}
	defer func() {
		g.mu.Lock()
		g.last = state
		g.mu.Unlock()
	}()

	if !g.target.Declared() {
		logger.InfoCtx(ctx, "no dependency declared, skipping readiness gate")
		return bootstrap.Success()
	}

	addr := g.target.Address()
	start := time.Now()

	waitCtx := ctx
	if g.cfg.Deadline > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, g.cfg.Deadline)
		defer cancel()
	}

	logger.InfoCtx(ctx, "waiting for dependency",
		logger.KeyTarget, addr,
		logger.KeyDeadline, g.cfg.Deadline,
		"interval", g.cfg.Interval)

	var lastErr error
	probe := func() error {
		state.Attempts++
		err := g.prober.Probe(waitCtx, g.target)
		if g.observer != nil {
			g.observer.GateAttempt(err == nil)
		}
		if err != nil {
			lastErr = err
		}
		return err
	}

	progress := func(err error, next time.Duration) {
		logger.InfoCtx(ctx, "dependency not ready, retrying",
			logger.KeyTarget, addr,
			logger.KeyAttempt, state.Attempts,
			logger.KeyElapsed, time.Since(start).Round(time.Millisecond),
			logger.Err(err))
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(g.cfg.Interval), waitCtx)
	err := backoff.RetryNotify(probe, b, progress)
	state.Elapsed = time.Since(start)

	if err == nil {
		logger.InfoCtx(ctx, "dependency reachable",
			logger.KeyTarget, addr,
			logger.KeyAttempt, state.Attempts,
			logger.KeyElapsed, state.Elapsed.Round(time.Millisecond))
		return bootstrap.Success()
	}

	if ctx.Err() != nil {
		return bootstrap.HardFailure("interrupted while waiting for "+addr, ctx.Err())
	}
	if lastErr == nil {
		lastErr = err
	}
	return bootstrap.HardFailure("dependency unreachable",
		fmt.Errorf("%w: %s after %d attempts in %s: %v",
			ErrUnreachable, addr, state.Attempts, state.Elapsed.Round(time.Millisecond), lastErr))
}

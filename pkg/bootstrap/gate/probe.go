package gate

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
)

// TCPProber dials the target and keeps the connection open for Window.
// A peer that accepts and immediately closes (a proxy with no backend, a
// database still starting) is reported as not ready.
type TCPProber struct {
	DialTimeout time.Duration
	Window      time.Duration
}

func (p *TCPProber) Probe(ctx context.Context, target Target) error {
	timeout := p.DialTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", target.Address())
	if err != nil {
		return err
	}
	defer conn.Close()

	if p.Window <= 0 {
		return nil
	}

	if err := conn.SetReadDeadline(time.Now().Add(p.Window)); err != nil {
		return err
	}

	var buf [1]byte
	_, err = conn.Read(buf[:])
	switch {
	case err == nil:
		// The peer spoke first; it is alive.
		return nil
	case errors.Is(err, os.ErrDeadlineExceeded):
		return ctx.Err()
	default:
		return fmt.Errorf("connection closed during probe window: %w", err)
	}
}

// PostgresProber opens a real session and pings it. It distinguishes "port
// open" from "database accepting logins".
type PostgresProber struct {
	DSN string
}

func (p *PostgresProber) Probe(ctx context.Context, target Target) error {
	cfg, err := pgx.ParseConfig(p.DSN)
	if err != nil {
		return fmt.Errorf("parse dsn: %w", err)
	}
	cfg.Host = target.Host
	cfg.Port = uint16(target.Port)

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close(context.WithoutCancel(ctx))

	return conn.Ping(ctx)
}

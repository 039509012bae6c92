package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"tilebridge/directory"
	"tilebridge/gateway"
)

// Provider owns the live sessions to the server fleet: one Connection per
// directory entry, dialed on demand and dropped when the server disappears or
// the session dies.
//
// It is a plain object with an explicit lifecycle — construct it, pass it to
// whoever needs connections, Close it when done. There is deliberately no
// process-wide connection registry.
type Provider struct {
	dialer gateway.Dialer
	dir    directory.Directory
	logger *zap.Logger

	mu    sync.Mutex
	conns map[string]gateway.Connection
}

// NewProvider wires a dialer to a directory. Pass nil for logger to discard
// logs.
func NewProvider(dialer gateway.Dialer, dir directory.Directory, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		dialer: dialer,
		dir:    dir,
		logger: logger,
		conns:  make(map[string]gateway.Connection),
	}
}

// Connections returns a live session for every reachable server currently in
// the directory. Servers that cannot be dialed are logged and skipped — one
// dead server must not take the whole fleet view down. Sessions for servers
// that left the directory are closed and dropped.
func (p *Provider) Connections(ctx context.Context) ([]gateway.Connection, error) {
	servers, err := p.dir.Servers()
	if err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	current := make(map[string]bool, len(servers))
	conns := make([]gateway.Connection, 0, len(servers))
	for _, srv := range servers {
		current[srv.Addr] = true
		conn, err := p.connectionLocked(ctx, srv.Addr)
		if err != nil {
			p.logger.Warn("server unreachable", zap.String("addr", srv.Addr), zap.Error(err))
			continue
		}
		conns = append(conns, conn)
	}

	for addr, conn := range p.conns {
		if !current[addr] {
			p.logger.Info("server left the fleet, closing session", zap.String("addr", addr))
			if err := conn.Close(); err != nil {
				p.logger.Warn("closing session failed", zap.String("addr", addr), zap.Error(err))
			}
			delete(p.conns, addr)
		}
	}

	return conns, nil
}

// Connection returns the session for one address, dialing it if needed.
func (p *Provider) Connection(ctx context.Context, addr string) (gateway.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connectionLocked(ctx, addr)
}

// connectionLocked reuses a live session or dials a fresh one with a short
// exponential backoff. Dead sessions are replaced, not resurrected.
func (p *Provider) connectionLocked(ctx context.Context, addr string) (gateway.Connection, error) {
	if conn, ok := p.conns[addr]; ok {
		if conn.Alive() {
			return conn, nil
		}
		_ = conn.Close()
		delete(p.conns, addr)
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 50 * time.Millisecond
	expo.MaxInterval = time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, 3), ctx)
	var conn gateway.Connection
	err := backoff.Retry(func() error {
		var dialErr error
		conn, dialErr = p.dialer.Dial(ctx, addr)
		return dialErr
	}, policy)
	if err != nil {
		return nil, err
	}

	p.conns[addr] = conn
	return conn, nil
}

// Close tears down every session. Per-session failures are logged, and the
// last one is returned so callers can notice without any session surviving.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var last error
	for addr, conn := range p.conns {
		if err := conn.Close(); err != nil {
			p.logger.Warn("closing session failed", zap.String("addr", addr), zap.Error(err))
			last = err
		}
		delete(p.conns, addr)
	}
	return last
}

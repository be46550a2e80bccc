// Package database owns the Postgres connection pool and embedded schema
// migrations. Everything above it (store, batch processor) borrows
// connections per transaction and never holds one across batches.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rescueradar/rescueradar/internal/config"
)

// Pool wraps pgxpool with a background health check and reconnect backoff.
type Pool struct {
	pool   *pgxpool.Pool
	cfg    config.DatabaseConfig
	logger *slog.Logger

	healthy atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool

	reconnectMu    sync.Mutex
	lastReconnect  time.Time
	reconnectDelay time.Duration
}

// New connects to Postgres and starts the health-check loop.
func New(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*Pool, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	bg, cancel := context.WithCancel(context.Background())
	p := &Pool{
		cfg:            cfg,
		logger:         logger.With("component", "database"),
		ctx:            bg,
		cancel:         cancel,
		reconnectDelay: time.Second,
	}

	poolCfg.ConnConfig.OnNotice = func(_ *pgconn.PgConn, n *pgconn.Notice) {
		p.logger.Debug("postgres notice", "severity", n.Severity, "message", n.Message)
	}

	connectCtx, connectCancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer connectCancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		cancel()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	p.pool = pool
	p.healthy.Store(true)

	p.wg.Add(1)
	go p.healthCheckLoop()

	p.logger.Info("database pool ready",
		"max_conns", cfg.MaxConns,
		"min_conns", cfg.MinConns,
	)
	return p, nil
}

// Pgx returns the underlying pgxpool.Pool.
func (p *Pool) Pgx() *pgxpool.Pool { return p.pool }

// Healthy reports whether the last health check succeeded.
func (p *Pool) Healthy() bool { return p.healthy.Load() }

// Stats returns pool statistics.
func (p *Pool) Stats() *pgxpool.Stat {
	if p.pool == nil {
		return nil
	}
	return p.pool.Stat()
}

// Close stops the health-check loop and closes the pool.
func (p *Pool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		p.logger.Warn("health check goroutine did not stop within timeout")
	}

	if p.pool != nil {
		p.pool.Close()
	}
	p.logger.Info("database pool closed")
}

func (p *Pool) healthCheckLoop() {
	defer p.wg.Done()

	period := p.cfg.HealthCheckPeriod
	if period <= 0 {
		period = 30 * time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.check()
		}
	}
}

func (p *Pool) check() {
	ctx, cancel := context.WithTimeout(p.ctx, 5*time.Second)
	defer cancel()

	var one int
	if err := p.pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		if p.healthy.Swap(false) {
			p.logger.Error("database health check failed", "error", err)
		}
		p.tryReconnect()
		return
	}
	if !p.healthy.Swap(true) {
		p.logger.Info("database connection restored")
		p.reconnectDelay = time.Second
	}
}

func (p *Pool) tryReconnect() {
	p.reconnectMu.Lock()
	defer p.reconnectMu.Unlock()

	if time.Since(p.lastReconnect) < p.reconnectDelay {
		return
	}

	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.ConnectTimeout)
	defer cancel()

	err := p.pool.Ping(ctx)
	p.lastReconnect = time.Now()

	if err != nil {
		p.reconnectDelay = min(p.reconnectDelay*2, 30*time.Second)
		p.logger.Error("reconnect failed", "error", err, "next_delay", p.reconnectDelay)
		return
	}
	p.healthy.Store(true)
	p.reconnectDelay = time.Second
	p.logger.Info("reconnect successful")
}

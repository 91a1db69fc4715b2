// Package racer implements Happy-Eyeballs-style parallel connection racing
// against an RTSP endpoint, mirroring gst-plugins-rs's rtspsrc2
// connection_racer module: staggered parallel dials, first-success-wins,
// last-success-wins, or a hybrid of the two, with cooperative cancellation of
// every losing attempt.
package racer

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"golang.org/x/time/rate"
)

// Strategy selects how parallel dial attempts are raced.
type Strategy string

const (
	StrategyNone      Strategy = "none"
	StrategyFirstWins Strategy = "first-wins"
	StrategyLastWins  Strategy = "last-wins"
	StrategyHybrid    Strategy = "hybrid"
)

// ErrAllAttemptsFailed is returned when every racing attempt failed.
var ErrAllAttemptsFailed = errors.New("racer: all connection attempts failed")

// Config controls racing behavior.
type Config struct {
	Strategy    Strategy
	MaxParallel int           // default 3
	Stagger     time.Duration // default 250ms
	DialTimeout time.Duration // default 5s
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		Strategy:    StrategyNone,
		MaxParallel: 3,
		Stagger:     250 * time.Millisecond,
		DialTimeout: 5 * time.Second,
	}
}

// Dialer abstracts the underlying dial so TLS/plain/proxy variants can all be
// raced through the same engine.
type Dialer func(ctx context.Context, addr string) (net.Conn, error)

// Racer races connection attempts per Config.Strategy.
type Racer struct {
	cfg     Config
	dial    Dialer
	logger  *slog.Logger
	limiter *rate.Limiter // paces dial starts per host/proxy; does not bound dials in flight
}

// New constructs a Racer. limiter may be nil to allow unrestricted dialing
// (the caller is still bounded by cfg.MaxParallel).
func New(cfg Config, dial Dialer, logger *slog.Logger, limiter *rate.Limiter) *Racer {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 3
	}
	if cfg.Stagger <= 0 {
		cfg.Stagger = 250 * time.Millisecond
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	return &Racer{cfg: cfg, dial: dial, logger: logger.With("component", "racer"), limiter: limiter}
}

// SetStrategy allows the Auto/Adaptive selectors to switch strategy between
// attempts without reconstructing the Racer.
func (r *Racer) SetStrategy(s Strategy) {
	r.cfg.Strategy = s
}

// Strategy returns the currently configured racing strategy.
func (r *Racer) Strategy() Strategy {
	return r.cfg.Strategy
}

type attemptResult struct {
	conn net.Conn
	err  error
	at   time.Time
}

// Connect races addr per the configured strategy and returns a single
// winning connection. Every other in-flight attempt is cancelled and its
// socket closed.
func (r *Racer) Connect(ctx context.Context, addr string) (net.Conn, error) {
	switch r.cfg.Strategy {
	case StrategyNone, "":
		return r.dialOnce(ctx, addr)
	case StrategyFirstWins:
		return r.connectFirstWins(ctx, addr)
	case StrategyLastWins:
		return r.connectLastWins(ctx, addr)
	case StrategyHybrid:
		conn, err := r.connectFirstWins(ctx, addr)
		if err == nil {
			return conn, nil
		}
		r.logger.Debug("hybrid: first-wins failed, retrying with last-wins", "addr", addr)
		return r.connectLastWins(ctx, addr)
	default:
		return r.dialOnce(ctx, addr)
	}
}

func (r *Racer) dialOnce(ctx context.Context, addr string) (net.Conn, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	ctx, cancel := context.WithTimeout(ctx, r.cfg.DialTimeout)
	defer cancel()
	return r.dial(ctx, addr)
}

// connectFirstWins launches up to MaxParallel staggered attempts and returns
// the first successful connection; all other attempts are cancelled.
func (r *Racer) connectFirstWins(ctx context.Context, addr string) (net.Conn, error) {
	ctx, cancelAll := context.WithCancel(ctx)
	defer cancelAll()

	results := make(chan attemptResult, r.cfg.MaxParallel)
	for i := 0; i < r.cfg.MaxParallel; i++ {
		i := i
		go func() {
			if i > 0 {
				select {
				case <-time.After(time.Duration(i) * r.cfg.Stagger):
				case <-ctx.Done():
					results <- attemptResult{err: ctx.Err()}
					return
				}
			}
			conn, err := r.dialOnce(ctx, addr)
			results <- attemptResult{conn: conn, err: err}
		}()
	}

	var firstErr error
	for i := 0; i < r.cfg.MaxParallel; i++ {
		res := <-results
		if res.err == nil && res.conn != nil {
			cancelAll()
			go drainAndClose(results, r.cfg.MaxParallel-i-1)
			return res.conn, nil
		}
		if firstErr == nil {
			firstErr = res.err
		}
	}
	if firstErr == nil {
		firstErr = ErrAllAttemptsFailed
	}
	return nil, firstErr
}

// connectLastWins launches every staggered attempt, waits for all of them,
// and explicitly keeps only the most recent success — deliberately dropping
// earlier ones so that servers which invalidate older connections on a new
// attempt converge on a fresh socket.
func (r *Racer) connectLastWins(ctx context.Context, addr string) (net.Conn, error) {
	results := make(chan attemptResult, r.cfg.MaxParallel)
	for i := 0; i < r.cfg.MaxParallel; i++ {
		i := i
		go func() {
			if i > 0 {
				select {
				case <-time.After(time.Duration(i) * r.cfg.Stagger):
				case <-ctx.Done():
					results <- attemptResult{err: ctx.Err()}
					return
				}
			}
			conn, err := r.dialOnce(ctx, addr)
			results <- attemptResult{conn: conn, err: err, at: time.Now()}
		}()
	}

	var best *attemptResult
	var firstErr error
	for i := 0; i < r.cfg.MaxParallel; i++ {
		res := <-results
		if res.err != nil || res.conn == nil {
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		if best == nil || res.at.After(best.at) {
			if best != nil {
				_ = best.conn.Close()
			}
			resCopy := res
			best = &resCopy
		} else {
			_ = res.conn.Close()
		}
	}

	if best == nil {
		if firstErr == nil {
			firstErr = ErrAllAttemptsFailed
		}
		return nil, firstErr
	}
	return best.conn, nil
}

func drainAndClose(results chan attemptResult, remaining int) {
	for i := 0; i < remaining; i++ {
		res := <-results
		if res.conn != nil {
			_ = res.conn.Close()
		}
	}
}

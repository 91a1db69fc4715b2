package element

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethan/rtsp-engine/pkg/adaptive"
	"github.com/ethan/rtsp-engine/pkg/classify"
	"github.com/ethan/rtsp-engine/pkg/config"
	"github.com/ethan/rtsp-engine/pkg/pattern"
	"github.com/ethan/rtsp-engine/pkg/racer"
	"github.com/ethan/rtsp-engine/pkg/retry"
)

// Run drives the Protocol State Machine's reconnection contract, per
// spec.md §4.8: "any state -> error with retryable class -> Reconnecting ->
// re-enter the state machine from Init ... adaptive learners observe the
// outcome". It calls Start, and on failure (either Start itself failing, or
// a mid-session disconnect reported via reportFailure) classifies the error
// through the Error Classifier, computes a backoff delay with the Retry
// Calculator — consulting the Auto Pattern Selector and, if enabled, the
// Adaptive Learner — and re-enters Start from Init. It returns once the
// classifier recommends Fatal/WaitForIntervention, the reconnect budget
// (Properties.MaxReconnectTries) is exhausted, or ctx is cancelled.
func (e *Element) Run(ctx context.Context) error {
	calc := retry.New(e.retryConfig())
	selector := pattern.New(pattern.DefaultWindow)
	calc.SetAutoResolver(selector.Resolver())

	fingerprint := e.adaptiveFingerprint()
	if e.props.AdaptiveEnabled && e.learner != nil {
		calc.SetAdaptiveResolver(e.learner.Resolver(fingerprint))
	}

	usedStrategy := parseElementRetryStrategy(e.props.RetryStrategyName)
	usedRacing := parseElementRacingStrategy(e.props.RacingStrategyName)

	attempts := 0
	for {
		e.mu.Lock()
		e.failures = make(chan error, 1)
		failures := e.failures
		e.mu.Unlock()

		calc.MarkConnectionStart()
		startedAt := time.Now()
		runErr := e.Start(ctx)
		connectDuration := time.Since(startedAt)

		if runErr != nil {
			e.onAttemptOutcome(calc, selector, fingerprint, usedStrategy, usedRacing, connectDuration, false)
		} else {
			e.onAttemptOutcome(calc, selector, fingerprint, usedStrategy, usedRacing, connectDuration, true)

			select {
			case <-ctx.Done():
				_ = e.Stop()
				return ctx.Err()
			case ferr := <-failures:
				e.logger.Warn("element: session disconnected, reconnecting", "error", ferr)
				_ = e.Stop()
				runErr = ferr
				e.onAttemptOutcome(calc, selector, fingerprint, usedStrategy, usedRacing, time.Since(startedAt), false)
			}
		}

		rec := e.classifier.Classify(runErr)

		switch rec.Action {
		case classify.ActionFatal, classify.ActionWaitForIntervention:
			return fmt.Errorf("element: unrecoverable error: %w", runErr)
		case classify.ActionFallbackTransport:
			if !e.applyTransportFallback(rec.FallbackFrom) {
				return fmt.Errorf("element: transport fallback ladder exhausted: %w", runErr)
			}
		}

		attempts++
		if e.props.MaxReconnectTries > 0 && attempts >= e.props.MaxReconnectTries {
			return fmt.Errorf("element: reconnect attempts exhausted after %d tries: %w", attempts, runErr)
		}
		if !calc.ShouldRetry() {
			return fmt.Errorf("element: retry budget exhausted: %w", runErr)
		}

		delay, ok := calc.NextDelay()
		if !ok {
			return fmt.Errorf("element: retry strategy declined to retry: %w", runErr)
		}
		e.logger.Info("element: reconnecting", "attempt", attempts+1, "delay", delay, "class", rec.Class)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// onAttemptOutcome folds one connection attempt's result into the Retry
// Calculator, the Auto Pattern Selector's window, and (when enabled) the
// Adaptive Learner's per-fingerprint confidence.
func (e *Element) onAttemptOutcome(calc *retry.Calculator, selector *pattern.Selector, fingerprint string, strategy retry.Strategy, racingStrategy racer.Strategy, duration time.Duration, success bool) {
	calc.RecordConnectionResult(success, success && duration < 2*time.Second)
	if success {
		calc.Reset()
	}
	selector.Record(pattern.Attempt{Success: success, Duration: duration, At: time.Now().Add(-duration)})
	if e.props.AdaptiveEnabled && e.learner != nil {
		e.learner.Update(fingerprint, strategy, racingStrategy, success)
	}
}

// retryConfig builds the Retry Calculator's configuration from Properties,
// defaulting to DefaultConfig()'s formula parameters.
func (e *Element) retryConfig() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.Strategy = parseElementRetryStrategy(e.props.RetryStrategyName)
	if e.props.MaxReconnectTries > 0 {
		cfg.MaxAttempts = e.props.MaxReconnectTries
	}
	return cfg
}

func parseElementRetryStrategy(name string) retry.Strategy {
	if name == "" {
		return retry.StrategyExponentialJitter
	}
	if _, err := config.ParseRetryStrategy(name); err != nil {
		return retry.StrategyExponentialJitter
	}
	return retry.Strategy(name)
}

func parseElementRacingStrategy(name string) racer.Strategy {
	if name == "" {
		return racer.StrategyNone
	}
	if _, err := config.ParseRacingStrategy(name); err != nil {
		return racer.StrategyNone
	}
	return racer.Strategy(name)
}

// adaptiveFingerprint derives the server-fingerprint cache key (spec.md
// §6.9's "server fingerprint (scheme+host+port)") from Properties.Location.
func (e *Element) adaptiveFingerprint() string {
	u, err := url.Parse(e.props.Location)
	if err != nil {
		return adaptive.Fingerprint("unknown", e.props.Location, 0)
	}
	port, _ := strconv.Atoi(u.Port())
	return adaptive.Fingerprint(u.Scheme, u.Hostname(), port)
}

// fallbackScheme maps a classify.Transport rung to the URL scheme that
// negotiates it, per spec.md §4.4's scheme table.
var fallbackScheme = map[classify.Transport]string{
	classify.TransportUDP:            "rtspu",
	classify.TransportTCPInterleaved: "rtspt",
	classify.TransportHTTPTunneled:   "rtsph",
	classify.TransportTLSTunneled:    "rtspsh",
}

// applyTransportFallback steps Properties.Location to the next rung of the
// transport fallback ladder after from, per spec.md §4.12's FallbackTransport
// action. Reports false if from is already the last rung.
func (e *Element) applyTransportFallback(from classify.Transport) bool {
	to, ok := classify.NextTransport(from)
	if !ok {
		return false
	}
	scheme, ok := fallbackScheme[to]
	if !ok {
		return false
	}
	_, currentScheme, err := parseScheme(e.props.Location)
	if err != nil {
		return false
	}
	e.props.Location = strings.Replace(e.props.Location, currentScheme+"://", scheme+"://", 1)
	e.logger.Info("element: falling back transport", "from", from, "to", to, "scheme", scheme)
	return true
}

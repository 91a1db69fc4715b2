// Package pattern implements the Auto Pattern Selector (spec.md §4.10):
// classification of the recent attempt window into a network pattern, and
// the strategy/racing recommendation that follows from it.
package pattern

import (
	"sync"
	"time"

	"github.com/ethan/rtsp-engine/pkg/racer"
	"github.com/ethan/rtsp-engine/pkg/retry"
)

// Pattern is the classified network behavior.
type Pattern string

const (
	PatternStable            Pattern = "stable"
	PatternHighPacketLoss    Pattern = "high-packet-loss"
	PatternConnectionLimited Pattern = "connection-limited"
	PatternCongested         Pattern = "congested"
	PatternUnknown           Pattern = "unknown"
)

// Attempt is one entry in the attempt history window.
type Attempt struct {
	Success  bool
	Duration time.Duration
	At       time.Time
}

// DefaultWindow is the default number of trailing attempts inspected.
const DefaultWindow = 8

// shortConnectionThreshold matches spec.md §4.10's "< 10s" ConnectionLimited
// evidence.
const shortConnectionThreshold = 10 * time.Second

// stableDurationThreshold matches the "> 30s" Stable evidence.
const stableDurationThreshold = 30 * time.Second

// Recommendation is the strategy/racing pair the selector recommends for a
// classified pattern.
type Recommendation struct {
	Pattern      Pattern
	Confidence   float64
	Racing       racer.Strategy
	BaseStrategy retry.Strategy
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// Selector inspects a bounded attempt window and recommends a strategy.
type Selector struct {
	mu         sync.Mutex
	window     int
	history    []Attempt
	lastRec    Recommendation
	onTransition func(from, to Pattern)
}

// New constructs a Selector with the given window size (spec.md's "typically
// last 3-12"); 0 selects DefaultWindow.
func New(window int) *Selector {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Selector{window: window, lastRec: Recommendation{Pattern: PatternUnknown}}
}

// OnTransition registers a callback invoked whenever the classified pattern
// changes, for recording to the Decision History.
func (s *Selector) OnTransition(fn func(from, to Pattern)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTransition = fn
}

// Record appends a completed attempt to the window, trimming to the
// configured size.
func (s *Selector) Record(a Attempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, a)
	if len(s.history) > s.window {
		s.history = s.history[len(s.history)-s.window:]
	}
}

// Classify evaluates the current window against spec.md §4.10's ordered
// rules, first match wins.
func (s *Selector) Classify() Recommendation {
	s.mu.Lock()
	hist := append([]Attempt(nil), s.history...)
	prev := s.lastRec.Pattern
	s.mu.Unlock()

	rec := classify(hist)

	s.mu.Lock()
	s.lastRec = rec
	cb := s.onTransition
	s.mu.Unlock()

	if cb != nil && prev != rec.Pattern {
		cb(prev, rec.Pattern)
	}
	return rec
}

// Resolver adapts Selector to retry.BaseResolver, so pkg/retry's Auto
// strategy can delegate without importing pkg/pattern.
func (s *Selector) Resolver() retry.BaseResolver {
	return func(attempt int) (retry.Strategy, retry.Config) {
		rec := s.Classify()
		return rec.BaseStrategy, retry.Config{
			Strategy:     rec.BaseStrategy,
			MaxAttempts:  -1,
			InitialDelay: rec.InitialDelay,
			MaxDelay:     rec.MaxDelay,
			LinearStep:   time.Second,
		}
	}
}

func classify(hist []Attempt) Recommendation {
	if isConnectionLimited(hist) {
		return Recommendation{
			Pattern: PatternConnectionLimited, Confidence: 0.85,
			Racing: racer.StrategyLastWins, BaseStrategy: retry.StrategyExponentialJitter,
			InitialDelay: 200 * time.Millisecond, MaxDelay: 10 * time.Second,
		}
	}

	total, successes := len(hist), countSuccesses(hist)
	successRate := 0.0
	if total > 0 {
		successRate = float64(successes) / float64(total)
	}

	if total >= 3 && successRate < 0.4 && isSporadic(hist) {
		return Recommendation{
			Pattern: PatternHighPacketLoss, Confidence: 0.75,
			Racing: racer.StrategyFirstWins, BaseStrategy: retry.StrategyExponentialJitter,
			InitialDelay: 2 * time.Second, MaxDelay: 30 * time.Second,
		}
	}

	if total >= 3 && successRate >= 0.4 && successRate <= 0.7 && risingDurations(hist) {
		return Recommendation{
			Pattern: PatternCongested, Confidence: 0.65,
			Racing: racer.StrategyNone, BaseStrategy: retry.StrategyExponential,
			InitialDelay: time.Second, MaxDelay: time.Minute,
		}
	}

	if isStable(hist) {
		return Recommendation{
			Pattern: PatternStable, Confidence: 0.92,
			Racing: racer.StrategyNone, BaseStrategy: retry.StrategyLinear,
			InitialDelay: 0, MaxDelay: 5 * time.Second,
		}
	}

	return Recommendation{
		Pattern: PatternUnknown, Confidence: 0.4,
		Racing: racer.StrategyNone, BaseStrategy: retry.StrategyExponential,
		InitialDelay: time.Second, MaxDelay: 30 * time.Second,
	}
}

func countSuccesses(hist []Attempt) int {
	n := 0
	for _, a := range hist {
		if a.Success {
			n++
		}
	}
	return n
}

// isConnectionLimited matches "≥ 2 successes where connection_duration < 10s".
func isConnectionLimited(hist []Attempt) bool {
	n := 0
	for _, a := range hist {
		if a.Success && a.Duration > 0 && a.Duration < shortConnectionThreshold {
			n++
		}
	}
	return n >= 2
}

// isSporadic requires at least one success interleaved among failures,
// rather than a single leading run (which would instead read as Stable or
// a startup transient).
func isSporadic(hist []Attempt) bool {
	seenSuccess, seenFailureAfter := false, false
	for _, a := range hist {
		if a.Success {
			seenSuccess = true
		} else if seenSuccess {
			seenFailureAfter = true
		}
	}
	return seenSuccess && seenFailureAfter
}

// risingDurations checks successive successful-attempt durations trend
// upward, evidence that the path is congested rather than simply lossy.
func risingDurations(hist []Attempt) bool {
	var durations []time.Duration
	for _, a := range hist {
		if a.Success {
			durations = append(durations, a.Duration)
		}
	}
	if len(durations) < 2 {
		return false
	}
	rising := 0
	for i := 1; i < len(durations); i++ {
		if durations[i] >= durations[i-1] {
			rising++
		}
	}
	return rising >= len(durations)-1
}

// isStable requires >= 3 consecutive trailing successes with duration > 30s.
func isStable(hist []Attempt) bool {
	if len(hist) < 3 {
		return false
	}
	tail := hist[len(hist)-3:]
	for _, a := range tail {
		if !a.Success || a.Duration <= stableDurationThreshold {
			return false
		}
	}
	return true
}

package pattern

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ethan/rtsp-engine/pkg/racer"
)

func TestConnectionLimitedDetection(t *testing.T) {
	s := New(8)
	s.Record(Attempt{Success: true, Duration: 4 * time.Second})
	s.Record(Attempt{Success: false})
	s.Record(Attempt{Success: true, Duration: 6 * time.Second})

	rec := s.Classify()
	assert.Equal(t, PatternConnectionLimited, rec.Pattern)
	assert.Equal(t, racer.StrategyLastWins, rec.Racing)
}

func TestHighPacketLossDetection(t *testing.T) {
	s := New(8)
	s.Record(Attempt{Success: true, Duration: 40 * time.Second})
	s.Record(Attempt{Success: false})
	s.Record(Attempt{Success: false})
	s.Record(Attempt{Success: false})
	s.Record(Attempt{Success: false})
	s.Record(Attempt{Success: false})

	rec := s.Classify()
	assert.Equal(t, PatternHighPacketLoss, rec.Pattern)
	assert.Equal(t, racer.StrategyFirstWins, rec.Racing)
}

func TestStableDetection(t *testing.T) {
	s := New(8)
	s.Record(Attempt{Success: true, Duration: 40 * time.Second})
	s.Record(Attempt{Success: true, Duration: 45 * time.Second})
	s.Record(Attempt{Success: true, Duration: 50 * time.Second})

	rec := s.Classify()
	assert.Equal(t, PatternStable, rec.Pattern)
	assert.Equal(t, racer.StrategyNone, rec.Racing)
	assert.GreaterOrEqual(t, rec.Confidence, 0.9)
}

func TestEmptyWindowIsUnknown(t *testing.T) {
	s := New(8)
	rec := s.Classify()
	assert.Equal(t, PatternUnknown, rec.Pattern)
}

func TestWindowTrimsToConfiguredSize(t *testing.T) {
	s := New(3)
	for i := 0; i < 10; i++ {
		s.Record(Attempt{Success: true, Duration: 40 * time.Second})
	}
	assert.Len(t, s.history, 3)
}

func TestTransitionCallbackFiresOnChange(t *testing.T) {
	s := New(8)
	var from, to Pattern
	calls := 0
	s.OnTransition(func(f, tt Pattern) {
		calls++
		from, to = f, tt
	})

	s.Record(Attempt{Success: true, Duration: 40 * time.Second})
	s.Record(Attempt{Success: true, Duration: 45 * time.Second})
	s.Record(Attempt{Success: true, Duration: 50 * time.Second})
	s.Classify()

	assert.Equal(t, 1, calls)
	assert.Equal(t, PatternUnknown, from)
	assert.Equal(t, PatternStable, to)
}

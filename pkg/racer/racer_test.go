package racer

import (
	"context"
	"errors"
	"io/ioutil"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(ioutil.Discard, nil))
}

type fakeConn struct {
	net.Conn
	closed bool
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func TestFirstWinsReturnsExactlyOneOpenSocket(t *testing.T) {
	var opened []*fakeConn
	dial := func(ctx context.Context, addr string) (net.Conn, error) {
		c := &fakeConn{}
		opened = append(opened, c)
		return c, nil
	}

	cfg := DefaultConfig()
	cfg.Strategy = StrategyFirstWins
	cfg.MaxParallel = 3
	cfg.Stagger = 10 * time.Millisecond

	r := New(cfg, dial, discardLogger(), nil)
	conn, err := r.Connect(context.Background(), "example:554")
	require.NoError(t, err)
	require.NotNil(t, conn)

	// Give cancelled losers a moment to close.
	time.Sleep(50 * time.Millisecond)

	openCount := 0
	for _, c := range opened {
		if !c.closed {
			openCount++
		}
	}
	require.Equal(t, 1, openCount)
}

func TestFirstWinsAllFail(t *testing.T) {
	dial := func(ctx context.Context, addr string) (net.Conn, error) {
		return nil, errors.New("refused")
	}
	cfg := DefaultConfig()
	cfg.Strategy = StrategyFirstWins
	cfg.MaxParallel = 2
	cfg.Stagger = time.Millisecond

	r := New(cfg, dial, discardLogger(), nil)
	_, err := r.Connect(context.Background(), "example:554")
	require.Error(t, err)
}

func TestLastWinsKeepsOnlyNewestSuccess(t *testing.T) {
	var opened []*fakeConn
	dial := func(ctx context.Context, addr string) (net.Conn, error) {
		c := &fakeConn{}
		opened = append(opened, c)
		return c, nil
	}

	cfg := DefaultConfig()
	cfg.Strategy = StrategyLastWins
	cfg.MaxParallel = 3
	cfg.Stagger = 10 * time.Millisecond

	r := New(cfg, dial, discardLogger(), nil)
	winner, err := r.Connect(context.Background(), "example:554")
	require.NoError(t, err)

	openCount := 0
	for _, c := range opened {
		if !c.closed {
			openCount++
		}
	}
	require.Equal(t, 1, openCount)
	require.False(t, winner.(*fakeConn).closed)
}

func TestSetStrategySwitchesAtRuntime(t *testing.T) {
	r := New(DefaultConfig(), nil, discardLogger(), nil)
	require.Equal(t, StrategyNone, r.Strategy())
	r.SetStrategy(StrategyHybrid)
	require.Equal(t, StrategyHybrid, r.Strategy())
}

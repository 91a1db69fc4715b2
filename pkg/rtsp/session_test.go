package rtsp

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSessionHeaderWithTimeout(t *testing.T) {
	info, err := ParseSessionHeader("12345678;timeout=30")
	require.NoError(t, err)
	assert.Equal(t, "12345678", info.ID)
	assert.Equal(t, 30*time.Second, info.Timeout)
}

func TestParseSessionHeaderDefaultsTimeout(t *testing.T) {
	info, err := ParseSessionHeader("abcdef")
	require.NoError(t, err)
	assert.Equal(t, "abcdef", info.ID)
	assert.Equal(t, DefaultSessionTimeout, info.Timeout)
}

func TestParseSessionHeaderRejectsEmpty(t *testing.T) {
	_, err := ParseSessionHeader("   ")
	assert.Error(t, err)
}

func TestSessionManagerBindAndTouch(t *testing.T) {
	var calls int32
	m := NewSessionManager(KeepaliveGetParameter, func(ctx context.Context, method KeepaliveMethod) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, nil)

	require.NoError(t, m.Bind(context.Background(), "sess1;timeout=1"))
	assert.Equal(t, "sess1", m.ID())
	m.Touch()

	time.Sleep(1200 * time.Millisecond)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(1))
}

func TestSessionManagerClearStopsKeepalive(t *testing.T) {
	var calls int32
	m := NewSessionManager(KeepaliveOptions, func(ctx context.Context, method KeepaliveMethod) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, nil)
	require.NoError(t, m.Bind(context.Background(), "sess2;timeout=1"))
	m.Clear()
	assert.Empty(t, m.ID())

	time.Sleep(1200 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

package transport

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupProfileKnownSchemes(t *testing.T) {
	s, p, err := LookupProfile("rtsps")
	require.NoError(t, err)
	assert.Equal(t, SchemeRTSPS, s)
	assert.True(t, p.TLS)
	assert.False(t, p.UDP)
	assert.Equal(t, 322, p.DefaultPort)
}

func TestLookupProfileRejectsUnknownScheme(t *testing.T) {
	_, _, err := LookupProfile("ftp")
	assert.ErrorIs(t, err, ErrUnknownScheme)
}

func TestRTSPHAllowsTunnelNotUDP(t *testing.T) {
	_, p, err := LookupProfile("rtsph")
	require.NoError(t, err)
	assert.True(t, p.HTTPTunnel)
	assert.False(t, p.UDP)
	assert.True(t, p.TCP)
}

func TestParsePortUsesDefaultWhenAbsent(t *testing.T) {
	u, _ := url.Parse("rtsp://camera.local/stream")
	_, profile, _ := LookupProfile("rtsp")
	port, err := ParsePort(u, profile)
	require.NoError(t, err)
	assert.Equal(t, "554", port)
}

func TestParsePortHonorsExplicitPort(t *testing.T) {
	u, _ := url.Parse("rtsp://camera.local:8554/stream")
	_, profile, _ := LookupProfile("rtsp")
	port, err := ParsePort(u, profile)
	require.NoError(t, err)
	assert.Equal(t, "8554", port)
}

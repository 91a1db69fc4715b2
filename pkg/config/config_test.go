package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRetryStrategyRejectsUnknown(t *testing.T) {
	_, err := ParseRetryStrategy("backoff")
	assert.Error(t, err)

	v, err := ParseRetryStrategy("exponential-jitter")
	require.NoError(t, err)
	assert.Equal(t, RetryExponentialJitter, v)
}

func TestParsePortRangeValidatesParity(t *testing.T) {
	pr, err := ParsePortRange("50000-50003")
	require.NoError(t, err)
	assert.Equal(t, 50000, pr.Start)
	assert.Equal(t, 50003, pr.End)

	_, err = ParsePortRange("50001-50003")
	assert.Error(t, err, "odd start should be rejected")

	_, err = ParsePortRange("50000-50002")
	assert.Error(t, err, "end must equal start+2n-1")
}

func TestParseSelectStreamsAllReturnsNil(t *testing.T) {
	kinds, err := ParseSelectStreams("all")
	require.NoError(t, err)
	assert.Nil(t, kinds)
}

func TestParseSelectStreamsRejectsUnknownKind(t *testing.T) {
	_, err := ParseSelectStreams("video,telepathy")
	assert.Error(t, err)
}

func TestLoadAppliesOptionsOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.env")
	content := "location=rtsp://cam.local/stream\nretry-strategy=linear\nnat-method=none\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "rtsp://cam.local/stream", cfg.Location)
	assert.Equal(t, RetryLinear, cfg.RetryStrategy)
	assert.Equal(t, NATNone, cfg.NATMethod)
	assert.Equal(t, BufferModeAuto, cfg.BufferMode, "unset options keep Default()'s value")
}

func TestLoadRejectsMissingLocation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.env")
	require.NoError(t, os.WriteFile(path, []byte("retry-strategy=none\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestFlagsToConfigRequiresLocation(t *testing.T) {
	f := &Flags{}
	_, err := f.ToConfig()
	assert.Error(t, err)
}

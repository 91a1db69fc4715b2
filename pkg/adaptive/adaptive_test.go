package adaptive

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethan/rtsp-engine/pkg/racer"
	"github.com/ethan/rtsp-engine/pkg/retry"
)

func TestFingerprintSanitizesSpecialChars(t *testing.T) {
	fp := Fingerprint("rtsp", "cam.local:8554", 554)
	assert.NotContains(t, fp, ":")
	assert.Equal(t, "rtsp_cam.local_8554_554", fp)
}

func TestUnknownFingerprintReturnsConservativeDefault(t *testing.T) {
	l := New(t.TempDir(), nil)
	s, r, conf := l.Recommend("never-seen")
	assert.Equal(t, retry.StrategyExponential, s)
	assert.Equal(t, racer.StrategyNone, r)
	assert.Equal(t, 0.0, conf)
}

func TestUpdateRaisesConfidenceOnRepeatedSuccess(t *testing.T) {
	l := New(t.TempDir(), nil)
	l.SetEpsilon(0)
	fp := "host"
	for i := 0; i < 5; i++ {
		l.Update(fp, retry.StrategyExponential, racer.StrategyNone, true)
	}
	_, _, conf := l.Recommend(fp)
	assert.Greater(t, conf, 0.7)
}

func TestPersistsAndReloadsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	l1 := New(dir, nil)
	l1.SetEpsilon(0)
	l1.Update("host", retry.StrategyLinear, racer.StrategyFirstWins, true)

	l2 := New(dir, nil)
	strategy, racing, conf := l2.Recommend("host")
	assert.Equal(t, retry.StrategyLinear, strategy)
	assert.Equal(t, racer.StrategyFirstWins, racing)
	assert.Greater(t, conf, 0.0)
}

func TestExpiredEntryEvictedOnLoad(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, nil)
	l.entries["stale"] = &Entry{
		Version: SchemaVersion, Fingerprint: "stale",
		BestStrategy: retry.StrategyLinear, Confidence: 0.9,
		UpdatedAt: time.Now().Add(-48 * time.Hour), TTL: DefaultTTL,
	}
	l.persist(l.entries["stale"])

	require.FileExists(t, filepath.Join(dir, "stale.json"))

	l2 := New(dir, nil)
	_, _, conf := l2.Recommend("stale")
	assert.Equal(t, 0.0, conf, "expired entry must not be loaded")
}

func TestCorruptFileIsIgnored(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, nil)
	l.Update("good", retry.StrategyExponential, racer.StrategyNone, true)

	corruptPath := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corruptPath, []byte("{not json"), 0o644))

	l2 := New(dir, nil)
	_, _, conf := l2.Recommend("good")
	assert.Greater(t, conf, 0.0)
}

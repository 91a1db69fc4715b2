package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify401RequiresCredentials(t *testing.T) {
	c := New()
	rec := c.Classify(&ProtocolError{Kind: ProtoStatus, Code: 401})
	assert.Equal(t, ActionWaitForIntervention, rec.Action)
	assert.Equal(t, ClassRequiresIntervention, rec.Class)
}

func TestClassify404IsPermanent(t *testing.T) {
	c := New()
	rec := c.Classify(&ProtocolError{Kind: ProtoStatus, Code: 404})
	assert.Equal(t, ActionFatal, rec.Action)
	assert.Equal(t, ClassPermanent, rec.Class)
}

func TestClassify5xxRetriesWithBackoff(t *testing.T) {
	c := New()
	rec := c.Classify(&ProtocolError{Kind: ProtoStatus, Code: 503})
	assert.Equal(t, ActionRetry, rec.Action)
	assert.Equal(t, ClassRetryableWithBackoff, rec.Class)
}

func TestClassifyInvalidSessionForcesFullSetup(t *testing.T) {
	c := New()
	rec := c.Classify(&ProtocolError{Kind: ProtoInvalidSession})
	assert.Equal(t, ActionReconnect, rec.Action)
	assert.True(t, rec.ResetSession)
}

func TestGlobalGuardrailForcesFatal(t *testing.T) {
	c := New()
	c.MaxRecoveryAttempts = 2
	_ = c.Classify(&NetworkError{Kind: NetConnectionRefused})
	_ = c.Classify(&NetworkError{Kind: NetConnectionRefused})
	rec := c.Classify(&NetworkError{Kind: NetConnectionRefused})
	assert.Equal(t, ActionFatal, rec.Action)
}

func TestTransportFallbackLadder(t *testing.T) {
	next, ok := NextTransport(TransportUDP)
	assert.True(t, ok)
	assert.Equal(t, TransportTCPInterleaved, next)

	_, ok = NextTransport(TransportTLSTunneled)
	assert.False(t, ok, "last rung has no further fallback")
}

func TestStatsSuccessRate(t *testing.T) {
	c := New()
	c.Classify(&NetworkError{Kind: NetConnectionRefused})
	c.RecordSuccess()
	stats := c.Stats()
	assert.Equal(t, 1, stats.SuccessfulAttempts)
	assert.InDelta(t, 1.0, stats.SuccessRate, 0.001)
}

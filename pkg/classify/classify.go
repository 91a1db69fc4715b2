package classify

import (
	"errors"
	"time"
)

// ActionKind enumerates the recovery actions the classifier can recommend.
type ActionKind string

const (
	ActionRetry              ActionKind = "retry"
	ActionReconnect           ActionKind = "reconnect"
	ActionFallbackTransport    ActionKind = "fallback-transport"
	ActionResetPipeline        ActionKind = "reset-pipeline"
	ActionLogAndContinue        ActionKind = "log-and-continue"
	ActionWaitForIntervention    ActionKind = "wait-for-intervention"
	ActionFatal                   ActionKind = "fatal"
)

// Transport is a transport-ladder rung used by FallbackTransport actions.
type Transport string

const (
	TransportUDP           Transport = "udp"
	TransportTCPInterleaved Transport = "tcp-interleaved"
	TransportHTTPTunneled  Transport = "http-tunneled"
	TransportTLSTunneled   Transport = "tls-tunneled"
)

// fallbackLadder is the order FallbackTransport steps through.
var fallbackLadder = []Transport{TransportUDP, TransportTCPInterleaved, TransportHTTPTunneled, TransportTLSTunneled}

// NextTransport returns the next rung after from, or ok=false if from is the
// last rung (the caller should treat that as Fatal per spec.md §4.12).
func NextTransport(from Transport) (Transport, bool) {
	for i, t := range fallbackLadder {
		if t == from && i+1 < len(fallbackLadder) {
			return fallbackLadder[i+1], true
		}
	}
	return "", false
}

// Recovery is the action the classifier recommends for a given error.
type Recovery struct {
	Action          ActionKind
	Class           Class
	Strategy        string // retry strategy name, set for ActionRetry
	MaxAttempts     int
	Delay           time.Duration
	ResetSession    bool
	FallbackFrom    Transport
	FallbackTo      Transport
	Message         string
}

// DefaultMaxRecoveryAttempts is the global guardrail: once the effective
// failure counter exceeds this, the classifier forces Fatal regardless of
// the error's own class.
const DefaultMaxRecoveryAttempts = 10

// Classifier tracks cumulative recovery attempts to enforce the global
// guardrail and reports aggregate stats.
type Classifier struct {
	MaxRecoveryAttempts int

	totalAttempts      int
	successfulAttempts int
	failures           int // effective failure counter checked by the guardrail
}

// New constructs a Classifier with the default guardrail.
func New() *Classifier {
	return &Classifier{MaxRecoveryAttempts: DefaultMaxRecoveryAttempts}
}

// Classify maps err to a Recovery action, per spec.md §4.12's table. It also
// counts the attempt in the stats total and in the effective failure
// counter, and forces Fatal once that counter exceeds the guardrail.
func (c *Classifier) Classify(err error) Recovery {
	c.totalAttempts++
	c.failures++
	if c.failures > c.MaxRecoveryAttempts {
		return Recovery{Action: ActionFatal, Class: ClassPermanent, Message: "global recovery attempt cap exceeded"}
	}

	rec := classifyRaw(err)
	return rec
}

// RecordSuccess decrements the effective failure counter on a successful
// recovery, per spec.md §4.12 ("successful recovery decrements the effective
// failure counter").
func (c *Classifier) RecordSuccess() {
	c.successfulAttempts++
	if c.failures > 0 {
		c.failures--
	}
}

// Stats reports cumulative totals and the derived success rate.
type Stats struct {
	TotalAttempts      int
	SuccessfulAttempts int
	SuccessRate        float64
}

func (c *Classifier) Stats() Stats {
	rate := 0.0
	if c.totalAttempts > 0 {
		rate = float64(c.successfulAttempts) / float64(c.totalAttempts)
	}
	return Stats{
		TotalAttempts:      c.totalAttempts,
		SuccessfulAttempts: c.successfulAttempts,
		SuccessRate:        rate,
	}
}

func classifyRaw(err error) Recovery {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return classifyNetwork(netErr)
	}

	var protoErr *ProtocolError
	if errors.As(err, &protoErr) {
		return classifyProtocol(protoErr)
	}

	var mediaErr *MediaError
	if errors.As(err, &mediaErr) {
		return classifyMedia(mediaErr)
	}

	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return Recovery{Action: ActionFatal, Class: ClassPermanent, Message: cfgErr.Error()}
	}

	return Recovery{Action: ActionFatal, Class: ClassPermanent, Message: err.Error()}
}

func classifyNetwork(e *NetworkError) Recovery {
	switch e.Kind {
	case NetConnectionRefused, NetConnectionTimeout, NetConnectionReset:
		return Recovery{Action: ActionRetry, Class: ClassRetryableWithBackoff, Strategy: "exponential-jitter"}
	case NetDNSFailed:
		return Recovery{Action: ActionRetry, Class: ClassRetryableWithBackoff, Strategy: "exponential"}
	case NetUnreachable:
		return Recovery{Action: ActionRetry, Class: ClassRetryableWithBackoff, Strategy: "exponential", MaxAttempts: -1}
	case NetTLSHandshake:
		return Recovery{Action: ActionFatal, Class: ClassPermanent, Message: "TLS handshake failed"}
	case NetNATTraversal:
		return Recovery{Action: ActionWaitForIntervention, Class: ClassRequiresIntervention, Message: "NAT traversal failed; fallback transport recommended"}
	case NetHTTPTunnel:
		return Recovery{Action: ActionWaitForIntervention, Class: ClassRequiresIntervention, Message: "HTTP tunnel error; fallback transport recommended"}
	default:
		return Recovery{Action: ActionRetry, Class: ClassRetryableWithBackoff, Strategy: "exponential-jitter"}
	}
}

func classifyProtocol(e *ProtocolError) Recovery {
	switch e.Kind {
	case ProtoStatus:
		switch {
		case e.Code == 401:
			return Recovery{Action: ActionWaitForIntervention, Class: ClassRequiresIntervention, Message: "credentials required"}
		case e.Code == 403 || e.Code == 404:
			return Recovery{Action: ActionFatal, Class: ClassPermanent, Message: e.Message}
		case e.Code == 405:
			return Recovery{Action: ActionFatal, Class: ClassPermanent, Message: e.Message}
		case e.Code >= 500 && e.Code < 600:
			return Recovery{Action: ActionRetry, Class: ClassRetryableWithBackoff, Strategy: "exponential"}
		default:
			return Recovery{Action: ActionFatal, Class: ClassPermanent, Message: e.Message}
		}
	case ProtoAuthFailed:
		return Recovery{Action: ActionWaitForIntervention, Class: ClassRequiresIntervention, Message: "authentication failed"}
	case ProtoInvalidSession:
		// §9 open question resolution: any InvalidSessionId triggers a full
		// SETUP, not merely a reconnect.
		return Recovery{Action: ActionReconnect, Class: ClassRetryableWithBackoff, ResetSession: true}
	case ProtoTransportNegotiation:
		return Recovery{Action: ActionFallbackTransport, Class: ClassRetryableWithBackoff}
	case ProtoUnsupportedFeature:
		return Recovery{Action: ActionFatal, Class: ClassPermanent, Message: e.Message}
	case ProtoInvalidResponse:
		return Recovery{Action: ActionRetry, Class: ClassTransient, Strategy: "immediate"}
	default:
		return Recovery{Action: ActionFatal, Class: ClassPermanent, Message: e.Message}
	}
}

func classifyMedia(e *MediaError) Recovery {
	switch e.Kind {
	case MediaSyncLost:
		return Recovery{Action: ActionResetPipeline, Class: ClassTransient}
	case MediaBufferOverflow:
		return Recovery{Action: ActionLogAndContinue, Class: ClassTransient}
	case MediaUnsupportedCodec, MediaNoStreams:
		return Recovery{Action: ActionFatal, Class: ClassPermanent, Message: e.Detail}
	default:
		return Recovery{Action: ActionFatal, Class: ClassPermanent, Message: e.Detail}
	}
}

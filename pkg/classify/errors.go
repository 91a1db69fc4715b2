// Package classify defines the engine's tagged error taxonomy and maps
// errors to recovery actions, per spec.md §4.12.
package classify

import "fmt"

// Class is the recovery classification an error maps to.
type Class string

const (
	ClassTransient             Class = "transient"
	ClassRetryableWithBackoff  Class = "retryable-with-backoff"
	ClassPermanent             Class = "permanent"
	ClassRequiresIntervention  Class = "requires-intervention"
)

// Context carries metadata every classified error includes, logged once at
// the point of classification.
type Context struct {
	Resource   string
	Operation  string
	RetryCount int
	Details    string
}

// NetworkKind enumerates Network error arms.
type NetworkKind string

const (
	NetConnectionRefused NetworkKind = "connection-refused"
	NetConnectionTimeout NetworkKind = "connection-timeout"
	NetConnectionReset   NetworkKind = "connection-reset"
	NetDNSFailed         NetworkKind = "dns-resolution-failed"
	NetTLSHandshake      NetworkKind = "tls-handshake-failed"
	NetNATTraversal      NetworkKind = "nat-traversal-failed"
	NetHTTPTunnel        NetworkKind = "http-tunnel-error"
	NetUnreachable       NetworkKind = "network-unreachable"
	NetSocket            NetworkKind = "socket-error"
)

// NetworkError wraps a network-layer failure.
type NetworkError struct {
	Kind    NetworkKind
	Host    string
	Port    int
	Timeout bool
	Ctx     Context
	Source  error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error %s (%s:%d): %v", e.Kind, e.Host, e.Port, e.Source)
}

func (e *NetworkError) Unwrap() error { return e.Source }

// ProtocolKind enumerates Protocol error arms.
type ProtocolKind string

const (
	ProtoStatus                  ProtocolKind = "status"
	ProtoAuthFailed               ProtocolKind = "auth-failed"
	ProtoInvalidSession            ProtocolKind = "invalid-session"
	ProtoTransportNegotiation       ProtocolKind = "transport-negotiation-failed"
	ProtoUnsupportedFeature          ProtocolKind = "unsupported-feature"
	ProtoInvalidResponse              ProtocolKind = "invalid-response"
)

// ProtocolError wraps an RTSP protocol-layer failure.
type ProtocolError struct {
	Kind    ProtocolKind
	Code    int
	Message string
	Ctx     Context
}

func (e *ProtocolError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("protocol error %s: %d %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("protocol error %s: %s", e.Kind, e.Message)
}

// MediaKind enumerates Media error arms.
type MediaKind string

const (
	MediaUnsupportedCodec    MediaKind = "unsupported-codec"
	MediaSyncLost            MediaKind = "sync-lost"
	MediaBufferOverflow      MediaKind = "buffer-overflow"
	MediaNoStreams           MediaKind = "no-streams"
)

// MediaError wraps a media-delivery failure.
type MediaError struct {
	Kind   MediaKind
	Codec  string
	Detail string
	Ctx    Context
}

func (e *MediaError) Error() string {
	return fmt.Sprintf("media error %s (codec=%s): %s", e.Kind, e.Codec, e.Detail)
}

// ConfigKind enumerates Configuration error arms.
type ConfigKind string

const (
	ConfigInvalid    ConfigKind = "invalid"
	ConfigMissing    ConfigKind = "missing"
	ConfigConflicting ConfigKind = "conflicting"
)

// ConfigError wraps a configuration-layer failure.
type ConfigError struct {
	Kind      ConfigKind
	Parameter string
	Reason    string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error %s for %q: %s", e.Kind, e.Parameter, e.Reason)
}

// InternalError wraps anything that doesn't fit the other arms.
type InternalError struct {
	Message string
	Source  error
}

func (e *InternalError) Error() string {
	if e.Source != nil {
		return fmt.Sprintf("internal error: %s: %v", e.Message, e.Source)
	}
	return fmt.Sprintf("internal error: %s", e.Message)
}

func (e *InternalError) Unwrap() error { return e.Source }

// Package config implements the full configuration surface of spec.md §6,
// generalized from the teacher's 6-field ".env" reader (Google/Cloudflare
// credentials) into the RTSP engine's option set: every enum gets its own
// type and a ParseX function that rejects unknown values at configuration
// time, per spec.md §6's "unknown schemes are rejected at configuration
// time" posture applied uniformly.
package config

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// RetryStrategy mirrors pkg/retry.Strategy's wire names, kept as an
// independent type so pkg/config has no import-time dependency on pkg/retry;
// ToRetryStrategy below does the conversion at the boundary.
type RetryStrategy string

const (
	RetryNone              RetryStrategy = "none"
	RetryImmediate         RetryStrategy = "immediate"
	RetryLinear            RetryStrategy = "linear"
	RetryExponential       RetryStrategy = "exponential"
	RetryExponentialJitter RetryStrategy = "exponential-jitter"
	RetryAuto              RetryStrategy = "auto"
	RetryAdaptive          RetryStrategy = "adaptive"
)

// ParseRetryStrategy validates a retry-strategy option value.
func ParseRetryStrategy(v string) (RetryStrategy, error) {
	switch RetryStrategy(v) {
	case RetryNone, RetryImmediate, RetryLinear, RetryExponential, RetryExponentialJitter, RetryAuto, RetryAdaptive:
		return RetryStrategy(v), nil
	default:
		return "", fmt.Errorf("config: invalid retry-strategy %q", v)
	}
}

// RacingStrategy mirrors pkg/racer.Strategy's wire names.
type RacingStrategy string

const (
	RacingNone       RacingStrategy = "none"
	RacingFirstWins  RacingStrategy = "first-wins"
	RacingLastWins   RacingStrategy = "last-wins"
	RacingHybrid     RacingStrategy = "hybrid"
)

// ParseRacingStrategy validates a connection-racing option value.
func ParseRacingStrategy(v string) (RacingStrategy, error) {
	switch RacingStrategy(v) {
	case RacingNone, RacingFirstWins, RacingLastWins, RacingHybrid:
		return RacingStrategy(v), nil
	default:
		return "", fmt.Errorf("config: invalid connection-racing %q", v)
	}
}

// NATMethod selects UDP NAT-traversal behavior.
type NATMethod string

const (
	NATNone  NATMethod = "none"
	NATDummy NATMethod = "dummy"
)

// ParseNATMethod validates a nat-method option value.
func ParseNATMethod(v string) (NATMethod, error) {
	switch NATMethod(v) {
	case NATNone, NATDummy:
		return NATMethod(v), nil
	default:
		return "", fmt.Errorf("config: invalid nat-method %q", v)
	}
}

// HTTPTunnelMode selects when the HTTP tunnel transport is used.
type HTTPTunnelMode string

const (
	TunnelAuto   HTTPTunnelMode = "auto"
	TunnelAlways HTTPTunnelMode = "always"
	TunnelNever  HTTPTunnelMode = "never"
)

// ParseHTTPTunnelMode validates an http-tunnel-mode option value.
func ParseHTTPTunnelMode(v string) (HTTPTunnelMode, error) {
	switch HTTPTunnelMode(v) {
	case TunnelAuto, TunnelAlways, TunnelNever:
		return HTTPTunnelMode(v), nil
	default:
		return "", fmt.Errorf("config: invalid http-tunnel-mode %q", v)
	}
}

// BufferMode selects downstream buffering behavior.
type BufferMode string

const (
	BufferModeNone   BufferMode = "none"
	BufferModeSlave  BufferMode = "slave"
	BufferModeBuffer BufferMode = "buffer"
	BufferModeAuto   BufferMode = "auto"
	BufferModeSynced BufferMode = "synced"
)

// ParseBufferMode validates a buffer-mode option value. buffer-mode=none is
// accepted but is a functional no-op (spec.md §9 design note).
func ParseBufferMode(v string) (BufferMode, error) {
	switch BufferMode(v) {
	case BufferModeNone, BufferModeSlave, BufferModeBuffer, BufferModeAuto, BufferModeSynced:
		return BufferMode(v), nil
	default:
		return "", fmt.Errorf("config: invalid buffer-mode %q", v)
	}
}

// NTPTimeSource selects the wallclock basis for RTP-to-presentation mapping.
type NTPTimeSource string

const (
	NTPSourceNTP          NTPTimeSource = "ntp"
	NTPSourceUnix         NTPTimeSource = "unix"
	NTPSourceRunningTime  NTPTimeSource = "running-time"
	NTPSourceClockTime    NTPTimeSource = "clock-time"
)

// ParseNTPTimeSource validates an ntp-time-source option value.
func ParseNTPTimeSource(v string) (NTPTimeSource, error) {
	switch NTPTimeSource(v) {
	case NTPSourceNTP, NTPSourceUnix, NTPSourceRunningTime, NTPSourceClockTime:
		return NTPTimeSource(v), nil
	default:
		return "", fmt.Errorf("config: invalid ntp-time-source %q", v)
	}
}

// SeekFormat selects the Range header grammar Seek requests use.
type SeekFormat string

const (
	SeekFormatNPT    SeekFormat = "npt"
	SeekFormatSMPTE  SeekFormat = "smpte"
	SeekFormatClock  SeekFormat = "clock"
)

// ParseSeekFormat validates a seek-format option value.
func ParseSeekFormat(v string) (SeekFormat, error) {
	switch SeekFormat(v) {
	case SeekFormatNPT, SeekFormatSMPTE, SeekFormatClock:
		return SeekFormat(v), nil
	default:
		return "", fmt.Errorf("config: invalid seek-format %q", v)
	}
}

// RTSPVersion selects the initially-attempted protocol version.
type RTSPVersion string

const (
	RTSPVersion1 RTSPVersion = "V1_0"
	RTSPVersion2 RTSPVersion = "V2_0"
)

// ParseRTSPVersion validates a default-rtsp-version option value.
func ParseRTSPVersion(v string) (RTSPVersion, error) {
	switch RTSPVersion(v) {
	case RTSPVersion1, RTSPVersion2:
		return RTSPVersion(v), nil
	default:
		return "", fmt.Errorf("config: invalid default-rtsp-version %q", v)
	}
}

// KeepaliveMethod mirrors pkg/rtsp.KeepaliveMethod's wire names.
type KeepaliveMethod string

const (
	KeepaliveGetParameter KeepaliveMethod = "get-parameter"
	KeepaliveOptions      KeepaliveMethod = "options"
	KeepaliveRTCPReport   KeepaliveMethod = "rtcp-receiver-report"
)

// ParseKeepaliveMethod validates a keep-alive-method option value.
func ParseKeepaliveMethod(v string) (KeepaliveMethod, error) {
	switch KeepaliveMethod(v) {
	case KeepaliveGetParameter, KeepaliveOptions, KeepaliveRTCPReport:
		return KeepaliveMethod(v), nil
	default:
		return "", fmt.Errorf("config: invalid keep-alive-method %q", v)
	}
}

// Protocol is one entry in the allowed-transports set (protocols option).
type Protocol string

const (
	ProtocolUDP       Protocol = "udp"
	ProtocolTCP       Protocol = "tcp"
	ProtocolHTTP      Protocol = "http"
	ProtocolTLS       Protocol = "tls"
)

// ParseProtocols validates a comma-separated protocols option value.
func ParseProtocols(v string) ([]Protocol, error) {
	if v == "" {
		return nil, nil
	}
	var out []Protocol
	for _, part := range strings.Split(v, ",") {
		p := Protocol(strings.TrimSpace(part))
		switch p {
		case ProtocolUDP, ProtocolTCP, ProtocolHTTP, ProtocolTLS:
			out = append(out, p)
		default:
			return nil, fmt.Errorf("config: invalid protocols entry %q", part)
		}
	}
	return out, nil
}

// TLSValidationFlags controls certificate/hostname strictness.
type TLSValidationFlags struct {
	AcceptInvalidCerts     bool
	AcceptInvalidHostnames bool
}

// PortRange is a parsed "start-end" port-range option value, per spec.md §6
// ("even start and end=start+2n-1").
type PortRange struct {
	Start int
	End   int
}

// ParsePortRange validates a "start-end" port-range option value.
func ParsePortRange(v string) (PortRange, error) {
	if v == "" {
		return PortRange{}, nil
	}
	parts := strings.SplitN(v, "-", 2)
	if len(parts) != 2 {
		return PortRange{}, fmt.Errorf("config: malformed port-range %q", v)
	}
	start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return PortRange{}, fmt.Errorf("config: malformed port-range start %q", parts[0])
	}
	end, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return PortRange{}, fmt.Errorf("config: malformed port-range end %q", parts[1])
	}
	if start%2 != 0 {
		return PortRange{}, fmt.Errorf("config: port-range start %d must be even", start)
	}
	if end < start || (end-start)%2 != 1 {
		return PortRange{}, fmt.Errorf("config: port-range %d-%d must satisfy end=start+2n-1", start, end)
	}
	return PortRange{Start: start, End: end}, nil
}

// StreamSelection is the parsed select-streams/stream-filter option pair.
type StreamSelection struct {
	Kinds           []string // empty = "all"
	CodecSubstrings []string
	RequireAll      bool
}

// ParseSelectStreams validates a select-streams option value ("all" or a
// comma-separated kind list).
func ParseSelectStreams(v string) ([]string, error) {
	if v == "" || strings.EqualFold(v, "all") {
		return nil, nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		k := strings.TrimSpace(part)
		switch k {
		case "video", "audio", "application", "metadata":
			out = append(out, k)
		default:
			return nil, fmt.Errorf("config: invalid select-streams entry %q", part)
		}
	}
	return out, nil
}

// Config is the complete RTSP engine configuration surface, per spec.md §6.
type Config struct {
	// Connection
	Location string
	UserID   string
	UserPW   string

	ProxyAddr string
	ProxyID   string
	ProxyPW   string

	Protocols []Protocol

	// Retry
	RetryStrategy          RetryStrategy
	MaxReconnectionAttempts int // -1 = unlimited
	InitialRetryDelay      time.Duration
	LinearRetryStep        time.Duration
	ReconnectionTimeout    time.Duration

	// Racing
	ConnectionRacing      RacingStrategy
	MaxParallelConnections int
	RacingDelay           time.Duration
	RacingTimeout         time.Duration

	// Auto/adaptive
	AutoDetectionAttempts int
	AutoFallbackEnabled   bool

	AdaptiveLearning           bool
	AdaptivePersistence        bool
	AdaptiveCacheTTL           time.Duration
	AdaptiveDiscoveryTime      time.Duration
	AdaptiveExplorationRate    float64
	AdaptiveConfidenceThreshold float64
	AdaptiveChangeDetection    bool

	// TLS
	TLSValidation  TLSValidationFlags
	TLSMinVersion  uint16
	TLSMaxVersion  uint16

	// Transport
	NATMethod      NATMethod
	HTTPTunnelMode HTTPTunnelMode

	Timeout         time.Duration
	TCPTimeout      time.Duration
	TeardownTimeout time.Duration

	DoRTSPKeepAlive bool
	KeepAliveMethod KeepaliveMethod
	UDPReconnect    bool
	DoRetransmission bool

	// Media/buffering
	Latency                    time.Duration
	BufferMode                 BufferMode
	NTPSync                    bool
	RFC7273Sync                bool
	NTPTimeSource              NTPTimeSource
	MaxTSOffset                time.Duration
	MaxTSOffsetAdjustment      time.Duration
	AddReferenceTimestampMeta  bool

	IsLive           bool
	UserAgent        string
	ConnectionSpeed  int

	MulticastIface string
	PortRange      PortRange
	UDPBufferSize  int

	SelectStreams    []string
	StreamFilter     string
	RequireAllStreams bool
	SeekFormat       SeekFormat

	DefaultRTSPVersion RTSPVersion
}

// Default returns spec.md's documented defaults.
func Default() *Config {
	return &Config{
		Protocols:               []Protocol{ProtocolUDP, ProtocolTCP},
		RetryStrategy:           RetryExponentialJitter,
		MaxReconnectionAttempts: -1,
		InitialRetryDelay:       500 * time.Millisecond,
		LinearRetryStep:         500 * time.Millisecond,
		ReconnectionTimeout:     5 * time.Second,
		ConnectionRacing:        RacingNone,
		MaxParallelConnections:  3,
		RacingDelay:             250 * time.Millisecond,
		RacingTimeout:           5 * time.Second,
		AutoDetectionAttempts:   5,
		AutoFallbackEnabled:     true,
		AdaptiveCacheTTL:        24 * time.Hour,
		AdaptiveDiscoveryTime:   7 * time.Second,
		AdaptiveExplorationRate: 0.15,
		AdaptiveConfidenceThreshold: 0.5,
		AdaptiveChangeDetection: true,
		TLSMinVersion:           tlsVersionTLS12,
		NATMethod:               NATDummy,
		HTTPTunnelMode:          TunnelAuto,
		Timeout:                 10 * time.Second,
		TCPTimeout:              10 * time.Second,
		TeardownTimeout:         100 * time.Millisecond,
		DoRTSPKeepAlive:         true,
		KeepAliveMethod:         KeepaliveGetParameter,
		UDPReconnect:            true,
		BufferMode:              BufferModeAuto,
		NTPTimeSource:           NTPSourceNTP,
		UserAgent:               "rtsp-engine/1.0",
		SeekFormat:              SeekFormatNPT,
		DefaultRTSPVersion:      RTSPVersion1,
	}
}

// tlsVersionTLS12 mirrors crypto/tls.VersionTLS12 without importing
// crypto/tls here, keeping pkg/config dependency-light per the ambient-stack
// split the teacher's config/logger packages follow.
const tlsVersionTLS12 = 0x0303

// Load reads key=value configuration lines from an env-style file, applying
// them onto Default(), mirroring the teacher's Load(envPath) shape.
func Load(envPath string) (*Config, error) {
	file, err := os.Open(envPath)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", envPath, err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		decoded, err := url.QueryUnescape(value)
		if err != nil {
			decoded = value
		}
		if err := cfg.apply(key, decoded); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: scan %s: %w", envPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) apply(key, value string) error {
	switch key {
	case "location":
		c.Location = value
	case "user-id":
		c.UserID = value
	case "user-pw":
		c.UserPW = value
	case "proxy":
		c.ProxyAddr = value
	case "proxy-id":
		c.ProxyID = value
	case "proxy-pw":
		c.ProxyPW = value
	case "protocols":
		p, err := ParseProtocols(value)
		if err != nil {
			return err
		}
		c.Protocols = p
	case "retry-strategy":
		v, err := ParseRetryStrategy(value)
		if err != nil {
			return err
		}
		c.RetryStrategy = v
	case "max-reconnection-attempts":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("config: invalid max-reconnection-attempts %q", value)
		}
		c.MaxReconnectionAttempts = n
	case "connection-racing":
		v, err := ParseRacingStrategy(value)
		if err != nil {
			return err
		}
		c.ConnectionRacing = v
	case "nat-method":
		v, err := ParseNATMethod(value)
		if err != nil {
			return err
		}
		c.NATMethod = v
	case "http-tunnel-mode":
		v, err := ParseHTTPTunnelMode(value)
		if err != nil {
			return err
		}
		c.HTTPTunnelMode = v
	case "buffer-mode":
		v, err := ParseBufferMode(value)
		if err != nil {
			return err
		}
		c.BufferMode = v
	case "keep-alive-method":
		v, err := ParseKeepaliveMethod(value)
		if err != nil {
			return err
		}
		c.KeepAliveMethod = v
	case "seek-format":
		v, err := ParseSeekFormat(value)
		if err != nil {
			return err
		}
		c.SeekFormat = v
	case "default-rtsp-version":
		v, err := ParseRTSPVersion(value)
		if err != nil {
			return err
		}
		c.DefaultRTSPVersion = v
	case "select-streams":
		kinds, err := ParseSelectStreams(value)
		if err != nil {
			return err
		}
		c.SelectStreams = kinds
	case "stream-filter":
		c.StreamFilter = value
	case "require-all-streams":
		c.RequireAllStreams = value == "true"
	case "adaptive-learning":
		c.AdaptiveLearning = value == "true"
	case "adaptive-persistence":
		c.AdaptivePersistence = value == "true"
	case "ntp-sync":
		c.NTPSync = value == "true"
	case "user-agent":
		c.UserAgent = value
	case "port-range":
		pr, err := ParsePortRange(value)
		if err != nil {
			return err
		}
		c.PortRange = pr
	}
	return nil
}

// Validate checks required fields are present.
func (c *Config) Validate() error {
	if c.Location == "" {
		return fmt.Errorf("config: missing location")
	}
	if c.MaxParallelConnections <= 0 {
		return fmt.Errorf("config: max-parallel-connections must be positive")
	}
	return nil
}

package config

import (
	"flag"
	"fmt"
	"time"
)

// Flags holds command-line flags for the configuration surface, mirroring
// pkg/logger/flags.go's RegisterFlags/ToConfig split.
type Flags struct {
	Location string
	UserID   string
	UserPW   string

	ProxyAddr string
	ProxyID   string
	ProxyPW   string
	Protocols string

	RetryStrategy           string
	MaxReconnectionAttempts int
	InitialRetryDelay       time.Duration
	LinearRetryStep         time.Duration
	ReconnectionTimeout     time.Duration

	ConnectionRacing       string
	MaxParallelConnections int
	RacingDelay            time.Duration
	RacingTimeout          time.Duration

	AdaptiveLearning    bool
	AdaptivePersistence bool
	AdaptiveCacheTTL    time.Duration

	NATMethod      string
	HTTPTunnelMode string

	Timeout         time.Duration
	TCPTimeout      time.Duration
	TeardownTimeout time.Duration

	DoRTSPKeepAlive bool
	KeepAliveMethod string

	BufferMode string
	NTPSync    bool

	UserAgent string
	PortRange string

	SelectStreams     string
	StreamFilter      string
	RequireAllStreams bool
	SeekFormat        string

	DefaultRTSPVersion string
}

// RegisterFlags registers every configuration flag with fs.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}

	fs.StringVar(&f.Location, "location", "", "Target RTSP URL")
	fs.StringVar(&f.UserID, "user-id", "", "Username, overrides URL-embedded credentials")
	fs.StringVar(&f.UserPW, "user-pw", "", "Password, overrides URL-embedded credentials")

	fs.StringVar(&f.ProxyAddr, "proxy", "", "Proxy URL")
	fs.StringVar(&f.ProxyID, "proxy-id", "", "Proxy username")
	fs.StringVar(&f.ProxyPW, "proxy-pw", "", "Proxy password")
	fs.StringVar(&f.Protocols, "protocols", "udp,tcp", "Comma-separated allowed transport set")

	fs.StringVar(&f.RetryStrategy, "retry-strategy", string(RetryExponentialJitter),
		"Retry strategy: none, immediate, linear, exponential, exponential-jitter, auto, adaptive")
	fs.IntVar(&f.MaxReconnectionAttempts, "max-reconnection-attempts", -1, "Max reconnection attempts, -1 = unlimited")
	fs.DurationVar(&f.InitialRetryDelay, "initial-retry-delay", 500*time.Millisecond, "Initial retry delay")
	fs.DurationVar(&f.LinearRetryStep, "linear-retry-step", 500*time.Millisecond, "Linear retry step")
	fs.DurationVar(&f.ReconnectionTimeout, "reconnection-timeout", 5*time.Second, "Reconnection timeout")

	fs.StringVar(&f.ConnectionRacing, "connection-racing", string(RacingNone),
		"Connection racing: none, first-wins, last-wins, hybrid")
	fs.IntVar(&f.MaxParallelConnections, "max-parallel-connections", 3, "Max parallel racing attempts")
	fs.DurationVar(&f.RacingDelay, "racing-delay-ms", 250*time.Millisecond, "Stagger delay between racing attempts")
	fs.DurationVar(&f.RacingTimeout, "racing-timeout", 5*time.Second, "Per-attempt racing timeout")

	fs.BoolVar(&f.AdaptiveLearning, "adaptive-learning", false, "Enable adaptive learning")
	fs.BoolVar(&f.AdaptivePersistence, "adaptive-persistence", false, "Persist adaptive learning state to disk")
	fs.DurationVar(&f.AdaptiveCacheTTL, "adaptive-cache-ttl", 24*time.Hour, "Adaptive cache entry TTL")

	fs.StringVar(&f.NATMethod, "nat-method", string(NATDummy), "NAT traversal method: none, dummy")
	fs.StringVar(&f.HTTPTunnelMode, "http-tunnel-mode", string(TunnelAuto), "HTTP tunnel mode: auto, always, never")

	fs.DurationVar(&f.Timeout, "timeout", 10*time.Second, "Overall request timeout")
	fs.DurationVar(&f.TCPTimeout, "tcp-timeout", 10*time.Second, "TCP connect timeout")
	fs.DurationVar(&f.TeardownTimeout, "teardown-timeout", 100*time.Millisecond, "TEARDOWN timeout")

	fs.BoolVar(&f.DoRTSPKeepAlive, "do-rtsp-keep-alive", true, "Send periodic session keep-alive requests")
	fs.StringVar(&f.KeepAliveMethod, "keep-alive-method", string(KeepaliveGetParameter),
		"Keep-alive method: get-parameter, options, rtcp-receiver-report")

	fs.StringVar(&f.BufferMode, "buffer-mode", string(BufferModeAuto), "Buffer mode: none, slave, buffer, auto, synced")
	fs.BoolVar(&f.NTPSync, "ntp-sync", false, "Enable NTP wallclock synchronization")

	fs.StringVar(&f.UserAgent, "user-agent", "rtsp-engine/1.0", "User-Agent header value")
	fs.StringVar(&f.PortRange, "port-range", "", "UDP client port range, \"start-end\"")

	fs.StringVar(&f.SelectStreams, "select-streams", "all", "\"all\" or comma list of media kinds")
	fs.StringVar(&f.StreamFilter, "stream-filter", "", "Codec substring filter")
	fs.BoolVar(&f.RequireAllStreams, "require-all-streams", false, "Fail SETUP unless every filtered substream succeeds")
	fs.StringVar(&f.SeekFormat, "seek-format", string(SeekFormatNPT), "Seek Range format: npt, smpte, clock")

	fs.StringVar(&f.DefaultRTSPVersion, "default-rtsp-version", string(RTSPVersion1), "Initial RTSP version: V1_0, V2_0")

	return f
}

// ToConfig validates and converts Flags into a Config, starting from
// Default() so unset flags keep their documented defaults.
func (f *Flags) ToConfig() (*Config, error) {
	cfg := Default()

	if f.Location == "" {
		return nil, fmt.Errorf("config: -location is required")
	}
	cfg.Location = f.Location
	cfg.UserID = f.UserID
	cfg.UserPW = f.UserPW
	cfg.ProxyAddr = f.ProxyAddr
	cfg.ProxyID = f.ProxyID
	cfg.ProxyPW = f.ProxyPW

	protocols, err := ParseProtocols(f.Protocols)
	if err != nil {
		return nil, err
	}
	if protocols != nil {
		cfg.Protocols = protocols
	}

	retryStrategy, err := ParseRetryStrategy(f.RetryStrategy)
	if err != nil {
		return nil, err
	}
	cfg.RetryStrategy = retryStrategy
	cfg.MaxReconnectionAttempts = f.MaxReconnectionAttempts
	cfg.InitialRetryDelay = f.InitialRetryDelay
	cfg.LinearRetryStep = f.LinearRetryStep
	cfg.ReconnectionTimeout = f.ReconnectionTimeout

	racing, err := ParseRacingStrategy(f.ConnectionRacing)
	if err != nil {
		return nil, err
	}
	cfg.ConnectionRacing = racing
	cfg.MaxParallelConnections = f.MaxParallelConnections
	cfg.RacingDelay = f.RacingDelay
	cfg.RacingTimeout = f.RacingTimeout

	cfg.AdaptiveLearning = f.AdaptiveLearning
	cfg.AdaptivePersistence = f.AdaptivePersistence
	cfg.AdaptiveCacheTTL = f.AdaptiveCacheTTL

	natMethod, err := ParseNATMethod(f.NATMethod)
	if err != nil {
		return nil, err
	}
	cfg.NATMethod = natMethod

	tunnelMode, err := ParseHTTPTunnelMode(f.HTTPTunnelMode)
	if err != nil {
		return nil, err
	}
	cfg.HTTPTunnelMode = tunnelMode

	cfg.Timeout = f.Timeout
	cfg.TCPTimeout = f.TCPTimeout
	cfg.TeardownTimeout = f.TeardownTimeout
	cfg.DoRTSPKeepAlive = f.DoRTSPKeepAlive

	keepalive, err := ParseKeepaliveMethod(f.KeepAliveMethod)
	if err != nil {
		return nil, err
	}
	cfg.KeepAliveMethod = keepalive

	bufferMode, err := ParseBufferMode(f.BufferMode)
	if err != nil {
		return nil, err
	}
	cfg.BufferMode = bufferMode
	cfg.NTPSync = f.NTPSync
	cfg.UserAgent = f.UserAgent

	if f.PortRange != "" {
		pr, err := ParsePortRange(f.PortRange)
		if err != nil {
			return nil, err
		}
		cfg.PortRange = pr
	}

	kinds, err := ParseSelectStreams(f.SelectStreams)
	if err != nil {
		return nil, err
	}
	cfg.SelectStreams = kinds
	cfg.StreamFilter = f.StreamFilter
	cfg.RequireAllStreams = f.RequireAllStreams

	seekFormat, err := ParseSeekFormat(f.SeekFormat)
	if err != nil {
		return nil, err
	}
	cfg.SeekFormat = seekFormat

	version, err := ParseRTSPVersion(f.DefaultRTSPVersion)
	if err != nil {
		return nil, err
	}
	cfg.DefaultRTSPVersion = version

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

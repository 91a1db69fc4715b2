package logger

import (
	"flag"
	"fmt"
	"strings"
)

// Flags holds all logging-related command-line flags
type Flags struct {
	LogLevel       string
	LogFormat      string
	LogFile        string
	DebugRTP       bool
	DebugNAL       bool
	DebugTrack     bool
	DebugRTSP      bool
	DebugWebRTC    bool
	DebugAuth      bool
	DebugRacer     bool
	DebugRetry     bool
	DebugPattern   bool
	DebugAdaptive  bool
	DebugSession   bool
	DebugTransport bool
	DebugAll       bool
}

// RegisterFlags registers logging flags with the given FlagSet
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}

	fs.StringVar(&f.LogLevel, "log-level", "info",
		"Log level: debug, info, warn, error")
	fs.StringVar(&f.LogLevel, "l", "info",
		"Log level (shorthand)")

	fs.StringVar(&f.LogFormat, "log-format", "text",
		"Log output format: text, json")

	fs.StringVar(&f.LogFile, "log-file", "",
		"Log output file path (default: stdout)")
	fs.StringVar(&f.LogFile, "o", "",
		"Log output file path (shorthand)")

	// Debug category flags
	fs.BoolVar(&f.DebugRTP, "debug-rtp", false,
		"Enable detailed RTP packet debugging (sequence, timestamp, payload)")
	fs.BoolVar(&f.DebugNAL, "debug-nal", false,
		"Enable detailed NAL unit debugging (type, size, raw bytes)")
	fs.BoolVar(&f.DebugTrack, "debug-track", false,
		"Enable track status debugging (WebRTC tracks, RTSP tracks)")
	fs.BoolVar(&f.DebugRTSP, "debug-rtsp", false,
		"Enable RTSP protocol debugging")
	fs.BoolVar(&f.DebugWebRTC, "debug-webrtc", false,
		"Enable WebRTC debugging (ICE, SDP, connection state)")
	fs.BoolVar(&f.DebugAuth, "debug-auth", false,
		"Enable authentication challenge/response debugging")
	fs.BoolVar(&f.DebugRacer, "debug-racer", false,
		"Enable connection-racing debugging")
	fs.BoolVar(&f.DebugRetry, "debug-retry", false,
		"Enable retry/backoff debugging")
	fs.BoolVar(&f.DebugPattern, "debug-pattern", false,
		"Enable network-pattern classification debugging")
	fs.BoolVar(&f.DebugAdaptive, "debug-adaptive", false,
		"Enable adaptive-learning debugging")
	fs.BoolVar(&f.DebugSession, "debug-session", false,
		"Enable RTSP session/keep-alive debugging")
	fs.BoolVar(&f.DebugTransport, "debug-transport", false,
		"Enable transport-stream (TLS/tunnel/proxy) debugging")
	fs.BoolVar(&f.DebugAll, "debug-all", false,
		"Enable all debug categories")

	return f
}

// ToConfig converts Flags to a logger Config
func (f *Flags) ToConfig() (*Config, error) {
	cfg := NewConfig()

	// Parse log level
	level, err := ParseLevel(f.LogLevel)
	if err != nil {
		return nil, err
	}
	cfg.Level = level

	// Parse format
	format, err := ParseFormat(f.LogFormat)
	if err != nil {
		return nil, err
	}
	cfg.Format = format

	// Set output file
	cfg.OutputFile = f.LogFile

	// Enable debug categories
	if f.DebugAll {
		cfg.EnableCategory(DebugAll)
		// Force debug level when any debug category is enabled
		cfg.Level = LevelDebug
	} else {
		if f.DebugRTP {
			cfg.EnableCategory(DebugRTP)
			cfg.Level = LevelDebug
		}
		if f.DebugNAL {
			cfg.EnableCategory(DebugNAL)
			cfg.Level = LevelDebug
		}
		if f.DebugTrack {
			cfg.EnableCategory(DebugTrack)
			cfg.Level = LevelDebug
		}
		if f.DebugRTSP {
			cfg.EnableCategory(DebugRTSP)
			cfg.Level = LevelDebug
		}
		if f.DebugWebRTC {
			cfg.EnableCategory(DebugWebRTC)
			cfg.Level = LevelDebug
		}
		if f.DebugAuth {
			cfg.EnableCategory(DebugAuth)
			cfg.Level = LevelDebug
		}
		if f.DebugRacer {
			cfg.EnableCategory(DebugRacer)
			cfg.Level = LevelDebug
		}
		if f.DebugRetry {
			cfg.EnableCategory(DebugRetry)
			cfg.Level = LevelDebug
		}
		if f.DebugPattern {
			cfg.EnableCategory(DebugPattern)
			cfg.Level = LevelDebug
		}
		if f.DebugAdaptive {
			cfg.EnableCategory(DebugAdaptive)
			cfg.Level = LevelDebug
		}
		if f.DebugSession {
			cfg.EnableCategory(DebugSession)
			cfg.Level = LevelDebug
		}
		if f.DebugTransport {
			cfg.EnableCategory(DebugTransport)
			cfg.Level = LevelDebug
		}
	}

	return cfg, nil
}

// PrintUsageExamples prints usage examples for logging flags
func PrintUsageExamples() {
	examples := `
Logging Examples:

  Basic usage (INFO level, text format to stdout):
    ./rtspclient -location rtsp://host/stream

  Enable DEBUG level:
    ./rtspclient -location rtsp://host/stream --log-level debug
    ./rtspclient -location rtsp://host/stream -l debug

  Log to file:
    ./rtspclient -location rtsp://host/stream --log-file relay.log
    ./rtspclient -location rtsp://host/stream -o relay.log

  JSON format for structured logging:
    ./rtspclient -location rtsp://host/stream --log-format json -o relay.json

  Debug RTP packets only:
    ./rtspclient -location rtsp://host/stream --debug-rtp

  Debug NAL units only:
    ./rtspclient -location rtsp://host/stream --debug-nal

  Debug multiple categories:
    ./rtspclient -location rtsp://host/stream --debug-rtp --debug-nal --debug-track

  Debug everything:
    ./rtspclient -location rtsp://host/stream --debug-all -o debug.log

  Production logging (WARN level, JSON to file):
    ./rtspclient -location rtsp://host/stream -l warn --log-format json -o production.log
`
	fmt.Println(examples)
}

// String returns a string representation of enabled flags
func (f *Flags) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("level=%s", f.LogLevel))
	parts = append(parts, fmt.Sprintf("format=%s", f.LogFormat))

	if f.LogFile != "" {
		parts = append(parts, fmt.Sprintf("output=%s", f.LogFile))
	} else {
		parts = append(parts, "output=stdout")
	}

	var debugCategories []string
	if f.DebugAll {
		debugCategories = append(debugCategories, "all")
	} else {
		if f.DebugRTP {
			debugCategories = append(debugCategories, "rtp")
		}
		if f.DebugNAL {
			debugCategories = append(debugCategories, "nal")
		}
		if f.DebugTrack {
			debugCategories = append(debugCategories, "track")
		}
		if f.DebugRTSP {
			debugCategories = append(debugCategories, "rtsp")
		}
		if f.DebugWebRTC {
			debugCategories = append(debugCategories, "webrtc")
		}
		if f.DebugAuth {
			debugCategories = append(debugCategories, "auth")
		}
		if f.DebugRacer {
			debugCategories = append(debugCategories, "racer")
		}
		if f.DebugRetry {
			debugCategories = append(debugCategories, "retry")
		}
		if f.DebugPattern {
			debugCategories = append(debugCategories, "pattern")
		}
		if f.DebugAdaptive {
			debugCategories = append(debugCategories, "adaptive")
		}
		if f.DebugSession {
			debugCategories = append(debugCategories, "session")
		}
		if f.DebugTransport {
			debugCategories = append(debugCategories, "transport")
		}
	}

	if len(debugCategories) > 0 {
		parts = append(parts, fmt.Sprintf("debug=[%s]", strings.Join(debugCategories, ",")))
	}

	return strings.Join(parts, " ")
}

// Package sdpdesc parses session descriptions returned by DESCRIBE, using
// github.com/pion/sdp/v3 for the base grammar and layering the RTSP-specific
// attribute handling (a=control, a=range, a=crypto, a=key-mgmt) spec.md §6
// requires on top.
package sdpdesc

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"
)

// RangeFormat is the time-range notation on a=range.
type RangeFormat string

const (
	RangeNPT   RangeFormat = "npt"
	RangeSMPTE RangeFormat = "smpte"
	RangeClock RangeFormat = "clock"
)

// Range is a parsed a=range attribute.
type Range struct {
	Format RangeFormat
	Start  string
	End    string // empty means open-ended ("now" or unterminated)
}

// Crypto is a parsed a=crypto attribute (RFC 4568), consumed per spec.md
// §4.13 to derive SRTP cipher/auth hints.
type Crypto struct {
	Tag        int
	Suite      string
	KeyMethod  string
	KeyInfo    string
	SessionParams string
}

// KeyMgmt is a parsed a=key-mgmt attribute.
type KeyMgmt struct {
	Protocol string // "mikey"
	Data     string
}

// Stream is one media description, upgraded with RTSP-specific attributes.
type Stream struct {
	Media       string // "video", "audio", "application"
	Protocol    string // e.g. "RTP/AVP", "RTP/SAVP", "RTP/SAVPF"
	PayloadType uint8
	Control     string // raw a=control value, absolute or relative
	RTPMap      RTPMap
	FMTP        map[string]string
	Cryptos     []Crypto
	KeyMgmt     []KeyMgmt
	Range       *Range
}

// RTPMap is a parsed a=rtpmap attribute.
type RTPMap struct {
	PayloadType uint8
	EncodingName string
	ClockRate    uint32
	Channels     uint8
}

// Description is the parsed session-level description.
type Description struct {
	SessionControl string // session-level a=control, if present
	SessionRange   *Range
	Streams        []Stream
}

// IsSRTP reports whether the stream's protocol requests SRTP, per spec.md
// §4.13 ("RTP/SAVP or RTP/SAVPF").
func (s Stream) IsSRTP() bool {
	return s.Protocol == "RTP/SAVP" || s.Protocol == "RTP/SAVPF"
}

// ResolveControl resolves the stream's control URL against baseURL,
// treating Control as absolute if it carries a scheme, relative otherwise
// (spec.md §6's "absolute or relative").
func (s Stream) ResolveControl(baseURL string) (string, error) {
	if s.Control == "" || s.Control == "*" {
		return baseURL, nil
	}
	if u, err := url.Parse(s.Control); err == nil && u.IsAbs() {
		return s.Control, nil
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("sdpdesc: invalid base URL: %w", err)
	}
	rel, err := url.Parse(s.Control)
	if err != nil {
		return "", fmt.Errorf("sdpdesc: invalid control attribute: %w", err)
	}
	resolved := base.ResolveReference(rel)
	// ResolveReference replaces the last path segment of a base without a
	// trailing slash, so a bare relative token like "trackID=1" would drop
	// the base's own path; RFC 2326 treats the base as a directory, so
	// ensure it ends in '/' before resolving.
	if !strings.HasSuffix(base.Path, "/") && !strings.Contains(s.Control, "://") {
		base.Path += "/"
		resolved = base.ResolveReference(rel)
	}
	return resolved.String(), nil
}

// Parse parses raw SDP bytes into a Description, per spec.md §6's
// "standard SDP grammar" with RTSP attribute extensions layered on.
func Parse(raw []byte) (*Description, error) {
	var sd sdp.SessionDescription
	if err := sd.Unmarshal(raw); err != nil {
		return nil, fmt.Errorf("sdpdesc: parse SDP: %w", err)
	}

	desc := &Description{}
	if v, ok := sd.Attribute("control"); ok {
		desc.SessionControl = v
	}
	if v, ok := sd.Attribute("range"); ok {
		if r, err := parseRange(v); err == nil {
			desc.SessionRange = r
		}
	}

	for _, md := range sd.MediaDescriptions {
		stream := Stream{
			Media:   md.MediaName.Media,
			FMTP:    make(map[string]string),
		}
		if len(md.MediaName.Formats) > 0 {
			if pt, err := strconv.Atoi(md.MediaName.Formats[0]); err == nil {
				stream.PayloadType = uint8(pt)
			}
		}
		if proto := strings.Join(md.MediaName.Protos, "/"); proto != "" {
			stream.Protocol = proto
		}

		for _, attr := range md.Attributes {
			switch attr.Key {
			case "control":
				stream.Control = attr.Value
			case "rtpmap":
				if rm, err := parseRTPMap(attr.Value); err == nil {
					stream.RTPMap = rm
				}
			case "fmtp":
				k, v, ok := parseFMTP(attr.Value)
				if ok {
					stream.FMTP[k] = v
				}
			case "crypto":
				if c, err := parseCrypto(attr.Value); err == nil {
					stream.Cryptos = append(stream.Cryptos, c)
				}
			case "key-mgmt":
				if km, err := parseKeyMgmt(attr.Value); err == nil {
					stream.KeyMgmt = append(stream.KeyMgmt, km)
				}
			case "range":
				if r, err := parseRange(attr.Value); err == nil {
					stream.Range = r
				}
			default:
				// Unknown attributes are ignored per spec.md §6.
			}
		}

		desc.Streams = append(desc.Streams, stream)
	}

	return desc, nil
}

func parseRTPMap(v string) (RTPMap, error) {
	// "<payload> <encoding name>/<clock rate>[/<channels>]"
	fields := strings.SplitN(v, " ", 2)
	if len(fields) != 2 {
		return RTPMap{}, fmt.Errorf("sdpdesc: malformed rtpmap %q", v)
	}
	pt, err := strconv.Atoi(fields[0])
	if err != nil {
		return RTPMap{}, fmt.Errorf("sdpdesc: malformed rtpmap payload %q", fields[0])
	}
	parts := strings.Split(fields[1], "/")
	rm := RTPMap{PayloadType: uint8(pt), EncodingName: parts[0]}
	if len(parts) > 1 {
		if cr, err := strconv.ParseUint(parts[1], 10, 32); err == nil {
			rm.ClockRate = uint32(cr)
		}
	}
	if len(parts) > 2 {
		if ch, err := strconv.ParseUint(parts[2], 10, 8); err == nil {
			rm.Channels = uint8(ch)
		}
	}
	return rm, nil
}

func parseFMTP(v string) (string, string, bool) {
	fields := strings.SplitN(v, " ", 2)
	if len(fields) != 2 {
		return "", "", false
	}
	return fields[0], fields[1], true
}

func parseCrypto(v string) (Crypto, error) {
	// "<tag> <crypto-suite> <key-params> [<session-params>]"
	fields := strings.SplitN(v, " ", 4)
	if len(fields) < 3 {
		return Crypto{}, fmt.Errorf("sdpdesc: malformed crypto attribute %q", v)
	}
	tag, err := strconv.Atoi(fields[0])
	if err != nil {
		return Crypto{}, fmt.Errorf("sdpdesc: malformed crypto tag %q", fields[0])
	}
	c := Crypto{Tag: tag, Suite: fields[1]}
	keyParams := strings.SplitN(fields[2], ":", 2)
	c.KeyMethod = keyParams[0]
	if len(keyParams) > 1 {
		c.KeyInfo = keyParams[1]
	}
	if len(fields) == 4 {
		c.SessionParams = fields[3]
	}
	return c, nil
}

func parseKeyMgmt(v string) (KeyMgmt, error) {
	fields := strings.SplitN(v, " ", 2)
	if len(fields) != 2 {
		return KeyMgmt{}, fmt.Errorf("sdpdesc: malformed key-mgmt attribute %q", v)
	}
	return KeyMgmt{Protocol: fields[0], Data: fields[1]}, nil
}

func parseRange(v string) (*Range, error) {
	fields := strings.SplitN(v, "=", 2)
	if len(fields) != 2 {
		return nil, fmt.Errorf("sdpdesc: malformed range attribute %q", v)
	}
	var format RangeFormat
	switch fields[0] {
	case "npt":
		format = RangeNPT
	case "smpte", "smpte-30-drop", "smpte-25":
		format = RangeSMPTE
	case "clock":
		format = RangeClock
	default:
		return nil, fmt.Errorf("sdpdesc: unknown range format %q", fields[0])
	}
	bounds := strings.SplitN(fields[1], "-", 2)
	r := &Range{Format: format, Start: bounds[0]}
	if len(bounds) > 1 {
		r.End = bounds[1]
	}
	return r, nil
}

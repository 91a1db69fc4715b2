package rtsp

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethan/rtsp-engine/pkg/auth"
	"github.com/ethan/rtsp-engine/pkg/classify"
	"github.com/ethan/rtsp-engine/pkg/sdpdesc"
	"github.com/ethan/rtsp-engine/pkg/telemetry"
	"github.com/ethan/rtsp-engine/pkg/transport"
)

// State is a Protocol State Machine state, per spec.md §4.8.
type State string

const (
	StateInit         State = "init"
	StateDescribed    State = "described"
	StateReady        State = "ready"
	StatePlaying      State = "playing"
	StatePaused       State = "paused"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
)

// MediaKind is a substream's media kind.
type MediaKind string

const (
	MediaVideo    MediaKind = "video"
	MediaAudio    MediaKind = "audio"
	MediaMetadata MediaKind = "metadata"
	MediaApp      MediaKind = "application"
)

// StreamFilter selects which DESCRIBE-advertised substreams get a SETUP,
// per spec.md §4.8's "selective SETUP policy".
type StreamFilter struct {
	MediaKinds      []MediaKind // empty = all kinds
	CodecSubstrings []string    // empty = all codecs; case-insensitive substring match
	RequireAll      bool
}

func (f StreamFilter) accepts(s sdpdesc.Stream) bool {
	if len(f.MediaKinds) > 0 {
		matched := false
		for _, k := range f.MediaKinds {
			if string(k) == s.Media {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if len(f.CodecSubstrings) > 0 {
		matched := false
		for _, c := range f.CodecSubstrings {
			if strings.Contains(strings.ToUpper(s.RTPMap.EncodingName), strings.ToUpper(c)) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// TransportBindingKind is the negotiated lower transport for one substream.
type TransportBindingKind string

const (
	BindingUDP            TransportBindingKind = "udp"
	BindingTCPInterleaved TransportBindingKind = "tcp-interleaved"
	BindingTLSInterleaved TransportBindingKind = "tls-interleaved"
)

// Substream is one finalized media substream, per the Data Model.
type Substream struct {
	Index       int
	Media       MediaKind
	Codec       string
	PayloadType uint8
	ControlURL  string
	SSRC        uint32
	Binding     TransportBindingKind
	Channel     [2]byte // RTP/RTCP interleaved channel ids, if TCP/TLS-interleaved
	ServerDataPort    uint16 // server_port low value, if UDP
	ServerControlPort uint16 // server_port high value, if UDP
}

// Client drives the Protocol State Machine over one Transport Stream,
// grounded on the teacher client's Connect/describe/setupTrack/Play shape,
// generalized to the full OPTIONS->DESCRIBE->SETUP->PLAY/PAUSE/TEARDOWN
// lifecycle plus seek and parameter actions.
type Client struct {
	mu sync.Mutex

	rawURL  string
	baseURL string
	scheme  transport.Scheme
	profile transport.Profile
	host    string
	logger  *slog.Logger

	conn   net.Conn
	reader *bufio.Reader

	codec   *Codec
	auth    *auth.State
	session *SessionManager
	history *telemetry.History

	state      State
	substreams []Substream
	desc       *sdpdesc.Description

	TransportConfig transport.Config
	Username        string
	Password        string

	writeMu sync.Mutex
	reqMu   sync.Mutex // enforces one outstanding request at a time
}

// New constructs a Client for rawURL. history may be nil (a private one is
// created).
func New(rawURL string, logger *slog.Logger, history *telemetry.History) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if history == nil {
		history = telemetry.New(0)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("rtsp: parse URL: %w", err)
	}
	scheme, profile, err := transport.LookupProfile(u.Scheme)
	if err != nil {
		return nil, err
	}

	username, password := "", ""
	if u.User != nil {
		username = u.User.Username()
		password, _ = u.User.Password()
	}

	codec := NewCodec()
	authState := &auth.State{}
	codec.Auth = authState
	codec.Username = username
	codec.Password = password

	c := &Client{
		rawURL:          rawURL,
		scheme:          scheme,
		profile:         profile,
		host:            u.Hostname(),
		logger:          logger.With("component", "rtsp-client"),
		codec:           codec,
		auth:            authState,
		history:         history,
		state:           StateInit,
		Username:        username,
		Password:        password,
		TransportConfig: transport.DefaultConfig(),
	}
	c.session = NewSessionManager(KeepaliveGetParameter, c.sendKeepalive, logger)
	return c, nil
}

// Reader exposes the control connection's buffered reader so a caller can
// demultiplex interleaved RTP/RTCP frames sharing it with RTSP responses,
// per spec.md §4.13.
func (c *Client) Reader() *bufio.Reader {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reader
}

// Host returns the server hostname/IP the client connected to, for building
// UDP peer addresses from SETUP-negotiated server ports.
func (c *Client) Host() string {
	return c.host
}

// Profile returns the scheme's transport policy (TLS/UDP/TCP/HTTPTunnel
// support), so a caller can pick a client-side Transport header the server
// is able to honor.
func (c *Client) Profile() transport.Profile {
	return c.profile
}

// OnSessionFailure registers a callback invoked when the bound session's
// keep-alive fails, signaling the session has died out from under the
// caller (spec.md §4.8's "any state -> error -> Reconnecting").
func (c *Client) OnSessionFailure(fn func(error)) {
	c.session.OnFailure(fn)
}

// State returns the client's current Protocol State Machine state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Connect dials the Transport Stream and prepares the control connection for
// OPTIONS/DESCRIBE, per spec.md §4.8.
func (c *Client) Connect(ctx context.Context) error {
	u, _ := url.Parse(c.rawURL)
	port, err := transport.ParsePort(u, c.profile)
	if err != nil {
		return err
	}
	addr := net.JoinHostPort(c.host, port)

	c.history.RecordConnectionAttempt()
	conn, err := transport.Dial(ctx, c.TransportConfig, c.scheme, c.host, addr, c.logger)
	if err != nil {
		return &classify.NetworkError{Kind: classify.NetConnectionRefused, Host: c.host, Source: err}
	}
	c.history.RecordConnectionSuccess()

	c.mu.Lock()
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	c.baseURL = c.rawURL
	c.mu.Unlock()

	return nil
}

// Close tears the session down (best-effort) and closes the connection.
func (c *Client) Close() error {
	c.session.Clear()
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	_, _ = c.do(context.Background(), "TEARDOWN", c.baseURL, nil)
	c.setState(StateInit)
	return conn.Close()
}

// do sends one request and waits for its response, enforcing the "exactly
// one outstanding request" control-task contract (spec.md §5) and handling
// RTSP/2.0 -> RTSP/1.0 downgrade and a single 401-challenge retry.
func (c *Client) do(ctx context.Context, method, uri string, headers map[string]string) (*Response, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	resp, err := c.doOnce(method, uri, headers)
	if err != nil {
		return nil, err
	}

	if resp.Status == 401 && c.auth.Method == "" {
		if challenge := resp.Header("WWW-Authenticate"); challenge != "" {
			if perr := c.auth.ParseChallenge(challenge); perr == nil {
				resp, err = c.doOnce(method, uri, headers)
				if err != nil {
					return nil, err
				}
			}
		}
	}

	if down, ok := NegotiateDowngrade(resp, c.codec.Version); ok {
		c.codec.Version = down
		resp, err = c.doOnce(method, uri, headers)
		if err != nil {
			return nil, err
		}
	}

	c.session.Touch()
	return resp, classifyStatus(resp)
}

func classifyStatus(resp *Response) error {
	if resp.Status >= 200 && resp.Status < 300 {
		return nil
	}
	return &classify.ProtocolError{Kind: classify.ProtoStatus, Code: resp.Status, Message: resp.Reason}
}

func (c *Client) doOnce(method, uri string, extraHeaders map[string]string) (*Response, error) {
	req := c.codec.NewRequest(method, uri)
	for k, v := range extraHeaders {
		req.Headers[k] = v
	}

	c.mu.Lock()
	conn := c.conn
	reader := c.reader
	c.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("rtsp: not connected")
	}

	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	writeErr := Write(conn, req)
	c.writeMu.Unlock()
	if writeErr != nil {
		return nil, &classify.NetworkError{Kind: classify.NetConnectionReset, Source: writeErr}
	}

	_ = conn.SetReadDeadline(time.Now().Add(deadlineFor(0)))
	resp, err := ParseResponse(reader)
	if err != nil {
		return nil, &classify.ProtocolError{Kind: classify.ProtoInvalidResponse, Message: err.Error()}
	}
	expectedCSeq := req.Headers["CSeq"]
	if expectedCSeq != "" && fmt.Sprint(resp.CSeq) != expectedCSeq {
		return nil, &classify.ProtocolError{Kind: classify.ProtoInvalidResponse, Message: "CSeq mismatch"}
	}
	return resp, nil
}

// Options issues OPTIONS, per spec.md §4.8's Init entry action.
func (c *Client) Options(ctx context.Context) error {
	_, err := c.do(ctx, "OPTIONS", c.baseURL, nil)
	return err
}

// Describe issues DESCRIBE, parses the returned SDP, and transitions to
// Described.
func (c *Client) Describe(ctx context.Context) (*sdpdesc.Description, error) {
	resp, err := c.do(ctx, "DESCRIBE", c.baseURL, map[string]string{"Accept": "application/sdp"})
	if err != nil {
		return nil, err
	}

	if cb := resp.Header("Content-Base"); cb != "" {
		c.mu.Lock()
		c.baseURL = strings.TrimSpace(cb)
		c.mu.Unlock()
	}

	desc, err := sdpdesc.Parse(resp.Body)
	if err != nil {
		return nil, &classify.MediaError{Kind: classify.MediaNoStreams, Detail: err.Error()}
	}
	if len(desc.Streams) == 0 {
		return nil, &classify.MediaError{Kind: classify.MediaNoStreams, Detail: "DESCRIBE advertised no media streams"}
	}

	c.mu.Lock()
	c.desc = desc
	c.mu.Unlock()
	c.setState(StateDescribed)
	return desc, nil
}

// Setup issues SETUP for every substream accepted by filter, per spec.md
// §4.8's selective SETUP policy, and transitions to Ready.
func (c *Client) Setup(ctx context.Context, filter StreamFilter, transportHeader func(index int) string) ([]Substream, error) {
	c.mu.Lock()
	desc := c.desc
	c.mu.Unlock()
	if desc == nil {
		return nil, fmt.Errorf("rtsp: Setup called before Describe")
	}

	var out []Substream
	for i, stream := range desc.Streams {
		if !filter.accepts(stream) {
			continue
		}
		controlURL, err := stream.ResolveControl(c.baseURL)
		if err != nil {
			if filter.RequireAll {
				return nil, err
			}
			continue
		}

		headers := map[string]string{}
		if transportHeader != nil {
			headers["Transport"] = transportHeader(i)
		} else {
			headers["Transport"] = "RTP/AVP;unicast;client_port=0-1"
		}

		resp, err := c.do(ctx, "SETUP", controlURL, headers)
		if err != nil {
			if filter.RequireAll {
				return nil, err
			}
			c.logger.Warn("SETUP failed for substream, continuing without it", "index", i, "error", err)
			continue
		}

		if sid := resp.Header("Session"); sid != "" {
			if err := c.session.Bind(ctx, sid); err == nil {
				c.codec.BindSession(c.session.ID())
			}
		}

		pt := parseTransportResponse(resp.Header("Transport"), c.profile.TLS)

		sub := Substream{
			Index:             i,
			Media:             MediaKind(stream.Media),
			Codec:             stream.RTPMap.EncodingName,
			PayloadType:       stream.PayloadType,
			ControlURL:        controlURL,
			Binding:           pt.binding,
			Channel:           pt.channel,
			ServerDataPort:    pt.serverDataPort,
			ServerControlPort: pt.serverControlPort,
		}
		out = append(out, sub)
	}

	if len(out) == 0 {
		return nil, &classify.MediaError{Kind: classify.MediaNoStreams, Detail: "no substream passed SETUP"}
	}

	c.mu.Lock()
	c.substreams = out
	c.mu.Unlock()
	c.setState(StateReady)
	return out, nil
}

// parsedTransport holds the server-chosen transport parameters read back
// from a SETUP response's Transport header, per spec.md §3 "Transport
// Binding" / §4.8 ("record the server-chosen ports/channels").
type parsedTransport struct {
	binding           TransportBindingKind
	channel           [2]byte
	serverDataPort    uint16
	serverControlPort uint16
}

// parseTransportResponse parses the Transport header of a 200 SETUP
// response, extracting the server-chosen interleaved channel pair
// (interleaved=N-M) or UDP server ports (server_port=N-M). isTLS selects
// between BindingTCPInterleaved and BindingTLSInterleaved when the response
// specifies interleaving.
func parseTransportResponse(transportHeader string, isTLS bool) parsedTransport {
	pt := parsedTransport{binding: BindingUDP}
	for _, field := range strings.Split(transportHeader, ";") {
		field = strings.TrimSpace(field)
		switch {
		case strings.HasPrefix(field, "interleaved="):
			if isTLS {
				pt.binding = BindingTLSInterleaved
			} else {
				pt.binding = BindingTCPInterleaved
			}
			lo, hi, ok := parsePortPair(strings.TrimPrefix(field, "interleaved="))
			if ok {
				pt.channel = [2]byte{byte(lo), byte(hi)}
			}
		case strings.HasPrefix(field, "server_port="):
			lo, hi, ok := parsePortPair(strings.TrimPrefix(field, "server_port="))
			if ok {
				pt.serverDataPort = lo
				pt.serverControlPort = hi
			}
		}
	}
	return pt
}

// parsePortPair parses an "N-M" (or bare "N") port/channel pair.
func parsePortPair(v string) (uint16, uint16, bool) {
	parts := strings.SplitN(v, "-", 2)
	lo, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil {
		return 0, 0, false
	}
	if len(parts) == 1 {
		return uint16(lo), uint16(lo), true
	}
	hi, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil {
		return uint16(lo), 0, false
	}
	return uint16(lo), uint16(hi), true
}

// Play issues PLAY, optionally with a Range header, and transitions to
// Playing. rangeHeader may be empty.
func (c *Client) Play(ctx context.Context, rangeHeader string) error {
	headers := map[string]string{}
	if rangeHeader != "" {
		headers["Range"] = rangeHeader
	}
	_, err := c.do(ctx, "PLAY", c.baseURL, headers)
	if err != nil {
		return err
	}
	c.setState(StatePlaying)
	return nil
}

// Pause issues PAUSE and transitions to Paused. Live sources may reject this
// with a status the caller should tolerate per spec.md §4.8.
func (c *Client) Pause(ctx context.Context) error {
	_, err := c.do(ctx, "PAUSE", c.baseURL, nil)
	if err != nil {
		return err
	}
	c.setState(StatePaused)
	return nil
}

// Teardown issues TEARDOWN and transitions to Init, clearing the session.
func (c *Client) Teardown(ctx context.Context) error {
	_, err := c.do(ctx, "TEARDOWN", c.baseURL, nil)
	c.session.Clear()
	c.codec.ClearSession()
	c.setState(StateInit)
	return err
}

// Seek translates a position into PAUSE followed by PLAY carrying a Range
// header, per spec.md §4.8. It returns the whole Range header value the
// server confirmed (e.g. "npt=10-"); its start is the new segment's base time.
func (c *Client) Seek(ctx context.Context, rangeHeader string) (string, error) {
	state := c.State()
	if state != StatePlaying && state != StatePaused {
		return "", fmt.Errorf("rtsp: seek only valid in Playing/Paused, got %s", state)
	}
	if state == StatePlaying {
		if err := c.Pause(ctx); err != nil {
			return "", err
		}
	}

	resp, err := c.do(ctx, "PLAY", c.baseURL, map[string]string{"Range": rangeHeader})
	if err != nil {
		return "", err
	}
	c.setState(StatePlaying)
	return resp.Header("Range"), nil
}

// GetParameter issues GET_PARAMETER with zero or more names.
func (c *Client) GetParameter(ctx context.Context, names []string) (map[string]string, error) {
	body := strings.Join(names, "\r\n")
	resp, err := c.doWithBody(ctx, "GET_PARAMETER", []byte(body))
	if err != nil {
		return nil, err
	}
	return parseParameterBody(resp.Body), nil
}

// SetParameter issues SET_PARAMETER with the given name/value pairs.
func (c *Client) SetParameter(ctx context.Context, params map[string]string) error {
	var b strings.Builder
	for k, v := range params {
		if k == "" {
			return fmt.Errorf("rtsp: SET_PARAMETER requires a non-empty name")
		}
		fmt.Fprintf(&b, "%s: %s\r\n", k, v)
	}
	_, err := c.doWithBody(ctx, "SET_PARAMETER", []byte(b.String()))
	return err
}

func (c *Client) doWithBody(ctx context.Context, method string, body []byte) (*Response, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	req := c.codec.NewRequest(method, c.baseURL)
	req.Body = body

	c.mu.Lock()
	conn := c.conn
	reader := c.reader
	c.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("rtsp: not connected")
	}

	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	writeErr := Write(conn, req)
	c.writeMu.Unlock()
	if writeErr != nil {
		return nil, &classify.NetworkError{Kind: classify.NetConnectionReset, Source: writeErr}
	}

	_ = conn.SetReadDeadline(time.Now().Add(deadlineFor(0)))
	resp, err := ParseResponse(reader)
	if err != nil {
		return nil, &classify.ProtocolError{Kind: classify.ProtoInvalidResponse, Message: err.Error()}
	}
	c.session.Touch()
	return resp, classifyStatus(resp)
}

func parseParameterBody(body []byte) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(string(body), "\r\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if idx := strings.IndexByte(line, ':'); idx > 0 {
			out[strings.TrimSpace(line[:idx])] = strings.TrimSpace(line[idx+1:])
		} else {
			out[line] = ""
		}
	}
	return out
}

// sendKeepalive issues the configured keep-alive request, used as the
// SessionManager's KeepaliveFunc.
func (c *Client) sendKeepalive(ctx context.Context, method KeepaliveMethod) error {
	switch method {
	case KeepaliveOptions:
		return c.Options(ctx)
	case KeepaliveRTCPReport:
		// RTCP receiver-report keep-alive is issued by C13 directly against
		// the media transport; the session layer only needs to not expire.
		c.session.Touch()
		return nil
	default:
		_, err := c.GetParameter(ctx, nil)
		return err
	}
}

// Substreams returns the finalized substream list after Setup.
func (c *Client) Substreams() []Substream {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Substream, len(c.substreams))
	copy(out, c.substreams)
	return out
}

// Description returns the parsed SDP description after Describe.
func (c *Client) Description() *sdpdesc.Description {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.desc
}

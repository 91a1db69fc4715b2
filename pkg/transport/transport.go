// Package transport implements the Transport Stream (spec.md §4.4): a
// unified bidirectional byte stream over plain TCP, TLS, an HTTP tunnel pair,
// or an HTTP CONNECT proxy, grounded on the teacher client's Connect()
// TLS-dial pattern and cloudflare/client.go's *http.Client construction.
package transport

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/ethan/rtsp-engine/pkg/racer"
)

// Scheme is a parsed rtsp URL scheme variant.
type Scheme string

const (
	SchemeRTSP      Scheme = "rtsp"
	SchemeRTSPS     Scheme = "rtsps"
	SchemeRTSPU     Scheme = "rtspu"
	SchemeRTSPT     Scheme = "rtspt"
	SchemeRTSPH     Scheme = "rtsph"
	SchemeRTSPSU    Scheme = "rtspsu"
	SchemeRTSPST    Scheme = "rtspst"
	SchemeRTSPSH    Scheme = "rtspsh"
)

// Profile describes one scheme's transport policy, per spec.md §4.4's table.
type Profile struct {
	TLS         bool
	UDP         bool
	TCP         bool
	HTTPTunnel  bool
	DefaultPort int
}

var profiles = map[Scheme]Profile{
	SchemeRTSP:   {TLS: false, UDP: true, TCP: true, HTTPTunnel: false, DefaultPort: 554},
	SchemeRTSPS:  {TLS: true, UDP: false, TCP: true, HTTPTunnel: false, DefaultPort: 322},
	SchemeRTSPU:  {TLS: false, UDP: true, TCP: false, HTTPTunnel: false, DefaultPort: 554},
	SchemeRTSPT:  {TLS: false, UDP: false, TCP: true, HTTPTunnel: false, DefaultPort: 554},
	SchemeRTSPH:  {TLS: false, UDP: false, TCP: true, HTTPTunnel: true, DefaultPort: 554},
	SchemeRTSPSU: {TLS: true, UDP: true, TCP: false, HTTPTunnel: false, DefaultPort: 322},
	SchemeRTSPST: {TLS: true, UDP: false, TCP: true, HTTPTunnel: false, DefaultPort: 322},
	SchemeRTSPSH: {TLS: true, UDP: false, TCP: true, HTTPTunnel: true, DefaultPort: 322},
}

// ErrUnknownScheme is returned for any scheme not in spec.md §4.4's table.
var ErrUnknownScheme = fmt.Errorf("transport: unknown scheme")

// LookupProfile resolves a scheme string to its Profile, rejecting unknown
// schemes at configuration time per spec.md §6.
func LookupProfile(scheme string) (Scheme, Profile, error) {
	s := Scheme(scheme)
	p, ok := profiles[s]
	if !ok {
		return "", Profile{}, fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
	}
	return s, p, nil
}

// TLSConfig controls certificate/hostname validation for TLS legs.
type TLSConfig struct {
	InsecureSkipVerify bool
	MinVersion         uint16 // defaults to tls.VersionTLS12
}

// ProxyConfig configures an HTTP CONNECT proxy leg.
type ProxyConfig struct {
	Addr     string
	Username string
	Password string
}

// Config parameterizes Dial.
type Config struct {
	DialTimeout time.Duration
	TLS         TLSConfig
	Proxy       *ProxyConfig
	Racing      racer.Config
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		DialTimeout: 10 * time.Second,
		TLS:         TLSConfig{MinVersion: tls.VersionTLS12},
		Racing:      racer.DefaultConfig(),
	}
}

// Dial opens a Transport Stream to addr under the given scheme profile. host
// is used for TLS ServerName and HTTP tunnel Host headers.
func Dial(ctx context.Context, cfg Config, scheme Scheme, host, addr string, logger *slog.Logger) (net.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	profile, ok := profiles[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
	}

	dial := dialerFor(cfg, profile, host, logger)

	if cfg.Racing.Strategy != "" && cfg.Racing.Strategy != racer.StrategyNone {
		r := racer.New(cfg.Racing, dial, logger, nil)
		return r.Connect(ctx, addr)
	}

	dctx, cancel := context.WithTimeout(ctx, effectiveTimeout(cfg.DialTimeout))
	defer cancel()
	return dial(dctx, addr)
}

func effectiveTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 10 * time.Second
	}
	return d
}

// dialerFor builds a racer.Dialer that honors TLS/proxy/tunnel per profile.
func dialerFor(cfg Config, profile Profile, host string, logger *slog.Logger) racer.Dialer {
	return func(ctx context.Context, addr string) (net.Conn, error) {
		if profile.HTTPTunnel {
			return dialHTTPTunnel(ctx, cfg, host, addr, logger)
		}
		if cfg.Proxy != nil {
			return dialViaProxy(ctx, cfg, profile, host, addr)
		}
		return dialDirect(ctx, cfg, profile, host, addr)
	}
}

func netDialer(cfg Config) *net.Dialer {
	return &net.Dialer{
		Timeout:   effectiveTimeout(cfg.DialTimeout),
		KeepAlive: 30 * time.Second,
	}
}

func dialDirect(ctx context.Context, cfg Config, profile Profile, host, addr string) (net.Conn, error) {
	d := netDialer(cfg)
	if !profile.TLS {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("dial: %w", err)
		}
		enableNoDelay(conn)
		return conn, nil
	}

	tlsConf := &tls.Config{
		ServerName:         host,
		InsecureSkipVerify: cfg.TLS.InsecureSkipVerify,
		MinVersion:         cfg.TLS.MinVersion,
	}
	if tlsConf.MinVersion == 0 {
		tlsConf.MinVersion = tls.VersionTLS12
	}
	rawConn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	enableNoDelay(rawConn)
	tlsConn := tls.Client(rawConn, tlsConf)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = rawConn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}
	return tlsConn, nil
}

func enableNoDelay(conn net.Conn) {
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}
}

// dialViaProxy performs an HTTP CONNECT through cfg.Proxy, then optionally
// layers TLS on top of the tunneled connection for secure origins.
func dialViaProxy(ctx context.Context, cfg Config, profile Profile, host, addr string) (net.Conn, error) {
	d := netDialer(cfg)
	proxyConn, err := d.DialContext(ctx, "tcp", cfg.Proxy.Addr)
	if err != nil {
		return nil, fmt.Errorf("dial proxy: %w", err)
	}

	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: addr},
		Host:   addr,
		Header: make(http.Header),
	}
	if cfg.Proxy.Username != "" {
		token := base64.StdEncoding.EncodeToString([]byte(cfg.Proxy.Username + ":" + cfg.Proxy.Password))
		req.Header.Set("Proxy-Authorization", "Basic "+token)
	}
	if err := req.Write(proxyConn); err != nil {
		_ = proxyConn.Close()
		return nil, fmt.Errorf("write CONNECT: %w", err)
	}

	br := bufio.NewReader(proxyConn)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		_ = proxyConn.Close()
		return nil, fmt.Errorf("read CONNECT response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = proxyConn.Close()
		return nil, fmt.Errorf("proxy CONNECT failed: %s", resp.Status)
	}

	if !profile.TLS {
		enableNoDelay(proxyConn)
		return proxyConn, nil
	}

	tlsConf := &tls.Config{ServerName: host, InsecureSkipVerify: cfg.TLS.InsecureSkipVerify, MinVersion: tls.VersionTLS12}
	tlsConn := tls.Client(proxyConn, tlsConf)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = proxyConn.Close()
		return nil, fmt.Errorf("tls handshake over proxy: %w", err)
	}
	return tlsConn, nil
}

// tunnelCookieBytes is the random per-session correlation cookie length for
// the HTTP tunnel's GET/POST pairing, per spec.md §4.4.3.
const tunnelCookieBytes = 16

// tunnelConn adapts a correlated HTTP GET (server->client) and POST
// (client->server) pair into a net.Conn, base64-encoding RTSP messages
// across both legs per spec.md §4.4.3.
type tunnelConn struct {
	getResp  *http.Response
	reader   io.Reader
	client   *http.Client
	postURL  string
	cookie   string
	header   http.Header
	mu       sync.Mutex
	localAddr, remoteAddr net.Addr
}

func dialHTTPTunnel(ctx context.Context, cfg Config, host, addr string, logger *slog.Logger) (net.Conn, error) {
	cookie := randomCookie()
	client := &http.Client{Timeout: 0}

	base := url.URL{Scheme: "http", Host: addr, Path: "/"}
	getReq, err := http.NewRequestWithContext(ctx, http.MethodGet, base.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build tunnel GET: %w", err)
	}
	getReq.Header.Set("x-sessioncookie", cookie)
	getReq.Header.Set("Accept", "application/x-rtsp-tunnelled")
	getReq.Header.Set("Cache-Control", "no-cache")
	getReq.Host = host

	getResp, err := client.Do(getReq)
	if err != nil {
		return nil, fmt.Errorf("tunnel GET: %w", err)
	}

	logger.Debug("http tunnel established", "cookie", cookie, "addr", addr)

	return &tunnelConn{
		getResp: getResp,
		reader:  base64.NewDecoder(base64.StdEncoding, getResp.Body),
		client:  client,
		postURL: base.String(),
		cookie:  cookie,
		header:  getReq.Header.Clone(),
	}, nil
}

func randomCookie() string {
	buf := make([]byte, tunnelCookieBytes)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func (t *tunnelConn) Read(p []byte) (int, error) {
	// Responses on the GET leg are base64-encoded RTSP messages, per
	// spec.md §4.4/§6; reader wraps getResp.Body in a base64.Decoder so the
	// bytes handed to the RTSP layer are already plain RTSP text.
	return t.reader.Read(p)
}

func (t *tunnelConn) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	encoded := base64.StdEncoding.EncodeToString(p)
	req, err := http.NewRequest(http.MethodPost, t.postURL, bufReader(encoded))
	if err != nil {
		return 0, err
	}
	req.Header.Set("x-sessioncookie", t.cookie)
	req.Header.Set("Content-Type", "application/x-rtsp-tunnelled")
	resp, err := t.client.Do(req)
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()
	return len(p), nil
}

func bufReader(s string) io.Reader { return &stringReader{s: s} }

type stringReader struct {
	s   string
	pos int
}

func (r *stringReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.s) {
		return 0, io.EOF
	}
	n := copy(p, r.s[r.pos:])
	r.pos += n
	return n, nil
}

func (t *tunnelConn) Close() error {
	return t.getResp.Body.Close()
}

func (t *tunnelConn) LocalAddr() net.Addr  { return t.localAddr }
func (t *tunnelConn) RemoteAddr() net.Addr { return t.remoteAddr }

func (t *tunnelConn) SetDeadline(tm time.Time) error      { return nil }
func (t *tunnelConn) SetReadDeadline(tm time.Time) error  { return nil }
func (t *tunnelConn) SetWriteDeadline(tm time.Time) error { return nil }

var _ net.Conn = (*tunnelConn)(nil)

// ParsePort resolves the authority's port, applying the scheme's default
// when absent, per spec.md §4.4's table.
func ParsePort(u *url.URL, profile Profile) (string, error) {
	if p := u.Port(); p != "" {
		if _, err := strconv.Atoi(p); err != nil {
			return "", fmt.Errorf("invalid port %q: %w", p, err)
		}
		return p, nil
	}
	return strconv.Itoa(profile.DefaultPort), nil
}

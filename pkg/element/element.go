// Package element implements the Element Facade (spec.md §4.15): the single
// host-framework-facing surface over a Client — configuration/introspection
// properties, action methods, a signal dispatch channel standing in for
// GStreamer-style signals, a scheme-keyed URI handler registry, and
// per-substream output channels with exactly-once no-more-pads semantics.
//
// Grounded on the teacher's CameraRelay facade (pkg/relay/relay.go): a
// pipeline wrapped in one struct exposing lifecycle methods and
// OnXDisconnect-shaped callbacks, generalized here into a typed Signal enum
// and channel instead of bespoke callback fields per event.
package element

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethan/rtsp-engine/pkg/adaptive"
	"github.com/ethan/rtsp-engine/pkg/classify"
	"github.com/ethan/rtsp-engine/pkg/rtsp"
	"github.com/ethan/rtsp-engine/pkg/sdpdesc"
	"github.com/ethan/rtsp-engine/pkg/telemetry"
	"github.com/ethan/rtsp-engine/pkg/transport"
)

// SignalKind enumerates the facade's emitted signals, per spec.md §4.15.
type SignalKind string

const (
	SignalNewStream         SignalKind = "new-stream"
	SignalStreamSelected    SignalKind = "stream-selected"
	SignalNoMorePads        SignalKind = "no-more-pads"
	SignalBeforeSend        SignalKind = "before-send"
	SignalOnSDP             SignalKind = "on-sdp"
	SignalRequestRTCPKey    SignalKind = "request-rtcp-key"
	SignalRequestRTPKey     SignalKind = "request-rtp-key"
	SignalAcceptCertificate SignalKind = "accept-certificate"
)

// Signal is one emitted event, carrying a loosely-typed payload keyed by
// signal kind (matching the heterogeneous argument lists GStreamer signals
// have, expressed in Go as a small per-kind struct instead of varargs).
type Signal struct {
	Kind    SignalKind
	Stream  *sdpdesc.Stream // set for NewStream/StreamSelected/RequestRTP/RTCPKey
	Request *rtsp.Request   // set for BeforeSend
	SDP     *sdpdesc.Description
	Err     error // set for AcceptCertificate rejection reasons, if any
}

// OutputFrame is one RTP-framed byte payload delivered on a substream's
// output channel.
type OutputFrame struct {
	SubstreamIndex int
	Payload        []byte
}

// URIHandler registers a scheme and constructs a Client for a URL using that
// scheme, mirroring the uri-handler shape GStreamer source elements expose.
type URIHandler interface {
	Schemes() []string
	New(rawURL string, logger *slog.Logger, history *telemetry.History) (*rtsp.Client, error)
}

type defaultURIHandler struct{}

func (defaultURIHandler) Schemes() []string {
	return []string{"rtsp", "rtsps", "rtspu", "rtspt", "rtsph", "rtspsu", "rtspst", "rtspsh"}
}

func (defaultURIHandler) New(rawURL string, logger *slog.Logger, history *telemetry.History) (*rtsp.Client, error) {
	return rtsp.New(rawURL, logger, history)
}

var (
	registryMu sync.Mutex
	registry   = map[string]URIHandler{}
)

// RegisterURIHandler makes h the handler for every scheme it reports,
// overwriting any existing registration.
func RegisterURIHandler(h URIHandler) {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, s := range h.Schemes() {
		registry[s] = h
	}
}

func init() {
	RegisterURIHandler(defaultURIHandler{})
}

// lookupURIHandler resolves the handler registered for scheme, or the
// package default if none was registered.
func lookupURIHandler(scheme string) (URIHandler, error) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if h, ok := registry[scheme]; ok {
		return h, nil
	}
	return nil, fmt.Errorf("element: no URI handler registered for scheme %q", scheme)
}

// Properties holds every configuration property spec.md §4.15 lists,
// mirrored onto pkg/config.Config's field set.
type Properties struct {
	Location     string
	UserID       string
	UserPW       string
	ProxyAddr    string
	ProxyUser    string
	ProxyPass    string
	Filter       rtsp.StreamFilter
	TransportCfg transport.Config

	RetryStrategyName string
	MaxReconnectTries int
	RacingStrategyName string
	AdaptiveEnabled   bool
	NATMethod         string
	HTTPTunnelMode    bool
	BufferMode        string
	NTPSync           bool
	DefaultVersion    rtsp.Version
}

// Counters mirrors telemetry.Counters for introspection-property exposure.
type Counters = telemetry.Counters

// Element is the host-framework-facing facade over one Client, grounded on
// CameraRelay's lifecycle-plus-callbacks shape but generalized to a typed
// Signal channel and a registry of per-substream output channels.
type Element struct {
	mu         sync.Mutex
	logger     *slog.Logger
	props      Properties
	client     *rtsp.Client
	history    *telemetry.History
	classifier *classify.Classifier
	learner    *adaptive.Learner

	signals  chan Signal
	outputs  map[int]chan OutputFrame
	padsEmitted bool
	failures chan error // mid-session disconnect reports, consumed by Run

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs an Element from Properties. learner may be nil to disable
// adaptive recommendation.
func New(props Properties, logger *slog.Logger, learner *adaptive.Learner) *Element {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Element{
		logger:     logger.With("component", "element"),
		props:      props,
		history:    telemetry.New(telemetry.DefaultRingSize),
		classifier: classify.New(),
		learner:    learner,
		signals:    make(chan Signal, 32),
		outputs:    make(map[int]chan OutputFrame),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Signals returns the channel the host reads emitted Signal values from.
func (e *Element) Signals() <-chan Signal { return e.signals }

// History returns the decision-history/telemetry introspection surface.
func (e *Element) History() *telemetry.History { return e.history }

// Counters returns the current telemetry counters, an introspection
// property per spec.md §4.15.
func (e *Element) Counters() Counters { return e.history.Counters() }

func (e *Element) emit(sig Signal) {
	select {
	case e.signals <- sig:
	default:
		e.logger.Warn("signal channel full, dropping", "kind", sig.Kind)
	}
}

// reportFailure notifies Run of a mid-session disconnect (session keep-alive
// failure, or the interleaved receiver's connection dying). A nil or full
// failures channel (no Run loop watching, or a failure already queued) drops
// the report rather than blocking the reporter.
func (e *Element) reportFailure(err error) {
	e.mu.Lock()
	ch := e.failures
	e.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- err:
	default:
	}
}

// Start resolves the scheme's URI handler, connects, negotiates the
// Protocol State Machine through DESCRIBE/SETUP/PLAY, and registers one
// output channel per accepted substream. It resets the no-more-pads latch
// so reconnection re-emits the signal exactly once, per spec.md §4.15.
func (e *Element) Start(ctx context.Context) error {
	u, scheme, err := parseScheme(e.props.Location)
	if err != nil {
		return err
	}
	handler, err := lookupURIHandler(scheme)
	if err != nil {
		return err
	}

	client, err := handler.New(u, e.logger, e.history)
	if err != nil {
		return err
	}
	client.Username = e.props.UserID
	client.Password = e.props.UserPW
	client.TransportConfig = e.props.TransportCfg
	client.OnSessionFailure(e.reportFailure)

	e.mu.Lock()
	e.client = client
	e.padsEmitted = false
	e.mu.Unlock()

	if err := client.Connect(ctx); err != nil {
		e.classifier.Classify(err)
		return err
	}
	if err := client.Options(ctx); err != nil {
		e.logger.Debug("OPTIONS failed, continuing", "error", err)
	}

	desc, err := client.Describe(ctx)
	if err != nil {
		return err
	}
	e.emit(Signal{Kind: SignalOnSDP, SDP: desc})
	for i := range desc.Streams {
		s := desc.Streams[i]
		e.emit(Signal{Kind: SignalNewStream, Stream: &s})
	}

	var udpBuilder *udpTransportBuilder
	var transportHeader func(index int) string
	if transportProfileAllowsUDP(client.Profile()) {
		udpBuilder = newUDPTransportBuilder(ctx)
		transportHeader = udpBuilder.header
	} else {
		transportHeader = func(index int) string {
			return fmt.Sprintf("RTP/AVP/TCP;unicast;interleaved=%d-%d", 2*index, 2*index+1)
		}
	}

	subs, err := client.Setup(ctx, e.props.Filter, transportHeader)
	if err != nil {
		if udpBuilder != nil {
			udpBuilder.closeRemaining()
		}
		return err
	}

	e.mu.Lock()
	for _, sub := range subs {
		e.outputs[sub.Index] = make(chan OutputFrame, 64)
	}
	e.mu.Unlock()

	for _, sub := range subs {
		stream := desc.Streams[sub.Index]
		e.emit(Signal{Kind: SignalStreamSelected, Stream: &stream})
	}
	e.emitNoMorePadsOnce()
	e.StartReceivers(ctx)
	if udpBuilder != nil {
		e.startUDPReceivers(ctx, client, subs, udpBuilder)
	}

	if err := client.Play(ctx, ""); err != nil {
		return err
	}
	e.classifier.RecordSuccess()
	return nil
}

// emitNoMorePadsOnce emits SignalNoMorePads at most once per successful
// setup cycle, per spec.md §4.15's "fires exactly once, reset on
// reconnection" contract.
func (e *Element) emitNoMorePadsOnce() {
	e.mu.Lock()
	if e.padsEmitted {
		e.mu.Unlock()
		return
	}
	e.padsEmitted = true
	e.mu.Unlock()
	e.emit(Signal{Kind: SignalNoMorePads})
}

// Output returns the output channel for substream index, or nil if no such
// substream was registered.
func (e *Element) Output(substreamIndex int) <-chan OutputFrame {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, ok := e.outputs[substreamIndex]
	if !ok {
		return nil
	}
	return ch
}

// Deliver pushes a frame onto its substream's output channel, called by the
// RTP receiver loop. Non-blocking: a full channel drops the frame rather than
// stalling the receiver, matching spec.md §5's "no blocking the request
// queue" posture applied to the downstream fan-out.
func (e *Element) Deliver(f OutputFrame) {
	e.mu.Lock()
	ch, ok := e.outputs[f.SubstreamIndex]
	e.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- f:
	default:
		e.logger.Warn("output channel full, dropping frame", "substream", f.SubstreamIndex)
	}
}

// GetParameter is the facade's get-parameters action method.
func (e *Element) GetParameter(ctx context.Context, names []string) (map[string]string, error) {
	e.mu.Lock()
	client := e.client
	e.mu.Unlock()
	if client == nil {
		return nil, fmt.Errorf("element: not started")
	}
	return client.GetParameter(ctx, names)
}

// SetParameter is the facade's set-parameters action method.
func (e *Element) SetParameter(ctx context.Context, params map[string]string) error {
	e.mu.Lock()
	client := e.client
	e.mu.Unlock()
	if client == nil {
		return fmt.Errorf("element: not started")
	}
	return client.SetParameter(ctx, params)
}

// Seek is the facade's seek action method.
func (e *Element) Seek(ctx context.Context, rangeHeader string) (string, error) {
	e.mu.Lock()
	client := e.client
	e.mu.Unlock()
	if client == nil {
		return "", fmt.Errorf("element: not started")
	}
	return client.Seek(ctx, rangeHeader)
}

// Stop tears down the session, closes every output channel, and resets the
// no-more-pads latch so a subsequent Start re-emits it.
func (e *Element) Stop() error {
	e.mu.Lock()
	client := e.client
	e.mu.Unlock()

	e.cancel()
	// Close the connection before waiting on wg: the interleaved-frame
	// receiver goroutine is blocked in a read with no deadline, and only
	// unblocks once the underlying socket closes out from under it.
	var closeErr error
	if client != nil {
		closeErr = client.Close()
	}
	e.wg.Wait()

	e.mu.Lock()
	outputs := e.outputs
	e.outputs = make(map[int]chan OutputFrame)
	e.padsEmitted = false
	ctx, cancel := context.WithCancel(context.Background())
	e.ctx, e.cancel = ctx, cancel
	e.mu.Unlock()

	for _, ch := range outputs {
		close(ch)
	}
	return closeErr
}

func parseScheme(rawURL string) (string, string, error) {
	if rawURL == "" {
		return "", "", fmt.Errorf("element: location property is empty")
	}
	idx := indexColon(rawURL)
	if idx < 0 {
		return "", "", fmt.Errorf("element: location %q has no scheme", rawURL)
	}
	return rawURL, rawURL[:idx], nil
}

func indexColon(s string) int {
	for i, r := range s {
		if r == ':' {
			return i
		}
	}
	return -1
}

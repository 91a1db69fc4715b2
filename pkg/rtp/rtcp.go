package rtp

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/rtcp"
	pionrtp "github.com/pion/rtp"
)

// WallclockMapping is the NTP<->RTP timestamp correlation extracted from a
// Sender Report, per spec.md §4.13 ("C13 exposes this mapping downstream").
type WallclockMapping struct {
	SSRC          uint32
	NTPTime       uint64 // raw 64-bit NTP timestamp from the SR
	RTPTimestamp  uint32
	Wallclock     time.Time
	PacketCount   uint32
	OctetCount    uint32
}

// VoIPMetrics is a parsed XR type-7 VoIP metrics report block.
type VoIPMetrics struct {
	SSRC           uint32
	LossRate       uint8
	DiscardRate    uint8
	BurstDensity   uint8
	GapDensity     uint8
	RoundTripDelay uint16
	JitterBufferNominal uint16
}

// RTCPHandler processes inbound RTCP packets for one substream, tracks the
// latest sender-report wallclock mapping, and constructs feedback packets on
// request (NACK/PLI/FIR/REMB), grounded on the teacher bridge's readRTCP
// switch over concrete pion/rtcp packet types.
type RTCPHandler struct {
	mu       sync.Mutex
	logger   *slog.Logger
	senderSSRC uint32
	mapping  map[uint32]WallclockMapping
	onVoIP   func(VoIPMetrics)
}

// NewRTCPHandler constructs a handler. senderSSRC identifies this receiver in
// constructed feedback packets.
func NewRTCPHandler(senderSSRC uint32, logger *slog.Logger) *RTCPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RTCPHandler{
		senderSSRC: senderSSRC,
		logger:     logger.With("component", "rtcp"),
		mapping:    make(map[uint32]WallclockMapping),
	}
}

// OnVoIPMetrics registers a callback for parsed XR VoIP metrics blocks.
func (h *RTCPHandler) OnVoIPMetrics(fn func(VoIPMetrics)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onVoIP = fn
}

// HandlePacket dispatches one decoded RTCP packet, per spec.md §4.13.
func (h *RTCPHandler) HandlePacket(pkt rtcp.Packet) {
	switch p := pkt.(type) {
	case *rtcp.SenderReport:
		h.recordSenderReport(p)
	case *rtcp.ReceiverReport:
		h.logger.Debug("rtcp receiver report", "ssrc", p.SSRC, "reports", len(p.Reports))
	case *rtcp.PictureLossIndication:
		h.logger.Warn("rtcp PLI received", "media_ssrc", p.MediaSSRC, "sender_ssrc", p.SenderSSRC)
	case *rtcp.FullIntraRequest:
		h.logger.Warn("rtcp FIR received", "media_ssrc", p.MediaSSRC)
	case *rtcp.ReceiverEstimatedMaximumBitrate:
		h.logger.Debug("rtcp REMB received", "bitrate_bps", p.Bitrate)
	case *rtcp.TransportLayerNack:
		h.logger.Debug("rtcp NACK received", "sender_ssrc", p.SenderSSRC, "media_ssrc", p.MediaSSRC)
	case *rtcp.ExtendedReport:
		h.handleXR(p)
	default:
		h.logger.Debug("rtcp packet received", "type", fmt.Sprintf("%T", pkt))
	}
}

// ParseAndHandle decodes a raw RTCP compound packet and handles every packet
// inside it.
func (h *RTCPHandler) ParseAndHandle(raw []byte) error {
	packets, err := rtcp.Unmarshal(raw)
	if err != nil {
		return fmt.Errorf("rtp: parse RTCP: %w", err)
	}
	for _, p := range packets {
		h.HandlePacket(p)
	}
	return nil
}

func (h *RTCPHandler) recordSenderReport(sr *rtcp.SenderReport) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mapping[sr.SSRC] = WallclockMapping{
		SSRC:         sr.SSRC,
		NTPTime:      sr.NTPTime,
		RTPTimestamp: sr.RTPTime,
		Wallclock:    ntpToTime(sr.NTPTime),
		PacketCount:  sr.PacketCount,
		OctetCount:   sr.OctetCount,
	}
	h.logger.Debug("rtcp sender report", "ssrc", sr.SSRC, "rtp_time", sr.RTPTime)
}

func (h *RTCPHandler) handleXR(xr *rtcp.ExtendedReport) {
	for _, block := range xr.Reports {
		vb, ok := block.(*rtcp.VoIPMetricsReportBlock)
		if !ok {
			continue
		}
		metrics := VoIPMetrics{
			SSRC:                vb.SSRC,
			LossRate:            vb.LossRate,
			DiscardRate:         vb.DiscardRate,
			BurstDensity:        vb.BurstDensity,
			GapDensity:          vb.GapDensity,
			RoundTripDelay:      vb.RoundTripDelay,
			JitterBufferNominal: vb.JitterBufferNominal,
		}
		h.mu.Lock()
		cb := h.onVoIP
		h.mu.Unlock()
		if cb != nil {
			cb(metrics)
		}
	}
}

// WallclockFor returns the most recent NTP<->RTP mapping for ssrc, if any SR
// has been received.
func (h *RTCPHandler) WallclockFor(ssrc uint32) (WallclockMapping, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.mapping[ssrc]
	return m, ok
}

// ntpToTime converts a 64-bit NTP timestamp (32.32 fixed point, epoch 1900)
// into a time.Time.
func ntpToTime(ntp uint64) time.Time {
	const ntpEpochOffset = 2208988800 // seconds between 1900 and 1970 epochs
	seconds := int64(ntp>>32) - ntpEpochOffset
	frac := uint32(ntp & 0xffffffff)
	nanos := int64(float64(frac) / (1 << 32) * 1e9)
	return time.Unix(seconds, nanos).UTC()
}

// BuildReceiverReport constructs an empty/periodic RR for NAT keep-alive and
// regular feedback, per spec.md §4.13.
func BuildReceiverReport(senderSSRC uint32, reports []rtcp.ReceptionReport) *rtcp.ReceiverReport {
	return &rtcp.ReceiverReport{SSRC: senderSSRC, Reports: reports}
}

// BuildPLI constructs a Picture Loss Indication (PT=206/FMT=1) requesting a
// keyframe from mediaSSRC.
func BuildPLI(senderSSRC, mediaSSRC uint32) *rtcp.PictureLossIndication {
	return &rtcp.PictureLossIndication{SenderSSRC: senderSSRC, MediaSSRC: mediaSSRC}
}

// BuildFIR constructs a Full Intra Request (PT=206/FMT=4).
func BuildFIR(senderSSRC, mediaSSRC uint32, seqNo uint8) *rtcp.FullIntraRequest {
	return &rtcp.FullIntraRequest{
		SenderSSRC: senderSSRC,
		FIR: []rtcp.FIREntry{{SSRC: mediaSSRC, SequenceNumber: seqNo}},
	}
}

// BuildREMB constructs a Receiver Estimated Maximum Bitrate packet (PT=206/FMT=15).
func BuildREMB(senderSSRC uint32, mediaSSRCs []uint32, bitrate float32) *rtcp.ReceiverEstimatedMaximumBitrate {
	return &rtcp.ReceiverEstimatedMaximumBitrate{SenderSSRC: senderSSRC, SSRCs: mediaSSRCs, Bitrate: bitrate}
}

// BuildNACK constructs a Transport-Layer NACK (PT=205/FMT=1) for the given
// lost sequence numbers.
func BuildNACK(senderSSRC, mediaSSRC uint32, lostSeqNos []uint16) *rtcp.TransportLayerNack {
	pairs := rtcp.NackPairsFromSequenceNumbers(lostSeqNos)
	return &rtcp.TransportLayerNack{SenderSSRC: senderSSRC, MediaSSRC: mediaSSRC, Nacks: pairs}
}

// DummyRTPPunch is a minimal PT=96 zero-payload RTP packet used to punch a
// NAT mapping on SETUP completion, per spec.md §4.13.
func DummyRTPPunch(ssrc uint32, seqNo uint16, timestamp uint32) []byte {
	pkt := pionrtp.Packet{
		Header: pionrtp.Header{
			Version:        2,
			PayloadType:    96,
			SequenceNumber: seqNo,
			Timestamp:      timestamp,
			SSRC:           ssrc,
		},
	}
	data, err := pkt.Marshal()
	if err != nil {
		return nil
	}
	return data
}

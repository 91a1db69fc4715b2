package element

import (
	"context"
	"fmt"
	"strings"
	"sync"

	pionrtp "github.com/pion/rtp"

	"github.com/ethan/rtsp-engine/pkg/rtp"
	"github.com/ethan/rtsp-engine/pkg/rtsp"
)

// frameProcessor is the common shape of H264Processor/AACProcessor: feed it
// RTP packets, get reassembled access units back through a callback.
type frameProcessor interface {
	ProcessPacket(packet *pionrtp.Packet) error
}

// newProcessorFor picks a depacketizer for a substream's negotiated codec
// (the SDP rtpmap encoding name, e.g. "H264" or "MPEG4-GENERIC"), wiring the
// resulting access units into deliver. Returns nil for codecs this engine
// does not depacketize itself (e.g. PCMU/PCMA), which are still delivered as
// raw RTP payloads.
func newProcessorFor(codec string, index int, deliver func(OutputFrame)) frameProcessor {
	switch {
	case strings.Contains(strings.ToUpper(codec), "H264"):
		p := rtp.NewH264Processor()
		p.OnFrame = func(nalus []byte, _ bool) {
			deliver(OutputFrame{SubstreamIndex: index, Payload: nalus})
		}
		return p
	case strings.Contains(strings.ToUpper(codec), "MPEG4-GENERIC"):
		p := rtp.NewAACProcessor()
		p.OnFrame = func(frame []byte) {
			deliver(OutputFrame{SubstreamIndex: index, Payload: frame})
		}
		return p
	default:
		return nil
	}
}

// StartReceivers begins demultiplexing interleaved RTP/RTCP frames off the
// control connection and feeding each substream's payload through its
// depacketizer (if any) into Deliver, grounded on the teacher client's
// ReadPackets loop generalized to pkg/rtp's InterleavedDemuxer. Only
// TCP/TLS-interleaved substreams are serviced here; UDP substreams are
// expected to be pumped separately via pkg/rtp.UDPSubstream, since they own
// dedicated sockets rather than sharing the control connection.
func (e *Element) StartReceivers(ctx context.Context) {
	e.mu.Lock()
	client := e.client
	e.mu.Unlock()
	if client == nil {
		return
	}

	subs := client.Substreams()
	byChannel := make(map[byte]rtsp.Substream, len(subs)*2)
	processors := make(map[int]frameProcessor, len(subs))
	var procMu sync.Mutex

	for _, sub := range subs {
		if sub.Binding != rtsp.BindingTCPInterleaved && sub.Binding != rtsp.BindingTLSInterleaved {
			continue
		}
		for _, ch := range sub.Channel {
			if existing, dup := byChannel[ch]; dup {
				e.logger.Warn("element: duplicate interleaved channel in SETUP responses, dropping earlier substream",
					"channel", ch, "substream", sub.Index, "previous_substream", existing.Index)
			}
			byChannel[ch] = sub
		}
		if p := newProcessorFor(sub.Codec, sub.Index, e.Deliver); p != nil {
			processors[sub.Index] = p
		}
	}
	if len(byChannel) == 0 {
		return
	}

	demux := rtp.NewInterleavedDemuxer(client.Reader(), e.logger)

	e.mu.Lock()
	elemCtx := e.ctx
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-elemCtx.Done():
				return
			default:
			}

			frame, err := demux.ReadFrame()
			if err != nil {
				e.logger.Debug("element: interleaved demux stopped", "error", err)
				select {
				case <-ctx.Done():
				case <-elemCtx.Done():
					// Stopped deliberately (Stop/reconnect teardown); not a
					// disconnect worth reporting.
				default:
					e.reportFailure(fmt.Errorf("element: interleaved receiver: %w", err))
				}
				return
			}

			sub, ok := byChannel[frame.Channel]
			if !ok {
				continue
			}
			// Odd channel of the pair carries RTCP, per spec.md §4.13; only
			// the even (RTP) channel is depacketized here.
			if frame.Channel != sub.Channel[0] {
				continue
			}

			procMu.Lock()
			p := processors[sub.Index]
			procMu.Unlock()
			if p == nil {
				e.Deliver(OutputFrame{SubstreamIndex: sub.Index, Payload: frame.Payload})
				continue
			}

			var pkt pionrtp.Packet
			if err := pkt.Unmarshal(frame.Payload); err != nil {
				e.logger.Debug("element: dropping malformed RTP frame", "substream", sub.Index, "error", err)
				continue
			}
			if err := p.ProcessPacket(&pkt); err != nil {
				e.logger.Debug("element: depacketize error", "substream", sub.Index, "error", err)
			}
		}
	}()
}

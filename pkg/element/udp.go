package element

import (
	"context"
	"fmt"
	"net"
	"sync"

	pionrtp "github.com/pion/rtp"

	"github.com/ethan/rtsp-engine/pkg/rtp"
	"github.com/ethan/rtsp-engine/pkg/rtsp"
	"github.com/ethan/rtsp-engine/pkg/transport"
)

// udpTransportBuilder lazily opens a local data/control socket pair per
// substream index the first time Setup asks for that index's Transport
// header, so the advertised client_port matches a socket the element
// actually owns. Grounded on the teacher client's pre-bind-before-SETUP
// dance, generalized from one fixed port pair to one pair per substream.
type udpTransportBuilder struct {
	ctx    context.Context
	logger func(format string, args ...any)
	mu     sync.Mutex
	subs   map[int]*rtp.UDPSubstream
}

func newUDPTransportBuilder(ctx context.Context) *udpTransportBuilder {
	return &udpTransportBuilder{ctx: ctx, subs: make(map[int]*rtp.UDPSubstream)}
}

func (b *udpTransportBuilder) header(index int) string {
	sub, err := rtp.NewUDPSubstream(b.ctx, 0, 0, nil)
	if err != nil {
		// No local socket available; ask for TCP-interleaved instead so the
		// substream still has a working binding.
		return fmt.Sprintf("RTP/AVP/TCP;unicast;interleaved=%d-%d", 2*index, 2*index+1)
	}
	b.mu.Lock()
	b.subs[index] = sub
	b.mu.Unlock()

	dataPort := sub.DataConn.LocalAddr().(*net.UDPAddr).Port
	controlPort := sub.ControlConn.LocalAddr().(*net.UDPAddr).Port
	return fmt.Sprintf("RTP/AVP;unicast;client_port=%d-%d", dataPort, controlPort)
}

// take removes and returns the UDPSubstream opened for index, if any.
func (b *udpTransportBuilder) take(index int) *rtp.UDPSubstream {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := b.subs[index]
	delete(b.subs, index)
	return sub
}

// closeRemaining closes every socket pair opened but never claimed by an
// accepted substream (e.g. SETUP failed or the filter rejected the stream).
func (b *udpTransportBuilder) closeRemaining() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for idx, sub := range b.subs {
		_ = sub.Close()
		delete(b.subs, idx)
	}
}

// startUDPReceivers binds each accepted UDP substream's server peer address
// from the SETUP-negotiated server_port, starts its NAT keep-alive, and
// pumps RTP/RTCP datagrams into the same depacketize-then-Deliver path the
// interleaved receiver uses, per spec.md §4.13.
func (e *Element) startUDPReceivers(ctx context.Context, client *rtsp.Client, subs []rtsp.Substream, builder *udpTransportBuilder) {
	host := client.Host()

	for _, sub := range subs {
		if sub.Binding != rtsp.BindingUDP {
			continue
		}
		udpSub := builder.take(sub.Index)
		if udpSub == nil {
			continue
		}

		if sub.ServerDataPort != 0 {
			udpSub.ServerAddr = &net.UDPAddr{IP: resolveIP(host), Port: int(sub.ServerDataPort)}
		}
		if sub.ServerControlPort != 0 {
			udpSub.ServerControlAddr = &net.UDPAddr{IP: resolveIP(host), Port: int(sub.ServerControlPort)}
		}

		index := sub.Index
		var procMu sync.Mutex
		proc := newProcessorFor(sub.Codec, index, e.Deliver)
		udpSub.OnRTP(func(datagram []byte) {
			if proc == nil {
				e.Deliver(OutputFrame{SubstreamIndex: index, Payload: datagram})
				return
			}
			var pkt pionrtp.Packet
			if err := pkt.Unmarshal(datagram); err != nil {
				e.logger.Debug("element: dropping malformed UDP RTP datagram", "substream", index, "error", err)
				return
			}
			procMu.Lock()
			defer procMu.Unlock()
			if err := proc.ProcessPacket(&pkt); err != nil {
				e.logger.Debug("element: depacketize error", "substream", index, "error", err)
			}
		})

		if _, err := udpSub.PunchNAT(ctx, sub.SSRC); err != nil {
			e.logger.Debug("element: NAT punch failed", "substream", index, "error", err)
		}

		e.wg.Add(2)
		go func() {
			defer e.wg.Done()
			if err := udpSub.RunData(ctx); err != nil {
				e.logger.Debug("element: UDP data loop stopped", "substream", index, "error", err)
			}
		}()
		go func() {
			defer e.wg.Done()
			if err := udpSub.RunControl(ctx); err != nil {
				e.logger.Debug("element: UDP control loop stopped", "substream", index, "error", err)
			}
		}()
	}

	builder.closeRemaining()
}

func resolveIP(host string) net.IP {
	if ip := net.ParseIP(host); ip != nil {
		return ip
	}
	addrs, err := net.LookupIP(host)
	if err != nil || len(addrs) == 0 {
		return nil
	}
	return addrs[0]
}

// transportProfileAllowsUDP reports whether the negotiated scheme permits a
// UDP Transport Binding at all (spec.md §4.4's scheme table).
func transportProfileAllowsUDP(p transport.Profile) bool { return p.UDP }

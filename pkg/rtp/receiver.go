package rtp

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/ethan/rtsp-engine/pkg/bufferpool"
)

// interleaveMagic is the '$' byte prefixing a framed RTP/RTCP packet on the
// TCP-interleaved control stream, per spec.md §4.13.
const interleaveMagic = '$'

// natKeepaliveInterval is how often a periodic RTCP RR is re-emitted to
// maintain the NAT mapping, per spec.md §4.13 ("~25s").
const natKeepaliveInterval = 25 * time.Second

// Frame is one demultiplexed interleaved RTP/RTCP frame.
type Frame struct {
	Channel byte
	Payload []byte
}

// InterleavedDemuxer reads $-framed RTP/RTCP frames off a shared RTSP
// control stream without blocking RTSP response parsing, grounded on the
// teacher client's ReadPackets loop.
type InterleavedDemuxer struct {
	reader *bufio.Reader
	logger *slog.Logger
}

// NewInterleavedDemuxer wraps reader, which must be the same bufio.Reader
// the RTSP message codec reads responses from so framing stays consistent.
func NewInterleavedDemuxer(reader *bufio.Reader, logger *slog.Logger) *InterleavedDemuxer {
	if logger == nil {
		logger = slog.Default()
	}
	return &InterleavedDemuxer{reader: reader, logger: logger.With("component", "rtp-demux")}
}

// IsFrame peeks the next byte and reports whether it begins an
// interleaved frame (as opposed to an RTSP response starting "RTSP").
func (d *InterleavedDemuxer) IsFrame() (bool, error) {
	peek, err := d.reader.Peek(1)
	if err != nil {
		return false, err
	}
	return peek[0] == interleaveMagic, nil
}

// ReadFrame reads one $-framed packet: magic byte, channel id, 16-bit
// big-endian length, then payload, into a pool-backed buffer.
func (d *InterleavedDemuxer) ReadFrame() (Frame, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(d.reader, header); err != nil {
		return Frame{}, fmt.Errorf("rtp: read interleave header: %w", err)
	}
	if header[0] != interleaveMagic {
		return Frame{}, fmt.Errorf("rtp: expected interleave magic, got 0x%02x", header[0])
	}
	channel := header[1]
	size := binary.BigEndian.Uint16(header[2:4])

	buf := bufferpool.Acquire(int(size))
	payload := buf[:size]
	if _, err := io.ReadFull(d.reader, payload); err != nil {
		bufferpool.Release(buf)
		return Frame{}, fmt.Errorf("rtp: read interleave payload: %w", err)
	}
	return Frame{Channel: channel, Payload: payload}, nil
}

// UDPSubstream owns the data/control socket pair for one substream in UDP
// transport, per spec.md §4.13 and §5 ("two socket-read tasks").
type UDPSubstream struct {
	DataConn    *net.UDPConn
	ControlConn *net.UDPConn
	ServerAddr  *net.UDPAddr
	ServerControlAddr *net.UDPAddr
	logger      *slog.Logger

	onRTP  func([]byte)
	onRTCP func([]byte)
}

// NewUDPSubstream opens data/control sockets on the given local ports (0
// lets the kernel choose, matching the client-ports SETUP advertised).
func NewUDPSubstream(ctx context.Context, localDataPort, localControlPort int, logger *slog.Logger) (*UDPSubstream, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dataConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: localDataPort})
	if err != nil {
		return nil, fmt.Errorf("rtp: listen data socket: %w", err)
	}
	controlConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: localControlPort})
	if err != nil {
		_ = dataConn.Close()
		return nil, fmt.Errorf("rtp: listen control socket: %w", err)
	}
	return &UDPSubstream{DataConn: dataConn, ControlConn: controlConn, logger: logger.With("component", "rtp-udp")}, nil
}

// OnRTP registers the callback invoked for each received RTP datagram.
func (s *UDPSubstream) OnRTP(fn func([]byte)) { s.onRTP = fn }

// OnRTCP registers the callback invoked for each received RTCP datagram.
func (s *UDPSubstream) OnRTCP(fn func([]byte)) { s.onRTCP = fn }

// Close releases both sockets.
func (s *UDPSubstream) Close() error {
	err1 := s.DataConn.Close()
	err2 := s.ControlConn.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// RunData reads RTP datagrams until ctx is cancelled or the socket closes.
func (s *UDPSubstream) RunData(ctx context.Context) error {
	return s.runLoop(ctx, s.DataConn, s.onRTP)
}

// RunControl reads RTCP datagrams until ctx is cancelled or the socket closes.
func (s *UDPSubstream) RunControl(ctx context.Context) error {
	return s.runLoop(ctx, s.ControlConn, s.onRTCP)
}

func (s *UDPSubstream) runLoop(ctx context.Context, conn *net.UDPConn, dispatch func([]byte)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		buf := bufferpool.Acquire(bufferpool.DefaultDatagramSize)
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			bufferpool.Release(buf)
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("rtp: udp read: %w", err)
		}
		if dispatch != nil {
			dispatch(buf[:n])
		}
		bufferpool.Release(buf)
	}
}

// PunchNAT sends a dummy RTP packet and/or an empty RTCP RR to the server's
// data/control addresses, then re-emits RR periodically to keep the binding
// alive, per spec.md §4.13. It returns a cancel func to stop the keep-alive.
func (s *UDPSubstream) PunchNAT(ctx context.Context, ssrc uint32) (cancel func(), err error) {
	if s.ServerAddr != nil {
		punch := DummyRTPPunch(ssrc, 0, 0)
		if _, err := s.DataConn.WriteToUDP(punch, s.ServerAddr); err != nil {
			return nil, fmt.Errorf("rtp: punch data NAT: %w", err)
		}
	}
	if s.ServerControlAddr != nil {
		rr := BuildReceiverReport(ssrc, nil)
		data, merr := rr.Marshal()
		if merr == nil {
			_, _ = s.ControlConn.WriteToUDP(data, s.ServerControlAddr)
		}
	}

	ticker := time.NewTicker(natKeepaliveInterval)
	keepaliveCtx, cancelFn := context.WithCancel(ctx)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-keepaliveCtx.Done():
				return
			case <-ticker.C:
				if s.ServerControlAddr == nil {
					continue
				}
				rr := BuildReceiverReport(ssrc, nil)
				data, err := rr.Marshal()
				if err != nil {
					continue
				}
				if _, err := s.ControlConn.WriteToUDP(data, s.ServerControlAddr); err != nil {
					s.logger.Debug("rtp: NAT keep-alive write failed", "error", err)
				}
			}
		}
	}()
	return cancelFn, nil
}

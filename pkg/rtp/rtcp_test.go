package rtp

import (
	"testing"

	"github.com/pion/rtcp"
	pionrtp "github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSenderReportUpdatesWallclockMapping(t *testing.T) {
	h := NewRTCPHandler(0xabcd, nil)
	sr := &rtcp.SenderReport{SSRC: 42, NTPTime: 0xe0000000_00000000, RTPTime: 9000, PacketCount: 10, OctetCount: 1500}
	h.HandlePacket(sr)

	mapping, ok := h.WallclockFor(42)
	require.True(t, ok)
	assert.Equal(t, uint32(9000), mapping.RTPTimestamp)
	assert.Equal(t, uint32(10), mapping.PacketCount)
}

func TestPLIDoesNotPanic(t *testing.T) {
	h := NewRTCPHandler(1, nil)
	assert.NotPanics(t, func() {
		h.HandlePacket(&rtcp.PictureLossIndication{SenderSSRC: 1, MediaSSRC: 2})
	})
}

func TestBuildPLIRoundTrips(t *testing.T) {
	pli := BuildPLI(1, 2)
	assert.Equal(t, uint32(1), pli.SenderSSRC)
	assert.Equal(t, uint32(2), pli.MediaSSRC)
}

func TestBuildFIRIncludesEntry(t *testing.T) {
	fir := BuildFIR(1, 2, 5)
	require.Len(t, fir.FIR, 1)
	assert.Equal(t, uint8(5), fir.FIR[0].SequenceNumber)
}

func TestDummyRTPPunchProducesValidPacket(t *testing.T) {
	data := DummyRTPPunch(123, 1, 0)
	require.NotEmpty(t, data)

	var pkt pionrtp.Packet
	require.NoError(t, pkt.Unmarshal(data))
	assert.Equal(t, uint8(96), pkt.PayloadType)
	assert.Equal(t, uint32(123), pkt.SSRC)
}

package element

import (
	"testing"

	pionrtp "github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func singleNALUPacket(t *testing.T, naluByte byte) *pionrtp.Packet {
	t.Helper()
	return &pionrtp.Packet{Payload: []byte{naluByte, 0x01, 0x02, 0x03}}
}

func aacPacket(t *testing.T, au []byte) *pionrtp.Packet {
	t.Helper()
	headerBits := uint16(16)
	headerValue := uint16(len(au))<<3 | 0 // 13-bit size, 3-bit index=0
	payload := []byte{
		byte(headerBits >> 8), byte(headerBits),
		byte(headerValue >> 8), byte(headerValue),
	}
	payload = append(payload, au...)
	return &pionrtp.Packet{Payload: payload}
}

func TestNewProcessorForH264DeliversReassembledNALU(t *testing.T) {
	var got []OutputFrame
	p := newProcessorFor("H264", 3, func(f OutputFrame) { got = append(got, f) })
	require.NotNil(t, p)

	pkt := singleNALUPacket(t, 0x65) // IDR slice, marker set below
	pkt.Marker = true
	require.NoError(t, p.ProcessPacket(pkt))

	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].SubstreamIndex)
}

func TestNewProcessorForAACDeliversAccessUnit(t *testing.T) {
	var got []OutputFrame
	p := newProcessorFor("MPEG4-GENERIC", 1, func(f OutputFrame) { got = append(got, f) })
	require.NotNil(t, p)

	pkt := aacPacket(t, []byte{0xAB, 0xCD, 0xEF})
	require.NoError(t, p.ProcessPacket(pkt))

	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].SubstreamIndex)
	assert.Equal(t, []byte{0xAB, 0xCD, 0xEF}, got[0].Payload)
}

func TestNewProcessorForUnknownCodecReturnsNil(t *testing.T) {
	p := newProcessorFor("PCMU", 0, func(OutputFrame) {})
	assert.Nil(t, p)
}

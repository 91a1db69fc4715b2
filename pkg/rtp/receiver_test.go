package rtp

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildInterleavedFrame(channel byte, payload []byte) []byte {
	buf := make([]byte, 4+len(payload))
	buf[0] = interleaveMagic
	buf[1] = channel
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(payload)))
	copy(buf[4:], payload)
	return buf
}

func TestInterleavedDemuxerReadsFrame(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5}
	raw := buildInterleavedFrame(2, payload)
	d := NewInterleavedDemuxer(bufio.NewReader(bytes.NewReader(raw)), nil)

	isFrame, err := d.IsFrame()
	require.NoError(t, err)
	assert.True(t, isFrame)

	frame, err := d.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, byte(2), frame.Channel)
	assert.Equal(t, payload, frame.Payload)
}

func TestInterleavedDemuxerRejectsNonFrame(t *testing.T) {
	raw := []byte("RTSP/1.0 200 OK\r\n")
	d := NewInterleavedDemuxer(bufio.NewReader(bytes.NewReader(raw)), nil)

	isFrame, err := d.IsFrame()
	require.NoError(t, err)
	assert.False(t, isFrame)
}

func TestDummyRTPPunchHasZeroPayload(t *testing.T) {
	data := DummyRTPPunch(1, 0, 0)
	require.NotEmpty(t, data)
	assert.Len(t, data, 12, "a bare 12-byte RTP header carries no payload")
}

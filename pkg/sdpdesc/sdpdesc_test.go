package sdpdesc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSDP = "v=0\r\n" +
	"o=- 0 0 IN IP4 127.0.0.1\r\n" +
	"s=stream\r\n" +
	"c=IN IP4 127.0.0.1\r\n" +
	"t=0 0\r\n" +
	"a=range:npt=0-\r\n" +
	"m=video 0 RTP/AVP 96\r\n" +
	"a=control:trackID=1\r\n" +
	"a=rtpmap:96 H264/90000\r\n" +
	"a=fmtp:96 packetization-mode=1;profile-level-id=42e01f\r\n" +
	"m=audio 0 RTP/SAVP 97\r\n" +
	"a=control:trackID=2\r\n" +
	"a=rtpmap:97 opus/48000/2\r\n" +
	"a=crypto:1 AES_CM_128_HMAC_SHA1_80 inline:WVNfX19zZW1jdGwgbWFnaWMgY29uc3RhbnQvfQ\r\n"

func TestParseExtractsStreams(t *testing.T) {
	desc, err := Parse([]byte(sampleSDP))
	require.NoError(t, err)
	require.Len(t, desc.Streams, 2)

	video := desc.Streams[0]
	assert.Equal(t, "video", video.Media)
	assert.Equal(t, "trackID=1", video.Control)
	assert.Equal(t, "H264", video.RTPMap.EncodingName)
	assert.Equal(t, uint32(90000), video.RTPMap.ClockRate)
	assert.Equal(t, "packetization-mode=1;profile-level-id=42e01f", video.FMTP["96"])

	audio := desc.Streams[1]
	assert.True(t, audio.IsSRTP())
	require.Len(t, audio.Cryptos, 1)
	assert.Equal(t, "AES_CM_128_HMAC_SHA1_80", audio.Cryptos[0].Suite)
}

func TestSessionRangeParsed(t *testing.T) {
	desc, err := Parse([]byte(sampleSDP))
	require.NoError(t, err)
	require.NotNil(t, desc.SessionRange)
	assert.Equal(t, RangeNPT, desc.SessionRange.Format)
	assert.Equal(t, "0", desc.SessionRange.Start)
	assert.Equal(t, "", desc.SessionRange.End)
}

func TestResolveControlRelative(t *testing.T) {
	s := Stream{Control: "trackID=1"}
	resolved, err := s.ResolveControl("rtsp://cam.local/stream")
	require.NoError(t, err)
	assert.Equal(t, "rtsp://cam.local/stream/trackID=1", resolved)
}

func TestResolveControlAbsolute(t *testing.T) {
	s := Stream{Control: "rtsp://other.example/track1"}
	resolved, err := s.ResolveControl("rtsp://cam.local/stream")
	require.NoError(t, err)
	assert.Equal(t, "rtsp://other.example/track1", resolved)
}

func TestResolveControlWildcard(t *testing.T) {
	s := Stream{Control: "*"}
	resolved, err := s.ResolveControl("rtsp://cam.local/stream")
	require.NoError(t, err)
	assert.Equal(t, "rtsp://cam.local/stream", resolved)
}

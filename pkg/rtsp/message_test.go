package rtsp

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecNewRequestFillsCSeqAndUserAgent(t *testing.T) {
	c := NewCodec()
	req := c.NewRequest("OPTIONS", "rtsp://cam.local/stream")
	assert.Equal(t, "1", req.Headers["CSeq"])
	assert.Equal(t, DefaultUserAgent, req.Headers["User-Agent"])

	req2 := c.NewRequest("DESCRIBE", "rtsp://cam.local/stream")
	assert.Equal(t, "2", req2.Headers["CSeq"])
}

func TestCodecBindSessionAddsHeader(t *testing.T) {
	c := NewCodec()
	c.BindSession("12345678;timeout=60")
	req := c.NewRequest("PLAY", "rtsp://cam.local/stream")
	assert.Equal(t, "12345678;timeout=60", req.Headers["Session"])

	c.ClearSession()
	req2 := c.NewRequest("PLAY", "rtsp://cam.local/stream")
	assert.Empty(t, req2.Headers["Session"])
}

func TestEncodeProducesWellFormedRequestLine(t *testing.T) {
	req := &Request{Method: "OPTIONS", URI: "rtsp://cam.local/", Version: Version1, Headers: map[string]string{"CSeq": "1"}}
	out := string(Encode(req))
	assert.True(t, strings.HasPrefix(out, "OPTIONS rtsp://cam.local/ RTSP/1.0\r\n"))
	assert.True(t, strings.HasSuffix(out, "\r\n\r\n"))
}

func TestEncodeIncludesContentLengthWhenBodyPresent(t *testing.T) {
	req := &Request{Method: "SET_PARAMETER", URI: "rtsp://x/", Version: Version1, Headers: map[string]string{}, Body: []byte("a: b\r\n")}
	out := string(Encode(req))
	assert.Contains(t, out, "Content-Length: 6\r\n")
	assert.True(t, strings.HasSuffix(out, "a: b\r\n"))
}

func TestParseResponseParsesStatusHeadersAndBody(t *testing.T) {
	raw := "RTSP/1.0 200 OK\r\nCSeq: 2\r\nContent-Length: 5\r\nSession: abc\r\n\r\nhello"
	resp, err := ParseResponse(bufio.NewReader(strings.NewReader(raw)))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, "OK", resp.Reason)
	assert.Equal(t, 2, resp.CSeq)
	assert.Equal(t, "abc", resp.Header("Session"))
	assert.Equal(t, "hello", string(resp.Body))
}

func TestParseResponseRejectsMalformedStatusLine(t *testing.T) {
	raw := "garbage\r\n\r\n"
	_, err := ParseResponse(bufio.NewReader(strings.NewReader(raw)))
	require.Error(t, err)
	var invalid *ErrInvalidResponse
	assert.ErrorAs(t, err, &invalid)
}

func TestNegotiateDowngradeOnlyFromVersion2(t *testing.T) {
	resp505 := &Response{Status: 505}
	_, downgraded := NegotiateDowngrade(resp505, Version1)
	assert.False(t, downgraded)

	v, downgraded := NegotiateDowngrade(resp505, Version2)
	assert.True(t, downgraded)
	assert.Equal(t, Version1, v)

	resp200 := &Response{Status: 200}
	_, downgraded = NegotiateDowngrade(resp200, Version2)
	assert.False(t, downgraded)
}

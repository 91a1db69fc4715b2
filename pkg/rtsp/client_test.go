package rtsp

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"testing"

	"github.com/ethan/rtsp-engine/pkg/sdpdesc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSDP = "v=0\r\n" +
	"o=- 0 0 IN IP4 127.0.0.1\r\n" +
	"s=test\r\n" +
	"t=0 0\r\n" +
	"a=control:*\r\n" +
	"m=video 0 RTP/AVP 96\r\n" +
	"a=control:trackID=1\r\n" +
	"a=rtpmap:96 H264/90000\r\n"

// fakeServer answers exactly one request per call to respond, mirroring the
// request/response lockstep the control-task enforces.
type fakeServer struct {
	ln net.Listener
}

func newFakeServer(t *testing.T) *fakeServer {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return &fakeServer{ln: ln}
}

func (s *fakeServer) addr() string { return s.ln.Addr().String() }

func (s *fakeServer) serve(t *testing.T, responses []string) {
	conn, err := s.ln.Accept()
	require.NoError(t, err)
	go func() {
		defer conn.Close()
		r := bufio.NewReader(conn)
		for _, resp := range responses {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			_ = line
			for {
				h, err := r.ReadString('\n')
				if err != nil || strings.TrimSpace(h) == "" {
					break
				}
			}
			if _, err := conn.Write([]byte(resp)); err != nil {
				return
			}
		}
	}()
}

func statusResp(cseq int, extra string, body string) string {
	resp := fmt.Sprintf("RTSP/1.0 200 OK\r\nCSeq: %d\r\n%s", cseq, extra)
	if body != "" {
		resp += fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(body), body)
	} else {
		resp += "\r\n"
	}
	return resp
}

func newTestClient(t *testing.T, rawURL string) *Client {
	c, err := New(rawURL, nil, nil)
	require.NoError(t, err)
	return c
}

func TestClientOptionsAgainstFakeServer(t *testing.T) {
	s := newFakeServer(t)
	rawURL := "rtsp://" + s.addr() + "/stream"
	s.serve(t, []string{statusResp(1, "Public: OPTIONS, DESCRIBE, SETUP, PLAY\r\n", "")})

	c := newTestClient(t, rawURL)
	require.NoError(t, c.Connect(t.Context()))
	require.NoError(t, c.Options(t.Context()))
}

func TestClientDescribeParsesSDPAndTransitions(t *testing.T) {
	s := newFakeServer(t)
	rawURL := "rtsp://" + s.addr() + "/stream"
	s.serve(t, []string{statusResp(1, fmt.Sprintf("Content-Base: %s/\r\n", rawURL), testSDP)})

	c := newTestClient(t, rawURL)
	require.NoError(t, c.Connect(t.Context()))
	desc, err := c.Describe(t.Context())
	require.NoError(t, err)
	require.Len(t, desc.Streams, 1)
	assert.Equal(t, "H264", desc.Streams[0].RTPMap.EncodingName)
	assert.Equal(t, StateDescribed, c.State())
}

func TestClientFullLifecycleToPlaying(t *testing.T) {
	s := newFakeServer(t)
	rawURL := "rtsp://" + s.addr() + "/stream"
	s.serve(t, []string{
		statusResp(1, fmt.Sprintf("Content-Base: %s/\r\n", rawURL), testSDP),
		statusResp(2, "Session: sess123;timeout=60\r\nTransport: RTP/AVP;unicast;client_port=50000-50001\r\n", ""),
		statusResp(3, "Range: npt=0.000-\r\n", ""),
	})

	c := newTestClient(t, rawURL)
	require.NoError(t, c.Connect(t.Context()))

	_, err := c.Describe(t.Context())
	require.NoError(t, err)

	subs, err := c.Setup(t.Context(), StreamFilter{}, nil)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, StateReady, c.State())

	require.NoError(t, c.Play(t.Context(), ""))
	assert.Equal(t, StatePlaying, c.State())
}

func TestStreamFilterAcceptsByMediaKind(t *testing.T) {
	f := StreamFilter{MediaKinds: []MediaKind{MediaAudio}}
	videoStream := sdpdesc.Stream{Media: "video"}
	audioStream := sdpdesc.Stream{Media: "audio"}
	assert.False(t, f.accepts(videoStream))
	assert.True(t, f.accepts(audioStream))
}

package element

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSchemeExtractsScheme(t *testing.T) {
	raw, scheme, err := parseScheme("rtsp://cam.local:554/stream")
	require.NoError(t, err)
	assert.Equal(t, "rtsp", scheme)
	assert.Equal(t, "rtsp://cam.local:554/stream", raw)
}

func TestParseSchemeRejectsEmpty(t *testing.T) {
	_, _, err := parseScheme("")
	assert.Error(t, err)
}

func TestLookupURIHandlerResolvesDefault(t *testing.T) {
	h, err := lookupURIHandler("rtsp")
	require.NoError(t, err)
	assert.Contains(t, h.Schemes(), "rtsp")
}

func TestLookupURIHandlerRejectsUnknown(t *testing.T) {
	_, err := lookupURIHandler("ftp")
	assert.Error(t, err)
}

func TestNoMorePadsFiresOnlyOnce(t *testing.T) {
	e := New(Properties{Location: "rtsp://cam.local/stream"}, nil, nil)
	e.emitNoMorePadsOnce()
	e.emitNoMorePadsOnce()

	count := 0
	for {
		select {
		case sig := <-e.Signals():
			if sig.Kind == SignalNoMorePads {
				count++
			}
			continue
		default:
		}
		break
	}
	assert.Equal(t, 1, count)
}

func TestNoMorePadsResetsAfterStop(t *testing.T) {
	e := New(Properties{Location: "rtsp://cam.local/stream"}, nil, nil)
	e.emitNoMorePadsOnce()
	require.NoError(t, e.Stop())
	e.emitNoMorePadsOnce()

	count := 0
	for {
		select {
		case sig := <-e.Signals():
			if sig.Kind == SignalNoMorePads {
				count++
			}
			continue
		default:
		}
		break
	}
	assert.Equal(t, 2, count)
}

func TestDeliverDropsForUnknownSubstream(t *testing.T) {
	e := New(Properties{Location: "rtsp://cam.local/stream"}, nil, nil)
	e.Deliver(OutputFrame{SubstreamIndex: 7, Payload: []byte("x")})
	assert.Nil(t, e.Output(7))
}

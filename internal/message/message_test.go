package message

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spliceproxy/spliceproxy/internal/inject"
)

func readRequest(t *testing.T, raw string) *http.Request {
	t.Helper()
	req, err := http.ReadRequest(bufio.NewReader(strings.NewReader(raw)))
	require.NoError(t, err)
	return req
}

func TestDecodeRequestLowercasesHeaders(t *testing.T) {
	req := readRequest(t, "GET / HTTP/1.1\r\nHost: example.com\r\nX-Custom-Thing: abc\r\n\r\n")

	msg, ok, err := DecodeRequest(req)
	require.NoError(t, err)
	require.True(t, ok)

	// ReadRequest moves Host out of the header block; the map must still
	// carry it so rules can see and override it.
	assert.Equal(t, "example.com", msg.Headers["host"])
	assert.Equal(t, "abc", msg.Headers["x-custom-thing"])
	assert.Empty(t, msg.Body)
}

func TestDecodeRequestReadsBodyForPostAndPut(t *testing.T) {
	tcs := []struct {
		method   string
		wantBody string
	}{
		{"POST", "a=1"},
		{"PUT", "a=1"},
		{"GET", ""},
		{"DELETE", ""},
	}

	for _, tc := range tcs {
		t.Run(tc.method, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, "http://example.com/", strings.NewReader("a=1"))
			require.NoError(t, err)

			msg, ok, err := DecodeRequest(req)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tc.wantBody, msg.Body)
		})
	}
}

func TestDecodeRequestLossyBody(t *testing.T) {
	body := bytes.NewReader([]byte{'o', 'k', 0xff, 0xfe, '!'})
	req, err := http.NewRequest("POST", "http://example.com/", body)
	require.NoError(t, err)

	msg, ok, err := DecodeRequest(req)
	require.NoError(t, err)
	require.True(t, ok)

	// One replacement per invalid byte, not one per run.
	assert.Equal(t, "ok��!", msg.Body)
}

func TestLossyTextReplacesEachInvalidByte(t *testing.T) {
	tcs := []struct {
		name  string
		input []byte
		want  string
	}{
		{"valid passes through", []byte("héllo"), "héllo"},
		{"single invalid byte", []byte{'a', 0xff, 'b'}, "a�b"},
		{"run of invalid bytes", []byte{'a', 0xff, 0xfe, 0xfd, 'b'}, "a���b"},
		{"trailing invalid", []byte{'a', 0xc3}, "a�"},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, LossyText(tc.input))
		})
	}
}

func TestDecodeRequestOversizedBodyPassesThrough(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), MaxBodyBytes+1024)
	req, err := http.NewRequest("POST", "http://example.com/", bytes.NewReader(payload))
	require.NoError(t, err)

	msg, ok, err := DecodeRequest(req)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, msg)

	// The restored body must carry every byte, not a truncated prefix.
	data, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Len(t, data, len(payload))
}

func TestEncodeRequestRewritesBodyAndLength(t *testing.T) {
	req, err := http.NewRequest("POST", "http://example.com/", strings.NewReader("a=1"))
	require.NoError(t, err)

	msg := inject.NewMessage()
	msg.Headers["host"] = "override.example.com"
	msg.Headers["x-injected"] = "yes"
	msg.Body = "a=1&héllo=1"

	require.NoError(t, EncodeRequest(req, msg))

	assert.Equal(t, "yes", req.Header.Get("X-Injected"))
	// The host rule lands on the request field the transport sends.
	assert.Equal(t, "override.example.com", req.Host)
	// Byte length, not character count.
	assert.Equal(t, int64(len("a=1&héllo=1")), req.ContentLength)

	data, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Equal(t, "a=1&héllo=1", string(data))
}

func TestEncodeRequestInvalidHeaderName(t *testing.T) {
	req, err := http.NewRequest("GET", "http://example.com/", nil)
	require.NoError(t, err)

	msg := inject.NewMessage()
	msg.Headers["bad header"] = "v"

	err = EncodeRequest(req, msg)
	require.Error(t, err)

	var herr *HeaderError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, "bad header", herr.Name)
}

func TestHeaderMapDropsInvalidValues(t *testing.T) {
	h := http.Header{
		"Good": {"fine"},
		"Bad":  {"has\x00nul"},
	}

	m := HeaderMap(h)
	assert.Equal(t, "fine", m["good"])
	_, ok := m["bad"]
	assert.False(t, ok)
}

func TestEncodeResponseContentLength(t *testing.T) {
	newResp := func(body string) *http.Response {
		return &http.Response{
			StatusCode: http.StatusOK,
			Proto:      "HTTP/1.1",
			ProtoMajor: 1,
			ProtoMinor: 1,
			Header: http.Header{
				"Content-Type":   {"text/html"},
				"Content-Length": {strconv.Itoa(len(body))},
			},
			Body:          io.NopCloser(strings.NewReader(body)),
			ContentLength: int64(len(body)),
		}
	}

	t.Run("changed body gets byte length", func(t *testing.T) {
		resp := newResp("<body></body>")

		msg, err := DecodeResponse(resp)
		require.NoError(t, err)
		msg.Body = "<body>héllo</body>"

		require.NoError(t, EncodeResponse(resp, msg, true))

		assert.Equal(t, int64(len("<body>héllo</body>")), resp.ContentLength)

		var buf bytes.Buffer
		require.NoError(t, resp.Write(&buf))
		assert.Contains(t, buf.String(), "Content-Length: 19")
		assert.Contains(t, buf.String(), "<body>héllo</body>")
	})

	t.Run("unchanged body keeps original header", func(t *testing.T) {
		resp := newResp("hello")

		msg, err := DecodeResponse(resp)
		require.NoError(t, err)

		require.NoError(t, EncodeResponse(resp, msg, false))

		assert.Equal(t, "5", resp.Header.Get("Content-Length"))
		assert.Equal(t, int64(5), resp.ContentLength)
	})
}

// Package message converts protocol messages to and from the mutable
// representation the injection engine operates on, and keeps the
// re-encoded message well-formed after mutation.
package message

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/http/httpguts"

	"github.com/spliceproxy/spliceproxy/internal/inject"
)

// MaxBodyBytes caps how much body is buffered for injection. Larger
// bodies pass through the proxy unmodified.
const MaxBodyBytes = 10 * 1024 * 1024

// HeaderError reports a mutated header that is not a syntactically valid
// protocol header. It indicates a corrupt rule and must surface as a
// visible error response, never be silently dropped.
type HeaderError struct {
	Name  string
	Value string
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("invalid header %q: %q", e.Name, e.Value)
}

// LossyText converts raw bytes to text, replacing each invalid byte
// with the unicode replacement character instead of failing. Every
// invalid byte yields its own replacement, so runs are not coalesced.
// Binary bodies therefore do not round-trip byte-exact.
func LossyText(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}

	var sb strings.Builder
	sb.Grow(len(b))

	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size == 1 {
			sb.WriteRune(utf8.RuneError)
			i++
			continue
		}
		sb.Write(b[i : i+size])
		i += size
	}

	return sb.String()
}

// HeaderMap flattens a header into the engine's case-insensitive map.
// Names are lower-cased; a value that is not a valid header value is
// dropped, never an error. For repeated names the last value wins.
func HeaderMap(h http.Header) map[string]string {
	m := make(map[string]string, len(h))
	for name, values := range h {
		for _, value := range values {
			if !httpguts.ValidHeaderFieldValue(value) {
				continue
			}
			m[strings.ToLower(name)] = value
		}
	}
	return m
}

// BuildHeader converts the engine's map back into a header, failing with
// a *HeaderError on any name or value that is not protocol-valid.
func BuildHeader(m map[string]string) (http.Header, error) {
	h := make(http.Header, len(m))
	for name, value := range m {
		if !httpguts.ValidHeaderFieldName(name) || !httpguts.ValidHeaderFieldValue(value) {
			return nil, &HeaderError{Name: name, Value: value}
		}
		h.Set(name, value)
	}
	return h, nil
}

// hasTextBody reports whether the request method carries a body the
// injection pipeline materializes as text.
func hasTextBody(method string) bool {
	return method == http.MethodPost || method == http.MethodPut
}

// rewindBody prepends already-buffered bytes to the unread remainder so
// an oversized body can still be forwarded in full.
type rewindBody struct {
	io.Reader
	io.Closer
}

// DecodeRequest extracts the mutable representation from a request.
// Bodies are read for POST and PUT; other methods keep their body
// untouched on the original request. The host moves into the header map
// so rules can see and override it. A body over MaxBodyBytes reports
// ok=false with the body restored intact; such a request must pass
// through uninjected.
func DecodeRequest(req *http.Request) (*inject.Message, bool, error) {
	msg := inject.NewMessage()
	msg.Headers = HeaderMap(req.Header)
	if req.Host != "" {
		msg.Headers["host"] = req.Host
	}

	if hasTextBody(req.Method) && req.Body != nil && req.Body != http.NoBody {
		raw, err := io.ReadAll(io.LimitReader(req.Body, MaxBodyBytes+1))
		if err != nil {
			return nil, false, fmt.Errorf("failed to read request body: %w", err)
		}

		if len(raw) > MaxBodyBytes {
			req.Body = rewindBody{io.MultiReader(bytes.NewReader(raw), req.Body), req.Body}
			return nil, false, nil
		}

		_ = req.Body.Close()

		msg.Body = LossyText(raw)
	}

	return msg, true, nil
}

// EncodeRequest writes the (possibly mutated) representation back onto
// the request. The content length is kept consistent with the new body.
func EncodeRequest(req *http.Request, msg *inject.Message) error {
	h, err := BuildHeader(msg.Headers)
	if err != nil {
		return err
	}
	req.Header = h

	// The transport sends Host from the request field, not the header.
	if host, ok := msg.Headers["host"]; ok {
		req.Host = host
	}

	if hasTextBody(req.Method) {
		req.Header.Del("Content-Length")
		req.TransferEncoding = nil

		if msg.Body == "" {
			req.Body = http.NoBody
			req.ContentLength = 0
			return nil
		}

		req.Body = io.NopCloser(strings.NewReader(msg.Body))
		req.ContentLength = int64(len(msg.Body))
	}

	return nil
}

// DecodeResponse extracts the mutable representation from a response,
// reading the full body. The caller is responsible for skipping bodies
// beyond MaxBodyBytes before decoding.
func DecodeResponse(resp *http.Response) (*inject.Message, error) {
	msg := inject.NewMessage()
	msg.Headers = HeaderMap(resp.Header)

	if resp.Body != nil {
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		_ = resp.Body.Close()

		msg.Body = LossyText(raw)
	}

	return msg, nil
}

// EncodeResponse writes the representation back onto the response. When
// the body changed, the content-length header is updated to the byte
// length (not character count) of the re-encoded body; otherwise it is
// left as decoded from the original message.
func EncodeResponse(resp *http.Response, msg *inject.Message, bodyChanged bool) error {
	h, err := BuildHeader(msg.Headers)
	if err != nil {
		return err
	}
	resp.Header = h

	if bodyChanged {
		resp.Header.Set("Content-Length", strconv.Itoa(len(msg.Body)))
	}

	resp.Body = io.NopCloser(strings.NewReader(msg.Body))
	// The transfer writer derives the wire framing from these fields.
	resp.ContentLength = int64(len(msg.Body))
	resp.TransferEncoding = nil

	return nil
}

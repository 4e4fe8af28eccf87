package proxy

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"

	"github.com/spliceproxy/spliceproxy/internal/message"
)

// replayBody prepends already-buffered bytes to the unread remainder of
// the original body so a pass-through response still carries the full
// upstream stream.
type replayBody struct {
	io.Reader
	io.Closer
}

// decodeBody prepares the response body for the rewrite pass. It
// reports false when the body cannot be safely materialized as text:
// an encoding we cannot undo, stacked encodings, or a body over the
// size cap. In that case the body is left complete (buffered bytes
// replayed ahead of the remainder) so the response passes through
// untouched.
//
// Upstreams are asked for identity encoding, but not all of them
// comply.
func decodeBody(resp *http.Response) (bool, error) {
	if resp.ContentLength > message.MaxBodyBytes {
		return false, nil
	}

	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))

	switch encoding {
	case "", "identity":
		if resp.ContentLength >= 0 {
			return true, nil
		}

		// Unknown length: buffer up to the cap so the decode pass never
		// reads unbounded.
		raw, overflow, err := readCapped(resp.Body)
		if err != nil {
			return false, fmt.Errorf("failed to read body: %w", err)
		}
		if overflow {
			resp.Body = replayBody{io.MultiReader(bytes.NewReader(raw), resp.Body), resp.Body}
			return false, nil
		}

		_ = resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(raw))
		resp.ContentLength = int64(len(raw))
		return true, nil

	case "gzip", "br":
	default:
		// Stacked ("gzip, br") or unknown encodings stay opaque.
		return false, nil
	}

	raw, overflow, err := readCapped(resp.Body)
	if err != nil {
		return false, fmt.Errorf("failed to read encoded body: %w", err)
	}
	if overflow {
		resp.Body = replayBody{io.MultiReader(bytes.NewReader(raw), resp.Body), resp.Body}
		return false, nil
	}

	_ = resp.Body.Close()

	var dr io.Reader
	switch encoding {
	case "gzip":
		gz, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			// A stream we cannot decode is passed through as received.
			resp.Body = io.NopCloser(bytes.NewReader(raw))
			return false, nil
		}
		defer gz.Close()
		dr = gz
	case "br":
		dr = brotli.NewReader(bytes.NewReader(raw))
	}

	plain, overflow, err := readCapped(dr)
	if err != nil {
		resp.Body = io.NopCloser(bytes.NewReader(raw))
		return false, nil
	}
	if overflow {
		resp.Body = io.NopCloser(bytes.NewReader(raw))
		return false, nil
	}

	resp.Body = io.NopCloser(bytes.NewReader(plain))
	resp.ContentLength = int64(len(plain))
	resp.Header.Del("Content-Encoding")
	resp.Header.Set("Content-Length", strconv.Itoa(len(plain)))

	return true, nil
}

// readCapped reads at most MaxBodyBytes, reporting whether the source
// holds more than that.
func readCapped(r io.Reader) ([]byte, bool, error) {
	raw, err := io.ReadAll(io.LimitReader(r, message.MaxBodyBytes+1))
	if err != nil {
		return nil, false, err
	}
	if len(raw) > message.MaxBodyBytes {
		return raw, true, nil
	}
	return raw, false, nil
}

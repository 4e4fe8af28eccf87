package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/spliceproxy/spliceproxy/internal/logging"
	"github.com/spliceproxy/spliceproxy/internal/message"
	"github.com/spliceproxy/spliceproxy/internal/proto"
)

// handleForward proxies one plain request: apply request-direction
// rules, send it upstream, apply response-direction rules, and write
// the rebuilt response back to the client.
func (s *Server) handleForward(
	ctx context.Context,
	conn net.Conn,
	req *proto.HTTPRequest,
	domain string,
	port int,
) error {
	logger := logging.WithLocalScope(ctx, s.logger, "forward")

	injectable := s.opts.ScriptsEnabled && s.policy.DomainAllowed(domain)

	outReq := req.Request
	normalizeTarget(outReq, domain, port)

	if injectable {
		msg, ok, err := message.DecodeRequest(outReq)
		if err != nil {
			writeProxyError(conn, req.Proto, "failed to read request body")
			return err
		}

		if ok {
			res := s.engine.ApplyRequest(domain, msg)

			// Decoding consumed the body, so the request is re-encoded
			// even when no rule fired.
			if err := message.EncodeRequest(outReq, msg); err != nil {
				writeProxyError(conn, req.Proto, "invalid header after rewrite")
				return err
			}

			// Script and style rules only take effect on the response pass.
			if res.JavaScript != nil || res.CSS != nil {
				logger.Debug().Msg("client-side payloads deferred to response")
			}
		} else {
			logger.Debug().Msg("oversized request body; passing through uninjected")
		}
	}

	// Upstream must not compress: the response pass needs readable text,
	// and a mismatch between encoding and rewritten body would corrupt
	// the reply.
	outReq.Header.Set("Accept-Encoding", "identity")
	stripHopByHop(outReq)

	upstreamCtx, cancel := context.WithTimeout(ctx, s.opts.UpstreamTimeout)
	defer cancel()

	resp, err := s.client.Do(outReq.WithContext(upstreamCtx))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
			writeProxyError(conn, req.Proto, "upstream request timeout")
			return fmt.Errorf("upstream request timeout for %s: %w", domain, err)
		}

		writeProxyError(conn, req.Proto, "failed to reach upstream")
		return fmt.Errorf("upstream request failed for %s: %w", domain, err)
	}
	defer resp.Body.Close()

	logger.Debug().
		Int("status", resp.StatusCode).
		Int64("len", resp.ContentLength).
		Msg("upstream response")

	resp.Close = true

	if !injectable {
		return resp.Write(conn)
	}

	ok, err := decodeBody(resp)
	if err != nil {
		writeProxyError(conn, req.Proto, "failed to read upstream response")
		return err
	}
	if !ok {
		logger.Debug().
			Str("encoding", resp.Header.Get("Content-Encoding")).
			Int64("len", resp.ContentLength).
			Msg("opaque or oversized body; passing through uninjected")
		return resp.Write(conn)
	}

	msg, err := message.DecodeResponse(resp)
	if err != nil {
		writeProxyError(conn, req.Proto, "failed to read upstream response")
		return err
	}

	originalBody := msg.Body
	res := s.engine.ApplyResponse(domain, msg)
	bodyChanged := msg.Body != originalBody

	if res.Modified {
		logger.Debug().Bool("body", bodyChanged).Msg("response rewritten")
	}

	if err := message.EncodeResponse(resp, msg, bodyChanged); err != nil {
		writeProxyError(conn, req.Proto, "invalid header after rewrite")
		return err
	}

	return resp.Write(conn)
}

// normalizeTarget turns the proxy-form request into one the client
// transport can send: an absolute URL with scheme inferred from the
// port, and no RequestURI.
func normalizeTarget(req *http.Request, domain string, port int) {
	if req.URL == nil {
		req.URL = &url.URL{}
	}

	if req.URL.Scheme == "" {
		// Plain requests default to http; port 443 implies https.
		if port == 443 {
			req.URL.Scheme = "https"
		} else {
			req.URL.Scheme = "http"
		}
	}

	if req.URL.Host == "" {
		req.URL.Host = req.Host
	}
	if req.URL.Host == "" {
		req.URL.Host = net.JoinHostPort(domain, strconv.Itoa(port))
	}

	if req.URL.Path == "" {
		req.URL.Path = "/"
	}

	// Set by ReadRequest; must be empty for client-side use.
	req.RequestURI = ""
}

// stripHopByHop removes connection-scoped headers that must not be
// forwarded upstream.
func stripHopByHop(req *http.Request) {
	for _, h := range []string{
		"Proxy-Connection",
		"Proxy-Authorization",
		"Connection",
		"Keep-Alive",
		"Te",
		"Trailer",
		"Transfer-Encoding",
		"Upgrade",
	} {
		req.Header.Del(h)
	}
}

// Package proxy implements the forwarding proxy server: a raw TCP
// accept loop, per-connection request parsing, client IP policy
// enforcement, and dispatch to either the forwarding handler or the
// CONNECT tunnel.
package proxy

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/spliceproxy/spliceproxy/internal/dns"
	"github.com/spliceproxy/spliceproxy/internal/inject"
	"github.com/spliceproxy/spliceproxy/internal/logging"
	"github.com/spliceproxy/spliceproxy/internal/matcher"
	"github.com/spliceproxy/spliceproxy/internal/netutil"
	"github.com/spliceproxy/spliceproxy/internal/proto"
	"github.com/spliceproxy/spliceproxy/internal/session"
)

type Options struct {
	ListenAddr      string
	UpstreamTimeout time.Duration
	ScriptsEnabled  bool
}

type Server struct {
	logger zerolog.Logger

	policy   matcher.Policy
	engine   *inject.Engine
	resolver dns.Resolver
	client   *http.Client
	opts     Options
}

func NewServer(
	logger zerolog.Logger,
	policy matcher.Policy,
	engine *inject.Engine,
	resolver dns.Resolver,
	opts Options,
) *Server {
	s := &Server{
		logger:   logger,
		policy:   policy,
		engine:   engine,
		resolver: resolver,
		opts:     opts,
	}

	s.client = &http.Client{
		Transport: &http.Transport{
			DialContext:        s.dialUpstream,
			DisableCompression: true,
		},
		// Redirects go back to the client untouched.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return s
}

// dialUpstream resolves through the configured resolver and races the
// resulting addresses.
func (s *Server) dialUpstream(ctx context.Context, _, addr string) (net.Conn, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	port, err := net.LookupPort("tcp", portStr)
	if err != nil {
		return nil, err
	}

	addrs, err := s.resolver.Resolve(ctx, host)
	if err != nil {
		return nil, err
	}

	return netutil.DialFirstSuccessful(ctx, addrs, port, s.opts.UpstreamTimeout)
}

// ListenAndServe accepts connections until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.opts.ListenAddr)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listener)
}

// Serve accepts connections from an existing listener until ctx is
// canceled.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	logger := logging.WithScope(s.logger, "proxy")

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	logger.Info().Msgf("created a listener on %s", listener.Addr())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			logger.Error().Err(err).Msg("failed to accept new connection")
			continue
		}

		go s.handleConnection(session.WithNewTraceID(ctx), conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	logger := logging.WithLocalScope(ctx, s.logger, "conn")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer netutil.CloseConns(conn)

	reader := bufio.NewReader(conn)
	req, err := proto.ReadHTTPRequest(reader)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			logger.Warn().Err(err).Msg("failed to read http request")
		}

		return
	}

	if !req.IsValidMethod() {
		logger.Warn().Str("method", req.Method).Msg("unsupported method. abort")

		return
	}

	clientIP := remoteIP(conn)
	if !s.policy.IPAllowed(clientIP) {
		logger.Info().Str("ip", clientIP).Msg("client ip blocked by policy")
		writeBlocked(conn, req.Proto, "IP address not allowed")

		return
	}

	domain := req.ExtractDomain()
	port, err := req.ExtractPort()
	if err != nil {
		logger.Warn().Str("host", req.Host).Msg("failed to extract port")

		return
	}

	ctx = session.WithRemoteInfo(ctx, domain)
	logger = logger.With().Ctx(ctx).Logger()

	logger.Debug().
		Str("method", req.Method).
		Str("from", conn.RemoteAddr().String()).
		Msg("new request")

	if req.IsConnectMethod() {
		err = s.handleTunnel(ctx, conn, reader, req, domain, port)
	} else {
		err = s.handleForward(ctx, conn, req, domain, port)
	}

	if err != nil {
		logging.WarnUnwrapped(&logger, "error handling request", err)
	}
}

// remoteIP returns the client address without the ephemeral port.
func remoteIP(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}

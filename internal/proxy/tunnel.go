package proxy

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"

	"github.com/spliceproxy/spliceproxy/internal/logging"
	"github.com/spliceproxy/spliceproxy/internal/netutil"
	"github.com/spliceproxy/spliceproxy/internal/proto"
)

// handleTunnel serves a CONNECT request: dial the target, confirm the
// tunnel to the client, then bridge bytes in both directions without
// inspecting them. Encrypted traffic is never rewritten.
func (s *Server) handleTunnel(
	ctx context.Context,
	conn net.Conn,
	reader *bufio.Reader,
	req *proto.HTTPRequest,
	domain string,
	port int,
) error {
	logger := logging.WithLocalScope(ctx, s.logger, "tunnel")

	addrs, err := s.resolver.Resolve(ctx, domain)
	if err != nil {
		_, _ = conn.Write(req.BadGatewayResponse())
		return fmt.Errorf("dns lookup failed for %s: %w", domain, err)
	}

	rConn, err := netutil.DialFirstSuccessful(ctx, addrs, port, s.opts.UpstreamTimeout)
	if err != nil {
		_, _ = conn.Write(req.BadGatewayResponse())
		return fmt.Errorf("failed to establish tunnel to %s:%d: %w", domain, port, err)
	}
	defer netutil.CloseConns(rConn)

	logger.Debug().Msgf("new remote conn -> %s", rConn.RemoteAddr())

	if _, err := conn.Write(req.ConnEstablishedResponse()); err != nil {
		return fmt.Errorf("failed to confirm tunnel: %w", err)
	}

	// Bytes the request reader buffered past the CONNECT line belong to
	// the tunnel.
	if n := reader.Buffered(); n > 0 {
		if _, err := io.CopyN(rConn, reader, int64(n)); err != nil {
			return fmt.Errorf("failed to flush buffered tunnel bytes: %w", err)
		}
	}

	errCh := make(chan error, 2)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go netutil.Bridge(ctx, s.logger, errCh, rConn, conn)
	go netutil.Bridge(ctx, s.logger, errCh, conn, rConn)

	for i := 0; i < 2; i++ {
		e := <-errCh
		if e == nil {
			continue
		}

		return fmt.Errorf(
			"unsuccessful tunnel %s -> %s: %w",
			conn.RemoteAddr(),
			rConn.RemoteAddr(),
			e,
		)
	}

	return nil
}

// Package dns resolves upstream hostnames for the proxy. Two resolvers
// are available: the operating system's resolver and a plain UDP
// resolver that queries a configured upstream directly.
package dns

import (
	"context"
	"fmt"
	"net"

	"github.com/rs/zerolog"

	"github.com/spliceproxy/spliceproxy/internal/config"
)

type Resolver interface {
	Resolve(ctx context.Context, host string) ([]net.IPAddr, error)
}

// New builds the resolver selected by the configuration. opts.Mode must
// have been validated already.
func New(opts config.DNSOptions, logger zerolog.Logger) (Resolver, error) {
	switch config.MustParseDNSMode(opts.Mode) {
	case config.DNSModeSystem:
		return NewSystemResolver(logger), nil
	case config.DNSModeUDP:
		return NewUDPResolver(logger, opts.Addr), nil
	default:
		return nil, fmt.Errorf("unknown dns mode: %q", opts.Mode)
	}
}

// literalAddr short-circuits resolution when host is already an IP
// literal.
func literalAddr(host string) ([]net.IPAddr, bool) {
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, false
	}
	return []net.IPAddr{{IP: ip}}, true
}

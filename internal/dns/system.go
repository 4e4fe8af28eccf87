package dns

import (
	"context"
	"net"

	"github.com/rs/zerolog"
)

var _ Resolver = (*SystemResolver)(nil)

type SystemResolver struct {
	logger   zerolog.Logger
	resolver *net.Resolver
}

func NewSystemResolver(logger zerolog.Logger) *SystemResolver {
	return &SystemResolver{
		logger:   logger,
		resolver: &net.Resolver{PreferGo: true},
	}
}

func (sr *SystemResolver) Resolve(ctx context.Context, host string) ([]net.IPAddr, error) {
	if addrs, ok := literalAddr(host); ok {
		return addrs, nil
	}

	addrs, err := sr.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}

	sr.logger.Trace().
		Str("host", host).
		Int("addrs", len(addrs)).
		Msg("resolved via system resolver")

	return addrs, nil
}

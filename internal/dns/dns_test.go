package dns

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spliceproxy/spliceproxy/internal/config"
)

func TestNewSelectsResolver(t *testing.T) {
	r, err := New(config.DNSOptions{Mode: "system"}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &SystemResolver{}, r)

	r, err = New(config.DNSOptions{Mode: "udp", Addr: "1.1.1.1:53"}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &UDPResolver{}, r)
}

func TestResolveIPLiteralSkipsLookup(t *testing.T) {
	// The upstream is unreachable on purpose; a literal must never
	// trigger a query.
	resolvers := []Resolver{
		NewSystemResolver(zerolog.Nop()),
		NewUDPResolver(zerolog.Nop(), "127.0.0.1:1"),
	}

	for _, r := range resolvers {
		addrs, err := r.Resolve(context.Background(), "192.0.2.10")
		require.NoError(t, err)
		require.Len(t, addrs, 1)
		assert.Equal(t, "192.0.2.10", addrs[0].IP.String())
	}
}

package dns

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/miekg/dns"
	"github.com/rs/zerolog"
)

var _ Resolver = (*UDPResolver)(nil)

// UDPResolver queries a single upstream server over plain UDP, asking
// for A and AAAA records concurrently.
type UDPResolver struct {
	logger zerolog.Logger

	client   *dns.Client
	upstream string
}

func NewUDPResolver(logger zerolog.Logger, upstream string) *UDPResolver {
	return &UDPResolver{
		logger:   logger,
		client:   &dns.Client{},
		upstream: upstream,
	}
}

type lookupResult struct {
	addrs []net.IPAddr
	err   error
}

func (pr *UDPResolver) Resolve(ctx context.Context, host string) ([]net.IPAddr, error) {
	if addrs, ok := literalAddr(host); ok {
		return addrs, nil
	}

	qTypes := []uint16{dns.TypeA, dns.TypeAAAA}

	var wg sync.WaitGroup
	resCh := make(chan lookupResult, len(qTypes))

	for _, qType := range qTypes {
		wg.Add(1)
		go func(qType uint16) {
			defer wg.Done()
			resCh <- pr.lookup(ctx, host, qType)
		}(qType)
	}

	wg.Wait()
	close(resCh)

	var addrs []net.IPAddr
	var errs []error

	for res := range resCh {
		if res.err != nil {
			errs = append(errs, res.err)
			continue
		}
		addrs = append(addrs, res.addrs...)
	}

	// Partial success is success; errors only matter when nothing
	// resolved at all.
	if len(addrs) > 0 {
		return addrs, nil
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to resolve %q with %d errors: %w", host, len(errs), errs[0])
	}

	return nil, fmt.Errorf("no records found for %q", host)
}

func (pr *UDPResolver) lookup(ctx context.Context, host string, qType uint16) lookupResult {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), qType)

	resp, _, err := pr.client.ExchangeContext(ctx, msg, pr.upstream)
	if err != nil {
		return lookupResult{err: fmt.Errorf("query %s %s: %w", host, dns.TypeToString[qType], err)}
	}

	var addrs []net.IPAddr
	for _, record := range resp.Answer {
		switch r := record.(type) {
		case *dns.A:
			addrs = append(addrs, net.IPAddr{IP: r.A})
		case *dns.AAAA:
			addrs = append(addrs, net.IPAddr{IP: r.AAAA})
		}
	}

	return lookupResult{addrs: addrs}
}

package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchesPatterns(t *testing.T) {
	tcs := []struct {
		name     string
		domain   string
		patterns []string
		want     bool
	}{
		{"wildcard matches everything", "anything.io", []string{"*"}, true},
		{"exact match", "example.com", []string{"example.com"}, true},
		{"exact mismatch", "example.org", []string{"example.com"}, false},
		{"subdomain wildcard", "a.example.com", []string{"*.example.com"}, true},
		{"wildcard matches bare suffix", "example.com", []string{"*.example.com"}, true},
		{"no substring match across label", "evilexample.com", []string{"*.example.com"}, false},
		{"deep subdomain", "x.y.example.com", []string{"*.example.com"}, true},
		{"regex pattern", "cdn7.example.com", []string{`^cdn\d+\.example\.com$`}, true},
		{"regex mismatch", "cdn.example.com", []string{`^cdn\d+\.example\.com$`}, false},
		{"broken regex skipped", "example.com", []string{"["}, false},
		{"broken regex then good pattern", "example.com", []string{"[", "example.com"}, true},
		{"first matching pattern wins", "example.com", []string{"other.com", "*"}, true},
		{"empty patterns", "example.com", nil, false},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, MatchesPatterns(tc.domain, tc.patterns))
		})
	}
}

func TestDomainAllowed(t *testing.T) {
	tcs := []struct {
		name   string
		policy Policy
		domain string
		want   bool
	}{
		{
			"wildcard allows all",
			Policy{AllowedDomains: []string{"*"}},
			"anything.com", true,
		},
		{
			"block wins over wildcard allow",
			Policy{AllowedDomains: []string{"*"}, BlockedDomains: []string{"evil.com"}},
			"evil.com", false,
		},
		{
			"block wins over explicit allow",
			Policy{AllowedDomains: []string{"example.com"}, BlockedDomains: []string{"example.com"}},
			"example.com", false,
		},
		{
			"empty allow list denies",
			Policy{},
			"example.com", false,
		},
		{
			"suffix match on dot boundary",
			Policy{AllowedDomains: []string{"example.com"}},
			"sub.example.com", true,
		},
		{
			"no substring suffix match",
			Policy{AllowedDomains: []string{"example.com"}},
			"evilexample.com", false,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.policy.DomainAllowed(tc.domain))
		})
	}
}

func TestIPAllowed(t *testing.T) {
	tcs := []struct {
		name   string
		policy Policy
		ip     string
		want   bool
	}{
		{"empty lists fail open", Policy{}, "1.2.3.4", true},
		{
			"blacklisted ip denied",
			Policy{BlockedIPs: []string{"1.2.3.4"}},
			"1.2.3.4", false,
		},
		{
			"blacklist does not affect others",
			Policy{BlockedIPs: []string{"1.2.3.4"}},
			"5.6.7.8", true,
		},
		{
			"whitelist restricts",
			Policy{AllowedIPs: []string{"10.0.0.1"}},
			"10.0.0.2", false,
		},
		{
			"whitelisted ip allowed",
			Policy{AllowedIPs: []string{"10.0.0.1"}},
			"10.0.0.1", true,
		},
		{
			"block wins over allow",
			Policy{AllowedIPs: []string{"10.0.0.1"}, BlockedIPs: []string{"10.0.0.1"}},
			"10.0.0.1", false,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.policy.IPAllowed(tc.ip))
		})
	}
}

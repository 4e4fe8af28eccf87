// Package matcher implements the policy predicates and the domain
// pattern matching used by the script registry. All functions are pure:
// the decision depends only on the policy lists and the input.
package matcher

import (
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/spliceproxy/spliceproxy/internal/config"
)

// Policy holds the allow/block lists derived from the configuration.
// Block entries always win over allow entries.
type Policy struct {
	AllowedDomains []string
	BlockedDomains []string
	AllowedIPs     []string
	BlockedIPs     []string
}

// PolicyFromConfig builds the read-only policy snapshot for the proxy.
func PolicyFromConfig(cfg *config.Config) Policy {
	return Policy{
		AllowedDomains: cfg.Scripts.AllowedDomains,
		BlockedDomains: cfg.Scripts.BlockedDomains,
		AllowedIPs:     cfg.Security.WhitelistIPs,
		BlockedIPs:     cfg.Security.BlacklistIPs,
	}
}

// DomainAllowed reports whether injection applies to the domain.
// The allow-list must contain "*" to mean allow-all; an empty allow-list
// with no wildcard denies everything not matched.
func (p Policy) DomainAllowed(domain string) bool {
	for _, blocked := range p.BlockedDomains {
		if domain == blocked {
			return false
		}
	}

	for _, allowed := range p.AllowedDomains {
		if allowed == "*" {
			return true
		}
	}

	for _, allowed := range p.AllowedDomains {
		if domain == allowed || strings.HasSuffix(domain, "."+allowed) {
			return true
		}
	}

	return false
}

// IPAllowed reports whether a client IP may use the proxy at all.
// Unlike the domain allow-list, an empty IP allow-list fails open.
// Entries are literal IPs; no CIDR or wildcard support.
func (p Policy) IPAllowed(ip string) bool {
	if len(p.BlockedIPs) > 0 {
		for _, blocked := range p.BlockedIPs {
			if ip == blocked {
				return false
			}
		}
	}

	if len(p.AllowedIPs) == 0 {
		return true
	}

	for _, allowed := range p.AllowedIPs {
		if ip == allowed {
			return true
		}
	}

	return false
}

// MatchesPatterns reports whether the domain satisfies any of the rule
// patterns. Each pattern is tried as, in order: the literal wildcard "*",
// an exact domain, a "*.suffix" wildcard (matching the suffix itself or
// any subdomain on a dot boundary), and finally a regular expression.
// A pattern that fails to compile as a regex is skipped, not an error;
// CheckPatterns reports such patterns at load time.
func MatchesPatterns(domain string, patterns []string) bool {
	for _, pattern := range patterns {
		if pattern == "*" || pattern == domain {
			return true
		}

		if suffix, ok := strings.CutPrefix(pattern, "*."); ok {
			if domain == suffix || strings.HasSuffix(domain, "."+suffix) {
				return true
			}
		}

		re, err := regexp.Compile(pattern)
		if err != nil {
			continue
		}

		if re.MatchString(domain) {
			return true
		}
	}

	return false
}

// CheckPatterns emits a diagnostic for every pattern that will never
// participate in regex matching because it does not compile. Matching
// itself silently skips these, so without the load-time warning a
// malformed rule would be invisible to operators.
func CheckPatterns(logger zerolog.Logger, ruleName string, patterns []string) {
	for _, pattern := range patterns {
		if pattern == "*" || strings.HasPrefix(pattern, "*.") {
			continue
		}

		if _, err := regexp.Compile(pattern); err != nil {
			logger.Warn().
				Str("rule", ruleName).
				Str("pattern", pattern).
				Err(err).
				Msg("pattern does not compile as regex; it will only match literally")
		}
	}
}

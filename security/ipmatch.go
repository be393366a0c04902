package security

import (
	"net"
	"path"
	"strings"
)

// ipMatcher matches one whitelist pattern against a client IP. Patterns are
// compiled once when the snapshot is built.
type ipMatcher interface {
	Matches(ip string) bool
	Pattern() string
}

// newIPMatcher picks the matcher for a pattern: CIDR ranges, glob patterns
// with '*', exact IPs, and hostname patterns resolved via DNS.
func newIPMatcher(pattern string) ipMatcher {
	pattern = strings.TrimSpace(pattern)
	if _, ipnet, err := net.ParseCIDR(pattern); err == nil {
		return cidrMatcher{pattern: pattern, ipnet: ipnet}
	}
	if strings.Contains(pattern, "*") {
		return globMatcher{pattern: pattern}
	}
	if net.ParseIP(pattern) != nil {
		return exactMatcher{pattern: pattern}
	}
	return hostnameMatcher{pattern: pattern}
}

type exactMatcher struct {
	pattern string
}

func (m exactMatcher) Pattern() string { return m.pattern }

func (m exactMatcher) Matches(ip string) bool {
	if ip == m.pattern {
		return true
	}
	// Normalized comparison so "::1" and "0:0:0:0:0:0:0:1" match.
	a, b := net.ParseIP(ip), net.ParseIP(m.pattern)
	return a != nil && b != nil && a.Equal(b)
}

type cidrMatcher struct {
	pattern string
	ipnet   *net.IPNet
}

func (m cidrMatcher) Pattern() string { return m.pattern }

func (m cidrMatcher) Matches(ip string) bool {
	parsed := net.ParseIP(ip)
	return parsed != nil && m.ipnet.Contains(parsed)
}

type globMatcher struct {
	pattern string
}

func (m globMatcher) Pattern() string { return m.pattern }

func (m globMatcher) Matches(ip string) bool {
	ok, err := path.Match(m.pattern, ip)
	return err == nil && ok
}

// hostnameMatcher resolves the pattern via DNS and compares addresses. As a
// fallback it reverse-resolves the client IP and glob-matches the names; any
// match counts.
type hostnameMatcher struct {
	pattern string
}

func (m hostnameMatcher) Pattern() string { return m.pattern }

func (m hostnameMatcher) Matches(ip string) bool {
	if addrs, err := net.LookupHost(m.pattern); err == nil {
		parsed := net.ParseIP(ip)
		for _, addr := range addrs {
			if addr == ip {
				return true
			}
			if resolved := net.ParseIP(addr); parsed != nil && resolved != nil && resolved.Equal(parsed) {
				return true
			}
		}
	}
	if names, err := net.LookupAddr(ip); err == nil {
		for _, name := range names {
			name = strings.TrimSuffix(name, ".")
			if strings.EqualFold(name, m.pattern) {
				return true
			}
			if ok, err := path.Match(strings.ToLower(m.pattern), strings.ToLower(name)); err == nil && ok {
				return true
			}
		}
	}
	return false
}

// IsAllowed reports whether ip may use the given key record. An IP passes
// when it is in the global whitelist, when the record has no allow-list of
// its own, or when it matches any entry of the record's allow-list. A nil
// record checks only the global whitelist.
func (s *Snapshot) IsAllowed(ip string, rec *APIKeyRecord) bool {
	for _, m := range s.GlobalWhitelist {
		if m.Matches(ip) {
			return true
		}
	}
	if rec == nil {
		return false
	}
	if len(rec.matchers) == 0 {
		return true
	}
	for _, m := range rec.matchers {
		if m.Matches(ip) {
			return true
		}
	}
	return false
}

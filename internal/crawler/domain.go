package crawler

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// DomainSet matches hosts against exact entries and suffix wildcards.
// Entries of the form "*.example.com" or ".example.com" match example.com and
// every subdomain; any other entry matches only that exact host.
// The zero value and a nil *DomainSet match nothing.
type DomainSet struct {
	exact    map[string]struct{}
	suffixes []string
}

// NewDomainSet builds a DomainSet from configured patterns.
func NewDomainSet(patterns []string) *DomainSet {
	set := &DomainSet{
		exact: make(map[string]struct{}),
	}
	for _, raw := range patterns {
		value := cleanHost(raw)
		if value == "" {
			continue
		}
		switch {
		case strings.HasPrefix(value, "*."):
			set.addSuffix(strings.TrimPrefix(value, "*."))
		case strings.HasPrefix(value, "."):
			set.addSuffix(strings.TrimPrefix(value, "."))
		default:
			set.exact[value] = struct{}{}
		}
	}
	return set
}

func (s *DomainSet) addSuffix(suffix string) {
	if suffix == "" {
		return
	}
	for _, existing := range s.suffixes {
		if existing == suffix {
			return
		}
	}
	s.suffixes = append(s.suffixes, suffix)
}

// Len reports the number of configured patterns.
func (s *DomainSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.exact) + len(s.suffixes)
}

// Contains reports whether host is a member of the set.
func (s *DomainSet) Contains(host string) bool {
	if s == nil {
		return false
	}
	host = cleanHost(host)
	if host == "" {
		return false
	}
	if _, ok := s.exact[host]; ok {
		return true
	}
	for _, suffix := range s.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// MatchesURL reports whether the domain of rawURL is in the set. Unparseable
// and domainless URLs never match.
func (s *DomainSet) MatchesURL(rawURL string) bool {
	domain, ok := DomainOf(rawURL)
	if !ok {
		return false
	}
	return s.Contains(domain)
}

// DomainOf returns the lowercased host of rawURL without port. It reports
// false for relative URLs, URLs without a host, IP literals and parse errors.
func DomainOf(rawURL string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", false
	}
	host := cleanHost(u.Hostname())
	if host == "" {
		return "", false
	}
	if isIPLiteral(host) {
		return "", false
	}
	return host, true
}

// RegistrableDomain returns the eTLD+1 of rawURL, falling back to the bare
// host when the public suffix list has no answer. It returns "unknown" when
// rawURL has no domain.
func RegistrableDomain(rawURL string) string {
	host, ok := DomainOf(rawURL)
	if !ok {
		return "unknown"
	}
	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return etld1
}

func cleanHost(raw string) string {
	return strings.TrimSuffix(strings.TrimSpace(strings.ToLower(raw)), ".")
}

func isIPLiteral(host string) bool {
	if strings.Contains(host, ":") {
		return true
	}
	for _, r := range host {
		if (r < '0' || r > '9') && r != '.' {
			return false
		}
	}
	return true
}

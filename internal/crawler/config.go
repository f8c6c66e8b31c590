package crawler

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures every knob that influences a crawl run. It is decoupled
// from Viper so the engine can be configured directly in tests.
type Config struct {
	Seed            string
	MaxDepth        int
	Concurrency     int
	MaxURLLength    int
	StubDomains     []string
	DenyDomains     []string
	RequestTimeout  time.Duration
	UserAgent       string
	AllowSelfLoops  bool
	MarkUnreachable bool
	NormalizeURLs   bool
	IncludeLinkTags bool

	// PerHostRPS caps requests per second to a single host; zero disables it.
	PerHostRPS   float64
	PerHostBurst int
}

// Stub and deny lists used when none are configured.
var (
	DefaultStubDomains = []string{
		"facebook.com",
		"youtube.com",
		"instagram.com",
		"x.com",
		"stackoverflow.com",
		"adobe.com",
		"patreon.com",
	}
	DefaultDenyDomains = []string{
		"use.typekit.net",
		"cdn.cookielaw.org",
		"assets.adobedtm.com",
	}
)

// DefaultConfig returns the configuration the CLI starts from.
func DefaultConfig() Config {
	return Config{
		MaxDepth:        2,
		Concurrency:     4,
		MaxURLLength:    DefaultMaxURLLength,
		StubDomains:     append([]string(nil), DefaultStubDomains...),
		DenyDomains:     append([]string(nil), DefaultDenyDomains...),
		RequestTimeout:  10 * time.Second,
		UserAgent:       "Mozilla/5.0 (compatible; ripples/1.0)",
		AllowSelfLoops:  true,
		MarkUnreachable: true,
		IncludeLinkTags: true,
		PerHostBurst:    1,
	}
}

// SetDefaults registers DefaultConfig values on v under the crawler.* keys.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("crawler.seed", d.Seed)
	v.SetDefault("crawler.max_depth", d.MaxDepth)
	v.SetDefault("crawler.concurrency", d.Concurrency)
	v.SetDefault("crawler.max_url_length", d.MaxURLLength)
	v.SetDefault("crawler.stub_domains", d.StubDomains)
	v.SetDefault("crawler.deny_domains", d.DenyDomains)
	v.SetDefault("crawler.request_timeout", d.RequestTimeout)
	v.SetDefault("crawler.user_agent", d.UserAgent)
	v.SetDefault("crawler.allow_self_loops", d.AllowSelfLoops)
	v.SetDefault("crawler.mark_unreachable", d.MarkUnreachable)
	v.SetDefault("crawler.normalize_urls", d.NormalizeURLs)
	v.SetDefault("crawler.include_link_tags", d.IncludeLinkTags)
	v.SetDefault("crawler.per_host_rps", d.PerHostRPS)
	v.SetDefault("crawler.per_host_burst", d.PerHostBurst)
}

// LoadConfig constructs a Config by reading the crawler.* keys from Viper.
func LoadConfig(v *viper.Viper) (Config, error) {
	cfg := Config{
		Seed:            strings.TrimSpace(v.GetString("crawler.seed")),
		MaxDepth:        v.GetInt("crawler.max_depth"),
		Concurrency:     v.GetInt("crawler.concurrency"),
		MaxURLLength:    v.GetInt("crawler.max_url_length"),
		StubDomains:     normalizeDomains(v.GetStringSlice("crawler.stub_domains")),
		DenyDomains:     normalizeDomains(v.GetStringSlice("crawler.deny_domains")),
		RequestTimeout:  v.GetDuration("crawler.request_timeout"),
		UserAgent:       v.GetString("crawler.user_agent"),
		AllowSelfLoops:  v.GetBool("crawler.allow_self_loops"),
		MarkUnreachable: v.GetBool("crawler.mark_unreachable"),
		NormalizeURLs:   v.GetBool("crawler.normalize_urls"),
		IncludeLinkTags: v.GetBool("crawler.include_link_tags"),
		PerHostRPS:      v.GetFloat64("crawler.per_host_rps"),
		PerHostBurst:    v.GetInt("crawler.per_host_burst"),
	}
	return cfg, cfg.Validate()
}

// Validate checks for obviously bad configuration combinations. The seed is
// not required here because the CLI may supply it as an argument.
func (c Config) Validate() error {
	if c.MaxDepth < 0 {
		return fmt.Errorf("crawler.max_depth must be >= 0")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.MaxURLLength <= 0 {
		return fmt.Errorf("crawler.max_url_length must be > 0")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("crawler.request_timeout must be > 0")
	}
	if c.PerHostRPS < 0 {
		return fmt.Errorf("crawler.per_host_rps must be >= 0")
	}
	return nil
}

// normalizeDomains trims, lowercases and dedupes domain patterns. Viper
// returns a single comma separated string as one element when the value comes
// from the environment, so elements are split on commas as well.
func normalizeDomains(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{})
	for _, entry := range in {
		for _, d := range strings.Split(entry, ",") {
			d = strings.ToLower(strings.TrimSpace(d))
			if d == "" {
				continue
			}
			if _, ok := seen[d]; ok {
				continue
			}
			seen[d] = struct{}{}
			out = append(out, d)
		}
	}
	return out
}

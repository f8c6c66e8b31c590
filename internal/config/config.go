// Package config loads and validates ripples configuration via Viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/JakeFAU/ripples/internal/crawler"
	"github.com/JakeFAU/ripples/internal/export"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Crawler crawler.Config `mapstructure:"-"`
	Export  ExportConfig   `mapstructure:"export"`
	Logging LoggingConfig  `mapstructure:"logging"`
	Metrics MetricsConfig  `mapstructure:"metrics"`
	Tracing TracingConfig  `mapstructure:"tracing"`
}

// ExportConfig controls how the final graph is written.
type ExportConfig struct {
	Format        string `mapstructure:"format"`
	OutputDir     string `mapstructure:"output_dir"`
	Filename      string `mapstructure:"filename"`
	IncludeState  bool   `mapstructure:"include_state"`
	ClusterBySite bool   `mapstructure:"cluster_by_site"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// MetricsConfig controls the optional Prometheus listener.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// TracingConfig toggles OpenTelemetry spans for runs and nodes.
type TracingConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// flagKeys maps CLI flag names to configuration keys.
var flagKeys = map[string]string{
	"depth":          "crawler.max_depth",
	"concurrency":    "crawler.concurrency",
	"stub":           "crawler.stub_domains",
	"deny":           "crawler.deny_domains",
	"timeout":        "crawler.request_timeout",
	"user-agent":     "crawler.user_agent",
	"normalize":      "crawler.normalize_urls",
	"format":         "export.format",
	"output-dir":     "export.output_dir",
	"output":         "export.filename",
	"metrics-addr":   "metrics.addr",
	"dev":            "logging.development",
	"log-level":      "logging.level",
	"max-url-length": "crawler.max_url_length",
	"cluster":        "export.cluster_by_site",
	"rps":            "crawler.per_host_rps",
	"trace":          "tracing.enabled",
}

// Load builds a Config from defaults, an optional file, RIPPLES_* environment
// variables and any flags in flags that were set explicitly.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RIPPLES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	crawlerCfg, err := crawler.LoadConfig(v)
	if err != nil {
		return Config{}, err
	}
	cfg.Crawler = crawlerCfg
	cfg.Export.Format = strings.ToLower(strings.TrimSpace(cfg.Export.Format))
	if cfg.Export.Filename == "" {
		cfg.Export.Filename = "ripples." + cfg.Export.Format
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	crawler.SetDefaults(v)
	v.SetDefault("export.format", export.FormatDOT)
	v.SetDefault("export.output_dir", ".")
	v.SetDefault("export.filename", "")
	v.SetDefault("export.include_state", true)
	v.SetDefault("export.cluster_by_site", false)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("tracing.enabled", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := c.Crawler.Validate(); err != nil {
		return err
	}
	switch c.Export.Format {
	case export.FormatDOT, export.FormatJSON:
	default:
		return fmt.Errorf("export.format must be %q or %q, got %q", export.FormatDOT, export.FormatJSON, c.Export.Format)
	}
	if strings.TrimSpace(c.Export.OutputDir) == "" {
		return fmt.Errorf("export.output_dir must be set")
	}
	return nil
}

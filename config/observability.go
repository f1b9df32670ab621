package config

import "strings"

// ObservabilityConfig groups metrics settings.
type ObservabilityConfig struct {
	Metrics ObservabilityMetricsConfig `envPrefix:"OBSERVABILITY_METRICS_"`
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
}

// ObservabilityMetricsConfig points the portal at a DogStatsD agent.
type ObservabilityMetricsConfig struct {
	Enabled       bool   `env:"ENABLED"        envDefault:"false"`
	StatsdAddress string `env:"STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
	Prefix        string `env:"PREFIX"         envDefault:"civic_portal"`
	// Tags are added to every sample, e.g. "env:prod,region:eu".
	Tags map[string]string `env:"TAGS" envKeyValSeparator:":"`
}

// Sanitize disables emission when no agent address is left after trimming.
func (c *ObservabilityMetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	c.Prefix = strings.Trim(strings.TrimSpace(c.Prefix), ".")
	if c.StatsdAddress == "" {
		c.Enabled = false
	}
	if len(c.Tags) == 0 {
		return
	}
	tags := make(map[string]string, len(c.Tags))
	for k, v := range c.Tags {
		if k = strings.TrimSpace(k); k != "" {
			tags[k] = strings.TrimSpace(v)
		}
	}
	c.Tags = tags
}

// IsEnabled reports whether samples should be sent.
func (c *ObservabilityMetricsConfig) IsEnabled() bool {
	return c.Enabled && c.StatsdAddress != ""
}

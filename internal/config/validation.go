package config

import (
	"fmt"
	"strings"
)

// ValidationErrors collects every problem found in a Config
type ValidationErrors struct {
	Problems []string
}

// HasErrors returns true if any validation errors exist
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Problems) > 0
}

// Error formats all validation errors into a clear message
func (e *ValidationErrors) Error() string {
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, p := range e.Problems {
		sb.WriteString(fmt.Sprintf("  - %s\n", p))
	}
	return sb.String()
}

func (e *ValidationErrors) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	if c.Gateway.Token == "" {
		errs.add("gateway.token is required (set ROSTER_TOKEN env var)")
	}
	if !strings.HasPrefix(c.Gateway.URL, "ws://") && !strings.HasPrefix(c.Gateway.URL, "wss://") {
		errs.add("gateway.url must be a ws:// or wss:// URL, got %q", c.Gateway.URL)
	}
	if c.API.BaseURL == "" {
		errs.add("api.base_url is required")
	}
	if c.API.RatePerSecond < 1 {
		errs.add("api.rate_per_second must be >= 1")
	}
	if c.API.RetryCount < 0 {
		errs.add("api.retry_count must be >= 0")
	}
	if c.Scrape.BatchSize < 1 {
		errs.add("scrape.batch_size must be >= 1")
	}
	if c.Scrape.RequestDelaySec < 0 {
		errs.add("scrape.request_delay_sec must be >= 0")
	}
	if c.Scrape.RetryCount < 0 {
		errs.add("scrape.retry_count must be >= 0")
	}
	if c.Scrape.RetryDelaySec < 0 {
		errs.add("scrape.retry_delay_sec must be >= 0")
	}
	if c.Output.Directory == "" {
		errs.add("output.directory is required")
	}
	if c.Notify.Enabled {
		if c.Notify.Topic == "" {
			errs.add("notify.topic is required when notifications are enabled (set NTFY_TOPIC env var)")
		}
		if !strings.HasPrefix(c.Notify.Server, "http://") && !strings.HasPrefix(c.Notify.Server, "https://") {
			errs.add("notify.server must be an http:// or https:// URL, got %q", c.Notify.Server)
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

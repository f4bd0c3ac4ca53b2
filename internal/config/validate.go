package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Bus.URL == "" {
		return errors.New("bus.url is required")
	}
	for name, subject := range map[string]string{
		"bus.demand_queue":    c.Bus.DemandQueue,
		"bus.listing_subject": c.Bus.ListingSubject,
		"bus.error_subject":   c.Bus.ErrorSubject,
	} {
		if subject == "" {
			return fmt.Errorf("%s is required", name)
		}
		if strings.ContainsAny(subject, "*> ") {
			return fmt.Errorf("%s must be a literal subject, got %q", name, subject)
		}
	}

	if c.Gateway.SendBuffer < 1 {
		return errors.New("gateway.send_buffer must be >= 1")
	}
	if !strings.HasPrefix(c.Gateway.WSPath, "/") {
		return fmt.Errorf("gateway.ws_path must start with /, got %q", c.Gateway.WSPath)
	}

	if c.Controller.SnapshotTimeout <= 0 {
		return errors.New("controller.snapshot_timeout must be positive")
	}

	return nil
}

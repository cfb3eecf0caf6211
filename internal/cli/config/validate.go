package config

import (
	"fmt"
)

var validOutputs = map[string]bool{"": true, "auto": true, "text": true, "markdown": true, "json": true}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}
	if !validOutputs[c.OutputFormat] {
		return fmt.Errorf("invalid output format %q\nHint: use auto, text, markdown or json", c.OutputFormat)
	}
	if c.Engine == nil {
		return fmt.Errorf("engine is required")
	}
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("invalid engine configuration: %w", err)
	}
	return nil
}

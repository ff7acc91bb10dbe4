// Authtally - Authentication Accounting and Activity Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authtally

package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration for structural and semantic errors.
// A non-nil return is a fatal configuration error: the process should refuse
// to start rather than run with a half-valid setup.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("invalid value for %s (rule %q): %w", first.Namespace(), first.Tag(), err)
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Cross-field checks the struct tags cannot express.
	if c.Queue.MaxPollInterval < c.Queue.PollInterval {
		return fmt.Errorf("queue.max_poll_interval (%s) must not be smaller than queue.poll_interval (%s)",
			c.Queue.MaxPollInterval, c.Queue.PollInterval)
	}
	if c.Retention.Enabled && c.Retention.CheckInterval > c.Retention.MaxAge {
		return fmt.Errorf("retention.check_interval (%s) must not exceed retention.max_age (%s)",
			c.Retention.CheckInterval, c.Retention.MaxAge)
	}

	return nil
}

// Authtally - Authentication Accounting and Activity Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authtally

package accounting

import "fmt"

// ValidationError reports an authentication state that cannot be accounted.
// Callers processing batches should log it and skip the event rather than
// abort the batch.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid authentication state: %s %s", e.Field, e.Reason)
}

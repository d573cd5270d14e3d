// SPDX-FileCopyrightText: 2025 The Skua Authors
//
// SPDX-License-Identifier: Apache-2.0

package skua

import "errors"

// ErrFinalShutdown is returned by Run after the service has completed
// its shutdown sequence.
var ErrFinalShutdown = errors.New("skua was shut down")

// ErrShutdown holds any errors that may
// have occurred during shutdown of the service
type ErrShutdown struct {
	errAPI       error
	errTelemetry error
}

// HasError returns true if any of the errors are set
func (e ErrShutdown) HasError() bool {
	return e.errAPI != nil || e.errTelemetry != nil
}

// SPDX-FileCopyrightText: 2025 The Skua Authors
//
// SPDX-License-Identifier: Apache-2.0

package probe

import (
	"fmt"
)

// ErrInvalidRequest is returned when a request fails validation before
// any attempt is dispatched.
type ErrInvalidRequest struct {
	Kind   Kind
	Field  string
	Reason string
}

func (e ErrInvalidRequest) Error() string {
	return fmt.Sprintf("invalid request field %q for probe kind %q: %s", e.Field, e.Kind, e.Reason)
}

// ErrUnsupportedKind is returned when no prober is registered for the
// requested kind.
type ErrUnsupportedKind struct {
	Kind Kind
}

func (e ErrUnsupportedKind) Error() string {
	return fmt.Sprintf("no prober registered for kind %q", e.Kind)
}

// ErrResolve is returned when the target cannot be resolved to an
// address before dispatch.
type ErrResolve struct {
	Target string
	Err    error
}

func (e ErrResolve) Error() string {
	return fmt.Sprintf("failed to resolve target %q: %v", e.Target, e.Err)
}

func (e ErrResolve) Unwrap() error {
	return e.Err
}

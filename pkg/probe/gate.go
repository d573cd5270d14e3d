// SPDX-FileCopyrightText: 2025 The Skua Authors
//
// SPDX-License-Identifier: Apache-2.0

package probe

import (
	"context"
)

// Admission grants the right to hold one in-flight network resource.
// Acquisition is scoped to an attempt's lifetime; Release must be
// called on every exit path.
type Admission interface {
	Acquire(ctx context.Context) error
	Release()
}

// gate is a counting semaphore capping the number of concurrent
// in-flight attempts across all sessions. Sessions requesting beyond
// the cap queue until capacity frees.
type gate struct {
	slots chan struct{}
}

var _ Admission = (*gate)(nil)

func newGate(size int) *gate {
	if size < 1 {
		size = 1
	}
	return &gate{slots: make(chan struct{}, size)}
}

// Acquire blocks until a slot is free or the context is done.
func (g *gate) Acquire(ctx context.Context) error {
	select {
	case g.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a previously acquired slot.
func (g *gate) Release() {
	<-g.slots
}

// inflight returns the number of currently held slots.
func (g *gate) inflight() int {
	return len(g.slots)
}

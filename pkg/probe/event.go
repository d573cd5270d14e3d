// SPDX-FileCopyrightText: 2025 The Skua Authors
//
// SPDX-License-Identifier: Apache-2.0

package probe

// EventType discriminates the events emitted by a session.
type EventType string

const (
	// EventOutcome carries the terminal outcome of one attempt.
	EventOutcome EventType = "outcome"
	// EventHop carries one resolved or timed-out hop.
	EventHop EventType = "hop"
	// EventResult carries the final result and is always the last
	// event of a session.
	EventResult EventType = "result"
)

// Event is one element of a session's result stream. Exactly one of
// the payload fields is set, matching Type.
type Event struct {
	Type    EventType `json:"type"`
	Outcome *Outcome  `json:"outcome,omitempty"`
	Hop     *Hop      `json:"hop,omitempty"`
	Result  *Result   `json:"result,omitempty"`
}

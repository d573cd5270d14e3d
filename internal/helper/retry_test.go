// SPDX-FileCopyrightText: 2025 The Skua Authors
//
// SPDX-License-Identifier: Apache-2.0

package helper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry(t *testing.T) {
	tests := []struct {
		name      string
		failUntil int
		rc        RetryConfig
		wantCalls int
		wantErr   bool
	}{
		{
			name:      "succeeds immediately",
			failUntil: 0,
			rc:        RetryConfig{Count: 3, Delay: time.Millisecond},
			wantCalls: 1,
		},
		{
			name:      "succeeds after two retries",
			failUntil: 2,
			rc:        RetryConfig{Count: 3, Delay: time.Millisecond},
			wantCalls: 3,
		},
		{
			name:      "exhausts retries",
			failUntil: 10,
			rc:        RetryConfig{Count: 2, Delay: time.Millisecond},
			wantCalls: 3,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			effector := func(_ context.Context) error {
				calls++
				if calls <= tt.failUntil {
					return errors.New("transient")
				}
				return nil
			}

			err := Retry(effector, tt.rc)(t.Context())
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, calls)
		})
	}
}

func TestRetry_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	effector := func(_ context.Context) error {
		cancel()
		return errors.New("always failing")
	}

	err := Retry(effector, RetryConfig{Count: 5, Delay: time.Minute})(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rc      RetryConfig
		wantErr bool
	}{
		{"valid", RetryConfig{Count: 3, Delay: time.Second}, false},
		{"zero", RetryConfig{}, false},
		{"negative count", RetryConfig{Count: -1}, true},
		{"excessive count", RetryConfig{Count: 100}, true},
		{"negative delay", RetryConfig{Delay: -time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rc.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

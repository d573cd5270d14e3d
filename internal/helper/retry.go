// SPDX-FileCopyrightText: 2025 The Skua Authors
//
// SPDX-License-Identifier: Apache-2.0

package helper

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/skua-project/skua/internal/logger"
)

// RetryConfig configures the retry behavior of an [Effector].
type RetryConfig struct {
	// Count is the number of retries after the initial call.
	Count int `json:"count" yaml:"count" mapstructure:"count"`
	// Delay is the initial delay between retries; it grows exponentially.
	Delay time.Duration `json:"delay" yaml:"delay" mapstructure:"delay"`
}

// maxRetryCount bounds the retry count so the exponential
// backoff cannot grow into hour-long delays.
const maxRetryCount = 10

// Validate checks if the retry configuration is valid.
func (rc RetryConfig) Validate() error {
	if rc.Count < 0 || rc.Count > maxRetryCount {
		return fmt.Errorf("retry count must be between 0 and %d", maxRetryCount)
	}
	if rc.Delay < 0 {
		return fmt.Errorf("retry delay must not be negative")
	}
	return nil
}

// Effector will be the function called by the Retry function
type Effector func(context.Context) error

// Retry will retry the run the effector function in an exponential backoff
func Retry(effector Effector, rc RetryConfig) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		log := logger.FromContext(ctx)
		for r := 1; ; r++ {
			err := effector(ctx)
			if err == nil || r > rc.Count {
				return err
			}

			delay := getExpBackoff(rc.Delay, r)
			log.WarnContext(ctx, fmt.Sprintf("Effector call failed, retrying in %v", delay))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
}

// calculate the exponential delay for a given iteration
// first iteration is 1
func getExpBackoff(initialDelay time.Duration, iteration int) time.Duration {
	if iteration <= 1 {
		return initialDelay
	}
	return time.Duration(math.Pow(2, float64(iteration-1))) * initialDelay
}

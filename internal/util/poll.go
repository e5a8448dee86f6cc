// Copyright 2024 FlatFS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package util

import (
	"context"
	"time"
)

// PollConfig bounds how long and how often a condition is polled.
// Zero fields fall back to 5s / 50ms.
type PollConfig struct {
	Timeout  time.Duration
	Interval time.Duration
}

// FastPollConfig polls aggressively. Suited to daemon startup, where the
// condition usually flips within a few hundred milliseconds.
func FastPollConfig() PollConfig {
	return PollConfig{
		Timeout:  5 * time.Second,
		Interval: 25 * time.Millisecond,
	}
}

// PollUntil calls condition every cfg.Interval until it returns true or the
// timeout (or ctx) expires. The condition is checked once immediately.
// Returns ctx's error on expiry.
func PollUntil(ctx context.Context, cfg PollConfig, condition func() bool) error {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = 50 * time.Millisecond
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if condition() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// WaitWithDeadline polls condition until it returns true or the deadline
// passes. Plainer than PollUntil for callers that already hold a deadline
// and do not need cancellation.
func WaitWithDeadline(deadline time.Time, interval time.Duration, condition func() bool) bool {
	if interval == 0 {
		interval = 50 * time.Millisecond
	}
	for {
		if condition() {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		time.Sleep(interval)
	}
}

// WaitFixed polls condition up to iterations times with a fixed interval
// between attempts.
func WaitFixed(iterations int, interval time.Duration, condition func() bool) bool {
	for i := range iterations {
		if condition() {
			return true
		}
		if i < iterations-1 {
			time.Sleep(interval)
		}
	}
	return false
}

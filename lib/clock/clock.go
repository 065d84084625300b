// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock supplies the current time. Every production function that
// stamps ledger state (createdAt, completedAt, event timestamps) or
// checks token expiry accepts a Clock instead of calling time.Now
// directly.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// realClock delegates to the time package.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Real returns a Clock backed by the system clock.
func Real() Clock { return realClock{} }

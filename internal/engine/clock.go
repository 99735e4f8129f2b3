// SPDX-License-Identifier: GPL-3.0

package engine

import "fmt"

// Clock represents virtual simulation time in milliseconds.
type Clock int64

// ClockInfinity is the maximum Clock value.
const ClockInfinity = Clock(1<<63 - 1)

// Hour is one simulated hour in Clock units.
const Hour = Clock(3600_000)

// Second is one simulated second in Clock units.
const Second = Clock(1000)

func (c Clock) String() string {
	return fmt.Sprintf("%dms", int64(c))
}

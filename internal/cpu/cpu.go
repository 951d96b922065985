// Package cpu pins worker units to cores.
package cpu

import "runtime"

// Core maps a worker unit number onto a valid core index.
func Core(unit int) int {
	n := runtime.NumCPU()
	if unit < 0 {
		unit = -unit
	}
	return unit % n
}

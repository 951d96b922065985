//go:build !linux

package cpu

import "runtime"

// Pin locks the calling goroutine to its OS thread. Core pinning is only
// available on linux; elsewhere the thread lock is the whole effect.
func Pin(unit int) (release func(), err error) {
	runtime.LockOSThread()
	return runtime.UnlockOSThread, nil
}

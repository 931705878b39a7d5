//go:build !(linux || darwin || netbsd || freebsd || openbsd || dragonfly)
// +build !linux,!darwin,!netbsd,!freebsd,!openbsd,!dragonfly

package conet

// rlimitNofileCurrent has no RLIMIT_NOFILE notion on this platform; the
// caller falls back to defaultSlotTableCapacity.
func rlimitNofileCurrent() int { return 0 }

//go:build linux || darwin || netbsd || freebsd || openbsd || dragonfly
// +build linux darwin netbsd freebsd openbsd dragonfly

package conet

import "golang.org/x/sys/unix"

// rlimitNofileCurrent reads RLIMIT_NOFILE's current (soft) limit, the same
// syscall original_source/core/src/network.cpp's poll_wait_item_mgr_t uses
// to size its table up front. Returns 0 if the syscall fails, letting the
// caller fall back to a fixed default.
func rlimitNofileCurrent() int {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return 0
	}
	if rlim.Cur <= 0 || rlim.Cur > 1<<30 {
		return 0
	}
	return int(rlim.Cur)
}

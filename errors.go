package conet

import "github.com/pkg/errors"

// Sentinel errors for the "observable, not fatal" outcomes of spec §7.
var (
	// ErrClosed is returned by Reactor operations called after Close.
	ErrClosed = errors.New("conet: reactor closed")
)

// wrapSyscall annotates a kernel syscall failure with the fields spec §7
// asks logged errors to carry (syscall name, fd, mask), following
// trpc-group/tnet's poller_epoll.go / poller_kqueue.go idiom of wrapping
// unix.* failures with contextual errors rather than propagating bare
// errno values.
func wrapSyscall(op string, fd int, mask Events, err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, "conet: %s fd=%d mask=%#x", op, fd, uint32(mask))
}

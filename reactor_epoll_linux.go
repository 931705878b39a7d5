//go:build linux
// +build linux

package conet

import (
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// epollPoller is the Linux kernelPoller, wrapping epoll_create1/epoll_ctl/
// epoll_wait via golang.org/x/sys/unix, grounded on trpc-group/tnet's
// poller_epoll.go (same EPOLL_CLOEXEC-on-create idiom, same translation
// boundary between native epoll bits and a portable vocabulary).
type epollPoller struct {
	fd  int
	raw []unix.EpollEvent
}

func newKernelPoller(bufSize int) (kernelPoller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "conet: epoll_create1")
	}
	return &epollPoller{fd: fd, raw: make([]unix.EpollEvent, bufSize)}, nil
}

// slotEvent builds an EpollEvent carrying slot as kernel user-data. The
// kernel's epoll_event.data union is 8 bytes; unix.EpollEvent exposes it
// as adjacent Fd/Pad int32 fields, so a uintptr is written across both via
// the address of Fd, the same trick tnet's poller_epoll.go pointer-in-data
// idiom relies on. The FdSlotTable keeps the real *FdSlot reference alive,
// so the GC never has a reason to collect it out from under this uintptr.
func slotEvent(mask Events, slot *FdSlot) unix.EpollEvent {
	ev := unix.EpollEvent{Events: pollToEpoll(mask)}
	*(*uintptr)(unsafe.Pointer(&ev.Fd)) = uintptr(unsafe.Pointer(slot))
	return ev
}

func slotFromEvent(ev *unix.EpollEvent) *FdSlot {
	return (*FdSlot)(unsafe.Pointer(*(*uintptr)(unsafe.Pointer(&ev.Fd))))
}

func (p *epollPoller) add(fd int, mask Events, slot *FdSlot) error {
	ev := slotEvent(mask, slot)
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (p *epollPoller) modify(fd int, old, mask Events, slot *FdSlot) error {
	ev := slotEvent(mask, slot)
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (p *epollPoller) delete(fd int) error {
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) wait(timeout time.Duration, buf []readyEvent) (int, error) {
	ms := durationToEpollMillis(timeout)
	n, err := unix.EpollWait(p.fd, p.raw, ms)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, errors.Wrap(err, "conet: epoll_wait")
	}
	if n > len(buf) {
		n = len(buf)
	}
	for i := 0; i < n; i++ {
		buf[i] = readyEvent{slot: slotFromEvent(&p.raw[i]), mask: epollToPoll(p.raw[i].Events)}
	}
	return n, nil
}

func (p *epollPoller) close() error {
	return unix.Close(p.fd)
}

func durationToEpollMillis(timeout time.Duration) int {
	if timeout < 0 {
		return -1
	}
	ms := timeout.Milliseconds()
	if ms > int64(^uint32(0)>>1) {
		ms = int64(^uint32(0) >> 1)
	}
	return int(ms)
}

//go:build darwin || freebsd || dragonfly
// +build darwin freebsd dragonfly

package conet

import (
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// kqueuePoller is the BSD/Darwin kernelPoller. kqueue has no single
// registered-mask-per-fd the way epoll does; EVFILT_READ and EVFILT_WRITE
// are independent registrations, each carrying its own udata pointer. The
// reactor's canonical Events mask is projected onto whichever of the two
// filters it implies, add/delete-ing each independently so the externally
// visible registeredMask semantics (spec §3's "registered_mask != 0 iff
// fd is present with exactly that mask") still hold from the Reactor's
// point of view. Grounded on trpc-group/tnet's poller_kqueue.go and
// cross-checked against SeleniaProject-Orizon's kqueue_poller_bsd.go for
// the EV_DELETE-per-filter cleanup idiom.
type kqueuePoller struct {
	fd  int
	raw []unix.Kevent_t
}

func newKernelPoller(bufSize int) (kernelPoller, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, errors.Wrap(err, "conet: kqueue")
	}
	return &kqueuePoller{fd: fd, raw: make([]unix.Kevent_t, bufSize)}, nil
}

// setKeventUdata/keventUdata stash and recover the *FdSlot kernel
// user-data pointer in Kevent_t.Udata (a *byte on darwin/freebsd/dragonfly),
// the same pointer-in-udata idiom poller_kqueue.go and kqueue_poller_bsd.go
// both use.
func setKeventUdata(kev *unix.Kevent_t, slot *FdSlot) {
	kev.Udata = (*byte)(unsafe.Pointer(slot))
}

func keventUdata(kev *unix.Kevent_t) *FdSlot {
	return (*FdSlot)(unsafe.Pointer(kev.Udata))
}

func (p *kqueuePoller) changeList(fd int, oldMask, newMask Events, slot *FdSlot) []unix.Kevent_t {
	var changes []unix.Kevent_t
	want := func(e Events, filter int16) {
		wasSet := oldMask&e != 0
		isSet := newMask&e != 0
		if isSet == wasSet {
			return
		}
		flags := uint16(unix.EV_ADD | unix.EV_ENABLE)
		if !isSet {
			flags = unix.EV_DELETE
		}
		kev := unix.Kevent_t{
			Ident:  uint64(fd),
			Filter: filter,
			Flags:  flags,
		}
		setKeventUdata(&kev, slot)
		changes = append(changes, kev)
	}
	want(EventRead, unix.EVFILT_READ)
	want(EventWrite, unix.EVFILT_WRITE)
	return changes
}

func (p *kqueuePoller) apply(fd int, oldMask, newMask Events, slot *FdSlot) error {
	changes := p.changeList(fd, oldMask, newMask, slot)
	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(p.fd, changes, nil, nil)
	return err
}

func (p *kqueuePoller) add(fd int, mask Events, slot *FdSlot) error {
	return p.apply(fd, 0, mask, slot)
}

func (p *kqueuePoller) modify(fd int, old, mask Events, slot *FdSlot) error {
	return p.apply(fd, old, mask, slot)
}

// delete removes both filters one at a time; a filter that was never added
// reports ENOENT, which is not an error here.
func (p *kqueuePoller) delete(fd int) error {
	var firstErr error
	for _, filter := range []int16{unix.EVFILT_READ, unix.EVFILT_WRITE} {
		change := []unix.Kevent_t{{Ident: uint64(fd), Filter: filter, Flags: unix.EV_DELETE}}
		if _, err := unix.Kevent(p.fd, change, nil, nil); err != nil && err != unix.ENOENT && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (p *kqueuePoller) wait(timeout time.Duration, buf []readyEvent) (int, error) {
	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}
	n, err := unix.Kevent(p.fd, nil, p.raw, ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, errors.Wrap(err, "conet: kevent")
	}
	if n > len(buf) {
		n = len(buf)
	}
	for i := 0; i < n; i++ {
		kev := &p.raw[i]
		mask := EventErr
		if kev.Flags&unix.EV_EOF != 0 {
			mask = EventHup
		}
		switch kev.Filter {
		case unix.EVFILT_READ:
			mask |= EventRead
		case unix.EVFILT_WRITE:
			mask |= EventWrite
		}
		if kev.Flags&unix.EV_ERROR == 0 && kev.Flags&unix.EV_EOF == 0 {
			mask &^= EventErr
		}
		buf[i] = readyEvent{slot: keventUdata(kev), mask: mask}
	}
	return n, nil
}

func (p *kqueuePoller) close() error {
	return unix.Close(p.fd)
}

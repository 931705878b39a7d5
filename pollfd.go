package conet

// Events is the reactor's canonical readiness-bit vocabulary. Numeric
// values match the portable poll(2) bit definitions (golang.org/x/sys/unix
// POLLIN/POLLOUT/POLLHUP/POLLERR) so a PollFD is wire-compatible with the
// real syscall struct; platform pollers translate to/from their own native
// bits (epoll mirrors these values, kqueue does not) at the poller
// boundary, never inside the reactor core.
type Events uint32

const (
	EventRead  Events = 0x0001 // IN
	EventWrite Events = 0x0004 // OUT
	EventErr   Events = 0x0008 // ERR
	EventHup   Events = 0x0010 // HUP

	eventMaskAll = EventRead | EventWrite | EventErr | EventHup
)

// PollFD is the Go-idiomatic rendering of the portable pollfd struct: one
// entry of a co_poll() vector. Revents is mutated in place by the reactor.
type PollFD struct {
	Fd      int
	Events  Events
	Revents Events
}

// Epoll's own bit numbering for IN/OUT/ERR/HUP, kept local to this file
// (rather than imported from golang.org/x/sys/unix) so the translation and
// its round-trip property are testable on every build platform, not just
// linux.
const (
	epollIn  = 0x001
	epollOut = 0x004
	epollErr = 0x008
	epollHup = 0x010
)

// epollBits and poll bits share numeric values for IN/OUT/ERR/HUP on
// Linux, but the translation is still written out explicitly (rather than
// relied on by coincidence) so the mapping stays correct if either
// vocabulary's bit layout changes. The kqueue poller does not use these; it
// builds Events from kqueue filters and flags directly.
func pollToEpoll(e Events) uint32 {
	var out uint32
	if e&EventRead != 0 {
		out |= epollIn
	}
	if e&EventWrite != 0 {
		out |= epollOut
	}
	if e&EventHup != 0 {
		out |= epollHup
	}
	if e&EventErr != 0 {
		out |= epollErr
	}
	return out
}

func epollToPoll(mask uint32) Events {
	var out Events
	if mask&epollIn != 0 {
		out |= EventRead
	}
	if mask&epollOut != 0 {
		out |= EventWrite
	}
	if mask&epollHup != 0 {
		out |= EventHup
	}
	if mask&epollErr != 0 {
		out |= EventErr
	}
	return out
}

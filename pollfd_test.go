package conet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEventTranslationRoundTrip(t *testing.T) {
	all := []Events{EventRead, EventWrite, EventHup, EventErr}
	for mask := Events(0); mask <= eventMaskAll; mask++ {
		epoll := pollToEpoll(mask)
		back := epollToPoll(epoll)
		// bits outside the four-bit vocabulary (e.g. 0x2) are dropped
		require.Equal(t, pollEventMask(mask), back, "round trip failed for mask %#x", uint32(mask))
	}
	// every individual bit survives independently too
	for _, e := range all {
		require.Equal(t, e, epollToPoll(pollToEpoll(e)))
	}
}

func TestEventTranslationIgnoresUnknownBits(t *testing.T) {
	const unknownBit Events = 1 << 20
	masked := pollEventMask(EventRead | unknownBit)
	require.Equal(t, EventRead, masked)
}

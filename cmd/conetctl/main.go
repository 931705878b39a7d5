// Command conetctl is a small diagnostic CLI that drives a conet.Reactor
// directly, for exercising and observing the reactor core outside of a
// real coroutine host.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

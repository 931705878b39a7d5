package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/EFLql/conet"
)

func newInspectCmd() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Park one waiter on a pipe and report pending_waiters until it resolves",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, interval)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 200*time.Millisecond, "polling interval for the pending_waiters report")
	return cmd
}

func runInspect(cmd *cobra.Command, interval time.Duration) error {
	sessionID := uuid.New()
	fmt.Fprintf(cmd.OutOrStdout(), "conetctl inspect session=%s\n", sessionID)

	r, err := conet.NewReactor()
	if err != nil {
		return err
	}
	defer r.Close()

	rf, wf, err := os.Pipe()
	if err != nil {
		return err
	}
	defer rf.Close()
	defer wf.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		fds := []conet.PollFD{{Fd: int(rf.Fd()), Events: conet.EventRead}}
		n, err := r.Poll(fds, 5*time.Second)
		fmt.Fprintf(cmd.OutOrStdout(), "poll returned n=%d err=%v\n", n, err)
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			fmt.Fprintf(cmd.OutOrStdout(), "final pending_waiters=%d\n", r.PendingWaiters())
			return nil
		case <-ticker.C:
			fmt.Fprintf(cmd.OutOrStdout(), "pending_waiters=%d\n", r.PendingWaiters())
		}
	}
}

package main

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/EFLql/conet"
)

func newBenchCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Fan N waiters across distinct pipes and report wakeup latency",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(cmd, n)
		},
	}
	cmd.Flags().IntVar(&n, "n", 1000, "number of concurrent waiters")
	return cmd
}

func runBench(cmd *cobra.Command, n int) error {
	if n <= 0 {
		return fmt.Errorf("n must be positive, got %d", n)
	}

	r, err := conet.NewReactor()
	if err != nil {
		return err
	}
	defer r.Close()

	readers := make([]*os.File, n)
	writers := make([]*os.File, n)
	for i := 0; i < n; i++ {
		rf, wf, err := os.Pipe()
		if err != nil {
			return err
		}
		readers[i], writers[i] = rf, wf
	}
	defer func() {
		for i := range readers {
			readers[i].Close()
			writers[i].Close()
		}
	}()

	latencies := make([]time.Duration, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			start := time.Now()
			fds := []conet.PollFD{{Fd: int(readers[i].Fd()), Events: conet.EventRead}}
			if _, err := r.Poll(fds, 10*time.Second); err == nil {
				latencies[i] = time.Since(start)
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	start := time.Now()
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			_, err := writers[i].Write([]byte{1})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	wg.Wait()
	fanoutElapsed := time.Since(start)

	var total time.Duration
	for _, l := range latencies {
		total += l
	}
	fmt.Fprintf(cmd.OutOrStdout(), "n=%d fanout_write_elapsed=%s avg_wakeup_latency=%s\n",
		n, fanoutElapsed, total/time.Duration(n))
	return nil
}

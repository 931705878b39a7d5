package conet

import "github.com/sirupsen/logrus"

// defaultLogger is package-wide so a caller that never touches logging
// still gets the "kernel error: logged, not retried" behavior of spec §7;
// SetLogger lets a host application redirect it into its own logrus tree,
// the idiom tomponline-lxd and walteh-gvisor both use for library-level
// logging (a package-level *logrus.Logger swapped in by the embedder
// rather than a process-global logrus.SetOutput).
var defaultLogger = logrus.New()

// SetLogger replaces the logger used for reactor diagnostics.
func SetLogger(l *logrus.Logger) {
	if l != nil {
		defaultLogger = l
	}
}

func logKernelError(op string, fd int, mask Events, err error) {
	defaultLogger.WithFields(logrus.Fields{
		"syscall": op,
		"fd":      fd,
		"mask":    uint32(mask),
	}).WithError(err).Warn("conet: kernel readiness syscall failed")
}

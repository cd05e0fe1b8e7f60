// Package diag provides the single diagnostic sink shared by the vm and
// assembler packages and the two CLI front ends. Every error and trace
// line produced while assembling or running a program passes through
// here instead of a stray fmt.Println, so the two binaries behave
// consistently whether a human or another tool is reading stderr.
package diag

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Sink is a thin handle around a *logrus.Logger. It exists so callers
// depend on this package's narrow surface rather than logrus directly.
type Sink struct {
	log *logrus.Logger
}

// New builds a Sink writing text-formatted lines to w at the given level.
// A nil w defaults to os.Stderr's behavior inherited from logrus itself.
func New(w io.Writer, verbose bool) *Sink {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if w != nil {
		l.SetOutput(w)
	}
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	}
	return &Sink{log: l}
}

// Logger exposes the underlying logrus logger for packages that need to
// pass it down (vm.WithLogger, assembler.WithLogger).
func (s *Sink) Logger() *logrus.Logger {
	return s.log
}

// Error reports a fatal error (kind plus PC/line context already baked
// into err's message by the caller) and nothing else. The producing
// component stops right after this call.
func (s *Sink) Error(err error) {
	s.log.WithError(err).Error("halted")
}

// Tracef logs a single fetch-decode-execute or assembly step at debug
// level; callers gate this behind --trace/--verbose so it costs nothing
// when disabled.
func (s *Sink) Tracef(format string, args ...any) {
	s.log.Debugf(format, args...)
}

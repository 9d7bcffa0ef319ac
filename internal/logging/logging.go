// Package logging is a thin verbose-gated wrapper over the standard
// log package, matching the "self.log(msg) if self.verbose" pattern
// original_source's every stage class carries, and the plain
// log.Printf/log.Fatalf idiom used throughout cmd/chatimport and
// cmd/browse.
package logging

import (
	"fmt"
	"log"
	"os"
)

// Logger gates Debugf output behind a verbose flag while always
// surfacing Warnf/Errorf, mirroring spec.md §7's "verbose mode prints
// per-strategy match counts" requirement without a full leveled
// logging library (see DESIGN.md for why no ecosystem logger is used).
type Logger struct {
	prefix  string
	verbose bool
	out     *log.Logger
}

// New creates a Logger with the given tag prefix (e.g. "[resolver]"),
// matching original_source's per-stage bracketed tags.
func New(prefix string, verbose bool) *Logger {
	return &Logger{
		prefix:  prefix,
		verbose: verbose,
		out:     log.New(os.Stderr, "", log.LstdFlags),
	}
}

// Debugf logs only when verbose mode is enabled.
func (l *Logger) Debugf(format string, args ...any) {
	if !l.verbose {
		return
	}
	l.out.Printf("%s %s", l.prefix, fmt.Sprintf(format, args...))
}

// Warnf always logs, tagged as a warning.
func (l *Logger) Warnf(format string, args ...any) {
	l.out.Printf("%s WARN %s", l.prefix, fmt.Sprintf(format, args...))
}

// Errorf always logs, tagged as an error.
func (l *Logger) Errorf(format string, args ...any) {
	l.out.Printf("%s ERROR %s", l.prefix, fmt.Sprintf(format, args...))
}

// Verbose reports whether this logger is in verbose mode.
func (l *Logger) Verbose() bool { return l.verbose }

// Package logger is a small leveled logging facade over the standard log
// package. One process-wide verbosity knob gates the output; call sites
// never check levels themselves.
//
// Verbosity levels, in increasing order:
//
//	Error < Info < Debug < Trace
//
// The default level is Info. main raises it from configuration or the -v
// flag before any work starts.
package logger

import (
	"log"
	"os"
)

// Level is a logging verbosity level. Higher values log more.
type Level int

const (
	Error Level = iota // critical failures only
	Info               // high-level progress: runs, fetches, summaries
	Debug              // per-expiry and per-request diagnostics
	Trace              // row-level detail, very chatty
)

var current Level = Info

func init() {
	// Logs go to stderr so the results table on stdout stays pipeable.
	log.SetOutput(os.Stderr)
	log.SetFlags(log.LstdFlags)
}

// SetVerbosity raises the level above the Info default: 1 enables Debug,
// 2 enables Trace. Called once at startup.
func SetVerbosity(v int) {
	current = Info + Level(v)
}

func logf(l Level, prefix, format string, args ...any) {
	if current >= l {
		log.Printf(prefix+format, args...)
	}
}

// Fatalf logs a failure and exits the process. Not gated by verbosity.
func Fatalf(format string, args ...any) {
	log.Fatalf("[FATAL] "+format, args...)
}

// Errorf logs a failure that requires attention.
func Errorf(format string, args ...any) {
	logf(Error, "[ERROR] ", format, args...)
}

// Infof logs a major lifecycle event.
func Infof(format string, args ...any) {
	logf(Info, "[INFO]  ", format, args...)
}

// Debugf logs diagnostic detail.
func Debugf(format string, args ...any) {
	logf(Debug, "[DEBUG] ", format, args...)
}

// Tracef logs fine-grained execution detail.
func Tracef(format string, args ...any) {
	logf(Trace, "[TRACE] ", format, args...)
}

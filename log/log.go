// Package log holds the shared loggers used across the module.
package log

import (
	"log"
	"os"
)

// Logging levels accepted by LogMessage.
const (
	DEBUG = "DEBUG"
	INFO  = "INFO"
	WARN  = "WARN"
	ERROR = "ERROR"
)

var Stdlog, Errlog *log.Logger

var debug bool

func init() {
	Stdlog = log.New(os.Stdout, "switch2usb: ", log.Ldate|log.Ltime)
	Errlog = log.New(os.Stderr, "switch2usb: ", log.Ldate|log.Ltime)
}

// SetDebug toggles DEBUG-level output. Off by default.
func SetDebug(enable bool) {
	debug = enable
}

// LogMessage writes a level-tagged line to the shared loggers. DEBUG lines
// are dropped unless SetDebug(true) was called; ERROR lines go to stderr.
func LogMessage(level, format string, args ...any) {
	if level == DEBUG && !debug {
		return
	}
	logger := Stdlog
	if level == ERROR {
		logger = Errlog
	}
	logger.Printf("["+level+"] "+format, args...)
}

// Package logging provides component-prefixed log helpers over the
// standard library's log package, matching the plain log.Printf style
// used throughout the agent framework this core descends from.
package logging

import "log"

// Logger prefixes every line with a component name and gates Debug
// output behind a process-wide flag.
type Logger struct {
	component string
	debug     bool
}

// New returns a Logger for the named component.
func New(component string, debug bool) *Logger {
	return &Logger{component: component, debug: debug}
}

func (l *Logger) Info(format string, args ...interface{}) {
	log.Printf(l.component+": "+format, args...)
}

func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	log.Printf(l.component+" [DEBUG]: "+format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	log.Printf(l.component+" [ERROR]: "+format, args...)
}

// SetDebug toggles debug-level output at runtime.
func (l *Logger) SetDebug(debug bool) {
	l.debug = debug
}

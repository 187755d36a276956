package provisioning

import (
	"log"
)

// Observer receives progress and warning lines from stages. Warnings are
// the soft, non-fatal conditions (missing optional artifact class, a
// warn-classified probe); they are reported but never abort the run.
type Observer interface {
	Printf(format string, v ...interface{})
	Warnf(format string, v ...interface{})
}

// ConsoleObserver implements Observer using the standard log package.
type ConsoleObserver struct{}

// NewConsoleObserver creates a new console-based observer.
func NewConsoleObserver() *ConsoleObserver {
	return &ConsoleObserver{}
}

// Printf logs a progress line.
func (o *ConsoleObserver) Printf(format string, v ...interface{}) {
	log.Printf(format, v...)
}

// Warnf logs a warning line.
func (o *ConsoleObserver) Warnf(format string, v ...interface{}) {
	log.Printf("Warning: "+format, v...)
}

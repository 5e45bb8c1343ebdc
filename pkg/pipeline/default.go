package pipeline

import (
	"sync"

	"github.com/DeBrosOfficial/logfan/pkg/logging"
	"github.com/DeBrosOfficial/logfan/pkg/sinks/console"
)

var (
	defaultMu     sync.RWMutex
	defaultLogger *logging.MultiLogger
)

// Default returns the process-wide logger. Until SetDefault is called
// it is a console-only logger with a debug floor, so early startup
// code is never mute.
func Default() *logging.MultiLogger {
	defaultMu.RLock()
	l := defaultLogger
	defaultMu.RUnlock()
	if l != nil {
		return l
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = bootstrapLogger()
	}
	return defaultLogger
}

// SetDefault replaces the process-wide logger and returns the previous
// one so the caller can close it.
func SetDefault(l *logging.MultiLogger) *logging.MultiLogger {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	prev := defaultLogger
	defaultLogger = l
	return prev
}

func bootstrapLogger() *logging.MultiLogger {
	l := logging.New(logging.Options{MinLevel: logging.LevelDebug})
	l.AddSink(console.New(console.Options{}))
	return l
}

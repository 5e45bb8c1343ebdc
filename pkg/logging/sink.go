package logging

import "context"

// Sink receives completed log entries. Implementations must be safe for
// concurrent use; a Write that returns an error or panics is isolated
// by the logger and never reaches other sinks or the caller.
type Sink interface {
	Write(ctx context.Context, e Entry) error
}

// Flusher is implemented by sinks that buffer entries and can force
// them out on demand.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Closer is implemented by sinks holding resources that need orderly
// teardown. Close implies a final flush.
type Closer interface {
	Close(ctx context.Context) error
}

// Named lets a sink report a stable name for failure counters and
// diagnostics. Sinks without a name are keyed by their Go type.
type Named interface {
	Name() string
}

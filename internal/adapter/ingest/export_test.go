package ingest

import "time"

// WithClock sets the clock used to timestamp access records.
func WithClock(now func() time.Time) Options {
	return func(o *options) {
		o.now = now
	}
}

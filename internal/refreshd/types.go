// Package refreshd is the refresh daemon: it drains the shared Redis
// refresh queue and drives the fetcher through a worker pool, with
// in-process retry backoff for transient provider failures.
package refreshd

import "time"

// Entry is one refresh task in the daemon's internal queue.
type Entry struct {
	RequestURL     string
	RetryCount     int
	QueuedAt       time.Time
	LastAttempt    time.Time
	NextRetryAfter time.Time
}

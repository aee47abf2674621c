// Package store loads external provider records from a configuration
// backend: a watched YAML file or a MySQL database. The registry keeps
// itself in sync through the Watch callbacks.
package store

import "context"

// Store lists the active external provider records.
type Store interface {
	List(ctx context.Context) ([]Record, error)
}

// UpsertFunc is called with a record that appeared or changed.
type UpsertFunc func(Record)

// RemoveFunc is called with the name of a record that disappeared or
// was deactivated.
type RemoveFunc func(name string)

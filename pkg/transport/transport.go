// Package transport is the narrow boundary to the remote snapshot store. The
// evaluator and planner never touch it; only listing and deletion cross it.
package transport

import (
	"context"
	"errors"
)

// ErrSnapshotNotFound reports a delete against a snapshot that is already
// absent. Callers treat it as success so repeated and concurrent prune runs
// converge instead of failing each other.
var ErrSnapshotNotFound = errors.New("transport: snapshot not found")

// Transport lists and deletes snapshots on a remote host. Implementations own
// connection handling and authentication; both calls must honor ctx.
type Transport interface {
	// List returns the raw listing lines for one dataset on host.
	List(ctx context.Context, host, dataset string) ([]string, error)

	// Delete destroys one snapshot. It returns ErrSnapshotNotFound when the
	// snapshot is already gone.
	Delete(ctx context.Context, host, dataset, name string) error
}

// IsNotFound reports whether err means the snapshot was already absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSnapshotNotFound)
}

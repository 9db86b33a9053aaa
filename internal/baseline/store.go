package baseline

import (
	"context"
	"errors"
	"time"
)

// ErrNoActiveBaseline is returned by [Store.Active] when the user has no
// active baseline.
var ErrNoActiveBaseline = errors.New("baseline: no active baseline")

// Store is the persistence collaborator for baselines. Implementations:
// [MemStore] for tests and single-node deployments, the postgres subpackage
// for durable storage.
type Store interface {
	// Active returns the user's active baseline, or [ErrNoActiveBaseline].
	Active(ctx context.Context, userID string) (Baseline, error)

	// Install makes b the user's active baseline. If another baseline is
	// active for the user, it is archived with archivedAt/replacedBy
	// bookkeeping in the same operation. Install is atomic: concurrent
	// readers observe either the old active baseline or the new one, never
	// zero or two active baselines.
	Install(ctx context.Context, b Baseline, archivedAt time.Time) error

	// History returns the user's archived baselines, most recent first.
	History(ctx context.Context, userID string) ([]Archived, error)
}

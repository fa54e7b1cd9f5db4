// Package memory is the in-memory backend. It backs tests and small
// deployments. Each entity family gets its own store behind an RWMutex:
// readers proceed concurrently, writers are mutually exclusive.
package memory

import (
	"context"
	"sync"

	"smpserver/internal/smp/store"
	"smpserver/pkg/platform/tx"
)

// NewBackend constructs a fresh in-memory backend. The transaction runner
// serializes multi-store mutations behind one mutex so that e.g. two
// concurrent creates for the same participant cannot interleave between
// their existence check and their write.
func NewBackend() *store.Backend {
	var wtx sync.Mutex
	return &store.Backend{
		ServiceGroups:      NewServiceGroupStore(),
		ServiceInformation: NewServiceInformationStore(),
		Redirects:          NewRedirectStore(),
		BusinessCards:      NewBusinessCardStore(),
		Migrations:         NewMigrationStore(),
		Ownership:          NewOwnershipStore(),
		Tx: tx.FuncRunner(func(ctx context.Context, fn func(ctx context.Context) error) error {
			wtx.Lock()
			defer wtx.Unlock()
			return fn(ctx)
		}),
	}
}

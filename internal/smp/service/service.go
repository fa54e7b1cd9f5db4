// Package service implements the manager contracts of the registry. Services
// depend only on the store interfaces and are constructed once at startup
// with the selected backend; there is no ambient global registry state.
package service

import (
	"context"
	"errors"
	"sync"

	"smpserver/internal/smp/store"
	dErrors "smpserver/pkg/domain-errors"
	"smpserver/pkg/identifier"
	"smpserver/pkg/platform/sentinel"
)

// Caller is the already-authenticated identity a mutating call runs as. The
// core never authenticates; it only enforces ownership. Admin callers bypass
// ownership checks.
type Caller struct {
	ID    string
	Admin bool
}

// Locks serializes mutations per entity key. Two concurrent creates for the
// same participant must not both succeed, and a locator call plus its local
// persistence must never interleave with another operation on the same
// participant. One instance is shared by all services so registrations that
// exclude each other, such as service information and redirects for the same
// document type, contend on the same key.
type Locks struct {
	mus sync.Map
}

func NewLocks() *Locks {
	return &Locks{}
}

// Lock acquires the mutex for key and returns its unlock function.
func (k *Locks) Lock(key string) func() {
	v, _ := k.mus.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// registrationKey is the lock key of one (participant, document type)
// registration, shared by service information and redirect writes.
func registrationKey(participant identifier.ParticipantIdentifier, docType identifier.DocumentTypeIdentifier) string {
	return participant.String() + "/" + docType.String()
}

// requireOwner checks that the caller owns the service group, or is admin.
func requireOwner(ctx context.Context, ownership store.OwnershipStore, caller Caller, participant identifier.ParticipantIdentifier) error {
	if caller.Admin {
		return nil
	}
	if caller.ID == "" {
		return dErrors.New(dErrors.CodeForbidden, "caller identity is required")
	}
	owns, err := ownership.IsOwner(ctx, caller.ID, participant)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "ownership lookup failed")
	}
	if !owns {
		return dErrors.Newf(dErrors.CodeForbidden,
			"caller %q does not own service group %s", caller.ID, participant)
	}
	return nil
}

// requireServiceGroup resolves the service group or fails with CodeNotFound.
func requireServiceGroup(ctx context.Context, groups store.ServiceGroupStore, participant identifier.ParticipantIdentifier) error {
	if _, err := groups.Find(ctx, participant); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Newf(dErrors.CodeNotFound, "service group %s does not exist", participant)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "service group lookup failed")
	}
	return nil
}

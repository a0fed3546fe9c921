package coordinator

import (
	"context"

	"emberhold.gg/internal/profile"
)

// Repository is the durable store the coordinator loads from and saves to.
// FindByID returns profile.ErrNotFound when no record exists. Save and
// FindByID honor their context deadline; SaveSync blocks until the write is
// durable and is used for first-create and shutdown drains.
type Repository interface {
	FindByID(ctx context.Context, id string) (*profile.Record, error)
	Save(ctx context.Context, rec *profile.Record) (*profile.Record, error)
	SaveSync(rec *profile.Record) (*profile.Record, error)
	IsInitialized() bool
}

// Executor runs a closure on the host's serialized execution context.
// Downstream-system initialization is marshaled through it so it cannot
// race host-delivered events.
type Executor interface {
	Do(fn func())
}

type inlineExecutor struct{}

func (inlineExecutor) Do(fn func()) { fn() }

// Initializer is a downstream system hook run on the host executor after a
// profile loads, before listeners are notified.
type Initializer func(*profile.Profile)

package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"emberhold.gg/internal/profile"
)

const (
	loadPending int32 = iota
	loadDone
	loadTimedOut
	loadCancelled
	loadFailed
)

// LoadContext tracks one in-flight fetch-or-create attempt. Exactly one
// party transitions it out of pending (the worker, the timeout sweep, or a
// cancel); the winner owns the bookkeeping and closes the result channel.
type LoadContext struct {
	AttemptID string
	SubjectID string
	Name      string
	StartedAt time.Time

	state  atomic.Int32
	result chan *profile.Profile
	ctx    context.Context
	cancel context.CancelFunc
}

func newLoadContext(subjectID, name string) *LoadContext {
	ctx, cancel := context.WithCancel(context.Background())
	return &LoadContext{
		AttemptID: uuid.NewString(),
		SubjectID: subjectID,
		Name:      name,
		StartedAt: time.Now(),
		result:    make(chan *profile.Profile, 1),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Result yields the loaded profile, or nil after failure, timeout, or
// cancellation. The channel is closed exactly once.
func (lc *LoadContext) Result() <-chan *profile.Profile { return lc.result }

func (lc *LoadContext) Done() bool     { return lc.state.Load() != loadPending }
func (lc *LoadContext) TimedOut() bool { return lc.state.Load() == loadTimedOut }

func (lc *LoadContext) transition(to int32) bool {
	return lc.state.CompareAndSwap(loadPending, to)
}

// BeginLoad starts the fetch-or-create pipeline for a connecting player.
// Duplicate attempts are rejected, not queued.
func (c *Coordinator) BeginLoad(subjectID, displayName string) (*LoadContext, error) {
	if c.IsShuttingDown() {
		return nil, ErrShuttingDown
	}
	if _, ok := c.profiles.Load(subjectID); ok {
		c.log.Warn("load rejected: already cached", zap.String("id", subjectID))
		return nil, ErrAlreadyLoaded
	}
	lc := newLoadContext(subjectID, displayName)
	if _, raced := c.loads.LoadOrStore(subjectID, lc); raced {
		lc.cancel()
		c.log.Warn("load rejected: already in flight", zap.String("id", subjectID))
		return nil, ErrDuplicateLoad
	}

	c.ioWG.Add(1)
	go c.runLoad(lc)
	return lc, nil
}

func (c *Coordinator) runLoad(lc *LoadContext) {
	defer c.ioWG.Done()

	// Stage 1: admission. A saturated pool surfaces as a timeout before any
	// repository work is dispatched.
	permitCtx, cancelPermit := context.WithTimeout(lc.ctx, c.cfg.PermitWait)
	err := c.loadPermits.Acquire(permitCtx, 1)
	cancelPermit()
	if err != nil {
		c.finishLoadFailure(lc, ErrLoadTimeout)
		return
	}
	c.loadPermitsFree.Add(-1)
	defer func() {
		c.loadPermits.Release(1)
		c.loadPermitsFree.Add(1)
	}()

	// Stage 2: fetch or create.
	ioCtx, cancelIO := context.WithTimeout(lc.ctx, c.cfg.LoadTimeout)
	defer cancelIO()
	rec, err := c.repo.FindByID(ioCtx, lc.SubjectID)
	switch {
	case errors.Is(err, profile.ErrNotFound):
		// First connection: the record must exist durably before the cache
		// ever exposes it.
		rec, err = c.repo.SaveSync(profile.NewRecord(lc.SubjectID, lc.Name))
		if err != nil {
			c.finishLoadFailure(lc, fmt.Errorf("%w: create: %v", ErrLoadFailure, err))
			return
		}
	case errors.Is(err, context.DeadlineExceeded):
		c.finishLoadFailure(lc, ErrLoadTimeout)
		return
	case err != nil:
		c.finishLoadFailure(lc, fmt.Errorf("%w: %v", ErrLoadFailure, err))
		return
	}

	if err := profile.Validate(rec); err != nil {
		c.finishLoadFailure(lc, fmt.Errorf("%w: %v", ErrValidation, err))
		return
	}
	p, err := profile.FromRecord(rec)
	if err != nil {
		c.finishLoadFailure(lc, fmt.Errorf("%w: %v", ErrValidation, err))
		return
	}

	// Stage 3: downstream initialization and registration run on the host's
	// serialized context so they cannot race host-delivered events.
	c.host.Do(func() {
		if !lc.transition(loadDone) {
			// Timed out or cancelled while the repository call was in
			// flight; the result is discarded on arrival.
			return
		}
		lc.cancel()
		for _, init := range c.inits {
			init(p)
		}
		c.register(p)
		c.loads.Delete(lc.SubjectID)
		c.loadsOK.Add(1)
		lc.result <- p
		close(lc.result)
		c.bus.notifyLoaded(p)
		c.log.Info("profile loaded",
			zap.String("id", p.ID),
			zap.String("name", p.Name),
			zap.Duration("took", time.Since(lc.StartedAt)))
	})
}

// finishLoadFailure settles a pending context on the failure path. Loses
// quietly if the sweep or a cancel got there first.
func (c *Coordinator) finishLoadFailure(lc *LoadContext, err error) {
	to := loadFailed
	if errors.Is(err, ErrLoadTimeout) {
		to = loadTimedOut
	}
	if !lc.transition(to) {
		return
	}
	lc.cancel()
	c.loads.Delete(lc.SubjectID)
	close(lc.result)
	c.loadsFailed.Add(1)
	if to == loadTimedOut {
		c.bus.notifyLoadTimedOut(lc.SubjectID)
	} else {
		c.bus.notifyLoadFailed(lc.SubjectID, err)
	}
	c.log.Warn("profile load failed",
		zap.String("id", lc.SubjectID),
		zap.Duration("age", time.Since(lc.StartedAt)),
		zap.Error(err))
}

// cancelLoad abandons an in-flight attempt when its session ends first.
// Dispatched repository work may still complete; its result is discarded.
func (c *Coordinator) cancelLoad(id string) {
	v, ok := c.loads.Load(id)
	if !ok {
		return
	}
	lc := v.(*LoadContext)
	if !lc.transition(loadCancelled) {
		return
	}
	lc.cancel()
	c.loads.Delete(id)
	close(lc.result)
	c.log.Info("load cancelled", zap.String("id", id))
}

func (c *Coordinator) activeLoads() int {
	n := 0
	c.loads.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}

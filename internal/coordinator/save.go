package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"emberhold.gg/internal/profile"
)

// snapshot copies the live state into the record under the profile's
// exclusive lock and returns the immutable clone the saver persists. The
// lock is held only for the copy, never across repository I/O.
func (c *Coordinator) snapshot(p *profile.Profile) (*profile.Record, error) {
	mu := c.locks.get(p.ID)
	mu.Lock()
	rec, err := p.Snapshot()
	mu.Unlock()
	return rec, err
}

// Save runs one snapshot+persist cycle for a profile. Urgent saves
// (disconnect, kick) get a longer permit wait and I/O deadline. The caller
// decides what a failure means: periodic saves retry next cycle, disconnect
// saves log and proceed with cleanup.
func (c *Coordinator) Save(p *profile.Profile, urgent bool) error {
	if p == nil {
		return nil
	}
	wait, ioTimeout := c.cfg.PermitWait, c.cfg.SaveTimeout
	if urgent {
		wait, ioTimeout = c.cfg.UrgentPermitWait, c.cfg.UrgentSaveTimeout
	}

	permitCtx, cancelPermit := context.WithTimeout(context.Background(), wait)
	err := c.savePermits.Acquire(permitCtx, 1)
	cancelPermit()
	if err != nil {
		return c.failSave(p.ID, ErrSaveTimeout)
	}
	c.savePermitsFree.Add(-1)
	defer func() {
		c.savePermits.Release(1)
		c.savePermitsFree.Add(1)
	}()

	rec, err := c.snapshot(p)
	if err != nil {
		return c.failSave(p.ID, fmt.Errorf("%w: snapshot: %v", ErrSaveFailure, err))
	}

	ioCtx, cancelIO := context.WithTimeout(context.Background(), ioTimeout)
	defer cancelIO()
	if _, err := c.repo.Save(ioCtx, rec); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return c.failSave(p.ID, ErrSaveTimeout)
		}
		return c.failSave(p.ID, fmt.Errorf("%w: %v", ErrSaveFailure, err))
	}

	c.savesOK.Add(1)
	c.bus.notifySaved(rec)
	return nil
}

func (c *Coordinator) failSave(id string, err error) error {
	c.savesFailed.Add(1)
	c.bus.notifySaveFailed(id, err)
	c.log.Warn("profile save failed", zap.String("id", id), zap.Error(err))
	return err
}

// SaveAsync exposes the fire-and-forget save used by game commands. The
// returned channel yields the outcome once and is then closed.
func (c *Coordinator) SaveAsync(p *profile.Profile) <-chan bool {
	out := make(chan bool, 1)
	if p == nil || c.IsShuttingDown() {
		out <- false
		close(out)
		return out
	}
	c.ioWG.Add(1)
	go func() {
		defer c.ioWG.Done()
		out <- c.Save(p, false) == nil
		close(out)
	}()
	return out
}

// SaveAll fans out saves for every cached profile and aggregates outcomes.
// One profile's failure never blocks the others.
func (c *Coordinator) SaveAll() (ok, failed int) {
	return c.saveMany(c.AllProfiles())
}

func (c *Coordinator) saveMany(profiles []*profile.Profile) (ok, failed int) {
	var okN, failN atomic.Int64
	var g errgroup.Group
	g.SetLimit(int(c.cfg.MaxConcurrentSaves))
	for _, p := range profiles {
		p := p
		g.Go(func() error {
			if c.Save(p, false) == nil {
				okN.Add(1)
			} else {
				failN.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(okN.Load()), int(failN.Load())
}

// saveCycle is the periodic autosave tick. It walks the cache in id order,
// at most ProfilesPerCycle profiles per tick, resuming where the previous
// cycle left off so every profile is eventually covered.
func (c *Coordinator) saveCycle() {
	all := c.AllProfiles()
	if len(all) == 0 {
		return
	}
	n := c.cfg.ProfilesPerCycle
	if n > len(all) {
		n = len(all)
	}
	if c.saveCursor >= len(all) {
		c.saveCursor = 0
	}
	batch := make([]*profile.Profile, 0, n)
	for i := 0; i < n; i++ {
		batch = append(batch, all[(c.saveCursor+i)%len(all)])
	}
	c.saveCursor = (c.saveCursor + n) % len(all)

	start := time.Now()
	ok, failed := c.saveMany(batch)
	if failed > 0 {
		c.log.Warn("autosave cycle finished with failures",
			zap.Int("ok", ok), zap.Int("failed", failed),
			zap.Duration("took", time.Since(start)))
		return
	}
	c.log.Debug("autosave cycle finished",
		zap.Int("ok", ok), zap.Duration("took", time.Since(start)))
}

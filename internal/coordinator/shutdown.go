package coordinator

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Shutdown drives Running -> Draining -> Stopped. New admissions are
// rejected as soon as draining begins; every cached profile gets a
// best-effort synchronous save under an aggregate budget; workers get a
// grace period; then all maps are cleared. Stopped is terminal — a second
// call returns immediately.
func (c *Coordinator) Shutdown() {
	if !c.state.CompareAndSwap(stateRunning, stateDraining) {
		return
	}
	c.shuttingDown.Store(true)
	c.healthy.Store(false)
	c.log.Info("coordinator draining")

	c.tasks.Stop()

	// Best-effort cancel of every in-flight load; dispatched repository
	// work finishes in the background and is discarded.
	var pending []string
	c.loads.Range(func(k, _ any) bool {
		pending = append(pending, k.(string))
		return true
	})
	for _, id := range pending {
		c.cancelLoad(id)
	}

	c.drainSaves()

	done := make(chan struct{})
	go func() {
		c.ioWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(c.cfg.ShutdownGrace):
		c.log.Warn("workers did not drain within grace period",
			zap.Duration("grace", c.cfg.ShutdownGrace))
	}

	c.clearMaps()
	c.state.Store(stateStopped)
	c.log.Info("coordinator stopped", zap.Any("stats", c.Stats()))
}

// drainSaves force-saves every cached profile synchronously, bounded by the
// aggregate ShutdownSaveBudget. Overrunning the budget is logged, never
// fatal: durability at shutdown is best-effort beyond the deadline.
func (c *Coordinator) drainSaves() {
	all := c.AllProfiles()
	if len(all) == 0 {
		return
	}
	start := time.Now()
	deadline := start.Add(c.cfg.ShutdownSaveBudget)

	var saved, failed int
	var wg sync.WaitGroup
	results := make(chan error, len(all))
	budget := time.After(c.cfg.ShutdownSaveBudget)

	for _, p := range all {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := c.snapshot(p)
			if err == nil {
				_, err = c.repo.SaveSync(rec)
			}
			results <- err
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	remaining := len(all)
drain:
	for remaining > 0 {
		select {
		case err, open := <-results:
			if !open {
				break drain
			}
			remaining--
			if err != nil {
				failed++
				c.savesFailed.Add(1)
				c.log.Warn("shutdown save failed", zap.Error(err))
			} else {
				saved++
				c.savesOK.Add(1)
			}
		case <-budget:
			c.log.Warn("shutdown save budget exceeded",
				zap.Int("unsaved", remaining),
				zap.Time("deadline", deadline))
			break drain
		}
	}
	c.log.Info("shutdown drain complete",
		zap.Int("saved", saved),
		zap.Int("failed", failed),
		zap.Duration("took", time.Since(start)))
}

func (c *Coordinator) clearMaps() {
	clearSyncMap(&c.profiles)
	clearSyncMap(&c.nameIndex)
	clearSyncMap(&c.loads)
	c.locks.clear()
}

func clearSyncMap(m *sync.Map) {
	m.Range(func(k, _ any) bool {
		m.Delete(k)
		return true
	})
}

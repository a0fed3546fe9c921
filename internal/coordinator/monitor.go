package coordinator

import (
	"time"

	"go.uber.org/zap"
)

// sweepTimeouts scans in-flight loads and settles any pending context past
// its deadline. Idempotent: a context that completed before the sweep
// observed it is left untouched, and each context is settled exactly once
// because only one party wins the pending transition.
func (c *Coordinator) sweepTimeouts(now time.Time) int {
	swept := 0
	c.loads.Range(func(_, v any) bool {
		lc := v.(*LoadContext)
		if lc.Done() || now.Sub(lc.StartedAt) < c.cfg.LoadTimeout {
			return true
		}
		if !lc.transition(loadTimedOut) {
			return true
		}
		lc.cancel()
		c.loads.Delete(lc.SubjectID)
		close(lc.result)
		c.loadsFailed.Add(1)
		c.bus.notifyLoadTimedOut(lc.SubjectID)
		c.log.Warn("load timed out",
			zap.String("id", lc.SubjectID),
			zap.Duration("age", now.Sub(lc.StartedAt)))
		swept++
		return true
	})
	return swept
}

// updateHealth recomputes the single healthy/unhealthy gate: repository
// readiness, permit saturation, and average in-flight load age. Unhealthy
// only blocks new admissions; existing sessions keep operating.
func (c *Coordinator) updateHealth() {
	healthy := true
	var reason string

	if !c.repo.IsInitialized() {
		healthy, reason = false, ErrRepositoryUnavailable.Error()
	}
	if healthy && c.loadPermitsFree.Load() == 0 {
		healthy, reason = false, "load permits exhausted"
	}
	if healthy && c.savePermitsFree.Load() == 0 {
		healthy, reason = false, "save permits exhausted"
	}
	if healthy {
		if avg := c.avgInflightLoadAge(time.Now()); avg > c.cfg.SlowLoadThreshold {
			healthy, reason = false, "loads running slow"
		}
	}

	was := c.healthy.Swap(healthy)
	if was && !healthy {
		c.log.Warn("coordinator unhealthy", zap.String("reason", reason))
	} else if !was && healthy {
		c.log.Info("coordinator healthy again")
	}
}

func (c *Coordinator) avgInflightLoadAge(now time.Time) time.Duration {
	var total time.Duration
	n := 0
	c.loads.Range(func(_, v any) bool {
		lc := v.(*LoadContext)
		if !lc.Done() {
			total += now.Sub(lc.StartedAt)
			n++
		}
		return true
	})
	if n == 0 {
		return 0
	}
	return total / time.Duration(n)
}

package coordinator

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"

	"emberhold.gg/internal/profile"
)

func TestShutdownDrainsEveryProfile(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	repo := newFakeRepo()
	c := newTestCoordinator(t, repo, nil)
	c.Start()

	ids := []string{"p1", "p2", "p3"}
	for _, id := range ids {
		p := mustLoad(t, c, id, "bot-"+id)
		mu := c.locks.get(id)
		mu.Lock()
		p.State.Inventory["coin"] = 9
		mu.Unlock()
	}

	c.Shutdown()

	for _, id := range ids {
		rec := repo.get(id)
		if rec == nil {
			t.Fatalf("%s not persisted at shutdown", id)
		}
		var inv profile.InventoryDoc
		if err := json.Unmarshal(rec.Inventory, &inv); err != nil {
			t.Fatalf("decode inventory for %s: %v", id, err)
		}
		if inv.Items["coin"] != 9 {
			t.Fatalf("drain lost %s's session state: %+v", id, inv.Items)
		}
	}
	if s := c.Stats(); s.SavesOK != 3 {
		t.Fatalf("expected 3 drained saves, got %+v", s)
	}
}

func TestShutdownClearsAllMaps(t *testing.T) {
	repo := newFakeRepo()
	c := newTestCoordinator(t, repo, nil)

	mustLoad(t, c, "p1", "Alice")
	c.locks.get("p1")

	c.Shutdown()

	if c.GetProfile("p1") != nil {
		t.Fatalf("cache not cleared")
	}
	if c.GetProfileByName("alice") != nil {
		t.Fatalf("name index not cleared")
	}
	if c.locks.len() != 0 {
		t.Fatalf("lock table not cleared, %d entries", c.locks.len())
	}
	if c.activeLoads() != 0 {
		t.Fatalf("load contexts not cleared")
	}
}

func TestShutdownRejectsNewLoads(t *testing.T) {
	repo := newFakeRepo()
	c := newTestCoordinator(t, repo, nil)

	c.Shutdown()
	if _, err := c.BeginLoad("p1", "Alice"); !errors.Is(err, ErrShuttingDown) {
		t.Fatalf("expected ErrShuttingDown, got %v", err)
	}
	if !c.IsShuttingDown() {
		t.Fatalf("shutting-down flag not set")
	}
	if c.IsHealthy() {
		t.Fatalf("draining coordinator must report unhealthy")
	}
}

func TestShutdownCancelsInflightLoads(t *testing.T) {
	repo := newFakeRepo()
	repo.findGate = make(chan struct{})
	defer close(repo.findGate)
	c := newTestCoordinator(t, repo, func(cfg *Config) {
		cfg.LoadTimeout = 10 * time.Second
	})

	lc, err := c.BeginLoad("p1", "Alice")
	if err != nil {
		t.Fatalf("BeginLoad: %v", err)
	}
	waitFor(t, time.Second, func() bool { return repo.findCalls.Load() == 1 },
		"worker reached the repository")

	c.Shutdown()

	select {
	case p, open := <-lc.Result():
		if open && p != nil {
			t.Fatalf("cancelled load delivered a profile")
		}
	case <-time.After(time.Second):
		t.Fatalf("result channel not closed by shutdown")
	}
}

func TestShutdownIsTerminal(t *testing.T) {
	repo := newFakeRepo()
	c := newTestCoordinator(t, repo, nil)

	mustLoad(t, c, "p1", "Alice")
	c.Shutdown()
	before := c.Stats()

	// Stopped is terminal: a second call must not re-drain or touch counters.
	c.Shutdown()
	if after := c.Stats(); after != before {
		t.Fatalf("second Shutdown changed stats: %+v -> %+v", before, after)
	}
}

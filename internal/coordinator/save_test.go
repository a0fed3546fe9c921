package coordinator

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"emberhold.gg/internal/profile"
)

func TestSavePersistsLiveState(t *testing.T) {
	repo := newFakeRepo()
	c := newTestCoordinator(t, repo, nil)

	p := mustLoad(t, c, "p1", "Alice")
	mu := c.locks.get("p1")
	mu.Lock()
	p.State.Inventory["bread"] = 3
	p.State.HP = 7
	mu.Unlock()

	if err := c.Save(p, false); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rec := repo.get("p1")
	var inv profile.InventoryDoc
	if err := json.Unmarshal(rec.Inventory, &inv); err != nil {
		t.Fatalf("decode inventory: %v", err)
	}
	if inv.Items["bread"] != 3 {
		t.Fatalf("inventory not persisted: %+v", inv.Items)
	}
	var st profile.StatsDoc
	if err := json.Unmarshal(rec.Stats, &st); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if st.HP != 7 {
		t.Fatalf("stats not persisted: %+v", st)
	}
}

func TestSaveIdempotentWithoutChanges(t *testing.T) {
	repo := newFakeRepo()
	c := newTestCoordinator(t, repo, nil)

	p := mustLoad(t, c, "p1", "Alice")
	if err := c.Save(p, false); err != nil {
		t.Fatalf("first Save: %v", err)
	}
	first := repo.get("p1")
	if err := c.Save(p, false); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	second := repo.get("p1")

	// LastSeenUnix moves on every save, and playtime may accrue a second
	// across the gap; everything else durable must not change.
	second.PlaytimeSecs = first.PlaytimeSecs
	if !first.Equal(second) {
		t.Fatalf("back-to-back saves diverged:\n%+v\n%+v", first, second)
	}
}

// A saved record must never expose a torn multi-field update: the mutator
// holds the profile lock across the paired writes, the snapshot takes the
// same lock, so every persisted image sees both or neither.
func TestSnapshotNeverTearsPairedWrites(t *testing.T) {
	repo := newFakeRepo()
	c := newTestCoordinator(t, repo, nil)

	p := mustLoad(t, c, "p1", "Alice")

	var torn []string
	var mu sync.Mutex
	c.AddSaveListener(saveFunc(func(rec *profile.Record) {
		var inv profile.InventoryDoc
		if err := json.Unmarshal(rec.Inventory, &inv); err != nil {
			return
		}
		if inv.Items["sword"] != inv.Items["shield"] {
			mu.Lock()
			torn = append(torn, rec.ID)
			mu.Unlock()
		}
	}))

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		lk := c.locks.get("p1")
		for {
			select {
			case <-stop:
				return
			default:
			}
			lk.Lock()
			p.State.Inventory["sword"]++
			p.State.Inventory["shield"]++
			lk.Unlock()
		}
	}()

	for i := 0; i < 50; i++ {
		if err := c.Save(p, false); err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
	}
	close(stop)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(torn) > 0 {
		t.Fatalf("observed %d torn snapshots", len(torn))
	}
}

func TestSaveAllAggregatesOutcomes(t *testing.T) {
	repo := newFakeRepo()
	repo.saveErrBy = map[string]error{"p2": errors.New("row locked")}
	c := newTestCoordinator(t, repo, nil)

	mustLoad(t, c, "p1", "Alice")
	mustLoad(t, c, "p2", "Bob")
	mustLoad(t, c, "p3", "Carol")

	ok, failed := c.SaveAll()
	if ok != 2 || failed != 1 {
		t.Fatalf("SaveAll = (%d ok, %d failed), want (2, 1)", ok, failed)
	}
	if s := c.Stats(); s.SavesFailed != 1 {
		t.Fatalf("failure not counted: %+v", s)
	}
}

func TestSavePermitExhaustionTimesOut(t *testing.T) {
	repo := newFakeRepo()
	repo.saveDelay = 300 * time.Millisecond
	c := newTestCoordinator(t, repo, func(cfg *Config) {
		cfg.MaxConcurrentSaves = 1
		cfg.SaveTimeout = time.Second
		cfg.PermitWait = 50 * time.Millisecond
	})
	lis := newRecordingListener()
	c.AddSaveListener(lis)

	p1 := mustLoad(t, c, "p1", "Alice")
	p2 := mustLoad(t, c, "p2", "Bob")

	first := c.SaveAsync(p1)
	waitFor(t, time.Second, func() bool { return c.Stats().SavePermitsFree == 0 },
		"first save holds the permit")

	if err := c.Save(p2, false); !errors.Is(err, ErrSaveTimeout) {
		t.Fatalf("expected ErrSaveTimeout, got %v", err)
	}
	lis.mu.Lock()
	saveErr := lis.saveFails["p2"]
	lis.mu.Unlock()
	if !errors.Is(saveErr, ErrSaveTimeout) {
		t.Fatalf("listener saw %v", saveErr)
	}

	if ok := <-first; !ok {
		t.Fatalf("first save should complete once the delay elapses")
	}
}

func TestRepositorySaveDeadline(t *testing.T) {
	repo := newFakeRepo()
	repo.saveDelay = 300 * time.Millisecond
	c := newTestCoordinator(t, repo, func(cfg *Config) {
		cfg.SaveTimeout = 100 * time.Millisecond
		cfg.UrgentSaveTimeout = time.Second
	})

	p := mustLoad(t, c, "p1", "Alice")
	if err := c.Save(p, false); !errors.Is(err, ErrSaveTimeout) {
		t.Fatalf("routine save should hit its deadline, got %v", err)
	}
	if err := c.Save(p, true); err != nil {
		t.Fatalf("urgent save has the longer deadline: %v", err)
	}
}

func TestSaveCycleCoversEveryProfile(t *testing.T) {
	repo := newFakeRepo()
	c := newTestCoordinator(t, repo, func(cfg *Config) {
		cfg.ProfilesPerCycle = 2
	})
	lis := newRecordingListener()
	c.AddSaveListener(lis)

	ids := []string{"p1", "p2", "p3", "p4", "p5"}
	for _, id := range ids {
		mustLoad(t, c, id, "bot-"+id)
	}

	for i := 0; i < 3; i++ {
		c.saveCycle()
	}

	lis.mu.Lock()
	seen := map[string]bool{}
	for _, id := range lis.saved {
		seen[id] = true
	}
	lis.mu.Unlock()
	for _, id := range ids {
		if !seen[id] {
			t.Fatalf("cursor rotation skipped %s (saved: %v)", id, lis.saved)
		}
	}
}

func TestEndSessionPersistsAndEvicts(t *testing.T) {
	repo := newFakeRepo()
	c := newTestCoordinator(t, repo, nil)

	p := mustLoad(t, c, "p1", "Alice")
	mu := c.locks.get("p1")
	mu.Lock()
	p.State.Inventory["torch"] = 2
	mu.Unlock()

	c.EndSession("p1", false)

	rec := repo.get("p1")
	var inv profile.InventoryDoc
	if err := json.Unmarshal(rec.Inventory, &inv); err != nil {
		t.Fatalf("decode inventory: %v", err)
	}
	if inv.Items["torch"] != 2 {
		t.Fatalf("disconnect save lost the mutation: %+v", inv.Items)
	}
	if c.GetProfile("p1") != nil {
		t.Fatalf("profile still cached after disconnect")
	}
	if c.GetProfileByName("alice") != nil {
		t.Fatalf("name index entry survived disconnect")
	}
	if s := c.Stats(); s.Quits != 1 {
		t.Fatalf("quit not counted: %+v", s)
	}
}

func TestEndSessionFailedSaveStillEvicts(t *testing.T) {
	repo := newFakeRepo()
	c := newTestCoordinator(t, repo, nil)

	mustLoad(t, c, "p1", "Alice")
	repo.saveErrBy = map[string]error{"p1": errors.New("disk full")}

	c.EndSession("p1", true)
	if c.GetProfile("p1") != nil {
		t.Fatalf("eviction must proceed even when the save fails")
	}
	if s := c.Stats(); s.SavesFailed != 1 {
		t.Fatalf("failed disconnect save not counted: %+v", s)
	}
}

func TestSaveAsyncRejectedWhileDraining(t *testing.T) {
	repo := newFakeRepo()
	c := newTestCoordinator(t, repo, nil)

	p := mustLoad(t, c, "p1", "Alice")
	c.Shutdown()
	if ok := <-c.SaveAsync(p); ok {
		t.Fatalf("async save must be rejected after shutdown")
	}
}

// saveFunc adapts a closure into a SaveListener for tests.
type saveFunc func(*profile.Record)

func (f saveFunc) ProfileSaved(rec *profile.Record) { f(rec) }
func (saveFunc) SaveFailed(string, error)           {}

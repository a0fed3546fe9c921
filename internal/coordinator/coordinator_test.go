package coordinator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"emberhold.gg/internal/profile"
)

// fakeRepo is an in-memory Repository with hooks for delays, gates, and
// injected failures.
type fakeRepo struct {
	mu      sync.Mutex
	records map[string]*profile.Record

	findGate  chan struct{} // when non-nil, FindByID blocks until closed
	findDelay time.Duration
	saveDelay time.Duration
	findErr   error
	saveErr   error
	saveErrBy map[string]error

	uninitialized atomic.Bool

	findCalls     atomic.Int64
	saveCalls     atomic.Int64
	saveSyncCalls atomic.Int64

	inflight    atomic.Int64
	maxInflight atomic.Int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: map[string]*profile.Record{}}
}

func (r *fakeRepo) put(rec *profile.Record) {
	r.mu.Lock()
	r.records[rec.ID] = rec.Clone()
	r.mu.Unlock()
}

func (r *fakeRepo) get(id string) *profile.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[id].Clone()
}

func (r *fakeRepo) trackInflight() func() {
	cur := r.inflight.Add(1)
	for {
		max := r.maxInflight.Load()
		if cur <= max || r.maxInflight.CompareAndSwap(max, cur) {
			break
		}
	}
	return func() { r.inflight.Add(-1) }
}

func (r *fakeRepo) FindByID(ctx context.Context, id string) (*profile.Record, error) {
	r.findCalls.Add(1)
	done := r.trackInflight()
	defer done()

	if r.findGate != nil {
		select {
		case <-r.findGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.findDelay > 0 {
		select {
		case <-time.After(r.findDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.findErr != nil {
		return nil, r.findErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, profile.ErrNotFound
	}
	return rec.Clone(), nil
}

func (r *fakeRepo) Save(ctx context.Context, rec *profile.Record) (*profile.Record, error) {
	r.saveCalls.Add(1)
	if r.saveDelay > 0 {
		select {
		case <-time.After(r.saveDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.saveErr != nil {
		return nil, r.saveErr
	}
	if err := r.saveErrBy[rec.ID]; err != nil {
		return nil, err
	}
	r.put(rec)
	return rec, nil
}

func (r *fakeRepo) SaveSync(rec *profile.Record) (*profile.Record, error) {
	r.saveSyncCalls.Add(1)
	if r.saveErr != nil {
		return nil, r.saveErr
	}
	r.put(rec)
	return rec, nil
}

func (r *fakeRepo) IsInitialized() bool { return !r.uninitialized.Load() }

// recordingListener captures every callback for assertions.
type recordingListener struct {
	mu        sync.Mutex
	loaded    []string
	failed    map[string]error
	timedOut  []string
	saved     []string
	saveFails map[string]error
}

func newRecordingListener() *recordingListener {
	return &recordingListener{
		failed:    map[string]error{},
		saveFails: map[string]error{},
	}
}

func (l *recordingListener) ProfileLoaded(p *profile.Profile) {
	l.mu.Lock()
	l.loaded = append(l.loaded, p.ID)
	l.mu.Unlock()
}

func (l *recordingListener) LoadFailed(id string, err error) {
	l.mu.Lock()
	l.failed[id] = err
	l.mu.Unlock()
}

func (l *recordingListener) LoadTimedOut(id string) {
	l.mu.Lock()
	l.timedOut = append(l.timedOut, id)
	l.mu.Unlock()
}

func (l *recordingListener) ProfileSaved(rec *profile.Record) {
	l.mu.Lock()
	l.saved = append(l.saved, rec.ID)
	l.mu.Unlock()
}

func (l *recordingListener) SaveFailed(id string, err error) {
	l.mu.Lock()
	l.saveFails[id] = err
	l.mu.Unlock()
}

func (l *recordingListener) timedOutCount(id string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, cur := range l.timedOut {
		if cur == id {
			n++
		}
	}
	return n
}

func testConfig() Config {
	return Config{
		LoadTimeout:        200 * time.Millisecond,
		SaveTimeout:        200 * time.Millisecond,
		UrgentSaveTimeout:  400 * time.Millisecond,
		PermitWait:         100 * time.Millisecond,
		UrgentPermitWait:   200 * time.Millisecond,
		MaxConcurrentLoads: 10,
		MaxConcurrentSaves: 10,
		AutoSaveInterval:   time.Hour,
		SweepInterval:      time.Hour,
		HealthInterval:     time.Hour,
		JanitorInterval:    time.Hour,
		SlowLoadThreshold:  time.Hour,
		ShutdownSaveBudget: 2 * time.Second,
		ShutdownGrace:      2 * time.Second,
	}
}

func newTestCoordinator(t *testing.T, repo Repository, mod func(*Config)) *Coordinator {
	t.Helper()
	cfg := testConfig()
	if mod != nil {
		mod(&cfg)
	}
	c := New(cfg, repo, zap.NewNop())
	t.Cleanup(c.Shutdown)
	return c
}

// mustLoad drives one load to completion and fails the test otherwise.
func mustLoad(t *testing.T, c *Coordinator, id, name string) *profile.Profile {
	t.Helper()
	lc, err := c.BeginLoad(id, name)
	if err != nil {
		t.Fatalf("BeginLoad(%s): %v", id, err)
	}
	select {
	case p, ok := <-lc.Result():
		if !ok || p == nil {
			t.Fatalf("load %s failed", id)
		}
		return p
	case <-time.After(2 * time.Second):
		t.Fatalf("load %s did not complete", id)
	}
	return nil
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}

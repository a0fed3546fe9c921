// Package coordinator owns the per-player profile lifecycle: fetch-or-create
// on connect, an in-memory session cache, permit-bounded load/save pipelines,
// periodic persistence, and a guaranteed best-effort save on disconnect.
package coordinator

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"emberhold.gg/internal/profile"
	"emberhold.gg/internal/sched"
)

const (
	stateRunning int32 = iota
	stateDraining
	stateStopped
)

type Coordinator struct {
	cfg  Config
	log  *zap.Logger
	repo Repository

	host  Executor
	inits []Initializer

	profiles  sync.Map // id -> *profile.Profile (live cache)
	nameIndex sync.Map // lowercase name -> id
	locks     lockTable
	loads     sync.Map // id -> *LoadContext

	loadPermits     *semaphore.Weighted
	savePermits     *semaphore.Weighted
	loadPermitsFree atomic.Int64
	savePermitsFree atomic.Int64

	bus listenerBus

	state        atomic.Int32
	shuttingDown atomic.Bool
	healthy      atomic.Bool

	joins       atomic.Uint64
	quits       atomic.Uint64
	loadsOK     atomic.Uint64
	loadsFailed atomic.Uint64
	savesOK     atomic.Uint64
	savesFailed atomic.Uint64

	tasks *sched.Scheduler
	ioWG  sync.WaitGroup

	saveCursor int // touched only by the autosave task
}

// New builds a coordinator around a repository. Callers own the instance
// and pass it to whoever needs it; there is deliberately no package-level
// singleton.
func New(cfg Config, repo Repository, logger *zap.Logger) *Coordinator {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		cfg:   cfg,
		log:   logger,
		repo:  repo,
		host:  inlineExecutor{},
		tasks: sched.New(),
	}
	c.bus.log = logger
	c.loadPermits = semaphore.NewWeighted(cfg.MaxConcurrentLoads)
	c.savePermits = semaphore.NewWeighted(cfg.MaxConcurrentSaves)
	c.loadPermitsFree.Store(cfg.MaxConcurrentLoads)
	c.savePermitsFree.Store(cfg.MaxConcurrentSaves)
	c.healthy.Store(true)
	return c
}

// SetHostExecutor routes downstream-system initialization through the
// host's serialized execution context. Call before Start.
func (c *Coordinator) SetHostExecutor(e Executor) {
	if e != nil {
		c.host = e
	}
}

// AddInitializer registers a downstream-system hook run after each
// successful load. Call before Start.
func (c *Coordinator) AddInitializer(fn Initializer) {
	if fn != nil {
		c.inits = append(c.inits, fn)
	}
}

// Start launches the periodic tasks: autosave cycles, the load-timeout
// sweep, the health check, and the janitor.
func (c *Coordinator) Start() {
	c.tasks.Every(c.cfg.AutoSaveInterval, c.saveCycle)
	c.tasks.Every(c.cfg.SweepInterval, func() { c.sweepTimeouts(time.Now()) })
	c.tasks.Every(c.cfg.HealthInterval, c.updateHealth)
	c.tasks.Every(c.cfg.JanitorInterval, func() { c.pruneStale() })
}

func (c *Coordinator) AddLoadListener(l LoadListener)    { c.bus.addLoad(l) }
func (c *Coordinator) RemoveLoadListener(l LoadListener) { c.bus.removeLoad(l) }
func (c *Coordinator) AddSaveListener(l SaveListener)    { c.bus.addSave(l) }
func (c *Coordinator) RemoveSaveListener(l SaveListener) { c.bus.removeSave(l) }

// GetProfile returns the cached live profile, or nil when the session is
// not connected. The pointer is stable for the session's duration.
func (c *Coordinator) GetProfile(id string) *profile.Profile {
	if v, ok := c.profiles.Load(id); ok {
		return v.(*profile.Profile)
	}
	return nil
}

// GetProfileByName resolves via the lowercase-name index.
func (c *Coordinator) GetProfileByName(name string) *profile.Profile {
	v, ok := c.nameIndex.Load(strings.ToLower(name))
	if !ok {
		return nil
	}
	return c.GetProfile(v.(string))
}

// AllProfiles returns a point-in-time snapshot of the live cache, sorted by
// id for deterministic iteration.
func (c *Coordinator) AllProfiles() []*profile.Profile {
	var out []*profile.Profile
	c.profiles.Range(func(_, v any) bool {
		out = append(out, v.(*profile.Profile))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *Coordinator) IsHealthy() bool      { return c.healthy.Load() }
func (c *Coordinator) IsShuttingDown() bool { return c.shuttingDown.Load() }

type Stats struct {
	Joins       uint64 `json:"joins"`
	Quits       uint64 `json:"quits"`
	LoadsOK     uint64 `json:"loads_ok"`
	LoadsFailed uint64 `json:"loads_failed"`
	SavesOK     uint64 `json:"saves_ok"`
	SavesFailed uint64 `json:"saves_failed"`

	LoadPermitsFree int64 `json:"load_permits_free"`
	SavePermitsFree int64 `json:"save_permits_free"`
}

func (c *Coordinator) Stats() Stats {
	return Stats{
		Joins:           c.joins.Load(),
		Quits:           c.quits.Load(),
		LoadsOK:         c.loadsOK.Load(),
		LoadsFailed:     c.loadsFailed.Load(),
		SavesOK:         c.savesOK.Load(),
		SavesFailed:     c.savesFailed.Load(),
		LoadPermitsFree: c.loadPermitsFree.Load(),
		SavePermitsFree: c.savePermitsFree.Load(),
	}
}

// PreConnect is the host's synchronous pre-admission hook. The caller
// bounds ctx (the ws host uses 10s); the check resolves one way or the
// other within that bound. A repository error here does not reject the
// connection; the health monitor owns repository-outage gating.
func (c *Coordinator) PreConnect(ctx context.Context, id string) (reason string, ok bool) {
	if c.IsShuttingDown() {
		return "server is shutting down", false
	}
	if !c.IsHealthy() {
		return "server is busy, please retry shortly", false
	}
	rec, err := c.repo.FindByID(ctx, id)
	switch {
	case errors.Is(err, profile.ErrNotFound):
		return "", true
	case err != nil:
		c.log.Warn("pre-connect check degraded", zap.String("id", id), zap.Error(err))
		return "", true
	case rec.Flags.Banned:
		return "you are banned from this server", false
	}
	return "", true
}

// EndSession is the host's disconnect hook: cancel a still-pending load,
// run an urgent save, and evict the session from every map. A failed save
// is logged and cleanup proceeds; the session is ending either way.
func (c *Coordinator) EndSession(id string, forced bool) {
	c.quits.Add(1)
	c.cancelLoad(id)

	v, ok := c.profiles.Load(id)
	if !ok {
		return
	}
	p := v.(*profile.Profile)

	if err := c.Save(p, true); err != nil {
		c.log.Warn("disconnect save failed", zap.String("id", id), zap.Error(err))
	}

	c.profiles.Delete(id)
	c.nameIndex.Delete(strings.ToLower(p.Name))
	c.locks.remove(id)

	if forced {
		c.log.Info("session forcibly closed", zap.String("id", id), zap.String("name", p.Name))
	} else {
		c.log.Info("session closed", zap.String("id", id), zap.String("name", p.Name))
	}
}

// register exposes a loaded profile. Runs on the host executor.
func (c *Coordinator) register(p *profile.Profile) {
	c.profiles.Store(p.ID, p)
	c.nameIndex.Store(strings.ToLower(p.Name), p.ID)
	c.joins.Add(1)
}

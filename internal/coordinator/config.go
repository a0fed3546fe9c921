package coordinator

import "time"

// Config carries every coordinator knob. Zero values fall back to the
// defaults below, so tests and callers set only what they care about.
type Config struct {
	// LoadTimeout bounds one repository fetch; loads older than this are
	// swept by the timeout monitor.
	LoadTimeout time.Duration

	// SaveTimeout bounds a periodic save; UrgentSaveTimeout bounds
	// disconnect/kick saves, which get more room because the session is
	// ending and this is the last chance to persist.
	SaveTimeout       time.Duration
	UrgentSaveTimeout time.Duration

	// PermitWait bounds how long a pipeline waits for an admission permit
	// before giving up with a timeout.
	PermitWait       time.Duration
	UrgentPermitWait time.Duration

	MaxConcurrentLoads int64
	MaxConcurrentSaves int64

	AutoSaveInterval time.Duration
	ProfilesPerCycle int

	SweepInterval   time.Duration
	HealthInterval  time.Duration
	JanitorInterval time.Duration

	// SlowLoadThreshold is the average in-flight load age beyond which the
	// health monitor reports unhealthy.
	SlowLoadThreshold time.Duration

	// ShutdownSaveBudget is the aggregate deadline for the drain saves;
	// ShutdownGrace is how long workers get to exit afterwards.
	ShutdownSaveBudget time.Duration
	ShutdownGrace      time.Duration
}

func (c Config) withDefaults() Config {
	if c.LoadTimeout <= 0 {
		c.LoadTimeout = 30 * time.Second
	}
	if c.SaveTimeout <= 0 {
		c.SaveTimeout = 10 * time.Second
	}
	if c.UrgentSaveTimeout <= 0 {
		c.UrgentSaveTimeout = 30 * time.Second
	}
	if c.PermitWait <= 0 {
		c.PermitWait = 5 * time.Second
	}
	if c.UrgentPermitWait <= 0 {
		c.UrgentPermitWait = 15 * time.Second
	}
	if c.MaxConcurrentLoads <= 0 {
		c.MaxConcurrentLoads = 10
	}
	if c.MaxConcurrentSaves <= 0 {
		c.MaxConcurrentSaves = 10
	}
	if c.AutoSaveInterval <= 0 {
		c.AutoSaveInterval = 5 * time.Minute
	}
	if c.ProfilesPerCycle <= 0 {
		c.ProfilesPerCycle = 20
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Second
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = 5 * time.Second
	}
	if c.JanitorInterval <= 0 {
		c.JanitorInterval = time.Minute
	}
	if c.SlowLoadThreshold <= 0 {
		c.SlowLoadThreshold = c.LoadTimeout / 2
	}
	if c.ShutdownSaveBudget <= 0 {
		c.ShutdownSaveBudget = 30 * time.Second
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 10 * time.Second
	}
	return c
}

// Package config loads server configuration from a yaml file, then applies
// EH_-prefixed environment overrides on top.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"emberhold.gg/internal/coordinator"
)

type Config struct {
	Addr    string `yaml:"addr" env:"EH_ADDR"`
	DataDir string `yaml:"data_dir" env:"EH_DATA_DIR"`
	DBPath  string `yaml:"db_path" env:"EH_DB_PATH"`

	Profiles ProfilesConfig `yaml:"profiles"`
}

// ProfilesConfig tunes the profile lifecycle coordinator. All durations are
// milliseconds except the autosave interval, which is seconds.
type ProfilesConfig struct {
	LoadTimeoutMs       int `yaml:"load_timeout_ms" env:"EH_LOAD_TIMEOUT_MS"`
	SaveTimeoutMs       int `yaml:"save_timeout_ms" env:"EH_SAVE_TIMEOUT_MS"`
	UrgentSaveTimeoutMs int `yaml:"urgent_save_timeout_ms" env:"EH_URGENT_SAVE_TIMEOUT_MS"`
	PermitWaitMs        int `yaml:"permit_wait_ms" env:"EH_PERMIT_WAIT_MS"`
	UrgentPermitWaitMs  int `yaml:"urgent_permit_wait_ms" env:"EH_URGENT_PERMIT_WAIT_MS"`

	MaxConcurrentLoads int `yaml:"max_concurrent_loads" env:"EH_MAX_CONCURRENT_LOADS"`
	MaxConcurrentSaves int `yaml:"max_concurrent_saves" env:"EH_MAX_CONCURRENT_SAVES"`

	AutoSaveIntervalS int `yaml:"autosave_interval_s" env:"EH_AUTOSAVE_INTERVAL_S"`
	ProfilesPerCycle  int `yaml:"profiles_per_cycle" env:"EH_PROFILES_PER_CYCLE"`
}

func Defaults() Config {
	return Config{
		Addr:    ":8080",
		DataDir: "./data",
		DBPath:  "./data/profiles.db",
	}
}

// Load reads the yaml file (missing file is fine; defaults apply) and then
// overlays environment variables.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return cfg, err
		}
		if err == nil {
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return cfg, fmt.Errorf("config yaml: %w", err)
			}
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("config env: %w", err)
	}
	return cfg, nil
}

// Coordinator converts the wire-friendly integer knobs into the
// coordinator's Config; zero values fall through to its defaults.
func (p ProfilesConfig) Coordinator() coordinator.Config {
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }
	return coordinator.Config{
		LoadTimeout:        ms(p.LoadTimeoutMs),
		SaveTimeout:        ms(p.SaveTimeoutMs),
		UrgentSaveTimeout:  ms(p.UrgentSaveTimeoutMs),
		PermitWait:         ms(p.PermitWaitMs),
		UrgentPermitWait:   ms(p.UrgentPermitWaitMs),
		MaxConcurrentLoads: int64(p.MaxConcurrentLoads),
		MaxConcurrentSaves: int64(p.MaxConcurrentSaves),
		AutoSaveInterval:   time.Duration(p.AutoSaveIntervalS) * time.Second,
		ProfilesPerCycle:   p.ProfilesPerCycle,
	}
}

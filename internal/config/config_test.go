package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsInternallyConsistent(t *testing.T) {
	cfg := Default()

	if cfg.TicksPerWeek%cfg.TicksPerDay != 0 {
		t.Error("a week should be a whole number of days")
	}
	if cfg.TicksPerSeason%cfg.TicksPerWeek != 0 {
		t.Error("a season should be a whole number of weeks")
	}
	if cfg.CrisisExit <= cfg.CrisisEnter {
		t.Error("crisis exit must sit above crisis entry for hysteresis")
	}
	if cfg.BoomExit >= cfg.BoomEnter {
		t.Error("boom exit must sit below boom entry for hysteresis")
	}
	if cfg.DemandRampTicks == 0 || cfg.TicksPerSeason < cfg.DemandRampTicks {
		t.Error("demand ramp must fit inside a season")
	}
}

func TestLoadOverridesNamedFieldsOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	raw := "tick_interval_ms: 250\nstarting_balance: 42\ncrisis_enter: 500\n"
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TickIntervalMs != 250 || cfg.StartingBalance != 42 || cfg.CrisisEnter != 500 {
		t.Errorf("overrides not applied: %d %d %d", cfg.TickIntervalMs, cfg.StartingBalance, cfg.CrisisEnter)
	}
	if cfg.TaxRate != Default().TaxRate {
		t.Errorf("omitted field lost its default: %v", cfg.TaxRate)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("missing file should error")
	}
}

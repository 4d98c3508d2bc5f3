// Package testutil holds fixtures shared by the sim test packages.
package testutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/GoitHT/patient-agent-sub001/sim"
)

// FixturePath resolves a file under this package's testdata directory.
func FixturePath(t testing.TB, name string) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	return filepath.Join(filepath.Dir(thisFile), "testdata", name)
}

// SmallWorldConfig loads testdata/small_world.yaml: a lobby, one clinic for
// department "general", a lab with one 30-minute blood analyzer capped at 5
// per day and an imaging room with one 15-minute x-ray. The clock starts on
// a Monday at 08:00 and moves are free.
func SmallWorldConfig(t testing.TB) sim.WorldConfig {
	t.Helper()
	data, err := os.ReadFile(FixturePath(t, "small_world.yaml"))
	if err != nil {
		t.Fatalf("Failed to read world fixture: %v", err)
	}
	cfg, err := sim.ParseWorldConfig(data)
	if err != nil {
		t.Fatalf("Failed to parse world fixture: %v", err)
	}
	return cfg
}

// NewWorld builds a world from cfg after applying mutators.
func NewWorld(t testing.TB, cfg sim.WorldConfig, mutate ...func(*sim.WorldConfig)) *sim.World {
	t.Helper()
	for _, m := range mutate {
		m(&cfg)
	}
	w, err := sim.NewWorld(cfg, nil)
	if err != nil {
		t.Fatalf("NewWorld: %v", err)
	}
	return w
}

// NewSmallWorld is NewWorld over SmallWorldConfig.
func NewSmallWorld(t testing.TB, mutate ...func(*sim.WorldConfig)) *sim.World {
	t.Helper()
	return NewWorld(t, SmallWorldConfig(t), mutate...)
}

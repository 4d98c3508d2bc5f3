package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/GoitHT/patient-agent-sub001/sim"
	"github.com/GoitHT/patient-agent-sub001/sim/workflow"
	"github.com/GoitHT/patient-agent-sub001/sim/workload"
)

// loadWorldConfig returns the built-in hospital for an empty path, otherwise
// the strictly parsed file.
func loadWorldConfig(path string) (sim.WorldConfig, error) {
	if path == "" {
		return sim.DefaultWorldConfig(), nil
	}
	cfg, err := sim.LoadWorldConfig(path)
	if err != nil {
		return sim.WorldConfig{}, fmt.Errorf("world %s: %w", path, err)
	}
	return cfg, nil
}

// loadPatients reads a scenario, or generates n cases when path is empty.
// Departments must exist in the world.
func loadPatients(path string, n int, seed int64, departments []string) ([]workflow.Patient, error) {
	if path == "" {
		logrus.Infof("generating %d patients with seed %d", n, seed)
		return workload.GeneratePatients(n, seed, departments)
	}
	scenario, err := workload.LoadScenario(path)
	if err != nil {
		return nil, err
	}
	if err := scenario.Validate(departments); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	if scenario.Seed == 0 {
		scenario.Seed = seed
	}
	logrus.Infof("loaded %d patients from %s", len(scenario.Patients), path)
	return scenario.WorkflowPatients(), nil
}

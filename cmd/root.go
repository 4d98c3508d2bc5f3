package cmd

import (
	"context"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/GoitHT/patient-agent-sub001/sim/trace"
)

var (
	// CLI flags for the run command
	worldPath         string        // Path to a world layout YAML; empty uses the built-in hospital
	scenarioPath      string        // Path to a scenario YAML; empty generates patients
	numPatients       int           // Number of generated patients
	seed              int64         // Seed for patient generation, triage and consultations
	workers           int           // Concurrent workflows
	doctorsPerDept    int           // Doctors registered per department
	logLevel          string        // Log verbosity level
	enableTracing     bool          // Export workflow spans to stdout
	traceLevel        string        // World event log level
	eventDBPath       string        // SQLite file receiving the event log after the run
	arrivalRate       float64       // Patient arrivals per wall second; 0 submits all at once
	assignTimeout     time.Duration // Wait for a doctor before failing a workflow
	resultTimeout     time.Duration // Wait for lab or imaging results before failing a workflow
	clockStepMinutes  int           // Simulated minutes per clock tick
	clockInterval     time.Duration // Wall time between clock ticks
	runTimeout        time.Duration // Upper bound on the whole run
	recentEventsShown int           // Event log tail printed after the run
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "patient-agent",
	Short: "Concurrent hospital simulation for patient and doctor agents",
}

// runCmd executes a multi-patient simulation using parameters from CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a multi-patient hospital simulation",
	Run: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
		if !trace.IsValidTraceLevel(traceLevel) {
			logrus.Fatalf("Invalid trace level: %s", traceLevel)
		}

		opts := runOptions{
			WorldPath:      worldPath,
			ScenarioPath:   scenarioPath,
			Patients:       numPatients,
			Seed:           seed,
			Workers:        workers,
			DoctorsPerDept: doctorsPerDept,
			Tracing:        enableTracing,
			TraceLevel:     trace.TraceLevel(traceLevel),
			EventDB:        eventDBPath,
			ArrivalRate:    arrivalRate,
			AssignTimeout:  assignTimeout,
			ResultTimeout:  resultTimeout,
			ClockStep:      time.Duration(clockStepMinutes) * time.Minute,
			ClockInterval:  clockInterval,
			RecentEvents:   recentEventsShown,
		}
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()

		startTime := time.Now()
		if err := runSimulation(ctx, opts, os.Stdout); err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		logrus.Infof("Simulation complete in %s.", time.Since(startTime).Round(time.Millisecond))
	},
}

// describeCmd prints the world layout
var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Describe the hospital layout, equipment and departments",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadWorldConfig(worldPath)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if err := describeWorld(os.Stdout, cfg); err != nil {
			logrus.Fatalf("%v", err)
		}
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&worldPath, "world", "", "World layout YAML (default: built-in hospital)")

	runCmd.Flags().StringVar(&scenarioPath, "scenario", "", "Scenario YAML listing patient cases (default: generated)")
	runCmd.Flags().IntVar(&numPatients, "patients", 10, "Number of generated patients")
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Seed for patient generation, triage and consultations")
	runCmd.Flags().IntVar(&workers, "workers", 4, "Concurrent patient workflows")
	runCmd.Flags().IntVar(&doctorsPerDept, "doctors", 2, "Doctors per department")
	runCmd.Flags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	runCmd.Flags().BoolVar(&enableTracing, "trace", false, "Print workflow spans to stdout")
	runCmd.Flags().StringVar(&traceLevel, "trace-level", "events", "World event log level (none, events)")
	runCmd.Flags().StringVar(&eventDBPath, "event-db", "", "Write the world event log to this SQLite file")
	runCmd.Flags().Float64Var(&arrivalRate, "arrival-rate", 0, "Patient arrivals per second (0 = all at once)")
	runCmd.Flags().DurationVar(&assignTimeout, "assign-timeout", 300*time.Second, "Doctor assignment timeout")
	runCmd.Flags().DurationVar(&resultTimeout, "result-timeout", 60*time.Second, "Lab/imaging result timeout")
	runCmd.Flags().IntVar(&clockStepMinutes, "clock-step", 5, "Simulated minutes per clock tick")
	runCmd.Flags().DurationVar(&clockInterval, "clock-interval", 20*time.Millisecond, "Wall time between clock ticks")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 10*time.Minute, "Upper bound on the whole run")
	runCmd.Flags().IntVar(&recentEventsShown, "recent-events", 10, "Event log entries printed after the run")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(describeCmd)
}

package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/GoitHT/patient-agent-sub001/sim"
	"github.com/GoitHT/patient-agent-sub001/sim/coordinator"
	"github.com/GoitHT/patient-agent-sub001/sim/trace"
	"github.com/GoitHT/patient-agent-sub001/sim/workflow"
)

// runOptions gathers everything a run needs; the flags fill it in.
type runOptions struct {
	WorldPath      string
	ScenarioPath   string
	Patients       int
	Seed           int64
	Workers        int
	DoctorsPerDept int
	Tracing        bool
	TraceLevel     trace.TraceLevel
	EventDB        string
	ArrivalRate    float64
	AssignTimeout  time.Duration
	ResultTimeout  time.Duration
	ClockStep      time.Duration
	ClockInterval  time.Duration
	RecentEvents   int
}

// runSimulation builds the world, staffs it, runs every patient workflow and
// writes the report to out.
func runSimulation(ctx context.Context, opts runOptions, out io.Writer) error {
	cfg, err := loadWorldConfig(opts.WorldPath)
	if err != nil {
		return err
	}
	events := trace.NewEventLog(trace.TraceConfig{Level: opts.TraceLevel}, opts.Seed)
	world, err := sim.NewWorld(cfg, events)
	if err != nil {
		return err
	}
	coord := coordinator.New(world, events)
	if err := staffDepartments(coord, world.Departments(), opts.DoctorsPerDept); err != nil {
		return err
	}
	patients, err := loadPatients(opts.ScenarioPath, opts.Patients, opts.Seed, world.Departments())
	if err != nil {
		return err
	}

	shutdownTracing, err := workflow.SetupTracing(opts.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logrus.Warnf("tracer shutdown: %v", err)
		}
	}()

	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(opts.Seed))
	consultant := workflow.NewBreakerConsultant(
		workflow.NewSimulatedConsultant(rng.ForSubsystem(sim.SubsystemConsult)),
		"consultant", workflow.BreakerSettings{})
	orch := workflow.New(world, coord, consultant, workflow.Config{
		Workers:           opts.Workers,
		AssignmentTimeout: opts.AssignTimeout,
		ResultTimeout:     opts.ResultTimeout,
		ClockStep:         opts.ClockStep,
		ClockInterval:     opts.ClockInterval,
		Seed:              opts.Seed,
	})

	results, waitErr := submitAll(ctx, orch, patients, opts.ArrivalRate)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := orch.Shutdown(shutdownCtx); err != nil {
		logrus.Warnf("orchestrator shutdown: %v", err)
	}
	if waitErr != nil {
		return waitErr
	}

	printReport(out, world, coord, results, events, opts.RecentEvents)

	if opts.EventDB != "" {
		if err := trace.ExportSQLite(ctx, opts.EventDB, events.Records()); err != nil {
			return err
		}
		logrus.Infof("wrote %d events to %s", events.Len(), opts.EventDB)
	}
	return nil
}

func staffDepartments(coord *coordinator.Coordinator, departments []string, perDept int) error {
	if perDept <= 0 {
		return fmt.Errorf("doctors per department must be positive, got %d", perDept)
	}
	for _, dept := range departments {
		for i := 1; i <= perDept; i++ {
			id := fmt.Sprintf("dr_%s_%d", dept, i)
			if err := coord.RegisterDoctor(id, fmt.Sprintf("Dr. %s %d", dept, i), dept); err != nil {
				return err
			}
		}
	}
	return nil
}

// submitAll paces arrivals with a token bucket and waits for every result.
// A non-positive rate submits every patient at once.
func submitAll(ctx context.Context, orch *workflow.Orchestrator, patients []workflow.Patient, perSecond float64) ([]workflow.Result, error) {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	limiter := rate.NewLimiter(limit, 1)
	for i, p := range patients {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("arrival %d: %w", i, err)
		}
		if _, err := orch.Submit(p); err != nil {
			return nil, err
		}
		logrus.WithField("patient", p.ID).Infof("patient %d/%d arrived, priority %d", i+1, len(patients), p.Priority)
	}
	return orch.WaitAll(ctx)
}

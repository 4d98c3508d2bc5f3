package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/GoitHT/patient-agent-sub001/sim"
	"github.com/GoitHT/patient-agent-sub001/sim/coordinator"
	"github.com/GoitHT/patient-agent-sub001/sim/trace"
	"github.com/GoitHT/patient-agent-sub001/sim/workflow"
)

func printReport(w io.Writer, world *sim.World, coord *coordinator.Coordinator, results []workflow.Result, events *trace.EventLog, recent int) {
	fmt.Fprintf(w, "=== Simulation Report (simulated time %s) ===\n", world.Now().Format(time.RFC3339))
	fmt.Fprint(w, workflow.Summarize(results))

	fmt.Fprintln(w, "\n--- Patients ---")
	for _, r := range results {
		line := fmt.Sprintf("%-14s %-9s visits=%d turnaround=%s", r.PatientID, r.Status, r.Visits, r.Turnaround())
		if r.Status == workflow.StatusFailed {
			line += " reason=" + r.Reason
		}
		fmt.Fprintln(w, line)
	}

	st := coord.GetSystemStats()
	fmt.Fprintln(w, "\n--- Staff ---")
	fmt.Fprintf(w, "doctors %d (available %d), patients registered %d, active %d, discharged %d\n",
		st.TotalDoctors, st.AvailableDoctors, st.TotalPatientsRegistered, st.ActivePatients, st.DischargedPatients)
	for _, d := range coord.GetAllDeptStatus() {
		fmt.Fprintf(w, "%-18s doctors=%d available=%d busy=%d waiting=%d\n",
			d.Department, d.Total, d.Available, d.Busy, d.Waiting)
	}
	for _, d := range coord.Doctors() {
		fmt.Fprintf(w, "  %-24s served today %d, total %d\n", d.ID, d.ServedToday, d.ServedTotal)
	}

	fmt.Fprintln(w, "\n--- Equipment ---")
	fmt.Fprint(w, world.Scheduler().CompetitionReport())

	sum := trace.Summarize(events)
	fmt.Fprintln(w, "\n--- Event Log ---")
	fmt.Fprintf(w, "%d events (%d dropped)\n", sum.Total, sum.Dropped)
	kinds := make([]string, 0, len(sum.ByKind))
	for k := range sum.ByKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(w, "  %-22s %d\n", k, sum.ByKind[k])
	}
	if recent > 0 {
		for _, r := range events.Recent(recent) {
			fmt.Fprintf(w, "  %s %-20s %-16s %s\n", r.At.Format("15:04"), r.Kind, r.Subject, r.Detail)
		}
	}
}

func describeWorld(w io.Writer, cfg sim.WorldConfig) error {
	world, err := sim.NewWorld(cfg, nil)
	if err != nil {
		return err
	}
	cal := world.Clock().Calendar()
	fmt.Fprintf(w, "Clock starts %s, working hours %s\n", world.Now().Format(time.RFC3339), cal)

	fmt.Fprintln(w, "\nLocations:")
	for _, l := range world.Spatial().Locations() {
		gated := ""
		if l.BusinessHoursOnly {
			gated = " (business hours)"
		}
		fmt.Fprintf(w, "  %-18s cap %-3d -> %s%s\n", l.ID, l.Capacity, strings.Join(l.Adjacent, ", "), gated)
	}

	fmt.Fprintln(w, "\nEquipment:")
	for _, e := range world.Scheduler().Status("", "") {
		fmt.Fprintf(w, "  %-20s %-13s at %-16s cap %d/day\n", e.ID, e.ExamType, e.LocationID, e.MaxDailyUsage)
	}

	fmt.Fprintln(w, "\nDepartments:")
	for _, d := range world.Departments() {
		clinic, _ := world.ClinicFor(d)
		fmt.Fprintf(w, "  %-18s clinic %s\n", d, clinic)
	}
	return nil
}

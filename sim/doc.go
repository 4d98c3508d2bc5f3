// Package sim provides the shared hospital world that patient and doctor
// agents act in.
//
// # Reading Guide
//
// Start with these three files to understand the world model:
//   - world.go: the World aggregate, Advance, agents and observations
//   - scheduler.go: equipment requests, the completion sweep, maintenance and reservations
//   - physiology.go: PhysicalState evolution of symptoms, vitals and consciousness
//
// # Architecture
//
// The sim package owns time, space, equipment and physiology; the actors live
// in sub-packages:
//   - sim/coordinator/: doctors, patient sessions, department wait lists, consultations
//   - sim/workflow/: bounded-pool patient workflows over a World and a Coordinator
//   - sim/workload/: scenario files, generated cases, keyword triage
//   - sim/trace/: the world event log and its SQLite export
//
// # Priorities
//
// Equipment queues are ascending (lower value is served first). Department
// wait lists are descending (higher value is more urgent). The two scales
// meet in EquipmentPriorityFor.
//
// # Time
//
// The Clock only moves through World.Advance, which is serialized. Crossing
// midnight resets daily equipment counters and notifies OnDayBoundary
// subscribers; the completion sweep and physiology pass run against the new
// time as one batch.
package sim

package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func xraySpec(id string) EquipmentSpec {
	return EquipmentSpec{ID: id, Name: id, LocationID: "imaging", ExamType: "xray",
		Duration: 30 * time.Minute, MaxDailyUsage: 10}
}

func newTestScheduler(t *testing.T, specs ...EquipmentSpec) (*EquipmentScheduler, *Clock) {
	t.Helper()
	clock := NewClock(t0, DefaultCalendar())
	s, err := NewEquipmentScheduler(clock, DefaultSchedulerConfig(), specs, nil)
	require.NoError(t, err)
	return s, clock
}

func device(t *testing.T, s *EquipmentScheduler, id string) EquipmentStatusView {
	t.Helper()
	v, ok := s.Equipment(id)
	require.True(t, ok, "device %s", id)
	return v
}

func TestScheduler_Request_QueuesByPriority_ThenServesHead(t *testing.T) {
	// GIVEN one 30-minute x-ray
	s, clock := newTestScheduler(t, xraySpec("xray_1"))

	// WHEN patients with priorities 5, 7 and 2 request it in that order
	r1, err := s.Request("p5", "xray", 5)
	require.NoError(t, err)
	r2, err := s.Request("p7", "xray", 7)
	require.NoError(t, err)
	r3, err := s.Request("p2", "xray", 2)
	require.NoError(t, err)

	// THEN the first starts and the others queue with the smaller value first
	assert.Equal(t, OutcomeStarted, r1.Outcome)
	assert.Equal(t, t0.Add(30*time.Minute), r1.End)
	assert.Equal(t, OutcomeQueued, r2.Outcome)
	assert.Equal(t, OutcomeQueued, r3.Outcome)
	assert.Equal(t, 1, r3.Position)
	assert.Equal(t, 30*time.Minute, r3.EstimatedWait)
	v := device(t, s, "xray_1")
	assert.Equal(t, []string{"p2", "p7"}, ids(v.Queue))

	// WHEN 35 minutes pass and the sweep runs
	clock.advance(35 * time.Minute)
	events := s.Sweep()

	// THEN p5 completed and p2 occupies the device since 08:30
	require.Len(t, events, 2)
	done, ok := events[0].(ExamCompletion)
	require.True(t, ok)
	assert.Equal(t, "p5", done.PatientID)
	start, ok := events[1].(ExamStart)
	require.True(t, ok)
	assert.Equal(t, "p2", start.PatientID)
	assert.Equal(t, t0.Add(30*time.Minute), start.Started)
	v = device(t, s, "xray_1")
	assert.Equal(t, StatusBusy, v.Status)
	assert.Equal(t, "p2", v.Occupant)
	assert.Equal(t, t0.Add(60*time.Minute), v.BusyUntil)
	assert.Equal(t, []string{"p7"}, ids(v.Queue))
	assert.NoError(t, s.CheckInvariants())
}

func TestScheduler_Request_RepeatReturnsExistingState(t *testing.T) {
	s, _ := newTestScheduler(t, xraySpec("xray_1"))
	_, err := s.Request("a", "xray", 1)
	require.NoError(t, err)
	_, err = s.Request("b", "xray", 1)
	require.NoError(t, err)

	again, err := s.Request("a", "xray", 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeStarted, again.Outcome)
	queued, err := s.Request("b", "xray", 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeQueued, queued.Outcome)
	assert.Equal(t, 1, queued.Position)
	assert.Len(t, device(t, s, "xray_1").Queue, 1)
}

func TestScheduler_Request_PicksFreeDevice(t *testing.T) {
	// GIVEN two x-rays, the first busy
	s, _ := newTestScheduler(t, xraySpec("xray_1"), xraySpec("xray_2"))
	_, err := s.Request("a", "xray", 1)
	require.NoError(t, err)

	// WHEN a second patient asks
	r, err := s.Request("b", "xray", 1)

	// THEN the idle device takes it
	require.NoError(t, err)
	assert.Equal(t, OutcomeStarted, r.Outcome)
	assert.Equal(t, "xray_2", r.EquipmentID)
}

func TestScheduler_Request_Errors(t *testing.T) {
	s, _ := newTestScheduler(t, xraySpec("xray_1"))
	_, err := s.Request("a", "mri", 1)
	assert.ErrorIs(t, err, ErrUnknownExamType)

	// GIVEN the clock in the lunch break
	late, err := NewEquipmentScheduler(NewClock(t0.Add(4*time.Hour+30*time.Minute), DefaultCalendar()),
		DefaultSchedulerConfig(), []EquipmentSpec{xraySpec("xray_1")}, nil)
	require.NoError(t, err)
	_, err = late.Request("a", "xray", 1)
	assert.ErrorIs(t, err, ErrOutsideHours)
}

func TestScheduler_Maintenance_BlocksThenRecovers(t *testing.T) {
	// GIVEN an x-ray put into maintenance for 30 minutes
	s, clock := newTestScheduler(t, xraySpec("xray_1"))
	require.NoError(t, s.SetMaintenance("xray_1", clock.Now(), 30*time.Minute))

	// WHEN a patient asks during the window
	_, err := s.Request("a", "xray", 1)

	// THEN the request fails with the maintenance error
	assert.ErrorIs(t, err, ErrDeviceInMaintenance)
	_, err = s.FindBest("xray")
	assert.ErrorIs(t, err, ErrDeviceInMaintenance)

	// WHEN 35 minutes pass
	clock.advance(35 * time.Minute)
	events := s.Sweep()

	// THEN the window ended and the request succeeds
	require.Len(t, events, 1)
	mw, ok := events[0].(MaintenanceWindow)
	require.True(t, ok)
	assert.True(t, mw.Ended)
	assert.Equal(t, t0.Add(30*time.Minute), mw.At)
	r, err := s.Request("a", "xray", 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeStarted, r.Outcome)
}

func TestScheduler_SetMaintenance_InterruptsExam(t *testing.T) {
	// GIVEN a patient mid-exam
	s, clock := newTestScheduler(t, xraySpec("xray_1"))
	_, err := s.Request("a", "xray", 5)
	require.NoError(t, err)
	_, err = s.Request("b", "xray", 1)
	require.NoError(t, err)

	// WHEN the device is forced into maintenance
	require.NoError(t, s.SetMaintenance("xray_1", clock.Now(), 10*time.Minute))

	// THEN the patient returns to the head of the queue and the usage is refunded
	v := device(t, s, "xray_1")
	assert.Equal(t, StatusMaintenance, v.Status)
	assert.Empty(t, v.Occupant)
	assert.Equal(t, []string{"a", "b"}, ids(v.Queue))
	assert.Equal(t, 0, v.DailyUsage)

	// WHEN the window ends
	clock.advance(10 * time.Minute)
	s.Sweep()

	// THEN the interrupted patient goes first
	assert.Equal(t, "a", device(t, s, "xray_1").Occupant)
	assert.NoError(t, s.CheckInvariants())
}

func TestScheduler_SetMaintenance_Errors(t *testing.T) {
	s, clock := newTestScheduler(t, xraySpec("xray_1"))
	assert.ErrorIs(t, s.SetMaintenance("nope", clock.Now(), time.Minute), ErrUnknownEquipment)
	assert.Error(t, s.SetMaintenance("xray_1", clock.Now(), 0))
}

func TestScheduler_DailyCap(t *testing.T) {
	// GIVEN a device allowed two exams a day
	spec := xraySpec("xray_1")
	spec.MaxDailyUsage = 2
	s, _ := newTestScheduler(t, spec)

	// WHEN three patients ask
	_, err := s.Request("a", "xray", 1)
	require.NoError(t, err)
	_, err = s.Request("b", "xray", 1)
	require.NoError(t, err)
	_, err = s.Request("c", "xray", 1)

	// THEN the committed work already fills the cap
	assert.ErrorIs(t, err, ErrDailyCapExceeded)
}

func TestScheduler_Sweep_IsIdempotent(t *testing.T) {
	s, clock := newTestScheduler(t, xraySpec("xray_1"))
	_, err := s.Request("a", "xray", 1)
	require.NoError(t, err)
	clock.advance(time.Hour)

	first := s.Sweep()
	second := s.Sweep()

	assert.Len(t, first, 1)
	assert.Empty(t, second)
	assert.Equal(t, StatusAvailable, device(t, s, "xray_1").Status)
}

func TestScheduler_Sweep_ChainsSeveralExams(t *testing.T) {
	// GIVEN one exam running and two queued
	s, clock := newTestScheduler(t, xraySpec("xray_1"))
	for _, id := range []string{"a", "b", "c"} {
		_, err := s.Request(id, "xray", 1)
		require.NoError(t, err)
	}

	// WHEN 95 minutes pass in one step
	clock.advance(95 * time.Minute)
	events := s.Sweep()

	// THEN every exam ran back to back, each stamped at the previous finish
	var finished []time.Time
	for _, ev := range events {
		if done, ok := ev.(ExamCompletion); ok {
			finished = append(finished, done.Finished)
		}
	}
	assert.Equal(t, []time.Time{t0.Add(30 * time.Minute), t0.Add(60 * time.Minute), t0.Add(90 * time.Minute)}, finished)
	assert.Equal(t, 3, device(t, s, "xray_1").DailyUsage)
}

func TestScheduler_Reservation_PreemptsQueue(t *testing.T) {
	// GIVEN a busy device, a queued patient and a reservation at 08:10
	s, clock := newTestScheduler(t, xraySpec("xray_1"))
	_, err := s.Request("a", "xray", 1)
	require.NoError(t, err)
	_, err = s.Request("b", "xray", 0)
	require.NoError(t, err)
	id, err := s.Reserve("r", "xray", "08:10")
	require.NoError(t, err)
	assert.Equal(t, "xray_1", id)

	// WHEN the running exam finishes
	clock.advance(31 * time.Minute)
	events := s.Sweep()

	// THEN the due reservation goes ahead of the queue
	require.Len(t, events, 2)
	start := events[1].(ExamStart)
	assert.Equal(t, "r", start.PatientID)
	assert.True(t, start.Reserved)
	v := device(t, s, "xray_1")
	assert.Equal(t, []string{"b"}, ids(v.Queue))
	assert.Empty(t, v.Reservations)
}

func ctSpec(id string) EquipmentSpec {
	return EquipmentSpec{ID: id, Name: id, LocationID: "imaging", ExamType: "ct",
		Duration: time.Hour, MaxDailyUsage: 10}
}

func TestScheduler_Reservation_WaitsWhilePatientIsOnAnotherDevice(t *testing.T) {
	// GIVEN r holding a reservation on the x-ray while in a CT until 09:00,
	// and q queued on the x-ray
	s, clock := newTestScheduler(t, xraySpec("xray_1"), ctSpec("ct_1"))
	_, err := s.Request("b", "xray", 1)
	require.NoError(t, err)
	_, err = s.Request("r", "ct", 1)
	require.NoError(t, err)
	_, err = s.Reserve("r", "xray", "08:10")
	require.NoError(t, err)
	_, err = s.Request("q", "xray", 2)
	require.NoError(t, err)

	// WHEN the x-ray frees at 08:30
	clock.advance(31 * time.Minute)
	s.Sweep()

	// THEN the queue is served and the reservation is kept
	v := device(t, s, "xray_1")
	assert.Equal(t, "q", v.Occupant)
	assert.Equal(t, map[string]string{"08:10": "r"}, v.Reservations)
	require.NoError(t, s.CheckInvariants())

	// WHEN both devices free at 09:00
	clock.advance(39 * time.Minute)
	events := s.Sweep()

	// THEN the reserved patient goes next
	v = device(t, s, "xray_1")
	assert.Equal(t, "r", v.Occupant)
	assert.Empty(t, v.Reservations)
	assert.Contains(t, events, Event(ExamStart{EquipmentID: "xray_1", PatientID: "r",
		Started: t0.Add(time.Hour), Reserved: true}))
	require.NoError(t, s.CheckInvariants())
}

func TestScheduler_Request_QueuesPatientBusyElsewhere(t *testing.T) {
	// GIVEN a patient in the CT until 09:00
	s, clock := newTestScheduler(t, xraySpec("xray_1"), ctSpec("ct_1"))
	_, err := s.Request("a", "ct", 1)
	require.NoError(t, err)

	// WHEN it asks for the free x-ray
	r, err := s.Request("a", "xray", 1)

	// THEN it waits in the x-ray queue instead of holding two devices
	require.NoError(t, err)
	assert.Equal(t, OutcomeQueued, r.Outcome)
	assert.Equal(t, 1, r.Position)
	require.NoError(t, s.CheckInvariants())

	// WHEN the CT finishes
	clock.advance(61 * time.Minute)
	s.Sweep()

	// THEN the x-ray picks it up
	assert.Equal(t, "a", device(t, s, "xray_1").Occupant)
	assert.Equal(t, StatusAvailable, device(t, s, "ct_1").Status)
	require.NoError(t, s.CheckInvariants())
}

func TestScheduler_Reserve_CancelAndConflicts(t *testing.T) {
	s, _ := newTestScheduler(t, xraySpec("xray_1"))
	_, err := s.Reserve("a", "xray", "10:00")
	require.NoError(t, err)

	_, err = s.Reserve("b", "xray", "10:00")
	assert.ErrorIs(t, err, ErrSlotTaken)
	_, err = s.Reserve("b", "xray", "9am")
	assert.Error(t, err)
	_, err = s.Reserve("b", "mri", "10:00")
	assert.ErrorIs(t, err, ErrUnknownExamType)
	assert.Equal(t, map[string]string{"10:00": "a"}, device(t, s, "xray_1").Reservations)

	assert.Equal(t, 1, s.CancelReservation("a", "xray"))
	assert.Equal(t, 0, s.CancelReservation("a", "xray"))
	_, err = s.Reserve("b", "xray", "10:00")
	assert.NoError(t, err)
}

func TestScheduler_Withdraw_LeavesRunningExam(t *testing.T) {
	s, _ := newTestScheduler(t, xraySpec("xray_1"))
	_, err := s.Request("a", "xray", 1)
	require.NoError(t, err)
	_, err = s.Request("b", "xray", 1)
	require.NoError(t, err)
	_, err = s.Reserve("b", "xray", "15:00")
	require.NoError(t, err)

	s.Withdraw("b")
	s.Withdraw("a")

	v := device(t, s, "xray_1")
	assert.Empty(t, v.Queue)
	assert.Empty(t, v.Reservations)
	assert.Equal(t, "a", v.Occupant)
}

func TestScheduler_MaintenancePlan_FollowsCron(t *testing.T) {
	// GIVEN a daily 09:00 maintenance plan of 30 minutes
	s, clock := newTestScheduler(t, xraySpec("xray_1"))
	require.NoError(t, s.SetMaintenancePlan("xray_1", "0 9 * * *", 30*time.Minute))

	// WHEN the clock reaches 09:00
	clock.advance(time.Hour)
	events := s.Sweep()

	// THEN the device enters maintenance until 09:30
	require.Len(t, events, 1)
	mw := events[0].(MaintenanceWindow)
	assert.False(t, mw.Ended)
	assert.Equal(t, t0.Add(90*time.Minute), mw.Until)
	assert.Equal(t, StatusMaintenance, device(t, s, "xray_1").Status)

	// WHEN the window passes
	clock.advance(31 * time.Minute)
	s.Sweep()

	// THEN it is back in service and the next occurrence is tomorrow
	assert.Equal(t, StatusAvailable, device(t, s, "xray_1").Status)
	clock.advance(time.Hour)
	assert.Empty(t, s.Sweep())
}

func TestScheduler_MaintenancePlan_WaitsForRunningExam(t *testing.T) {
	// GIVEN an exam that runs past the planned 08:15 window
	s, clock := newTestScheduler(t, xraySpec("xray_1"))
	require.NoError(t, s.SetMaintenancePlan("xray_1", "15 8 * * *", 20*time.Minute))
	_, err := s.Request("a", "xray", 1)
	require.NoError(t, err)

	// WHEN the clock passes the plan time and the exam
	clock.advance(40 * time.Minute)
	s.Sweep()

	// THEN maintenance started when the exam finished
	v := device(t, s, "xray_1")
	assert.Equal(t, StatusMaintenance, v.Status)
	assert.Equal(t, t0.Add(50*time.Minute), v.MaintenanceUntil)
}

func TestScheduler_MaintenancePlan_Errors(t *testing.T) {
	s, _ := newTestScheduler(t, xraySpec("xray_1"))
	assert.Error(t, s.SetMaintenancePlan("xray_1", "not cron", time.Minute))
	assert.Error(t, s.SetMaintenancePlan("xray_1", "@daily", 0))
	assert.ErrorIs(t, s.SetMaintenancePlan("nope", "@daily", time.Minute), ErrUnknownEquipment)
	assert.NoError(t, s.SetMaintenancePlan("xray_1", "", 0))
}

func TestScheduler_FindBest_ShortestWait(t *testing.T) {
	s, _ := newTestScheduler(t, xraySpec("xray_1"), xraySpec("xray_2"))
	_, err := s.Request("a", "xray", 1)
	require.NoError(t, err)

	best, err := s.FindBest("xray")
	require.NoError(t, err)
	assert.Equal(t, "xray_2", best.EquipmentID)
	assert.Equal(t, time.Duration(0), best.EstimatedWait)
	assert.Equal(t, t0, best.EstimatedStart)
}

func TestScheduler_New_RejectsBadSpecs(t *testing.T) {
	clock := NewClock(t0, DefaultCalendar())
	_, err := NewEquipmentScheduler(clock, DefaultSchedulerConfig(), []EquipmentSpec{xraySpec("a"), xraySpec("a")}, nil)
	assert.ErrorIs(t, err, ErrDuplicateID)

	bad := xraySpec("a")
	bad.Duration = 0
	_, err = NewEquipmentScheduler(clock, DefaultSchedulerConfig(), []EquipmentSpec{bad}, nil)
	assert.Error(t, err)
}

func TestScheduler_StatusAndExamTypes(t *testing.T) {
	lab := EquipmentSpec{ID: "an_1", LocationID: "lab", ExamType: "blood_test", Duration: 20 * time.Minute, MaxDailyUsage: 5}
	s, _ := newTestScheduler(t, xraySpec("xray_1"), lab)

	assert.Equal(t, []string{"blood_test", "xray"}, s.ExamTypes())
	assert.Len(t, s.Status("", ""), 2)
	assert.Len(t, s.Status("xray", ""), 1)
	assert.Len(t, s.Status("", "lab"), 1)
	assert.Empty(t, s.Status("xray", "lab"))
}

func TestScheduler_CompetitionReport(t *testing.T) {
	// GIVEN a device with three patients waiting behind a running exam
	spec := xraySpec("xray_1")
	spec.MaxDailyUsage = 5
	s, _ := newTestScheduler(t, spec, xraySpec("xray_2"))
	require.NoError(t, s.SetMaintenance("xray_2", t0, time.Hour))
	for _, id := range []string{"a", "b", "c", "d"} {
		_, err := s.Request(id, "xray", 1)
		require.NoError(t, err)
	}

	// WHEN the report is built
	r := s.CompetitionReport()

	// THEN the queue is flagged as a hotspot and the usage as a bottleneck
	assert.Equal(t, 2, r.Devices)
	assert.Equal(t, 1, r.Busy)
	assert.Equal(t, 1, r.Maintenance)
	assert.Equal(t, 3, r.TotalQueued)
	assert.Equal(t, ExamTypeLoad{Devices: 2, Busy: 1, Maintenance: 1, Queued: 3}, r.ByExamType["xray"])
	require.Len(t, r.Hotspots, 1)
	assert.Equal(t, "xray_1", r.Hotspots[0].EquipmentID)
	assert.Equal(t, 120*time.Minute, r.Hotspots[0].EstimatedWait)
	assert.Empty(t, r.Bottlenecks, "usage 1/5 is under the ratio")
	assert.Contains(t, r.String(), "hotspot xray_1")
}

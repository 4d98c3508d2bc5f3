package sim

// Two urgency conventions coexist in the hospital:
//
//   - Equipment queues rank ascending: a smaller priority value is served first.
//   - Department wait lists (package coordinator) rank descending: a larger
//     value is served first. Department priority comes from symptom-keyword
//     triage and ranges 1..MaxDepartmentPriority.
//
// They are intentionally not unified. Where a department priority flows into an
// equipment request, EquipmentPriorityFor passes it through unchanged, so the
// most urgent department patient is the least urgent in an equipment queue.
// Callers that care must convert explicitly with InvertDepartmentPriority.
const (
	// MaxDepartmentPriority is the top of the department scale; critical patients are raised to it.
	MaxDepartmentPriority = 10
	// MinDepartmentPriority is the bottom of the department scale.
	MinDepartmentPriority = 1
)

// EquipmentPriorityFor maps a department priority to an equipment queue priority.
// It is the identity: the convention inversion is carried through as-is.
func EquipmentPriorityFor(departmentPriority int) int {
	return departmentPriority
}

// InvertDepartmentPriority converts a department priority (larger is more
// urgent) into the equipment convention (smaller is more urgent).
func InvertDepartmentPriority(departmentPriority int) int {
	p := ClampDepartmentPriority(departmentPriority)
	return MaxDepartmentPriority + MinDepartmentPriority - p
}

// ClampDepartmentPriority bounds p to [MinDepartmentPriority, MaxDepartmentPriority].
func ClampDepartmentPriority(p int) int {
	if p < MinDepartmentPriority {
		return MinDepartmentPriority
	}
	if p > MaxDepartmentPriority {
		return MaxDepartmentPriority
	}
	return p
}

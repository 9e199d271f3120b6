// Package capacity converts task counts into worker counts.
package capacity

// RequiredWorkers returns ceil(totalTasks / tasksPerWorker).
// It is 0 for an empty job and at least 1 otherwise. A non-positive
// tasksPerWorker is treated as 1.
func RequiredWorkers(totalTasks, tasksPerWorker int) int {
	if totalTasks <= 0 {
		return 0
	}
	if tasksPerWorker < 1 {
		tasksPerWorker = 1
	}
	return (totalTasks + tasksPerWorker - 1) / tasksPerWorker
}

// PlanIncrement returns how many workers to add so that min(required, hardCap)
// are active. It never returns a negative number: the fleet only grows here.
func PlanIncrement(required, currentActive, hardCap int) int {
	target := required
	if target > hardCap {
		target = hardCap
	}
	if n := target - currentActive; n > 0 {
		return n
	}
	return 0
}

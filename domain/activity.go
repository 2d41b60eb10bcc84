package domain

import "fmt"

// RecordCategoryChange maintains the per-category interval log on a task.
// prev is the previously persisted version of the task, or nil when the
// task is being created. now is a unix-millisecond timestamp. The log is
// only touched on creation or on an actual category transition; a
// same-category edit leaves it alone.
func RecordCategoryChange(task *Task, prev *Task, now int64) {
	if task.Activity == nil {
		task.Activity = Activity{}
	}

	if prev == nil {
		task.Activity[task.Category] = append(task.Activity[task.Category], Interval{Started: now})
		return
	}

	if prev.Category == task.Category {
		return
	}

	merged := prev.Activity.Clone()
	if merged == nil {
		merged = Activity{}
	}
	// The task's own entries win over the previous version's history.
	for category, intervals := range task.Activity {
		merged[category] = intervals
	}
	if intervals := merged[prev.Category]; len(intervals) > 0 {
		last := &intervals[len(intervals)-1]
		if last.Running() {
			finished := now
			last.Finished = &finished
		}
	}
	merged[task.Category] = append(merged[task.Category], Interval{Started: now})
	task.Activity = merged
}

// ElapsedTime sums the given intervals and renders the total as a human
// readable duration. A still running interval is measured against now.
// Totals under an hour render minutes only; an empty log renders
// "0 minutes".
func ElapsedTime(intervals []Interval, now int64) string {
	var totalMs int64
	for _, iv := range intervals {
		finished := now
		if iv.Finished != nil {
			finished = *iv.Finished
		}
		totalMs += finished - iv.Started
	}

	minutes := totalMs / 60000
	if minutes < 60 {
		return pluralize(minutes, "minute")
	}
	return fmt.Sprintf("%s, %s", pluralize(minutes/60, "hour"), pluralize(minutes%60, "minute"))
}

func pluralize(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

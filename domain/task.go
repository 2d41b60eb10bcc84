package domain

// Interval is a contiguous time range a task spent in one category.
// Timestamps are unix milliseconds. A nil Finished means the interval
// is still running.
type Interval struct {
	Started  int64  `json:"started"`
	Finished *int64 `json:"finished,omitempty"`
}

// Running reports whether the interval has no finish timestamp yet.
func (i Interval) Running() bool { return i.Finished == nil }

// Activity maps a category name to the ordered intervals a task spent there.
type Activity map[string][]Interval

// Task represents a single board card.
type Task struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Category string   `json:"category"`
	Order    int      `json:"order"`
	Estimate int      `json:"estimate"`
	Activity Activity `json:"activity"`
}

// Clone returns a deep copy sharing no mutable state with the receiver.
func (t Task) Clone() Task {
	out := t
	out.Activity = t.Activity.Clone()
	return out
}

// Clone returns a deep copy of the activity log.
func (a Activity) Clone() Activity {
	if a == nil {
		return nil
	}
	out := make(Activity, len(a))
	for category, intervals := range a {
		copied := make([]Interval, len(intervals))
		for i, iv := range intervals {
			copied[i] = iv
			if iv.Finished != nil {
				finished := *iv.Finished
				copied[i].Finished = &finished
			}
		}
		out[category] = copied
	}
	return out
}

// CloneTasks deep-copies a task slice.
func CloneTasks(tasks []Task) []Task {
	if tasks == nil {
		return nil
	}
	out := make([]Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}

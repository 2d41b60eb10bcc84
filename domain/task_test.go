package domain

import (
	"strings"
	"testing"

	"github.com/bytedance/sonic"
)

func TestTaskMarshalIncludesZeroOrder(t *testing.T) {
	task := Task{ID: "t1", Name: "Name", Category: "Planned", Order: 0}

	payload, err := sonic.Marshal(task)
	if err != nil {
		t.Fatalf("marshal task: %v", err)
	}

	if !strings.Contains(string(payload), "\"order\":0") {
		t.Fatalf("expected order field to be present, got %s", payload)
	}
}

func TestTaskCloneIsIndependent(t *testing.T) {
	finished := int64(900000)
	task := Task{
		ID:       "t1",
		Name:     "Write code",
		Category: "In progress",
		Activity: Activity{
			"Planned":     {{Started: 0, Finished: &finished}},
			"In progress": {{Started: 900000}},
		},
	}

	clone := task.Clone()
	clone.Activity["Planned"][0].Started = 42
	*clone.Activity["Planned"][0].Finished = 43
	clone.Activity["In progress"] = append(clone.Activity["In progress"], Interval{Started: 1})

	if task.Activity["Planned"][0].Started != 0 {
		t.Fatalf("clone shares interval slice with original")
	}
	if *task.Activity["Planned"][0].Finished != 900000 {
		t.Fatalf("clone shares finished pointer with original")
	}
	if len(task.Activity["In progress"]) != 1 {
		t.Fatalf("clone shares activity map with original")
	}
}

func TestCloneTasksNilSafe(t *testing.T) {
	if CloneTasks(nil) != nil {
		t.Fatalf("expected nil clone for nil input")
	}
}

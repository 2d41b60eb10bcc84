package domain

import (
	"encoding/json"

	"github.com/google/uuid"
)

const (
	TaskCreated   = "task-created"
	TaskUpdated   = "task-updated"
	TaskReordered = "task-reordered"
	TaskDeleted   = "task-deleted"
)

// Event represents a committed change on a user's board.
type Event struct {
	ID         string          `json:"id"`
	EntityID   string          `json:"entityId"`
	EntityType string          `json:"entityType"`
	Type       string          `json:"type"`
	Data       json.RawMessage `json:"data,omitempty"`
	Time       int64           `json:"time"`
	UserID     string          `json:"userId"`
}

// NewTaskEvent builds a task event of the given type for a single task.
func NewTaskEvent(eventType, userID string, task Task, time int64) (Event, error) {
	data, err := json.Marshal(task)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:         uuid.NewString(),
		EntityID:   task.ID,
		EntityType: "task",
		Type:       eventType,
		Data:       data,
		Time:       time,
		UserID:     userID,
	}, nil
}

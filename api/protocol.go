package api

import "github.com/etow/task-tracker/domain"

const taskRequestMaxSize = 64 * 1024 // 64 KiB

// GET /api/board response body
type boardResponse struct {
	Categories map[string]domain.Category `json:"categories"`
	Tasks      map[string][]domain.Task   `json:"tasks"`
}

// POST /api/tasks and PUT /api/tasks/:id request body. PrevCategory is
// only meaningful on update and marks a cross-category move.
type taskPayload struct {
	domain.Task
	PrevCategory string `json:"prevCategory,omitempty"`
}

// PUT /api/tasks/order request body
type reorderPayload struct {
	Category string        `json:"category"`
	Tasks    []domain.Task `json:"tasks"`
}

// PUT /api/board/editing request body. A null taskId clears the editor.
type editPayload struct {
	TaskID *string `json:"taskId"`
}

// GET /api/tasks/:id/activity response body
type activityResponse struct {
	TaskID  string            `json:"taskId"`
	Elapsed map[string]string `json:"elapsed"`
}

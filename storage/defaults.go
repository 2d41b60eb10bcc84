package storage

import "github.com/etow/task-tracker/domain"

// DefaultCategories is the workflow seeded for a user whose board has
// no categories yet.
var DefaultCategories = []domain.Category{
	{Name: "Planned", Color: "#F288B9"},
	{Name: "In progress", Color: "#62B7D9"},
	{Name: "Completed", Color: "#58A664", EndOfWorkflow: true},
}

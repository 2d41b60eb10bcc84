package domain

// Category is a workflow stage on the board. Name doubles as the unique key.
type Category struct {
	Name          string `json:"name"`
	Color         string `json:"color"`
	EndOfWorkflow bool   `json:"endOfWorkflow,omitempty"`
}

package domain

// TaskStatus is the lifecycle state of a TranscriptionTask.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// CanTransition reports whether s -> next is a legal move. Only
// pending -> completed and pending -> failed are allowed.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	return s == TaskPending && next.Terminal()
}

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskCompleted, TaskFailed:
		return true
	}
	return false
}

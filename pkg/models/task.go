package models

import "time"

// TaskStatus is the lifecycle state of a task. Transitions are monotonic:
// open -> assigned -> completed, and completed is terminal.
type TaskStatus string

const (
	StatusOpen      TaskStatus = "open"
	StatusAssigned  TaskStatus = "assigned"
	StatusCompleted TaskStatus = "completed"
)

// Rank orders statuses by how far along the lifecycle they are.
func (s TaskStatus) Rank() int {
	switch s {
	case StatusAssigned:
		return 1
	case StatusCompleted:
		return 2
	default:
		return 0
	}
}

// Task is a work item replicated across the mesh. The ID is assigned by the
// creating node and never changes; two tasks with the same ID are the same
// task. MobileNumber is sensitive and is stripped from every broadcast except
// an authorized contact-response.
type Task struct {
	ID             string     `json:"id" db:"id"`
	Title          string     `json:"title" db:"title"`
	Description    string     `json:"description" db:"description"`
	Type           string     `json:"type" db:"category"`
	Country        string     `json:"country" db:"country"`
	City           string     `json:"city" db:"city"`
	Location       string     `json:"location" db:"location"`
	Deadline       string     `json:"deadline,omitempty" db:"deadline"`
	Timestamp      time.Time  `json:"timestamp" db:"created_at"`
	OwnerID        string     `json:"ownerId,omitempty" db:"owner_id"`
	MobileNumber   string     `json:"mobileNumber,omitempty" db:"mobile_number"`
	Status         TaskStatus `json:"status" db:"status"`
	AssignedTo     string     `json:"assignedTo,omitempty" db:"assigned_to"`
	AssignedToName string     `json:"assignedToName,omitempty" db:"assigned_to_name"`
	// AssignedAt is the claimant's wall clock in epoch milliseconds, recorded
	// at claim time. It is the conflict-resolution key for competing claims.
	AssignedAt int64 `json:"assignedAt,omitempty" db:"assigned_at"`
}

// Clone returns a copy of the task.
func (t *Task) Clone() *Task {
	c := *t
	return &c
}

// Sanitized returns a copy with the sensitive contact field removed, suitable
// for inclusion in broadcast traffic.
func (t *Task) Sanitized() *Task {
	c := *t
	c.MobileNumber = ""
	return &c
}

// ChatMessage is a single entry in a task's chat log. Messages are
// deduplicated by ID and displayed in timestamp order.
type ChatMessage struct {
	ID         string    `json:"id" db:"id"`
	TaskID     string    `json:"taskId" db:"task_id"`
	SenderID   string    `json:"senderId" db:"sender_id"`
	SenderName string    `json:"senderName" db:"sender_name"`
	Text       string    `json:"text" db:"body"`
	Timestamp  time.Time `json:"timestamp" db:"created_at"`
}

// Clone returns a copy of the message.
func (m *ChatMessage) Clone() *ChatMessage {
	c := *m
	return &c
}

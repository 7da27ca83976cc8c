// Package disclosure mediates the contact-exchange protocol. A task's
// contact number is never broadcast with the task; the assigned claimant must
// request it, and only the holder of the number answers, addressed to the
// requester alone.
package disclosure

import (
	"time"

	"github.com/skillmesh/mesh-node/pkg/models"
)

// Mediator tracks outstanding contact requests made by this node and decides
// which requests from peers this node should answer.
type Mediator struct {
	localID string
	pending map[string]time.Time
}

// New creates a mediator for the given local peer ID.
func New(localID string) *Mediator {
	return &Mediator{
		localID: localID,
		pending: make(map[string]time.Time),
	}
}

// Answer decides whether this node should respond to a peer's contact
// request, given the local replica's copy of the task. The node answers iff
// it holds the number (which only the task's owner does) and its own view of
// the task shows the requester as the current assignee.
func (m *Mediator) Answer(task *models.Task, requesterID string) (string, bool) {
	if task == nil || requesterID == "" || requesterID == m.localID {
		return "", false
	}
	if task.MobileNumber == "" {
		return "", false
	}
	if task.AssignedTo != requesterID {
		return "", false
	}
	return task.MobileNumber, true
}

// Accepts reports whether a contact-response is addressed to this node.
// Responses for other peers are observed on the broadcast channel but must
// have no local effect.
func (m *Mediator) Accepts(targetID string) bool {
	return targetID == m.localID
}

// MarkRequested records that this node has asked for the task's contact and
// reports whether the request is new. Repeat lookups while a request is
// outstanding do not re-broadcast.
func (m *Mediator) MarkRequested(taskID string) bool {
	if _, ok := m.pending[taskID]; ok {
		return false
	}
	m.pending[taskID] = time.Now()
	return true
}

// Fulfilled clears the pending state once a response addressed to this node
// arrived for the task.
func (m *Mediator) Fulfilled(taskID string) {
	delete(m.pending, taskID)
}

// Pending reports whether a request for the task is outstanding.
func (m *Mediator) Pending(taskID string) bool {
	_, ok := m.pending[taskID]
	return ok
}

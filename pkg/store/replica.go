package store

import (
	"sort"

	"github.com/skillmesh/mesh-node/pkg/models"
)

// Replica holds the canonical local view of all tasks and per-task chat logs.
// Every mutating method is idempotent: re-applying the same input never
// changes the outcome. Methods report whether state actually changed so the
// caller can decide on follow-on broadcasts, and persist accepted mutations
// through the configured Persister before returning.
//
// Replica is not safe for concurrent use. The owning dispatcher serializes
// all access onto its event loop.
type Replica struct {
	persister Persister
	tasks     map[string]*models.Task
	chat      map[string][]*models.ChatMessage
	chatSeen  map[string]struct{}
}

// NewReplica creates an empty replica backed by the given persister.
func NewReplica(p Persister) *Replica {
	return &Replica{
		persister: p,
		tasks:     make(map[string]*models.Task),
		chat:      make(map[string][]*models.ChatMessage),
		chatSeen:  make(map[string]struct{}),
	}
}

// Load populates the replica from durable storage. Called once at boot,
// before the node subscribes to the mesh.
func (r *Replica) Load() error {
	tasks, err := r.persister.LoadTasks()
	if err != nil {
		return err
	}
	for _, t := range tasks {
		r.tasks[t.ID] = t.Clone()
	}
	msgs, err := r.persister.LoadChatMessages()
	if err != nil {
		return err
	}
	for _, m := range msgs {
		r.chat[m.TaskID] = append(r.chat[m.TaskID], m.Clone())
		r.chatSeen[m.ID] = struct{}{}
	}
	return nil
}

// ApplyCreate inserts the task iff no task with that ID exists. A duplicate
// create never overwrites the stored task.
func (r *Replica) ApplyCreate(task *models.Task) (bool, error) {
	if _, exists := r.tasks[task.ID]; exists {
		return false, nil
	}
	t := task.Clone()
	if t.Status == "" {
		t.Status = models.StatusOpen
	}
	r.tasks[t.ID] = t
	return true, r.persister.SaveTask(t)
}

// ApplyClaim records a claim if it wins against the current assignment per
// the conflict-resolution rule. Returns false for unknown tasks, claims
// without a claimant, losing claims, and exact re-applications of the
// recorded claim.
func (r *Replica) ApplyClaim(taskID, claimant, claimantName string, assignedAt int64) (bool, error) {
	if claimant == "" {
		return false, nil
	}
	t, ok := r.tasks[taskID]
	if !ok {
		return false, nil
	}
	if !ClaimWins(t, claimant, assignedAt) {
		return false, nil
	}
	if t.AssignedTo == claimant && t.AssignedAt == assignedAt {
		return false, nil
	}
	t.Status = models.StatusAssigned
	t.AssignedTo = claimant
	t.AssignedToName = claimantName
	t.AssignedAt = assignedAt
	return true, r.persister.SaveTask(t)
}

// ApplyComplete moves the task to completed unless it already is. Completed
// is terminal, so re-applying is a no-op.
func (r *Replica) ApplyComplete(taskID string) (bool, error) {
	t, ok := r.tasks[taskID]
	if !ok {
		return false, nil
	}
	if t.Status == models.StatusCompleted {
		return false, nil
	}
	t.Status = models.StatusCompleted
	return true, r.persister.SaveTask(t)
}

// ApplyContact records a disclosed contact number on the local copy of the
// task. Only called for contact-responses addressed to this node.
func (r *Replica) ApplyContact(taskID, mobileNumber string) (bool, error) {
	t, ok := r.tasks[taskID]
	if !ok || mobileNumber == "" {
		return false, nil
	}
	if t.MobileNumber == mobileNumber {
		return false, nil
	}
	t.MobileNumber = mobileNumber
	return true, r.persister.SaveTask(t)
}

// ApplyChatMessage appends to the task's chat log iff no message with that ID
// has been seen before.
func (r *Replica) ApplyChatMessage(msg *models.ChatMessage) (bool, error) {
	if _, seen := r.chatSeen[msg.ID]; seen {
		return false, nil
	}
	m := msg.Clone()
	r.chat[m.TaskID] = append(r.chat[m.TaskID], m)
	r.chatSeen[m.ID] = struct{}{}
	return true, r.persister.SaveChatMessage(m)
}

// MergeRemote folds one task from a peer's sync-response into local state.
// The merge is a join over (most advanced status, then earliest claim), which
// makes replaying the same response, or responses from many peers in any
// order, converge to the same result:
//
//   - unknown task: inserted as-is
//   - remote completed, local not: adopt completed plus the remote assignment
//   - remote assigned: earliest-wins claim rule against local state
//   - remote open: no effect on an assigned or completed local task
func (r *Replica) MergeRemote(remote *models.Task) (bool, error) {
	local, ok := r.tasks[remote.ID]
	if !ok {
		return r.ApplyCreate(remote)
	}
	switch remote.Status {
	case models.StatusCompleted:
		if local.Status == models.StatusCompleted {
			return false, nil
		}
		local.Status = models.StatusCompleted
		if remote.AssignedTo != "" {
			local.AssignedTo = remote.AssignedTo
			local.AssignedToName = remote.AssignedToName
			local.AssignedAt = remote.AssignedAt
		}
		return true, r.persister.SaveTask(local)
	case models.StatusAssigned:
		return r.ApplyClaim(remote.ID, remote.AssignedTo, remote.AssignedToName, remote.AssignedAt)
	default:
		return false, nil
	}
}

// Get returns a copy of the task, if known.
func (r *Replica) Get(taskID string) (*models.Task, bool) {
	t, ok := r.tasks[taskID]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// Tasks returns copies of all tasks, newest first. A zero status returns
// everything.
func (r *Replica) Tasks(status models.TaskStatus) []*models.Task {
	out := make([]*models.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		if status != "" && t.Status != status {
			continue
		}
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// SanitizedSnapshot returns the full task set with contact numbers stripped,
// for embedding in a sync-response.
func (r *Replica) SanitizedSnapshot() []*models.Task {
	out := make([]*models.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t.Sanitized())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ChatLog returns copies of the task's chat messages in timestamp order.
func (r *Replica) ChatLog(taskID string) []*models.ChatMessage {
	msgs := r.chat[taskID]
	out := make([]*models.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len reports the number of known tasks.
func (r *Replica) Len() int {
	return len(r.tasks)
}

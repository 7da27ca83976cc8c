package store

import "github.com/skillmesh/mesh-node/pkg/models"

// ClaimWins decides whether a candidate claim should replace the current
// assignment of a task. The rule is "first claimer wins" approximated by the
// claim's origin timestamp rather than arrival order: a strictly earlier
// assignedAt beats the recorded one, and an exactly equal assignedAt falls
// back to the lexicographically smaller peer ID. The outcome is therefore
// identical on every node regardless of delivery sequence. A completed task
// accepts no further claims.
func ClaimWins(current *models.Task, claimant string, assignedAt int64) bool {
	if current.Status == models.StatusCompleted {
		return false
	}
	if current.AssignedTo == "" {
		return true
	}
	if assignedAt != current.AssignedAt {
		return assignedAt < current.AssignedAt
	}
	return claimant < current.AssignedTo
}

package store

import (
	"testing"

	"github.com/skillmesh/mesh-node/pkg/models"
)

func TestClaimWins(t *testing.T) {
	tests := []struct {
		name       string
		current    models.Task
		claimant   string
		assignedAt int64
		want       bool
	}{
		{
			name:       "unclaimed task accepts any claim",
			current:    models.Task{Status: models.StatusOpen},
			claimant:   "peer-b",
			assignedAt: 1000,
			want:       true,
		},
		{
			name:       "earlier timestamp beats recorded claim",
			current:    models.Task{Status: models.StatusAssigned, AssignedTo: "peer-b", AssignedAt: 1000},
			claimant:   "peer-c",
			assignedAt: 900,
			want:       true,
		},
		{
			name:       "later timestamp loses",
			current:    models.Task{Status: models.StatusAssigned, AssignedTo: "peer-b", AssignedAt: 900},
			claimant:   "peer-c",
			assignedAt: 1000,
			want:       false,
		},
		{
			name:       "equal timestamp, lower peer id wins",
			current:    models.Task{Status: models.StatusAssigned, AssignedTo: "peer-b", AssignedAt: 1000},
			claimant:   "peer-a",
			assignedAt: 1000,
			want:       true,
		},
		{
			name:       "equal timestamp, higher peer id loses",
			current:    models.Task{Status: models.StatusAssigned, AssignedTo: "peer-b", AssignedAt: 1000},
			claimant:   "peer-c",
			assignedAt: 1000,
			want:       false,
		},
		{
			name:       "completed task accepts no claims",
			current:    models.Task{Status: models.StatusCompleted, AssignedTo: "peer-b", AssignedAt: 1000},
			claimant:   "peer-a",
			assignedAt: 1,
			want:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClaimWins(&tt.current, tt.claimant, tt.assignedAt)
			if got != tt.want {
				t.Errorf("ClaimWins(%+v, %q, %d) = %v, want %v",
					tt.current, tt.claimant, tt.assignedAt, got, tt.want)
			}
		})
	}
}

func TestClaimWinsDeterministicAcrossOrder(t *testing.T) {
	// Whatever order two competing claims arrive in, the same claimant must
	// hold the task afterwards.
	claims := []struct {
		peer string
		at   int64
	}{
		{"peer-b", 1000},
		{"peer-c", 900},
	}

	winnerFor := func(order []int) string {
		task := models.Task{ID: "t1", Status: models.StatusOpen}
		for _, i := range order {
			c := claims[i]
			if ClaimWins(&task, c.peer, c.at) {
				task.Status = models.StatusAssigned
				task.AssignedTo = c.peer
				task.AssignedAt = c.at
			}
		}
		return task.AssignedTo
	}

	forward := winnerFor([]int{0, 1})
	backward := winnerFor([]int{1, 0})
	if forward != backward {
		t.Errorf("winner depends on arrival order: %q vs %q", forward, backward)
	}
	if forward != "peer-c" {
		t.Errorf("winner = %q, want peer-c (earliest assignedAt)", forward)
	}
}

package store

import (
	"testing"
	"time"

	"github.com/skillmesh/mesh-node/pkg/models"
)

func newTestReplica(t *testing.T) *Replica {
	t.Helper()
	return NewReplica(NewMemory())
}

// mustApply returns a closure that unwraps a replica mutation, failing the
// test on persistence errors and passing the changed flag through.
func mustApply(t *testing.T) func(changed bool, err error) bool {
	return func(changed bool, err error) bool {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected persistence error: %v", err)
		}
		return changed
	}
}

func TestApplyCreateFirstWins(t *testing.T) {
	r := newTestReplica(t)
	apply := mustApply(t)

	first := &models.Task{ID: "t1", Title: "Fix the sink", Status: models.StatusOpen}
	if !apply(r.ApplyCreate(first)) {
		t.Fatal("first create should change state")
	}

	dup := &models.Task{ID: "t1", Title: "Something else entirely"}
	if apply(r.ApplyCreate(dup)) {
		t.Error("duplicate create should be a no-op")
	}

	got, ok := r.Get("t1")
	if !ok {
		t.Fatal("task t1 missing")
	}
	if got.Title != "Fix the sink" {
		t.Errorf("stored title = %q, want the first create to win", got.Title)
	}
}

func TestApplyCreateDoesNotAliasCaller(t *testing.T) {
	r := newTestReplica(t)
	apply := mustApply(t)

	task := &models.Task{ID: "t1", Title: "Original"}
	apply(r.ApplyCreate(task))
	task.Title = "Mutated after insert"

	got, _ := r.Get("t1")
	if got.Title != "Original" {
		t.Errorf("replica aliases caller memory: title = %q", got.Title)
	}
}

func TestApplyClaimOrderIndependence(t *testing.T) {
	type claim struct {
		peer string
		name string
		at   int64
	}
	early := claim{"peer-c", "Carol", 900}
	late := claim{"peer-b", "Bob", 1000}

	for _, order := range [][]claim{{late, early}, {early, late}} {
		r := newTestReplica(t)
		apply := mustApply(t)
		apply(r.ApplyCreate(&models.Task{ID: "t1", Status: models.StatusOpen}))
		for _, c := range order {
			_, err := r.ApplyClaim("t1", c.peer, c.name, c.at)
			if err != nil {
				t.Fatalf("ApplyClaim: %v", err)
			}
		}
		got, _ := r.Get("t1")
		if got.AssignedTo != "peer-c" || got.AssignedAt != 900 {
			t.Errorf("order %v: assignedTo=%q assignedAt=%d, want peer-c@900", order, got.AssignedTo, got.AssignedAt)
		}
		if got.Status != models.StatusAssigned {
			t.Errorf("status = %q, want assigned", got.Status)
		}
	}
}

func TestApplyClaimTieBreakByPeerID(t *testing.T) {
	for _, order := range [][]string{{"peer-b", "peer-a"}, {"peer-a", "peer-b"}} {
		r := newTestReplica(t)
		apply := mustApply(t)
		apply(r.ApplyCreate(&models.Task{ID: "t1", Status: models.StatusOpen}))
		for _, peer := range order {
			r.ApplyClaim("t1", peer, "", 1000)
		}
		got, _ := r.Get("t1")
		if got.AssignedTo != "peer-a" {
			t.Errorf("order %v: assignedTo = %q, want peer-a (lexicographic tie-break)", order, got.AssignedTo)
		}
	}
}

func TestApplyClaimUnknownTask(t *testing.T) {
	r := newTestReplica(t)
	apply := mustApply(t)
	if apply(r.ApplyClaim("nope", "peer-b", "Bob", 1000)) {
		t.Error("claim on unknown task should be a no-op")
	}
}

func TestApplyClaimEmptyClaimantRejected(t *testing.T) {
	r := newTestReplica(t)
	apply := mustApply(t)
	apply(r.ApplyCreate(&models.Task{ID: "t1", Status: models.StatusOpen}))

	if apply(r.ApplyClaim("t1", "", "", 500)) {
		t.Error("claim without a claimant should be a no-op")
	}
	got, _ := r.Get("t1")
	if got.Status != models.StatusOpen || got.AssignedTo != "" {
		t.Errorf("task mutated by empty claim: status=%q assignedTo=%q", got.Status, got.AssignedTo)
	}
}

func TestApplyClaimReapplySameClaim(t *testing.T) {
	r := newTestReplica(t)
	apply := mustApply(t)
	apply(r.ApplyCreate(&models.Task{ID: "t1", Status: models.StatusOpen}))
	if !apply(r.ApplyClaim("t1", "peer-b", "Bob", 1000)) {
		t.Fatal("first claim should change state")
	}
	if apply(r.ApplyClaim("t1", "peer-b", "Bob", 1000)) {
		t.Error("re-applying the identical claim should be a no-op")
	}
}

func TestApplyCompleteIdempotentAndTerminal(t *testing.T) {
	r := newTestReplica(t)
	apply := mustApply(t)
	apply(r.ApplyCreate(&models.Task{ID: "t1", Status: models.StatusOpen}))
	apply(r.ApplyClaim("t1", "peer-b", "Bob", 1000))

	if !apply(r.ApplyComplete("t1")) {
		t.Fatal("first complete should change state")
	}
	if apply(r.ApplyComplete("t1")) {
		t.Error("second complete should be a no-op")
	}

	// No later claim may revert a completed task, even an "earlier" one.
	if apply(r.ApplyClaim("t1", "peer-a", "Alice", 1)) {
		t.Error("completed task accepted a claim")
	}
	got, _ := r.Get("t1")
	if got.Status != models.StatusCompleted || got.AssignedTo != "peer-b" {
		t.Errorf("task reverted: status=%q assignedTo=%q", got.Status, got.AssignedTo)
	}
}

func TestMergeRemoteRules(t *testing.T) {
	base := func(t *testing.T) *Replica {
		t.Helper()
		r := newTestReplica(t)
		mustApply(t)(r.ApplyCreate(&models.Task{ID: "t1", Status: models.StatusOpen}))
		return r
	}

	t.Run("unknown task inserted as-is", func(t *testing.T) {
		r := newTestReplica(t)
		apply := mustApply(t)
		remote := &models.Task{ID: "t9", Status: models.StatusAssigned, AssignedTo: "peer-b", AssignedAt: 500}
		if !apply(r.MergeRemote(remote)) {
			t.Fatal("merge of unknown task should insert")
		}
		got, _ := r.Get("t9")
		if got.Status != models.StatusAssigned || got.AssignedTo != "peer-b" {
			t.Errorf("inserted task = %+v, want remote state preserved", got)
		}
	})

	t.Run("remote completed adopts terminal state and assignee", func(t *testing.T) {
		r := base(t)
		apply := mustApply(t)
		apply(r.ApplyClaim("t1", "peer-c", "Carol", 900))
		remote := &models.Task{ID: "t1", Status: models.StatusCompleted, AssignedTo: "peer-b", AssignedToName: "Bob", AssignedAt: 1000}
		if !apply(r.MergeRemote(remote)) {
			t.Fatal("merge should adopt completed state")
		}
		got, _ := r.Get("t1")
		if got.Status != models.StatusCompleted || got.AssignedTo != "peer-b" {
			t.Errorf("got status=%q assignedTo=%q, want completed/peer-b", got.Status, got.AssignedTo)
		}
	})

	t.Run("remote assigned runs earliest-wins", func(t *testing.T) {
		r := base(t)
		apply := mustApply(t)
		apply(r.ApplyClaim("t1", "peer-b", "Bob", 1000))
		remote := &models.Task{ID: "t1", Status: models.StatusAssigned, AssignedTo: "peer-c", AssignedAt: 900}
		if !apply(r.MergeRemote(remote)) {
			t.Fatal("earlier remote claim should win")
		}
		got, _ := r.Get("t1")
		if got.AssignedTo != "peer-c" {
			t.Errorf("assignedTo = %q, want peer-c", got.AssignedTo)
		}
	})

	t.Run("remote open has no effect on assigned task", func(t *testing.T) {
		r := base(t)
		apply := mustApply(t)
		apply(r.ApplyClaim("t1", "peer-b", "Bob", 1000))
		remote := &models.Task{ID: "t1", Status: models.StatusOpen}
		if apply(r.MergeRemote(remote)) {
			t.Error("remote open should not touch an assigned task")
		}
	})

	t.Run("replaying the same response is a no-op", func(t *testing.T) {
		r := base(t)
		apply := mustApply(t)
		remote := &models.Task{ID: "t1", Status: models.StatusAssigned, AssignedTo: "peer-b", AssignedAt: 1000}
		apply(r.MergeRemote(remote))
		if apply(r.MergeRemote(remote)) {
			t.Error("second merge of the same task changed state")
		}
	})
}

func TestMergeRemoteConvergence(t *testing.T) {
	// Two nodes see disjoint histories, then exchange one full snapshot each.
	// Both must end with identical ledgers.
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	a := newTestReplica(t)
	b := newTestReplica(t)
	apply := mustApply(t)

	// Node A saw: t1 created and claimed by peer-a, t2 created.
	apply(a.ApplyCreate(&models.Task{ID: "t1", Title: "one", Timestamp: ts, Status: models.StatusOpen}))
	apply(a.ApplyClaim("t1", "peer-a", "Alice", 800))
	apply(a.ApplyCreate(&models.Task{ID: "t2", Title: "two", Timestamp: ts, Status: models.StatusOpen}))

	// Node B saw: t1 created and claimed later by peer-b, t3 created+completed.
	apply(b.ApplyCreate(&models.Task{ID: "t1", Title: "one", Timestamp: ts, Status: models.StatusOpen}))
	apply(b.ApplyClaim("t1", "peer-b", "Bob", 950))
	apply(b.ApplyCreate(&models.Task{ID: "t3", Title: "three", Timestamp: ts, Status: models.StatusOpen}))
	apply(b.ApplyClaim("t3", "peer-b", "Bob", 900))
	apply(b.ApplyComplete("t3"))

	exchange := func(dst, src *Replica) {
		for _, task := range src.SanitizedSnapshot() {
			if _, err := dst.MergeRemote(task); err != nil {
				t.Fatalf("MergeRemote: %v", err)
			}
		}
	}
	exchange(a, b)
	exchange(b, a)

	sa := a.SanitizedSnapshot()
	sb := b.SanitizedSnapshot()
	if len(sa) != len(sb) {
		t.Fatalf("ledger sizes differ: %d vs %d", len(sa), len(sb))
	}
	for i := range sa {
		if *sa[i] != *sb[i] {
			t.Errorf("task %d diverged:\n a=%+v\n b=%+v", i, sa[i], sb[i])
		}
	}

	t1a, _ := a.Get("t1")
	if t1a.AssignedTo != "peer-a" || t1a.AssignedAt != 800 {
		t.Errorf("t1 winner = %q@%d, want peer-a@800", t1a.AssignedTo, t1a.AssignedAt)
	}
	t3a, _ := a.Get("t3")
	if t3a.Status != models.StatusCompleted {
		t.Errorf("t3 status = %q, want completed", t3a.Status)
	}
}

func TestApplyChatMessageDedupAndOrder(t *testing.T) {
	r := newTestReplica(t)
	apply := mustApply(t)
	apply(r.ApplyCreate(&models.Task{ID: "t1", Status: models.StatusOpen}))

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	later := &models.ChatMessage{ID: "m2", TaskID: "t1", Text: "second", Timestamp: base.Add(time.Minute)}
	earlier := &models.ChatMessage{ID: "m1", TaskID: "t1", Text: "first", Timestamp: base}

	// Arrival order is reversed; display order must follow timestamps.
	apply(r.ApplyChatMessage(later))
	apply(r.ApplyChatMessage(earlier))
	if apply(r.ApplyChatMessage(later)) {
		t.Error("duplicate chat message id should be a no-op")
	}

	log := r.ChatLog("t1")
	if len(log) != 2 {
		t.Fatalf("chat log length = %d, want 2", len(log))
	}
	if log[0].ID != "m1" || log[1].ID != "m2" {
		t.Errorf("chat order = [%s %s], want [m1 m2]", log[0].ID, log[1].ID)
	}
}

func TestSanitizedSnapshotStripsContact(t *testing.T) {
	r := newTestReplica(t)
	apply := mustApply(t)
	apply(r.ApplyCreate(&models.Task{ID: "t1", MobileNumber: "555-1234", Status: models.StatusOpen}))

	for _, task := range r.SanitizedSnapshot() {
		if task.MobileNumber != "" {
			t.Errorf("snapshot leaked contact number for %s", task.ID)
		}
	}

	// The stored task keeps it.
	got, _ := r.Get("t1")
	if got.MobileNumber != "555-1234" {
		t.Errorf("local copy lost contact number: %q", got.MobileNumber)
	}
}

func TestApplyContact(t *testing.T) {
	r := newTestReplica(t)
	apply := mustApply(t)
	apply(r.ApplyCreate(&models.Task{ID: "t1", Status: models.StatusOpen}))

	if !apply(r.ApplyContact("t1", "555-1234")) {
		t.Fatal("first contact application should change state")
	}
	if apply(r.ApplyContact("t1", "555-1234")) {
		t.Error("re-applying the same contact should be a no-op")
	}
	if apply(r.ApplyContact("missing", "555-0000")) {
		t.Error("contact for unknown task should be a no-op")
	}
}

func TestReplicaLoadRoundTrip(t *testing.T) {
	persister := NewMemory()
	apply := mustApply(t)

	r := NewReplica(persister)
	apply(r.ApplyCreate(&models.Task{ID: "t1", Title: "persisted", Status: models.StatusOpen}))
	apply(r.ApplyClaim("t1", "peer-b", "Bob", 1000))
	apply(r.ApplyChatMessage(&models.ChatMessage{ID: "m1", TaskID: "t1", Text: "hello"}))

	reloaded := NewReplica(persister)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	got, ok := reloaded.Get("t1")
	if !ok {
		t.Fatal("task lost across reload")
	}
	if got.Status != models.StatusAssigned || got.AssignedTo != "peer-b" {
		t.Errorf("reloaded task = %+v, want assigned to peer-b", got)
	}
	if len(reloaded.ChatLog("t1")) != 1 {
		t.Error("chat log lost across reload")
	}
}

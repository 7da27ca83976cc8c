// Package gossip owns the node's single entry and exit point for the
// broadcast channel. Inbound payloads are decoded once into typed messages
// and routed to the replica, the presence tracker, or the disclosure
// mediator; local mutations run through the same event loop and broadcast
// their resulting events. One goroutine consumes the loop, so no component
// behind it needs locking.
package gossip

import (
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/skillmesh/mesh-node/pkg/config"
	"github.com/skillmesh/mesh-node/pkg/disclosure"
	"github.com/skillmesh/mesh-node/pkg/mesh"
	"github.com/skillmesh/mesh-node/pkg/models"
	"github.com/skillmesh/mesh-node/pkg/presence"
	"github.com/skillmesh/mesh-node/pkg/store"
)

const eventBacklog = 512

// Notifier is poked whenever replicated state changes, so the local API can
// push updates to connected clients.
type Notifier interface {
	Notify()
}

// Options wires a Dispatcher.
type Options struct {
	Transport mesh.Transport
	Replica   *store.Replica
	Presence  *presence.Tracker
	Contacts  *disclosure.Mediator
	Profile   *models.Profile
	Persister store.Persister
	Settings  config.MeshSettings
	Notifier  Notifier
	// Fatal is invoked on persistence failure. Defaults to logging and
	// exiting the process: a node that cannot persist must halt rather than
	// silently diverge from disk.
	Fatal func(error)
}

var _ models.MeshNode = (*Dispatcher)(nil)

// Dispatcher is the running node core.
type Dispatcher struct {
	transport mesh.Transport
	replica   *store.Replica
	presence  *presence.Tracker
	contacts  *disclosure.Mediator
	profile   *models.Profile
	persister store.Persister
	settings  config.MeshSettings
	notifier  Notifier
	fatal     func(error)

	events   chan func()
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a Dispatcher. Call Start to subscribe and begin processing.
func New(opts Options) *Dispatcher {
	fatal := opts.Fatal
	if fatal == nil {
		fatal = func(err error) {
			slog.Error("persistence failure, halting node", "error", err)
			os.Exit(1)
		}
	}
	return &Dispatcher{
		transport: opts.Transport,
		replica:   opts.Replica,
		presence:  opts.Presence,
		contacts:  opts.Contacts,
		profile:   opts.Profile,
		persister: opts.Persister,
		settings:  opts.Settings,
		notifier:  opts.Notifier,
		fatal:     fatal,
		events:    make(chan func(), eventBacklog),
		done:      make(chan struct{}),
	}
}

// Start subscribes to the gossip topic and launches the event loop and the
// periodic timers: heartbeat broadcast, the one-shot startup sync-request,
// and the optional periodic resync.
func (d *Dispatcher) Start() error {
	if err := d.transport.Subscribe(d.settings.Topic, d.onMessage); err != nil {
		return err
	}
	go d.loop()
	go d.runTimers()
	d.events <- d.sendHeartbeat
	return nil
}

// Stop halts the event loop and timers. Inflight events drain; new ones are
// dropped by the closed transport.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.done) })
}

func (d *Dispatcher) loop() {
	for {
		select {
		case fn := <-d.events:
			fn()
		case <-d.done:
			return
		}
	}
}

func (d *Dispatcher) runTimers() {
	heartbeat := time.NewTicker(d.settings.HeartbeatInterval)
	defer heartbeat.Stop()

	startupSync := time.NewTimer(d.settings.SyncDelay)
	defer startupSync.Stop()

	var resync <-chan time.Time
	if d.settings.ResyncInterval > 0 {
		ticker := time.NewTicker(d.settings.ResyncInterval)
		defer ticker.Stop()
		resync = ticker.C
	}

	for {
		select {
		case <-d.done:
			return
		case <-heartbeat.C:
			d.events <- d.sendHeartbeat
		case <-startupSync.C:
			d.events <- d.sendSyncRequest
		case <-resync:
			d.events <- d.sendSyncRequest
		}
	}
}

// do runs fn on the event loop and waits for it, giving local API calls
// read-your-writes against the single-writer state.
func (d *Dispatcher) do(fn func()) {
	done := make(chan struct{})
	select {
	case d.events <- func() { defer close(done); fn() }:
		<-done
	case <-d.done:
	}
}

// onMessage is the transport delivery callback. It hands the payload to the
// event loop; decoding and merging happen there.
func (d *Dispatcher) onMessage(_ string, payload []byte) {
	body := make([]byte, len(payload))
	copy(body, payload)
	select {
	case d.events <- func() { d.handle(body) }:
	case <-d.done:
	}
}

func (d *Dispatcher) handle(payload []byte) {
	msg, err := Decode(payload)
	if err != nil {
		slog.Warn("dropping malformed gossip payload", "error", err, "size", len(payload))
		return
	}

	switch m := msg.(type) {
	case *TaskBroadcast:
		d.handleTaskBroadcast(m)
	case *TaskClaim:
		d.handleTaskClaim(m)
	case *TaskComplete:
		d.handleTaskComplete(m)
	case *SyncRequest:
		d.handleSyncRequest()
	case *SyncResponse:
		d.handleSyncResponse(m)
	case *ContactRequest:
		d.handleContactRequest(m)
	case *ContactResponse:
		d.handleContactResponse(m)
	case *ChatEvent:
		d.handleChatEvent(m)
	case *Heartbeat:
		d.handleHeartbeat(m)
	}
}

func (d *Dispatcher) handleTaskBroadcast(m *TaskBroadcast) {
	if m.Task == nil || m.Task.ID == "" {
		slog.Warn("dropping task broadcast without task")
		return
	}
	// The contact number must never arrive this way; strip it even if a
	// misbehaving peer included one.
	changed, err := d.replica.ApplyCreate(m.Task.Sanitized())
	if err != nil {
		d.fatal(err)
		return
	}
	if changed {
		slog.Info("task received from mesh", "task", m.Task.ID, "title", m.Task.Title)
		d.notify()
	}
}

func (d *Dispatcher) handleTaskClaim(m *TaskClaim) {
	if m.TaskID == "" || m.AssignedTo == "" {
		slog.Warn("dropping task claim without task or claimant", "task", m.TaskID)
		return
	}
	changed, err := d.replica.ApplyClaim(m.TaskID, m.AssignedTo, m.AssignedToName, m.AssignedAt)
	if err != nil {
		d.fatal(err)
		return
	}
	if changed {
		slog.Info("task claim merged", "task", m.TaskID, "assigned_to", m.AssignedTo)
		d.notify()
	}
}

func (d *Dispatcher) handleTaskComplete(m *TaskComplete) {
	changed, err := d.replica.ApplyComplete(m.TaskID)
	if err != nil {
		d.fatal(err)
		return
	}
	if changed {
		slog.Info("task completion merged", "task", m.TaskID)
		d.notify()
	}
}

func (d *Dispatcher) handleSyncRequest() {
	snapshot := d.replica.SanitizedSnapshot()
	if len(snapshot) == 0 {
		return
	}
	d.broadcast(&SyncResponse{Tasks: snapshot})
}

func (d *Dispatcher) handleSyncResponse(m *SyncResponse) {
	anyChanged := false
	for _, remote := range m.Tasks {
		if remote == nil || remote.ID == "" {
			continue
		}
		changed, err := d.replica.MergeRemote(remote.Sanitized())
		if err != nil {
			d.fatal(err)
			return
		}
		anyChanged = anyChanged || changed
	}
	if anyChanged {
		slog.Info("sync response merged", "tasks", len(m.Tasks))
		d.notify()
	}
}

func (d *Dispatcher) handleContactRequest(m *ContactRequest) {
	if m.RequesterID == d.profile.ID {
		// Our own request echoed back by the broker.
		return
	}
	task, _ := d.replica.Get(m.TaskID)
	number, ok := d.contacts.Answer(task, m.RequesterID)
	if !ok {
		return
	}
	slog.Info("disclosing contact to assignee", "task", m.TaskID, "target", m.RequesterID)
	d.broadcast(&ContactResponse{TaskID: m.TaskID, MobileNumber: number, TargetID: m.RequesterID})
}

func (d *Dispatcher) handleContactResponse(m *ContactResponse) {
	if !d.contacts.Accepts(m.TargetID) {
		return
	}
	changed, err := d.replica.ApplyContact(m.TaskID, m.MobileNumber)
	if err != nil {
		d.fatal(err)
		return
	}
	if changed {
		d.contacts.Fulfilled(m.TaskID)
		slog.Info("contact received", "task", m.TaskID)
		d.notify()
	}
}

func (d *Dispatcher) handleChatEvent(m *ChatEvent) {
	changed, err := d.replica.ApplyChatMessage(&models.ChatMessage{
		ID:         m.ID,
		TaskID:     m.TaskID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Text:       m.Text,
		Timestamp:  m.Timestamp,
	})
	if err != nil {
		d.fatal(err)
		return
	}
	if changed {
		d.notify()
	}
}

func (d *Dispatcher) handleHeartbeat(m *Heartbeat) {
	d.presence.Observe(&models.PeerPresence{
		ID:             m.ID,
		Name:           m.Name,
		Profession:     m.Profession,
		Rating:         m.Rating,
		CompletedTasks: m.CompletedTasks,
		IsAvailable:    m.IsAvailable,
		Location:       m.Location,
		Addresses:      m.Addresses,
	})
}

func (d *Dispatcher) sendHeartbeat() {
	d.broadcast(&Heartbeat{
		ID:             d.profile.ID,
		Name:           d.profile.Name,
		Profession:     d.profile.Profession,
		Rating:         d.profile.Rating,
		CompletedTasks: d.profile.CompletedTasks,
		IsAvailable:    d.profile.IsAvailable,
		Location:       d.profile.Location,
		Addresses:      d.transport.LocalAddresses(),
	})
}

func (d *Dispatcher) sendSyncRequest() {
	slog.Info("requesting full sync from mesh")
	d.broadcast(&SyncRequest{})
}

// broadcast publishes fire-and-forget. An unavailable transport is an
// expected condition, not a failure: the next periodic event re-attempts
// naturally, so nothing is retried here.
func (d *Dispatcher) broadcast(m Message) {
	payload, err := Encode(m)
	if err != nil {
		slog.Error("encoding gossip message", "kind", m.Kind(), "error", err)
		return
	}
	if err := d.transport.Publish(d.settings.Topic, payload); err != nil {
		if errors.Is(err, mesh.ErrTransportUnavailable) {
			slog.Debug("broadcast skipped", "kind", m.Kind(), "error", err)
		} else {
			slog.Warn("broadcast failed", "kind", m.Kind(), "error", err)
		}
	}
}

func (d *Dispatcher) notify() {
	if d.notifier != nil {
		d.notifier.Notify()
	}
}

func (d *Dispatcher) saveProfile() {
	if err := d.persister.SaveProfile(d.profile); err != nil {
		d.fatal(err)
	}
}

// ---- local API (models.MeshNode) ----

// Profile returns a copy of the local profile.
func (d *Dispatcher) Profile() *models.Profile {
	var out *models.Profile
	d.do(func() { out = d.profile.Clone() })
	return out
}

// UpdateProfile replaces the editable profile fields and announces the change
// with an immediate heartbeat.
func (d *Dispatcher) UpdateProfile(name, profession, location, mobileNumber string) (*models.Profile, error) {
	var out *models.Profile
	d.do(func() {
		d.profile.Name = name
		d.profile.Profession = profession
		d.profile.Location = location
		d.profile.MobileNumber = mobileNumber
		d.saveProfile()
		d.sendHeartbeat()
		out = d.profile.Clone()
	})
	return out, nil
}

// SetAvailability flips the availability flag.
func (d *Dispatcher) SetAvailability(available bool) (*models.Profile, error) {
	var out *models.Profile
	d.do(func() {
		d.profile.IsAvailable = available
		d.saveProfile()
		d.sendHeartbeat()
		out = d.profile.Clone()
	})
	return out, nil
}

// CreateTask posts a new task owned by this node and broadcasts it to the
// mesh with the contact number stripped.
func (d *Dispatcher) CreateTask(task *models.Task) (*models.Task, error) {
	var out *models.Task
	var err error
	d.do(func() {
		t := task.Clone()
		if t.ID == "" {
			t.ID = "task-" + xid.New().String()
		}
		if t.Timestamp.IsZero() {
			t.Timestamp = time.Now()
		}
		t.OwnerID = d.profile.ID
		t.Status = models.StatusOpen
		t.AssignedTo = ""
		t.AssignedToName = ""
		t.AssignedAt = 0
		if t.MobileNumber == "" {
			t.MobileNumber = d.profile.MobileNumber
		}

		changed, perr := d.replica.ApplyCreate(t)
		if perr != nil {
			d.fatal(perr)
			return
		}
		if !changed {
			err = store.ErrConflict
			return
		}
		slog.Info("task created", "task", t.ID, "title", t.Title)
		d.broadcast(&TaskBroadcast{Task: t.Sanitized()})
		d.notify()
		out = t
	})
	return out, err
}

// ClaimTask claims an open task for this node. The claim's origin time is
// recorded now and decides conflicts against concurrent claimants elsewhere.
func (d *Dispatcher) ClaimTask(taskID string) (*models.Task, error) {
	var out *models.Task
	var err error
	d.do(func() {
		t, ok := d.replica.Get(taskID)
		if !ok {
			err = store.ErrNotFound
			return
		}
		if t.Status != models.StatusOpen {
			err = store.ErrConflict
			return
		}

		assignedAt := time.Now().UnixMilli()
		changed, perr := d.replica.ApplyClaim(taskID, d.profile.ID, d.profile.Name, assignedAt)
		if perr != nil {
			d.fatal(perr)
			return
		}
		if !changed {
			err = store.ErrConflict
			return
		}
		slog.Info("task claimed", "task", taskID, "assigned_at", assignedAt)
		d.broadcast(&TaskClaim{
			TaskID:         taskID,
			AssignedTo:     d.profile.ID,
			AssignedToName: d.profile.Name,
			AssignedAt:     assignedAt,
		})
		d.notify()
		out, _ = d.replica.Get(taskID)
	})
	return out, err
}

// CompleteTask finishes a task this node is assigned to and bumps the local
// completed-task counter.
func (d *Dispatcher) CompleteTask(taskID string) (*models.Task, error) {
	var out *models.Task
	var err error
	d.do(func() {
		t, ok := d.replica.Get(taskID)
		if !ok {
			err = store.ErrNotFound
			return
		}
		if t.AssignedTo != d.profile.ID {
			err = store.ErrUnauthorized
			return
		}

		changed, perr := d.replica.ApplyComplete(taskID)
		if perr != nil {
			d.fatal(perr)
			return
		}
		if changed {
			d.profile.CompletedTasks++
			d.saveProfile()
			slog.Info("task completed", "task", taskID, "completed_total", d.profile.CompletedTasks)
			d.broadcast(&TaskComplete{TaskID: taskID})
			d.notify()
		}
		out, _ = d.replica.Get(taskID)
	})
	return out, err
}

// ListTasks returns the local view of the ledger, newest first, optionally
// filtered by status.
func (d *Dispatcher) ListTasks(status models.TaskStatus) []*models.Task {
	var out []*models.Task
	d.do(func() { out = d.replica.Tasks(status) })
	return out
}

// GetContact returns the task's contact number if known locally. Otherwise a
// contact-request goes out (once per outstanding request) and the caller is
// told to ask again later.
func (d *Dispatcher) GetContact(taskID string) (string, bool, error) {
	var number string
	var requested bool
	var err error
	d.do(func() {
		t, ok := d.replica.Get(taskID)
		if !ok {
			err = store.ErrNotFound
			return
		}
		if t.MobileNumber != "" {
			number = t.MobileNumber
			return
		}
		requested = true
		if d.contacts.MarkRequested(taskID) {
			slog.Info("requesting contact from mesh", "task", taskID)
			d.broadcast(&ContactRequest{TaskID: taskID, RequesterID: d.profile.ID})
		}
	})
	return number, requested, err
}

// PostChatMessage appends a message to the task's chat and broadcasts it.
func (d *Dispatcher) PostChatMessage(taskID, text string) (*models.ChatMessage, error) {
	var out *models.ChatMessage
	var err error
	d.do(func() {
		if _, ok := d.replica.Get(taskID); !ok {
			err = store.ErrNotFound
			return
		}
		msg := &models.ChatMessage{
			ID:         "msg-" + xid.New().String(),
			TaskID:     taskID,
			SenderID:   d.profile.ID,
			SenderName: d.profile.Name,
			Text:       text,
			Timestamp:  time.Now(),
		}
		changed, perr := d.replica.ApplyChatMessage(msg)
		if perr != nil {
			d.fatal(perr)
			return
		}
		if changed {
			d.broadcast(&ChatEvent{
				ID:         msg.ID,
				TaskID:     msg.TaskID,
				Text:       msg.Text,
				SenderID:   msg.SenderID,
				SenderName: msg.SenderName,
				Timestamp:  msg.Timestamp,
			})
			d.notify()
		}
		out = msg
	})
	return out, err
}

// ChatLog returns the task's chat messages in timestamp order.
func (d *Dispatcher) ChatLog(taskID string) []*models.ChatMessage {
	var out []*models.ChatMessage
	d.do(func() { out = d.replica.ChatLog(taskID) })
	return out
}

// ActivePeers lists the peers currently visible through heartbeats.
func (d *Dispatcher) ActivePeers() []*models.PeerPresence {
	return d.presence.Active()
}

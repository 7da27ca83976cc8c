package gossip

import (
	"time"

	"github.com/skillmesh/mesh-node/pkg/models"
)

// Kind tags a wire message. The set is closed: the codec decodes exactly
// these and nothing else.
type Kind string

const (
	KindTaskBroadcast   Kind = "task-broadcast"
	KindTaskClaim       Kind = "task-claim"
	KindTaskComplete    Kind = "task-complete"
	KindSyncRequest     Kind = "sync-request"
	KindSyncResponse    Kind = "sync-response"
	KindContactRequest  Kind = "contact-request"
	KindContactResponse Kind = "contact-response"
	KindChatMessage     Kind = "chat-message"
	KindHeartbeat       Kind = "heartbeat"
)

// Message is one decoded gossip event. Implementations are the closed set of
// wire message kinds; handlers switch on the concrete type, never on strings.
type Message interface {
	Kind() Kind
}

// TaskBroadcast announces a newly created task. The task is sanitized before
// broadcast: it never carries a contact number.
type TaskBroadcast struct {
	Task *models.Task `json:"task"`
}

func (*TaskBroadcast) Kind() Kind { return KindTaskBroadcast }

// TaskClaim announces that a peer claimed a task at a given origin time.
type TaskClaim struct {
	TaskID         string `json:"taskId"`
	AssignedTo     string `json:"assignedTo"`
	AssignedToName string `json:"assignedToName,omitempty"`
	AssignedAt     int64  `json:"assignedAt"`
}

func (*TaskClaim) Kind() Kind { return KindTaskClaim }

// TaskComplete announces that a task reached its terminal state.
type TaskComplete struct {
	TaskID string `json:"taskId"`
}

func (*TaskComplete) Kind() Kind { return KindTaskComplete }

// SyncRequest asks any peer to respond with its full task set. Emitted once
// shortly after startup and optionally on a periodic resync.
type SyncRequest struct{}

func (*SyncRequest) Kind() Kind { return KindSyncRequest }

// SyncResponse carries the sender's entire (sanitized) task set.
type SyncResponse struct {
	Tasks []*models.Task `json:"tasks"`
}

func (*SyncResponse) Kind() Kind { return KindSyncResponse }

// ContactRequest asks the holder of a task's contact number to disclose it to
// the requester.
type ContactRequest struct {
	TaskID      string `json:"taskId"`
	RequesterID string `json:"requesterId"`
}

func (*ContactRequest) Kind() Kind { return KindContactRequest }

// ContactResponse discloses a contact number. Every node sees it on the
// broadcast channel, but only the node whose ID equals TargetID applies it.
type ContactResponse struct {
	TaskID       string `json:"taskId"`
	MobileNumber string `json:"mobileNumber"`
	TargetID     string `json:"targetId"`
}

func (*ContactResponse) Kind() Kind { return KindContactResponse }

// ChatEvent carries one chat message for a task.
type ChatEvent struct {
	ID         string    `json:"id"`
	TaskID     string    `json:"taskId"`
	Text       string    `json:"text"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func (*ChatEvent) Kind() Kind { return KindChatMessage }

// Heartbeat is a node's periodic presence snapshot.
type Heartbeat struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Profession     string   `json:"profession"`
	Rating         float64  `json:"rating"`
	CompletedTasks int      `json:"completedTasks"`
	IsAvailable    bool     `json:"isAvailable"`
	Location       string   `json:"location"`
	Addresses      []string `json:"addresses,omitempty"`
}

func (*Heartbeat) Kind() Kind { return KindHeartbeat }

package models

// MeshNode is the local API surface of a running node. All methods are safe
// for concurrent use; mutations are serialized onto the node's event loop.
type MeshNode interface {
	Profile() *Profile
	UpdateProfile(name, profession, location, mobileNumber string) (*Profile, error)
	SetAvailability(available bool) (*Profile, error)

	CreateTask(task *Task) (*Task, error)
	ClaimTask(taskID string) (*Task, error)
	CompleteTask(taskID string) (*Task, error)
	ListTasks(status TaskStatus) []*Task

	// GetContact returns the task's contact number if it is known locally.
	// Otherwise it emits a contact-request to the mesh and reports requested.
	GetContact(taskID string) (mobileNumber string, requested bool, err error)

	PostChatMessage(taskID, text string) (*ChatMessage, error)
	ChatLog(taskID string) []*ChatMessage

	ActivePeers() []*PeerPresence
}

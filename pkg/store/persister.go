package store

import "github.com/skillmesh/mesh-node/pkg/models"

// Persister writes replica state to durable storage and reloads it at boot.
// Save methods are upserts keyed by the record's ID. A failed save is fatal
// to the node: once the durable copy can diverge from memory, the replica can
// no longer be trusted after a restart.
type Persister interface {
	SaveTask(task *models.Task) error
	SaveChatMessage(msg *models.ChatMessage) error
	SaveProfile(profile *models.Profile) error

	LoadTasks() ([]*models.Task, error)
	LoadChatMessages() ([]*models.ChatMessage, error)
	// LoadProfile returns nil with no error when no profile has been saved
	// yet (first boot).
	LoadProfile() (*models.Profile, error)
}

package store

import "github.com/skillmesh/mesh-node/pkg/models"

// memoryPersister keeps everything in process memory. Used by ephemeral nodes
// (database driver "memory") and by tests. State is lost on restart, which is
// acceptable because the reconciliation protocol rebuilds the task set from
// the mesh.
type memoryPersister struct {
	tasks   map[string]*models.Task
	chat    map[string]*models.ChatMessage
	profile *models.Profile
}

// NewMemory creates an in-memory Persister.
func NewMemory() Persister {
	return &memoryPersister{
		tasks: make(map[string]*models.Task),
		chat:  make(map[string]*models.ChatMessage),
	}
}

func (s *memoryPersister) SaveTask(task *models.Task) error {
	s.tasks[task.ID] = task.Clone()
	return nil
}

func (s *memoryPersister) SaveChatMessage(msg *models.ChatMessage) error {
	s.chat[msg.ID] = msg.Clone()
	return nil
}

func (s *memoryPersister) SaveProfile(profile *models.Profile) error {
	s.profile = profile.Clone()
	return nil
}

func (s *memoryPersister) LoadTasks() ([]*models.Task, error) {
	out := make([]*models.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Clone())
	}
	return out, nil
}

func (s *memoryPersister) LoadChatMessages() ([]*models.ChatMessage, error) {
	out := make([]*models.ChatMessage, 0, len(s.chat))
	for _, m := range s.chat {
		out = append(out, m.Clone())
	}
	return out, nil
}

func (s *memoryPersister) LoadProfile() (*models.Profile, error) {
	if s.profile == nil {
		return nil, nil
	}
	return s.profile.Clone(), nil
}

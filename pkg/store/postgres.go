package store

import (
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/skillmesh/mesh-node/pkg/models"
)

var (
	selectTasks = `SELECT t.* FROM tasks t`
	selectChat  = `SELECT c.* FROM chat_messages c`
)

type postgresPersister struct {
	db *sqlx.DB
}

// NewPostgres creates a Persister over an open postgres connection. The
// schema is expected to be migrated already (see Migrate).
func NewPostgres(dbconn *sqlx.DB) Persister {
	return &postgresPersister{db: dbconn}
}

func (s *postgresPersister) SaveTask(task *models.Task) error {
	stmt := `
	INSERT INTO tasks (id, title, description, category, country, city, location,
	                   deadline, created_at, owner_id, mobile_number, status,
	                   assigned_to, assigned_to_name, assigned_at)
	VALUES (:id, :title, :description, :category, :country, :city, :location,
	        :deadline, :created_at, :owner_id, :mobile_number, :status,
	        :assigned_to, :assigned_to_name, :assigned_at)
	ON CONFLICT (id) DO UPDATE
	SET mobile_number    = EXCLUDED.mobile_number,
	    status           = EXCLUDED.status,
	    assigned_to      = EXCLUDED.assigned_to,
	    assigned_to_name = EXCLUDED.assigned_to_name,
	    assigned_at      = EXCLUDED.assigned_at;
	`

	_, err := s.db.NamedExec(stmt, task)
	return err
}

func (s *postgresPersister) SaveChatMessage(msg *models.ChatMessage) error {
	stmt := `
	INSERT INTO chat_messages (id, task_id, sender_id, sender_name, body, created_at)
	VALUES (:id, :task_id, :sender_id, :sender_name, :body, :created_at)
	ON CONFLICT (id) DO NOTHING;
	`

	_, err := s.db.NamedExec(stmt, msg)
	return err
}

func (s *postgresPersister) SaveProfile(profile *models.Profile) error {
	stmt := `
	INSERT INTO profile (id, name, profession, rating, completed_tasks,
	                     is_available, location, mobile_number)
	VALUES (:id, :name, :profession, :rating, :completed_tasks,
	        :is_available, :location, :mobile_number)
	ON CONFLICT (id) DO UPDATE
	SET name            = EXCLUDED.name,
	    profession      = EXCLUDED.profession,
	    rating          = EXCLUDED.rating,
	    completed_tasks = EXCLUDED.completed_tasks,
	    is_available    = EXCLUDED.is_available,
	    location        = EXCLUDED.location,
	    mobile_number   = EXCLUDED.mobile_number;
	`

	_, err := s.db.NamedExec(stmt, profile)
	return err
}

func (s *postgresPersister) LoadTasks() ([]*models.Task, error) {
	stmt := selectTasks + " ORDER BY t.created_at;"
	var tasks []*models.Task
	err := s.db.Select(&tasks, stmt)
	if err == sql.ErrNoRows {
		return []*models.Task{}, nil
	}
	return tasks, err
}

func (s *postgresPersister) LoadChatMessages() ([]*models.ChatMessage, error) {
	stmt := selectChat + " ORDER BY c.created_at;"
	var msgs []*models.ChatMessage
	err := s.db.Select(&msgs, stmt)
	if err == sql.ErrNoRows {
		return []*models.ChatMessage{}, nil
	}
	return msgs, err
}

func (s *postgresPersister) LoadProfile() (*models.Profile, error) {
	stmt := `SELECT p.* FROM profile p LIMIT 1;`
	var profile models.Profile
	err := s.db.Get(&profile, stmt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &profile, err
}

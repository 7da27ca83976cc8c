package models

import "time"

// Profile is this node's own identity record. There is exactly one per node.
// It is mutated only by local user action, or as a side effect of completing
// a task assigned to this node (CompletedTasks increments).
type Profile struct {
	ID             string  `json:"id" db:"id"`
	Name           string  `json:"name" db:"name"`
	Profession     string  `json:"profession" db:"profession"`
	Rating         float64 `json:"rating" db:"rating"`
	CompletedTasks int     `json:"completedTasks" db:"completed_tasks"`
	IsAvailable    bool    `json:"isAvailable" db:"is_available"`
	Location       string  `json:"location" db:"location"`
	MobileNumber   string  `json:"mobileNumber,omitempty" db:"mobile_number"`
}

// Clone returns a copy of the profile.
func (p *Profile) Clone() *Profile {
	c := *p
	return &c
}

// PeerPresence is a live peer discovered through heartbeats. Records are held
// only in memory and expire when heartbeats stop arriving.
type PeerPresence struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Profession     string    `json:"profession"`
	Rating         float64   `json:"rating"`
	CompletedTasks int       `json:"completedTasks"`
	IsAvailable    bool      `json:"isAvailable"`
	Location       string    `json:"location"`
	Addresses      []string  `json:"addresses,omitempty"`
	LastSeen       time.Time `json:"lastSeen"`
}

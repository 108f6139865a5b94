package domain

import "time"

// Role groups permissions. Users reference exactly one role.
type Role struct {
	ID          string
	Name        string
	Description string
	Permissions []Permission // populated on detail lookups, nil otherwise
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

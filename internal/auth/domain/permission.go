package domain

import "time"

// Permission is a named action a role may grant, e.g. "users:write".
type Permission struct {
	ID          string
	Action      string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

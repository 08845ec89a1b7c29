// Package repository provides data access for persistent planner state.
package repository

import (
	"time"

	"github.com/google/uuid"
)

// User represents a registered account row.
type User struct {
	ID          uuid.UUID  `db:"id"`
	Email       string     `db:"email"`
	Username    string     `db:"username"`
	FirstName   string     `db:"first_name"`
	LastName    string     `db:"last_name"`
	ImageURL    string     `db:"image_url"`
	Role        string     `db:"role"`
	PINHash     string     `db:"pin_hash"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
	LastLoginAt *time.Time `db:"last_login_at"`
	IsActive    bool       `db:"is_active"`
}

// Workspace is a user-owned planning workspace row.
type Workspace struct {
	ID        uuid.UUID `db:"id"`
	UserID    uuid.UUID `db:"user_id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Goal is a long-horizon objective row.
type Goal struct {
	ID          uuid.UUID  `db:"id"`
	UserID      uuid.UUID  `db:"user_id"`
	WorkspaceID uuid.UUID  `db:"workspace_id"`
	Title       string     `db:"title"`
	TargetDate  *time.Time `db:"target_date"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}

// Habit is a recurring-routine row.
type Habit struct {
	ID        uuid.UUID `db:"id"`
	UserID    uuid.UUID `db:"user_id"`
	Name      string    `db:"name"`
	Cadence   string    `db:"cadence"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Block is a scheduled calendar block row.
type Block struct {
	ID        uuid.UUID `db:"id"`
	UserID    uuid.UUID `db:"user_id"`
	Title     string    `db:"title"`
	StartsAt  time.Time `db:"starts_at"`
	EndsAt    time.Time `db:"ends_at"`
	CreatedAt time.Time `db:"created_at"`
}

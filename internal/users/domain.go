package users

import "time"

// User is a profile as listed in the staff directory.
type User struct {
	ID        string    `db:"id"`
	Email     string    `db:"email"`
	Name      string    `db:"full_name"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
	Roles     []string  `db:"roles"`
}

package models

import "time"

// User is an account of the default database.
type User struct {
	ID             string    `db:"id" json:"id"`
	Email          string    `db:"email" json:"email"`
	FirstName      string    `db:"first_name" json:"firstName"`
	LastName       string    `db:"last_name" json:"lastName"`
	HashedPassword string    `db:"hashed_password" json:"-"`
	IsDeleted      bool      `db:"is_deleted" json:"-"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Email  string
}

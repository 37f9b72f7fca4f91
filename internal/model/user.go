// Package model defines the data structures used throughout the application.
// The `json:"..."` tags control the API shape; `db:"..."` tags name the columns.
package model

import "time"

// User represents a registered student or administrator.
//
// IDs are xids generated by the repository, not the email, so an email
// change never rewrites foreign keys in submissions.
type User struct {
	ID            string    `json:"id"            db:"id"`
	FullName      string    `json:"fullName"      db:"full_name"`
	Email         string    `json:"email"         db:"email"` // stored lowercased, unique
	ContactNumber string    `json:"contactNumber" db:"contact_number"`
	PasswordHash  string    `json:"-"             db:"password_hash"` // bcrypt, never serialized
	IsAdmin       bool      `json:"isAdmin"       db:"is_admin"`
	CreatedAt     time.Time `json:"createdAt"     db:"created_at"`
}

package entity

import "time"

// SystemUserID is the actor recorded on automatic transitions (approval
// deadline sweeps, embargo completion).
const SystemUserID = "system"

// User is the acting account on a moderation trigger. The core only needs
// identity and display fields; account management is a collaborator concern.
type User struct {
	ID        string    `json:"id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// IsSystem reports whether the user is the internal system actor
func (u *User) IsSystem() bool {
	return u != nil && u.ID == SystemUserID
}

package entity

import "strings"

type UserRole string

const (
	RoleClient     UserRole = "client"
	RoleFreelancer UserRole = "freelancer"
	RoleAdmin      UserRole = "admin"
)

// User is read-only profile data owned by the identity store.
type User struct {
	ID          string   `json:"id" firestore:"id"`
	DisplayName string   `json:"display_name,omitempty" firestore:"displayName,omitempty"`
	FirstName   string   `json:"firstname,omitempty" firestore:"firstname,omitempty"`
	LastName    string   `json:"lastname,omitempty" firestore:"lastname,omitempty"`
	PhotoURL    string   `json:"photo_url,omitempty" firestore:"photoURL,omitempty"`
	Role        UserRole `json:"role" firestore:"role"`
}

func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if full := strings.TrimSpace(u.FirstName + " " + u.LastName); full != "" {
		return full
	}
	return "Unknown user"
}

// SenderType maps a profile role onto a message sender type.
func (r UserRole) SenderType() SenderType {
	switch r {
	case RoleClient:
		return SenderClient
	case RoleAdmin:
		return SenderAdmin
	}
	return SenderFreelancer
}

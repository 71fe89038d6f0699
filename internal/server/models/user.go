// Package models defines the server-side data models of the auth core.
package models

import "time"

// User is a row of the user directory. The password hash never leaves the
// service layer; use View for anything sent to a client.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Role         string
	Enabled      bool
	CreatedAt    time.Time
}

// UserView is the client-facing projection of a User.
type UserView struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

func (u *User) View() UserView {
	return UserView{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role}
}

// Principal returns the authenticated identity of u.
func (u *User) Principal() *Principal {
	return &Principal{UserID: u.ID, Email: u.Email, Role: u.Role}
}

// Principal is the identity carried by an access token.
type Principal struct {
	UserID string
	Email  string
	Role   string
}

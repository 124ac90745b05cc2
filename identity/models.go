package identity

import "time"

// User is the domain representation of a registered account. It
// mirrors the users table and carries no JSON annotations so it can be
// reused by different presentation layers.
type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	RegisteredAt time.Time
	UpdatedAt    time.Time
}

// RegisterRequest contains registration data supplied by callers.
type RegisterRequest struct {
	Email       string
	Password    string
	DisplayName string
}

// LoginRequest contains login credentials.
type LoginRequest struct {
	Email    string
	Password string
}

// LoginResult bundles the token and domain user returned after a
// successful login.
type LoginResult struct {
	Token string
	User  User
}

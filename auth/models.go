package auth

import "time"

// Verification is the identity verification level of a participant.
type Verification string

const (
	VerificationNone     Verification = "unverified"
	VerificationEmail    Verification = "email"
	VerificationIdentity Verification = "identity"
)

// User is the domain representation of an authenticated participant.
// It mirrors the users table and should not include JSON annotations so it
// can be reused by different presentation layers. Reputation columns on the
// same table belong to the reputation package and are never written here.
type User struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	Verification Verification
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RegisterRequest contains user registration data supplied by callers.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

// LoginRequest contains user login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

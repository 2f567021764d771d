package types

import "time"

// Role is the authorization level of an account.
type Role string

// Supported roles. Records carrying any other role value are ignored by the
// statistics engine rather than rejected.
const (
	RoleAdmin     Role = "admin"
	RoleLibrarian Role = "librarian"
	RoleReader    Role = "reader"
)

// Roles lists the known roles in display order.
var Roles = []Role{RoleAdmin, RoleLibrarian, RoleReader}

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleLibrarian, RoleReader:
		return true
	}
	return false
}

// User represents an account in the system.
//
// IDs are unique only within a role partition; callers that need a global
// key must use the (Role, ID) pair.
type User struct {
	// ID is the identifier of the user within its role partition.
	ID string `json:"id" db:"id"`

	// Role indicates the user's authorization level.
	Role Role `json:"role" db:"role"`

	// FamilyName is the user's family (last) name.
	FamilyName string `json:"family_name" db:"family_name"`

	// GivenName is the user's given (first) name.
	GivenName string `json:"given_name" db:"given_name"`

	// Email is the user's email address.
	Email string `json:"email" db:"email"`

	// BirthDate is the user's birth date as an ISO date (YYYY-MM-DD).
	// It may be empty.
	BirthDate string `json:"birth_date,omitempty" db:"birth_date"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

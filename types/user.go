package types

import "time"

// DefaultRole is assigned to newly created users when no role is provided.
const DefaultRole = "user"

// User represents an account in the system.
// It contains identity, profile, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Email is the user's unique email address.
	Email string `json:"email" db:"email"`

	// Username is the unique login name chosen by the user.
	Username string `json:"username" db:"username"`

	// FullName is the user's display name.
	FullName string `json:"full_name" db:"full_name"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// AvatarURL points at the user's avatar image, if any.
	AvatarURL *string `json:"avatar_url" db:"avatar_url"`

	// Bio is a free-form profile text, if any.
	Bio *string `json:"bio" db:"bio"`

	// Role indicates the user's authorization level within the
	// system (e.g., "admin", "user").
	Role string `json:"role" db:"role"`

	// IsActive is false for soft-deleted users. Inactive users are
	// excluded from listings but remain reachable by id.
	IsActive bool `json:"is_active" db:"is_active"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CreateUser is a validated creation record. Password is still plaintext
// here; it is hashed at the persistence layer.
type CreateUser struct {
	Email     string
	Username  string
	FullName  string
	Password  string
	AvatarURL *string
	Bio       *string
	Role      string
}

// UserPatch is a validated partial update. A nil field means "leave
// unchanged"; there is no way to null out a field through a patch.
type UserPatch struct {
	Email     *string
	Username  *string
	FullName  *string
	Password  *string
	AvatarURL *string
	Bio       *string
	Role      *string
	IsActive  *bool
}

// IsEmpty reports whether the patch carries no changes at all.
func (p UserPatch) IsEmpty() bool {
	return p.Email == nil &&
		p.Username == nil &&
		p.FullName == nil &&
		p.Password == nil &&
		p.AvatarURL == nil &&
		p.Bio == nil &&
		p.Role == nil &&
		p.IsActive == nil
}

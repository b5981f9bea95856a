package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role type to distinguish between user roles
type Role string

// Define constants for roles
const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// ValidRole reports whether r is a known role.
func ValidRole(r Role) bool {
	return r == RoleAdmin || r == RoleEditor || r == RoleViewer
}

// User represents a registered account. Accounts live in MongoDB only; asset
// storage itself works for anonymous callers through the namespacing chain.
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name         string             `bson:"name" json:"name"`
	Email        string             `bson:"email" json:"email"`    // Should be unique
	PasswordHash string             `bson:"passwordHash" json:"-"` // Never expose this via JSON
	Role         Role               `bson:"role" json:"role"`
	AvatarURL    string             `bson:"avatarUrl,omitempty" json:"avatarUrl,omitempty"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Session is the resolved identity a request operates under. It is built
// from the best-available source (validated token, legacy SSO header,
// persisted email, or nothing at all) and injected explicitly rather than
// read from ambient state.
type Session struct {
	UserID        string `json:"userId,omitempty"`
	Email         string `json:"email,omitempty"`
	Name          string `json:"name,omitempty"`
	AvatarURL     string `json:"avatarUrl,omitempty"`
	Role          Role   `json:"role"`
	CanAccessTeam bool   `json:"canAccessTeam"`
}

// CanUpload reports whether the session may create assets. Viewers are
// read-only. These gates are advisory UX guidance, not a security boundary;
// the remote collaborator enforces its own rules.
func (s Session) CanUpload() bool {
	return s.Role == RoleAdmin || s.Role == RoleEditor
}

// CanEdit reports whether the session may mutate assets.
func (s Session) CanEdit() bool {
	return s.Role == RoleAdmin || s.Role == RoleEditor
}

// CanDelete reports whether the session may delete the given asset: admins
// may delete anything, editors only what they authored.
func (s Session) CanDelete(a *Asset) bool {
	switch s.Role {
	case RoleAdmin:
		return true
	case RoleEditor:
		return a != nil && a.CreatedBy == s.Email
	}
	return false
}

package model

import (
	"strings"
	"time"
)

// Roles stored in users.role.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents a registered citizen or city administrator as
// stored in the `users` table.
//
// Fields:
//
//	ID           – primary key identifier.
//	Email        – unique email address, always lower case.
//	PasswordHash – bcrypt hashed password, never serialized.
//	Role         – RoleUser or RoleAdmin.
//	SecretCode   – admin secret code consumed at signup (admins only).
//	IsActive     – false once an administrator deactivates the account.
//	RewardPoints – points credited for completed reports.
type User struct {
	ID           uint64    `json:"id"`            // users.id
	Email        string    `json:"email"`         // users.email
	PasswordHash string    `json:"-"`             // users.password_hash
	FullName     string    `json:"full_name"`     // users.full_name
	Phone        string    `json:"phone"`         // users.phone
	DOB          string    `json:"dob"`           // users.dob
	Address      string    `json:"address"`       // users.address
	City         string    `json:"city"`          // users.city
	State        string    `json:"state"`         // users.state
	Pincode      string    `json:"pincode"`       // users.pincode
	Role         string    `json:"role"`          // users.role
	SecretCode   *string   `json:"secret_code"`   // users.secret_code
	IsActive     bool      `json:"is_active"`     // users.is_active
	RewardPoints int       `json:"reward_points"` // users.reward_points
	CreatedAt    time.Time `json:"created_at"`    // users.created_at
	UpdatedAt    time.Time `json:"updated_at"`    // users.updated_at
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// NewUser carries the caller supplied attributes of a user. Server
// assigned fields (id, is_active, reward_points, timestamps) are absent
// on purpose.
type NewUser struct {
	Email        string
	PasswordHash string
	FullName     string
	Phone        string
	DOB          string
	Address      string
	City         string
	State        string
	Pincode      string
	Role         string
	SecretCode   *string
}

// UserPatch lists the fields a partial update may change. Nil fields
// are left untouched.
type UserPatch struct {
	Email        *string
	PasswordHash *string
	FullName     *string
	Phone        *string
	DOB          *string
	Address      *string
	City         *string
	State        *string
	Pincode      *string
	Role         *string
	IsActive     *bool
	RewardPoints *int // administrative correction only
}

// Apply copies the non-nil fields of p onto u.
func (p UserPatch) Apply(u *User) {
	if p.Email != nil {
		u.Email = NormalizeEmail(*p.Email)
	}
	if p.PasswordHash != nil {
		u.PasswordHash = *p.PasswordHash
	}
	if p.FullName != nil {
		u.FullName = *p.FullName
	}
	if p.Phone != nil {
		u.Phone = *p.Phone
	}
	if p.DOB != nil {
		u.DOB = *p.DOB
	}
	if p.Address != nil {
		u.Address = *p.Address
	}
	if p.City != nil {
		u.City = *p.City
	}
	if p.State != nil {
		u.State = *p.State
	}
	if p.Pincode != nil {
		u.Pincode = *p.Pincode
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.IsActive != nil {
		u.IsActive = *p.IsActive
	}
	if p.RewardPoints != nil {
		u.RewardPoints = *p.RewardPoints
	}
}

// Empty reports whether the patch changes nothing.
func (p UserPatch) Empty() bool {
	return p == UserPatch{}
}

// NormalizeEmail lower-cases and trims an email address. Every email
// comparison in the application goes through this function.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CityKey is the form a city is matched by: trimmed and lower-cased.
// Accents and other characters are kept, so "São Paulo" and "Sao Paulo"
// are different cities. The MySQL backend stores it in users.city_key
// under a binary collation.
func CityKey(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}

// SameCity compares two city names case-insensitively.
func SameCity(a, b string) bool {
	return CityKey(a) == CityKey(b)
}

// RefreshToken models an entry in the `refresh_tokens` table. Only a
// SHA-256 hash of the raw token is stored.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at
	CreatedAt time.Time  // refresh_tokens.created_at
}

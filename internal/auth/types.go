package auth

import "time"

// Role is the position a user holds inside one business.
type Role string

const (
	RoleMember  Role = "member"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

// Level maps roles onto the strict hierarchy member < manager < admin.
// Unknown roles map to 0 and lose every comparison.
func (r Role) Level() int {
	switch r {
	case RoleMember:
		return 1
	case RoleManager:
		return 2
	case RoleAdmin:
		return 3
	default:
		return 0
	}
}

// Valid reports whether the role is one of the three known roles.
func (r Role) Valid() bool { return r.Level() > 0 }

// MembershipStatus is the lifecycle state of a business membership.
type MembershipStatus string

const (
	StatusActive   MembershipStatus = "active"
	StatusPending  MembershipStatus = "pending"
	StatusBanned   MembershipStatus = "banned"
	StatusInactive MembershipStatus = "inactive"
)

// Operation is a CRUD action on business-scoped data.
type Operation string

const (
	OpCreate Operation = "create"
	OpRead   Operation = "read"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// User is an account holder. The authorization core only reads users by
// primary key or email.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Plan         string    `json:"plan,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Business is a tenant. Business data itself lives behind the access gate.
type Business struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	OwnerID   int64     `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BusinessUser links one user to one business. At most one row exists per
// (UserID, BusinessID) pair; the access gate reads these rows and never
// writes them.
type BusinessUser struct {
	ID           int64            `json:"id"`
	UserID       int64            `json:"user_id"`
	BusinessID   int64            `json:"business_id"`
	Role         Role             `json:"role"`
	Status       MembershipStatus `json:"status"`
	IsBanned     bool             `json:"is_banned"`
	BannedReason string           `json:"banned_reason,omitempty"`
	BannedAt     *time.Time       `json:"banned_at,omitempty"`
	BannedUntil  *time.Time       `json:"banned_until,omitempty"`
	BanInterval  string           `json:"ban_interval,omitempty"`
	JoinedAt     time.Time        `json:"joined_at"`
	LastActiveAt *time.Time       `json:"last_active_at,omitempty"`
}

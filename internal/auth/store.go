package auth

import (
	"context"
	"time"
)

// UserStore manages user accounts.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id int64) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
}

// BusinessStore manages tenant rows.
type BusinessStore interface {
	Create(ctx context.Context, b *Business) error
	Find(ctx context.Context, id int64) (*Business, error)
}

// MembershipStore manages BusinessUser rows. Find resolves the unique
// membership for a (user, business) pair.
type MembershipStore interface {
	Create(ctx context.Context, m *BusinessUser) error
	Find(ctx context.Context, userID, businessID int64) (*BusinessUser, error)
	FindByID(ctx context.Context, id int64) (*BusinessUser, error)
	ListByBusiness(ctx context.Context, businessID int64) ([]*BusinessUser, error)
	UpdateRole(ctx context.Context, id int64, role Role) error
	UpdateStatus(ctx context.Context, id int64, status MembershipStatus) error
	SetBan(ctx context.Context, id int64, banned bool, reason string, at, until *time.Time) error
	TouchLastActive(ctx context.Context, id int64, at time.Time) error
}

// Store bundles the persistence surface required by the auth subsystem.
type Store interface {
	Users() UserStore
	Businesses() BusinessStore
	Memberships() MembershipStore
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Members mutates BusinessUser rows: role changes, bans, invitation
// approval. It is the only writer of membership state; the access gate
// never mutates.
//
// Every mutating action enforces the level hierarchy: the actor's role
// must strictly outrank the target's, a user may never act on their own
// membership, and only admins may hand out the manager or admin role.
type Members struct {
	store MembershipStore
	now   func() time.Time
}

// MembersOption configures Members behavior.
type MembersOption func(*Members)

// WithMembersClock overrides the time source (useful for tests).
func WithMembersClock(fn func() time.Time) MembersOption {
	return func(m *Members) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewMembers constructs the membership-management service.
func NewMembers(store MembershipStore, opts ...MembersOption) (*Members, error) {
	if store == nil {
		return nil, errors.New("auth: membership store is required")
	}
	m := &Members{store: store, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// ChangeRole assigns a new role to the target membership.
func (m *Members) ChangeRole(ctx context.Context, actorUserID, businessID, targetUserID int64, newRole Role) (*BusinessUser, error) {
	if !newRole.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, newRole)
	}
	actor, target, err := m.resolvePair(ctx, actorUserID, businessID, targetUserID)
	if err != nil {
		return nil, err
	}
	if newRole.Level() >= RoleManager.Level() && actor.Role != RoleAdmin {
		return nil, fmt.Errorf("%w: only admins may assign the %s role", ErrForbidden, newRole)
	}
	if err := m.store.UpdateRole(ctx, target.ID, newRole); err != nil {
		return nil, err
	}
	target.Role = newRole
	return target, nil
}

// Ban marks the target membership banned. A reason is required; until may
// be nil for an indefinite ban.
func (m *Members) Ban(ctx context.Context, actorUserID, businessID, targetUserID int64, reason string, until *time.Time) (*BusinessUser, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: ban reason is required", ErrInvalidInput)
	}
	_, target, err := m.resolvePair(ctx, actorUserID, businessID, targetUserID)
	if err != nil {
		return nil, err
	}
	now := m.now().UTC()
	if err := m.store.SetBan(ctx, target.ID, true, reason, &now, until); err != nil {
		return nil, err
	}
	if err := m.store.UpdateStatus(ctx, target.ID, StatusBanned); err != nil {
		return nil, err
	}
	target.IsBanned = true
	target.BannedReason = reason
	target.BannedAt = &now
	target.BannedUntil = until
	target.Status = StatusBanned
	return target, nil
}

// Unban clears ban state and reactivates the membership.
func (m *Members) Unban(ctx context.Context, actorUserID, businessID, targetUserID int64) (*BusinessUser, error) {
	_, target, err := m.resolvePair(ctx, actorUserID, businessID, targetUserID)
	if err != nil {
		return nil, err
	}
	if err := m.store.SetBan(ctx, target.ID, false, "", nil, nil); err != nil {
		return nil, err
	}
	if err := m.store.UpdateStatus(ctx, target.ID, StatusActive); err != nil {
		return nil, err
	}
	target.IsBanned = false
	target.BannedReason = ""
	target.BannedAt = nil
	target.BannedUntil = nil
	target.Status = StatusActive
	return target, nil
}

// Approve activates a pending membership.
func (m *Members) Approve(ctx context.Context, actorUserID, businessID, targetUserID int64) (*BusinessUser, error) {
	return m.settlePending(ctx, actorUserID, businessID, targetUserID, StatusActive)
}

// Reject declines a pending membership.
func (m *Members) Reject(ctx context.Context, actorUserID, businessID, targetUserID int64) (*BusinessUser, error) {
	return m.settlePending(ctx, actorUserID, businessID, targetUserID, StatusInactive)
}

func (m *Members) settlePending(ctx context.Context, actorUserID, businessID, targetUserID int64, to MembershipStatus) (*BusinessUser, error) {
	_, target, err := m.resolvePair(ctx, actorUserID, businessID, targetUserID)
	if err != nil {
		return nil, err
	}
	if target.Status != StatusPending {
		return nil, fmt.Errorf("%w: membership status is %s, not pending", ErrInvalidInput, target.Status)
	}
	if err := m.store.UpdateStatus(ctx, target.ID, to); err != nil {
		return nil, err
	}
	target.Status = to
	return target, nil
}

// resolvePair loads both memberships and applies the shared hierarchy
// checks common to every mutating action.
func (m *Members) resolvePair(ctx context.Context, actorUserID, businessID, targetUserID int64) (actor, target *BusinessUser, err error) {
	if actorUserID == targetUserID {
		return nil, nil, fmt.Errorf("%w: cannot act on own membership", ErrForbidden)
	}
	actor, err = m.store.Find(ctx, actorUserID, businessID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: not a member of this business", ErrForbidden)
		}
		return nil, nil, err
	}
	if actor.Status != StatusActive {
		return nil, nil, fmt.Errorf("%w: membership status %s", ErrForbidden, actor.Status)
	}
	target, err = m.store.Find(ctx, targetUserID, businessID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: target membership", ErrNotFound)
		}
		return nil, nil, err
	}
	if actor.Role.Level() <= target.Role.Level() {
		return nil, nil, fmt.Errorf("%w: role does not outrank target", ErrForbidden)
	}
	return actor, target, nil
}

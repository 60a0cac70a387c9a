package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Users() UserStore             { return &userStore{db: s.db} }
func (s *PGStore) Businesses() BusinessStore    { return &businessStore{db: s.db} }
func (s *PGStore) Memberships() MembershipStore { return &membershipStore{db: s.db} }

// User store ---------------------------------------------------------------
type userStore struct{ db *sql.DB }

func (s *userStore) Create(ctx context.Context, u *User) error {
	row := s.db.QueryRowContext(ctx,
		`insert into users(email, password_hash, plan) values($1,$2,$3)
		 returning id, created_at, updated_at`,
		u.Email, u.PasswordHash, u.Plan,
	)
	return mapUniqueViolation(row.Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt))
}

func (s *userStore) Find(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, email, password_hash, plan, created_at, updated_at from users where id=$1`, id)
	return scanUser(row)
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, email, password_hash, plan, created_at, updated_at from users where email=$1`, email)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Plan, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Business store -----------------------------------------------------------
type businessStore struct{ db *sql.DB }

func (s *businessStore) Create(ctx context.Context, b *Business) error {
	row := s.db.QueryRowContext(ctx,
		`insert into businesses(name, owner_id) values($1,$2)
		 returning id, created_at, updated_at`,
		b.Name, b.OwnerID,
	)
	return row.Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
}

func (s *businessStore) Find(ctx context.Context, id int64) (*Business, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, name, owner_id, created_at, updated_at from businesses where id=$1`, id)
	var b Business
	if err := row.Scan(&b.ID, &b.Name, &b.OwnerID, &b.CreatedAt, &b.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

// Membership store ---------------------------------------------------------
type membershipStore struct{ db *sql.DB }

const membershipColumns = `id, user_id, business_id, role, status, is_banned,
	coalesce(banned_reason,''), banned_at, banned_until, coalesce(ban_interval,''),
	joined_at, last_active_at`

func (s *membershipStore) Create(ctx context.Context, m *BusinessUser) error {
	row := s.db.QueryRowContext(ctx,
		`insert into business_users(user_id, business_id, role, status)
		 values($1,$2,$3,$4) returning id, joined_at`,
		m.UserID, m.BusinessID, m.Role, m.Status,
	)
	return mapUniqueViolation(row.Scan(&m.ID, &m.JoinedAt))
}

// mapUniqueViolation converts Postgres unique violations (23505) into
// ErrAlreadyExists.
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrAlreadyExists
	}
	return err
}

func (s *membershipStore) Find(ctx context.Context, userID, businessID int64) (*BusinessUser, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+membershipColumns+` from business_users where user_id=$1 and business_id=$2`,
		userID, businessID)
	return scanMembership(row)
}

func (s *membershipStore) FindByID(ctx context.Context, id int64) (*BusinessUser, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+membershipColumns+` from business_users where id=$1`, id)
	return scanMembership(row)
}

func scanMembership(row *sql.Row) (*BusinessUser, error) {
	var m BusinessUser
	if err := row.Scan(
		&m.ID, &m.UserID, &m.BusinessID, &m.Role, &m.Status, &m.IsBanned,
		&m.BannedReason, &m.BannedAt, &m.BannedUntil, &m.BanInterval,
		&m.JoinedAt, &m.LastActiveAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (s *membershipStore) ListByBusiness(ctx context.Context, businessID int64) ([]*BusinessUser, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+membershipColumns+` from business_users where business_id=$1 order by joined_at asc`,
		businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*BusinessUser
	for rows.Next() {
		var m BusinessUser
		if err := rows.Scan(
			&m.ID, &m.UserID, &m.BusinessID, &m.Role, &m.Status, &m.IsBanned,
			&m.BannedReason, &m.BannedAt, &m.BannedUntil, &m.BanInterval,
			&m.JoinedAt, &m.LastActiveAt,
		); err != nil {
			return nil, err
		}
		res = append(res, &m)
	}
	return res, rows.Err()
}

func (s *membershipStore) UpdateRole(ctx context.Context, id int64, role Role) error {
	return s.execOne(ctx, `update business_users set role=$2 where id=$1`, id, role)
}

func (s *membershipStore) UpdateStatus(ctx context.Context, id int64, status MembershipStatus) error {
	return s.execOne(ctx, `update business_users set status=$2 where id=$1`, id, status)
}

func (s *membershipStore) SetBan(ctx context.Context, id int64, banned bool, reason string, at, until *time.Time) error {
	return s.execOne(ctx,
		`update business_users
		 set is_banned=$2, banned_reason=nullif($3,''), banned_at=$4, banned_until=$5
		 where id=$1`,
		id, banned, reason, at, until)
}

func (s *membershipStore) TouchLastActive(ctx context.Context, id int64, at time.Time) error {
	return s.execOne(ctx, `update business_users set last_active_at=$2 where id=$1`, id, at)
}

func (s *membershipStore) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

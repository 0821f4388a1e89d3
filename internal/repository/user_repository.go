package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deskly/deskbot/internal/domain"
)

type UserRepository interface {
	Get(ctx context.Context, identity string) (*domain.User, error)
	Upsert(ctx context.Context, u *domain.User) error
	Delete(ctx context.Context, identity string) error
	ListAll(ctx context.Context) ([]domain.User, error)
	CountAdmins(ctx context.Context) (int, error)
}

type userRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userCols = `identity, display_name, role, blacklisted, created_at`

func (r *userRepository) Get(ctx context.Context, identity string) (*domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE identity=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var u domain.User
	err := r.pool.QueryRow(ctx, q, identity).Scan(
		&u.Identity, &u.DisplayName, &u.Role, &u.Blacklisted, &u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return &u, err
}

// Upsert is the sole mutation path for user rows. Malformed role tokens are
// rejected before they reach the database.
func (r *userRepository) Upsert(ctx context.Context, u *domain.User) error {
	if _, ok := domain.ParseRole(string(u.Role)); !ok {
		return fmt.Errorf("%w: unrecognized role %q", domain.ErrConstraint, u.Role)
	}

	const q = `INSERT INTO users (identity, display_name, role, blacklisted)
  VALUES ($1,$2,$3,$4)
  ON CONFLICT (identity) DO UPDATE SET
    display_name = EXCLUDED.display_name,
    role = EXCLUDED.role,
    blacklisted = EXCLUDED.blacklisted
  RETURNING created_at`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return r.pool.QueryRow(ctx, q, u.Identity, u.DisplayName, u.Role, u.Blacklisted).Scan(&u.CreatedAt)
}

func (r *userRepository) Delete(ctx context.Context, identity string) error {
	const q = `DELETE FROM users WHERE identity=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	ct, err := r.pool.Exec(ctx, q, identity)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: no user found with identity %s", domain.ErrNotFound, identity)
	}
	return nil
}

func (r *userRepository) ListAll(ctx context.Context) ([]domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users ORDER BY created_at, identity`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.Identity, &u.DisplayName, &u.Role, &u.Blacklisted, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CountAdmins is computed fresh on every call; the zero-admin lockout guard
// must never rely on cached state.
func (r *userRepository) CountAdmins(ctx context.Context) (int, error) {
	const q = `SELECT COUNT(*) FROM users WHERE role='admin' AND NOT blacklisted`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var n int
	err := r.pool.QueryRow(ctx, q).Scan(&n)
	return n, err
}

var _ UserRepository = (*userRepository)(nil)

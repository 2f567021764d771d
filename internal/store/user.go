package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/biblio-hub/apiserver/types"
)

// UserRepository handles persistence for users. User ids are unique per
// role partition; every lookup keys on (role, id).
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `role, id, family_name, given_name, email, birth_date, password_hash, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (types.User, error) {
	var user types.User
	var birthDate sql.NullTime
	err := row.Scan(
		&user.Role,
		&user.ID,
		&user.FamilyName,
		&user.GivenName,
		&user.Email,
		&birthDate,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return types.User{}, err
	}
	if birthDate.Valid {
		user.BirthDate = birthDate.Time.Format("2006-01-02")
	}
	return user, nil
}

func (r *UserRepository) Get(ctx context.Context, role types.Role, id string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE role = $1 AND id = $2`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, role, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE email = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

// List returns users of one role, or of every role when role is empty,
// ordered by creation time.
func (r *UserRepository) List(ctx context.Context, role types.Role) ([]types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE $1 = '' OR role = $1
		ORDER BY created_at, role, id`
	rows, err := r.db.QueryContext(ctx, query, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]types.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (role, family_name, given_name, email, birth_date, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, '')::date, $6, $7, $8)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Role,
		user.FamilyName,
		user.GivenName,
		user.Email,
		user.BirthDate,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) Update(ctx context.Context, user types.User) (types.User, error) {
	user.UpdatedAt = time.Now()

	const query = `
		UPDATE users
		SET family_name = $1,
			given_name = $2,
			email = $3,
			birth_date = NULLIF($4, '')::date,
			password_hash = $5,
			updated_at = $6
		WHERE role = $7 AND id = $8`
	result, err := r.db.ExecContext(
		ctx,
		query,
		user.FamilyName,
		user.GivenName,
		user.Email,
		user.BirthDate,
		user.PasswordHash,
		user.UpdatedAt,
		user.Role,
		user.ID,
	)
	if err != nil {
		return types.User{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.User{}, err
	}
	if affected == 0 {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

func (r *UserRepository) Delete(ctx context.Context, role types.Role, id string) error {
	const query = `DELETE FROM users WHERE role = $1 AND id = $2`
	result, err := r.db.ExecContext(ctx, query, role, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

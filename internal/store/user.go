package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/userhub/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

const userColumns = `id, email, username, full_name, password_hash, avatar_url, bio, role, is_active, created_at, updated_at`

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// ListActive returns all active users, newest first. Soft-deleted users
// are excluded.
func (r *UserRepository) ListActive(ctx context.Context) ([]types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE is_active = true
		ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

// GetByID returns a user by id regardless of active state, so existence
// checks still find soft-deleted users.
func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByEmail matches case-insensitively; email uniqueness ignores case.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE LOWER(email) = LOWER($1)`
	return r.getOne(ctx, query, email)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE username = $1`
	return r.getOne(ctx, query, username)
}

// Search returns active users whose email, username, or full name contains
// the keyword, case-insensitively, newest first.
func (r *UserRepository) Search(ctx context.Context, keyword string) ([]types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE is_active = true
		  AND (email ILIKE $1 OR username ILIKE $1 OR full_name ILIKE $1)
		ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, "%"+keyword+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

// Insert creates a user, hashing the plaintext password on the way in.
func (r *UserRepository) Insert(ctx context.Context, dto types.CreateUser) (types.User, error) {
	hash, err := HashPassword(dto.Password)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now()
	const query = `
		INSERT INTO users (email, username, full_name, password_hash, avatar_url, bio, role, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, true, $8, $8)
		RETURNING ` + userColumns
	row := r.db.QueryRowContext(ctx, query,
		dto.Email,
		dto.Username,
		dto.FullName,
		hash,
		dto.AvatarURL,
		dto.Bio,
		dto.Role,
		now,
	)
	user, err := scanUser(row)
	if err != nil {
		return types.User{}, translateUniqueViolation(err)
	}
	return user, nil
}

// ApplyUpdate updates only the fields present in the patch and bumps
// updated_at. An empty patch short-circuits to a plain lookup.
func (r *UserRepository) ApplyUpdate(ctx context.Context, id int, patch types.UserPatch) (types.User, error) {
	if patch.IsEmpty() {
		return r.GetByID(ctx, id)
	}

	if patch.Password != nil {
		hash, err := HashPassword(*patch.Password)
		if err != nil {
			return types.User{}, fmt.Errorf("hash password: %w", err)
		}
		patch.Password = &hash
	}

	setClause, args := userUpdateSet(patch)
	args = append(args, time.Now(), id)
	query := fmt.Sprintf(`
		UPDATE users
		SET %s, updated_at = $%d
		WHERE id = $%d
		RETURNING `+userColumns,
		setClause, len(args)-1, len(args))

	user, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, translateUniqueViolation(err)
	}
	return user, nil
}

// Delete removes a user permanently.
func (r *UserRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM users WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
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

// SoftDelete marks a user inactive without removing the row.
func (r *UserRepository) SoftDelete(ctx context.Context, id int) (types.User, error) {
	const query = `
		UPDATE users
		SET is_active = false, updated_at = $1
		WHERE id = $2
		RETURNING ` + userColumns
	return r.getOne(ctx, query, time.Now(), id)
}

func (r *UserRepository) getOne(ctx context.Context, query string, args ...any) (types.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, query, args...))
}

// userUpdateSet builds the SET fragment for the non-nil patch fields.
// Placeholders are numbered from $1; the caller appends its own.
func userUpdateSet(patch types.UserPatch) (string, []any) {
	var parts []string
	var args []any

	add := func(column string, value any) {
		args = append(args, value)
		parts = append(parts, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Email != nil {
		add("email", *patch.Email)
	}
	if patch.Username != nil {
		add("username", *patch.Username)
	}
	if patch.FullName != nil {
		add("full_name", *patch.FullName)
	}
	if patch.Password != nil {
		add("password_hash", *patch.Password)
	}
	if patch.AvatarURL != nil {
		add("avatar_url", *patch.AvatarURL)
	}
	if patch.Bio != nil {
		add("bio", *patch.Bio)
	}
	if patch.Role != nil {
		add("role", *patch.Role)
	}
	if patch.IsActive != nil {
		add("is_active", *patch.IsActive)
	}

	return strings.Join(parts, ", "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (types.User, error) {
	var user types.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.FullName,
		&user.PasswordHash,
		&user.AvatarURL,
		&user.Bio,
		&user.Role,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func scanUsers(rows *sql.Rows) ([]types.User, error) {
	users := []types.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// HashPassword derives a one-way bcrypt hash from a plaintext password.
func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports whether the plaintext matches the stored hash.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

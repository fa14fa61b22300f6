package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"chathub/backend/internal/models"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx so repositories can run
// inside or outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (email, username, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, is_active, status_message, created_at, updated_at
	`
	return r.db.QueryRow(ctx, query, user.Email, user.Username, user.PasswordHash, user.Role).
		Scan(&user.ID, &user.IsActive, &user.StatusMessage, &user.CreatedAt, &user.UpdatedAt)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT id, email, username, password_hash, role, is_active,
		       is_online, last_seen, status_message, created_at, updated_at
		FROM users
		WHERE email = $1
	`
	var user models.User
	err := r.db.QueryRow(ctx, query, email).Scan(
		&user.ID, &user.Email, &user.Username, &user.PasswordHash, &user.Role, &user.IsActive,
		&user.IsOnline, &user.LastSeen, &user.StatusMessage, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `
		SELECT id, email, username, password_hash, role, is_active,
		       is_online, last_seen, status_message, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	var user models.User
	err := r.db.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.Email, &user.Username, &user.PasswordHash, &user.Role, &user.IsActive,
		&user.IsOnline, &user.LastSeen, &user.StatusMessage, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) ListActive(ctx context.Context, excludeID uuid.UUID) ([]models.User, error) {
	query := `
		SELECT id, email, username, password_hash, role, is_active,
		       is_online, last_seen, status_message, created_at, updated_at
		FROM users
		WHERE is_active = TRUE AND id <> $1
		ORDER BY username
	`
	rows, err := r.db.Query(ctx, query, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		var user models.User
		if err := rows.Scan(
			&user.ID, &user.Email, &user.Username, &user.PasswordHash, &user.Role, &user.IsActive,
			&user.IsOnline, &user.LastSeen, &user.StatusMessage, &user.CreatedAt, &user.UpdatedAt,
		); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// SetOnline flips the online flag and stamps last_seen. Presence is a mutable
// projection on the users row, not a separate record.
func (r *UserRepository) SetOnline(ctx context.Context, userID uuid.UUID, online bool) error {
	_, err := r.db.Exec(ctx, `
		UPDATE users
		SET is_online = $2, last_seen = NOW()
		WHERE id = $1
	`, userID, online)
	return err
}

func (r *UserRepository) SetStatusMessage(ctx context.Context, userID uuid.UUID, status string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE users
		SET status_message = $2
		WHERE id = $1
	`, userID, status)
	return err
}

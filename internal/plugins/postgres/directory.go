package postgres

import (
	"context"
	"database/sql"
	"errors"

	"talkroom/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

type DirectoryRepo struct {
	db *sql.DB
}

func NewDirectoryRepo(db *sql.DB) *DirectoryRepo {
	return &DirectoryRepo{db: db}
}

/*
	-- Users
	CREATE TABLE users (
		id            UUID PRIMARY KEY,
		username      TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		room_id       UUID REFERENCES rooms(id) ON DELETE SET NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	);
*/

func (r *DirectoryRepo) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	user := &domain.User{ID: id}
	exec := GetExecutor(ctx, r.db)
	err := exec.QueryRowContext(ctx, `
		SELECT username, password_hash, room_id, created_at
		FROM users
		WHERE id = $1
	`, id).Scan(&user.Username, &user.PasswordHash, &user.RoomID, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (r *DirectoryRepo) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	user := &domain.User{Username: username}
	exec := GetExecutor(ctx, r.db)
	err := exec.QueryRowContext(ctx, `
		SELECT id, password_hash, room_id, created_at
		FROM users
		WHERE username = $1
	`, username).Scan(&user.ID, &user.PasswordHash, &user.RoomID, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (r *DirectoryRepo) CreateUser(ctx context.Context, u *domain.User) error {
	exec := GetExecutor(ctx, r.db)
	err := exec.QueryRowContext(ctx, `
		INSERT INTO users (id, username, password_hash)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, u.ID, u.Username, u.PasswordHash).Scan(&u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrUserExists
		}
		return err
	}
	return nil
}

func (r *DirectoryRepo) UpdateMembership(ctx context.Context, userID uuid.UUID, roomID *uuid.UUID) error {
	exec := GetExecutor(ctx, r.db)
	result, err := exec.ExecContext(ctx, `
		UPDATE users
		SET room_id = $2
		WHERE id = $1
	`, userID, roomID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

package repository

import (
	"context"
	"database/sql"
	"time"

	"courtbook/internal/database"
	"courtbook/internal/models"
)

type UserRepository struct {
	base
}

func NewUserRepository(db *database.DB, timeout time.Duration) *UserRepository {
	return &UserRepository{base: newBase(db, timeout)}
}

const userColumns = `user_id, email, password_hash, first_name, surname, registered_at, is_active`

func scanUser(s scanner, user *models.User) error {
	return s.Scan(
		&user.UserID,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.Surname,
		&user.RegisteredAt,
		&user.IsActive,
	)
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	user := &models.User{}
	err := scanUser(r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE user_id = $1`, id), user)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, database.ClassifyError(err)
	}
	return user, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	user := &models.User{}
	err := scanUser(r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE email = $1`, email), user)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, database.ClassifyError(err)
	}
	return user, nil
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	query := `
		INSERT INTO users (email, password_hash, first_name, surname, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (email) DO UPDATE SET password_hash = EXCLUDED.password_hash
		RETURNING user_id, registered_at`

	return r.db.QueryRowContext(ctx, query,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.Surname,
		user.IsActive,
	).Scan(&user.UserID, &user.RegisteredAt)
}

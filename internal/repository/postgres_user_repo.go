package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/animirror/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, userID int) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, name, avatar_s3, avatar_source_url FROM users WHERE user_id = $1`,
		userID,
	).Scan(&user.UserID, &user.Name, &user.AvatarS3, &user.AvatarSourceURL)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}

	return user, nil
}

// FindByName は指定名のユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByName(ctx context.Context, name string) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, name, avatar_s3, avatar_source_url FROM users WHERE name = $1`,
		name,
	).Scan(&user.UserID, &user.Name, &user.AvatarS3, &user.AvatarSourceURL)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by name: %w", err)
	}

	return user, nil
}

// ListAll は登録済みの全ユーザーをID昇順で取得する。
func (r *PostgresUserRepo) ListAll(ctx context.Context) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, name, avatar_s3, avatar_source_url FROM users ORDER BY user_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user := &model.User{}
		if err := rows.Scan(&user.UserID, &user.Name, &user.AvatarS3, &user.AvatarSourceURL); err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user rows: %w", err)
	}

	return users, nil
}

// Upsert はユーザーを主キーでUPSERTする。
func (r *PostgresUserRepo) Upsert(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (user_id, name, avatar_s3, avatar_source_url, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (user_id) DO UPDATE SET
		   name = excluded.name,
		   avatar_s3 = excluded.avatar_s3,
		   avatar_source_url = excluded.avatar_source_url,
		   updated_at = now()`,
		user.UserID, user.Name, user.AvatarS3, user.AvatarSourceURL,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}

	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)

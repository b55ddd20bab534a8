package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gather_auth/internal/config"
	"gather_auth/internal/models"
	"gather_auth/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepo struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg *config.Config) (*PostgresRepo, error) {
	const op = "storage.postgres.New"

	poolConfig, err := pgxpool.ParseConfig(dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse config: %w", op, err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create pool: %w", op, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	return &PostgresRepo{pool: pool}, nil
}

func (r *PostgresRepo) SaveUser(ctx context.Context, email, displayName string, passHash []byte) (int64, error) {
	const op = "storage.postgres.SaveUser"

	query := `
		INSERT INTO users (email, display_name, password_hash)
		VALUES (lower($1), $2, $3)
		RETURNING id;
	`

	var id int64

	err := r.pool.QueryRow(ctx, query, email, displayName, passHash).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, storage.ErrUserExists
		}

		return 0, fmt.Errorf("%s: failed to save user: %w", op, err)
	}

	return id, nil
}

func (r *PostgresRepo) User(ctx context.Context, email string) (models.User, error) {
	query := `
		SELECT id, email, display_name, password_hash, role, status, email_verified, created_at
		FROM users
		WHERE email = lower($1);
	`

	return r.scanUser(r.pool.QueryRow(ctx, query, email))
}

func (r *PostgresRepo) UserByID(ctx context.Context, id int64) (models.User, error) {
	query := `
		SELECT id, email, display_name, password_hash, role, status, email_verified, created_at
		FROM users
		WHERE id = $1;
	`

	return r.scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *PostgresRepo) scanUser(row pgx.Row) (models.User, error) {
	var u models.User

	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.DisplayName,
		&u.PassHash,
		&u.Role,
		&u.Status,
		&u.EmailVerified,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, storage.ErrUserNotFound
		}

		return models.User{}, err
	}

	return u, nil
}

func (r *PostgresRepo) SetEmailVerified(ctx context.Context, userID int64) error {
	query := `UPDATE users SET email_verified = TRUE WHERE id = $1`

	_, err := r.pool.Exec(ctx, query, userID)

	return err
}

func (r *PostgresRepo) UpdatePassword(ctx context.Context, userID int64, passHash []byte) error {
	query := `UPDATE users SET password_hash = $1 WHERE id = $2`

	_, err := r.pool.Exec(ctx, query, passHash, userID)

	return err
}

func (r *PostgresRepo) SaveSession(
	ctx context.Context,
	userID int64,
	tokenHash string,
	userAgent, ip string,
	expiresAt time.Time,
) (int64, error) {
	const query = `
		INSERT INTO sessions (user_id, token_hash, user_agent, ip, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id;
	`

	var id int64

	err := r.pool.QueryRow(ctx, query, userID, tokenHash, userAgent, ip, expiresAt).Scan(&id)

	return id, err
}

// SessionByTokenHash filters expired rows at lookup time; there is no
// background purge.
func (r *PostgresRepo) SessionByTokenHash(ctx context.Context, tokenHash string) (models.Session, error) {
	const query = `
		SELECT id, user_id, token_hash, user_agent, ip, expires_at, created_at
		FROM sessions
		WHERE token_hash = $1 AND expires_at > NOW();
	`

	var s models.Session

	err := r.pool.QueryRow(ctx, query, tokenHash).Scan(
		&s.ID,
		&s.UserID,
		&s.TokenHash,
		&s.UserAgent,
		&s.IP,
		&s.ExpiresAt,
		&s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, storage.ErrSessionNotFound
		}

		return models.Session{}, err
	}

	return s, nil
}

func (r *PostgresRepo) RotateSession(ctx context.Context, id int64, newTokenHash string, expiresAt time.Time) error {
	const query = `
		UPDATE sessions
		SET token_hash = $1, expires_at = $2
		WHERE id = $3
	`

	_, err := r.pool.Exec(ctx, query, newTokenHash, expiresAt, id)

	return err
}

func (r *PostgresRepo) DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error {
	query := `DELETE FROM sessions WHERE token_hash = $1`

	_, err := r.pool.Exec(ctx, query, tokenHash)

	return err
}

func (r *PostgresRepo) DeleteSessionsByUserID(ctx context.Context, userID int64) error {
	query := `DELETE FROM sessions WHERE user_id = $1`

	_, err := r.pool.Exec(ctx, query, userID)

	return err
}

func (r *PostgresRepo) SaveOneTimeToken(
	ctx context.Context,
	tokenHash, email, purpose string,
	expiresAt time.Time,
) error {
	const query = `
		INSERT INTO one_time_tokens (token_hash, email, purpose, expires_at)
		VALUES ($1, lower($2), $3, $4)
	`

	_, err := r.pool.Exec(ctx, query, tokenHash, email, purpose, expiresAt)

	return err
}

// ConsumeOneTimeToken marks an unconsumed, unexpired token as consumed and
// returns it. The conditional UPDATE makes consumption atomic: a second call
// with the same token finds no matching row.
func (r *PostgresRepo) ConsumeOneTimeToken(ctx context.Context, tokenHash, purpose string) (models.OneTimeToken, error) {
	const query = `
		UPDATE one_time_tokens
		SET consumed_at = NOW()
		WHERE token_hash = $1 AND purpose = $2 AND consumed_at IS NULL AND expires_at > NOW()
		RETURNING id, token_hash, email, purpose, expires_at, consumed_at, created_at;
	`

	var t models.OneTimeToken

	err := r.pool.QueryRow(ctx, query, tokenHash, purpose).Scan(
		&t.ID,
		&t.TokenHash,
		&t.Email,
		&t.Purpose,
		&t.ExpiresAt,
		&t.ConsumedAt,
		&t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.OneTimeToken{}, storage.ErrTokenNotFound
		}

		return models.OneTimeToken{}, err
	}

	return t, nil
}

// Stats used by the admin endpoints.
func (r *PostgresRepo) CountUsers(ctx context.Context) (int64, error) {
	var n int64

	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)

	return n, err
}

func (r *PostgresRepo) CountActiveSessions(ctx context.Context) (int64, error) {
	var n int64

	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sessions WHERE expires_at > NOW()`).Scan(&n)

	return n, err
}

func (r *PostgresRepo) RecentUsers(ctx context.Context, limit int) ([]models.User, error) {
	const query = `
		SELECT id, email, display_name, password_hash, role, status, email_verified, created_at
		FROM users
		ORDER BY created_at DESC
		LIMIT $1;
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User

	for rows.Next() {
		var u models.User

		err := rows.Scan(
			&u.ID,
			&u.Email,
			&u.DisplayName,
			&u.PassHash,
			&u.Role,
			&u.Status,
			&u.EmailVerified,
			&u.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		users = append(users, u)
	}

	return users, rows.Err()
}

func (r *PostgresRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *PostgresRepo) Close() {
	r.pool.Close()
}

func dsn(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s",
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.DBName,
		cfg.Postgres.SSLMode,
	)
}

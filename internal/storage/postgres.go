package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/facesessions/internal/config"
	"github.com/your-org/facesessions/internal/models"
)

var (
	// ErrNotFound is returned when no session row matches.
	ErrNotFound    = errors.New("session not found")
	ErrDuplicateID = errors.New("session id already exists")
)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	summary    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS sessions_user_id_id_idx ON sessions (user_id, id DESC);
`

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// EnsureSchema creates the sessions table and its listing index if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// CreateSession stores the whole record in a single-row insert.
func (s *PostgresStore) CreateSession(ctx context.Context, sess *models.Session) error {
	summary, err := json.Marshal(summaryOrEmpty(sess.Summary))
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO sessions (id, user_id, summary) VALUES ($1, $2, $3)`,
		sess.ID, sess.UserID, json.RawMessage(summary))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateID
		}
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSessionByID(ctx context.Context, id string) (*models.Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, user_id, summary FROM sessions WHERE id = $1 LIMIT 1`, id)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// ListSessions returns one page of the user's sessions, newest id first, and the
// user's total session count.
func (s *PostgresStore) ListSessions(ctx context.Context, userID string, page models.Pagination) ([]models.Session, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM sessions WHERE user_id = $1`, userID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, summary FROM sessions WHERE user_id = $1
		 ORDER BY id DESC LIMIT $2 OFFSET $3`,
		userID, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []models.Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, total, nil
}

func (s *PostgresStore) UpdateSession(ctx context.Context, id string, summary []models.FileResult) error {
	data, err := json.Marshal(summaryOrEmpty(summary))
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET summary = $1 WHERE id = $2`, json.RawMessage(data), id)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteSession(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var (
		sess    models.Session
		summary []byte
	)
	if err := row.Scan(&sess.ID, &sess.UserID, &summary); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(summary, &sess.Summary); err != nil {
		return nil, fmt.Errorf("decode summary of %s: %w", sess.ID, err)
	}
	sess.Summary = summaryOrEmpty(sess.Summary)
	return &sess, nil
}

func summaryOrEmpty(summary []models.FileResult) []models.FileResult {
	if summary == nil {
		return []models.FileResult{}
	}
	return summary
}

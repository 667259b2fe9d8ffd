// Package sqlite implements the domain repositories on an embedded SQLite
// database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"bmitracker/internal/adapter/sqlite/migrations"
	"bmitracker/internal/domain"
)

// Store persists users, sessions and BMI records in SQLite.
type Store struct {
	sqlDB *sql.DB
}

var _ domain.RecordRepository = (*Store)(nil)
var _ domain.UserRepository = (*Store)(nil)
var _ domain.SessionRepository = (*SessionRepo)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite store at path and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite serializes writers; one connection keeps them queued in-process.
	sqlDB.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// --- RecordRepository ---

// AppendRecord inserts a BMI record and returns its ID.
func (s *Store) AppendRecord(ctx context.Context, userID int64, m domain.Measurement, r domain.BMIResult, recordedAt time.Time) (int64, error) {
	res, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO bmi_records (user_id, weight_kg, height_m, bmi, category, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		userID, m.WeightKg, m.HeightM, r.Value, string(r.Category), toMillis(recordedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert bmi record: %w", err)
	}
	return res.LastInsertId()
}

// ListRecords returns the user's records, most recent first.
func (s *Store) ListRecords(ctx context.Context, userID int64) ([]domain.Record, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, user_id, weight_kg, height_m, bmi, category, recorded_at
		 FROM bmi_records WHERE user_id = ?
		 ORDER BY recorded_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list bmi records: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Record, 0)
	for rows.Next() {
		var (
			rec        domain.Record
			category   string
			recordedAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.WeightKg, &rec.HeightM, &rec.Value, &category, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan bmi record: %w", err)
		}
		rec.Category = domain.Category(category)
		rec.RecordedAt = fromMillis(recordedAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// --- UserRepository ---

func (s *Store) getUser(ctx context.Context, where string, arg any) (*domain.User, error) {
	var (
		u         domain.User
		createdAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		"SELECT id, username, password_hash, created_at FROM users WHERE "+where+" = ?", arg,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt = fromMillis(createdAt)
	return &u, nil
}

// GetByUsername retrieves a user by username.
func (s *Store) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.getUser(ctx, "username", username)
}

// GetByID retrieves a user by ID.
func (s *Store) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return s.getUser(ctx, "id", id)
}

// Create creates a new user.
func (s *Store) Create(ctx context.Context, username, passwordHash string) (*domain.User, error) {
	now := time.Now().UTC()
	res, err := s.sqlDB.ExecContext(ctx,
		"INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)",
		username, passwordHash, toMillis(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrUsernameTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &domain.User{ID: id, Username: username, PasswordHash: passwordHash, CreatedAt: fromMillis(toMillis(now))}, nil
}

// --- SessionRepository ---

// SessionRepo implements session persistence on a Store.
type SessionRepo struct {
	store *Store
}

// NewSessionRepo wraps a Store as a SessionRepository.
func NewSessionRepo(s *Store) *SessionRepo {
	return &SessionRepo{store: s}
}

// Create creates a new session.
func (r *SessionRepo) Create(ctx context.Context, userID int64, token, userAgent, ip string, expiresAt time.Time) error {
	_, err := r.store.sqlDB.ExecContext(ctx,
		"INSERT INTO sessions (token, user_id, user_agent, ip, expires_at, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		token, userID, userAgent, ip, toMillis(expiresAt), toMillis(time.Now()),
	)
	return err
}

// GetByToken retrieves a session by token.
func (r *SessionRepo) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	var (
		sess               domain.Session
		expires, createdAt int64
	)
	err := r.store.sqlDB.QueryRowContext(ctx,
		"SELECT token, user_id, user_agent, ip, expires_at, created_at FROM sessions WHERE token = ?",
		token,
	).Scan(&sess.Token, &sess.UserID, &sess.UserAgent, &sess.IP, &expires, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sess.ExpiresAt = fromMillis(expires)
	sess.CreatedAt = fromMillis(createdAt)
	return &sess, nil
}

// Delete deletes a session by token.
func (r *SessionRepo) Delete(ctx context.Context, token string) error {
	_, err := r.store.sqlDB.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", token)
	return err
}

// DeleteExpired deletes all expired sessions.
func (r *SessionRepo) DeleteExpired(ctx context.Context) error {
	_, err := r.store.sqlDB.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at < ?", toMillis(time.Now()))
	return err
}

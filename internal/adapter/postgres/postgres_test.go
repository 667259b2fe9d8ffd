package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"bmitracker/internal/domain"
)

// openTestDB connects to BMITRACKER_TEST_DATABASE_URL or skips.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("BMITRACKER_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("BMITRACKER_TEST_DATABASE_URL not set")
	}
	db, err := Open(url)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestPing(t *testing.T) {
	db := openTestDB(t)
	if err := db.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestUsersAndRecords(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	name := fmt.Sprintf("pgtest-%d", time.Now().UnixNano())

	u, err := db.Create(ctx, name, "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := db.Create(ctx, name, "hash"); !errors.Is(err, domain.ErrUsernameTaken) {
		t.Fatalf("duplicate create err = %v, want ErrUsernameTaken", err)
	}

	base := time.Now().UTC().Truncate(time.Millisecond)
	m := domain.Measurement{WeightKg: 70, HeightM: 1.7}
	older, err := db.AppendRecord(ctx, u.ID, m, domain.Evaluate(70, 1.7), base)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	newer, _ := db.AppendRecord(ctx, u.ID, m, domain.Evaluate(70, 1.7), base.Add(time.Minute))

	records, err := db.ListRecords(ctx, u.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 || records[0].ID != newer || records[1].ID != older {
		t.Fatalf("unexpected records order: %+v", records)
	}
	if records[0].Category != domain.CategoryNormal {
		t.Errorf("category = %q, want %q", records[0].Category, domain.CategoryNormal)
	}
}

func TestSessions(t *testing.T) {
	db := openTestDB(t)
	repo := NewSessionRepo(db)
	ctx := context.Background()

	u, err := db.Create(ctx, fmt.Sprintf("pgsess-%d", time.Now().UnixNano()), "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	token := fmt.Sprintf("tok-%d", time.Now().UnixNano())
	if err := repo.Create(ctx, u.ID, token, "ua", "127.0.0.1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("create session: %v", err)
	}
	s, err := repo.GetByToken(ctx, token)
	if err != nil || s == nil || s.UserAgent != "ua" {
		t.Fatalf("get session = (%+v, %v)", s, err)
	}
	if err := repo.Delete(ctx, token); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if s, _ := repo.GetByToken(ctx, token); s != nil {
		t.Fatal("expected deleted session")
	}
}

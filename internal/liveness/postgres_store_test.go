//go:build integration

package liveness

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDB connects to POSTGRES_URL when set, otherwise starts a
// disposable postgres container for the duration of the test.
func setupTestDB(t *testing.T) (*PostgresStore, func()) {
	t.Helper()

	ctx := context.Background()
	dbURL := os.Getenv("POSTGRES_URL")
	var terminate func()

	if dbURL == "" {
		container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
			tcpostgres.WithDatabase("durin_test"),
			tcpostgres.WithUsername("durin"),
			tcpostgres.WithPassword("durin"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		if err != nil {
			t.Skipf("POSTGRES_URL not set and container start failed: %v", err)
		}
		terminate = func() { _ = container.Terminate(ctx) }

		dbURL, err = container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			terminate()
			t.Fatalf("connection string: %v", err)
		}
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	store := NewPostgresStore(db)
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	cleanup := func() {
		_, _ = db.ExecContext(ctx, "DELETE FROM liveness_checks")
		_ = db.Close()
		if terminate != nil {
			terminate()
		}
	}
	return store, cleanup
}

func testCheck(id, userID, device string, checkedAt time.Time) *CheckResult {
	return &CheckResult{
		ID:                id,
		UserID:            userID,
		DeviceFingerprint: device,
		Pass:              true,
		Score:             0.82,
		SanctionsPass:     true,
		DeviceRisk:        0.1,
		Flags:             []string{},
		CheckedAt:         checkedAt,
	}
}

func TestPostgresLiveness_CreateAndList(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().UTC()

	older := testCheck("lv_000000000000000000000001", "alice", "dev-1", now.Add(-time.Hour))
	newer := testCheck("lv_000000000000000000000002", "alice", "dev-1", now)
	newer.Pass = false
	newer.Flags = []string{FlagReplay}

	if err := store.Create(ctx, older); err != nil {
		t.Fatalf("Create older: %v", err)
	}
	if err := store.Create(ctx, newer); err != nil {
		t.Fatalf("Create newer: %v", err)
	}

	checks, err := store.ListByUser(ctx, "alice")
	if err != nil {
		t.Fatalf("ListByUser failed: %v", err)
	}
	if len(checks) != 2 || checks[0].ID != newer.ID {
		t.Errorf("list order wrong: %+v", checks)
	}
	if len(checks[0].Flags) != 1 || checks[0].Flags[0] != FlagReplay {
		t.Errorf("flags did not round-trip: %v", checks[0].Flags)
	}

	latest, err := store.Latest(ctx, "alice")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest.ID != newer.ID || latest.Pass {
		t.Errorf("latest = %+v", latest)
	}
}

func TestPostgresLiveness_CountAndDeviceUsers(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().UTC()

	seeds := []struct{ id, user, device string }{
		{"lv_000000000000000000000011", "alice", "dev-shared"},
		{"lv_000000000000000000000012", "alice", "dev-shared"},
		{"lv_000000000000000000000013", "bob", "dev-shared"},
		{"lv_000000000000000000000014", "carol", "dev-other"},
	}
	for _, s := range seeds {
		if err := store.Create(ctx, testCheck(s.id, s.user, s.device, now)); err != nil {
			t.Fatalf("Create %s: %v", s.id, err)
		}
	}

	count, err := store.CountByUser(ctx, "alice")
	if err != nil {
		t.Fatalf("CountByUser failed: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}

	users, err := store.DeviceUsers(ctx, "dev-shared")
	if err != nil {
		t.Fatalf("DeviceUsers failed: %v", err)
	}
	if len(users) != 2 || users[0] != "alice" || users[1] != "bob" {
		t.Errorf("users = %v, want [alice bob]", users)
	}
}

func TestPostgresLiveness_LatestNotFound(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	if _, err := store.Latest(context.Background(), "nobody"); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

//go:build integration

package analysis

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

	"github.com/durinhq/durin/internal/engine"
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
		_, _ = db.ExecContext(ctx, "DELETE FROM analyses")
		_ = db.Close()
		if terminate != nil {
			terminate()
		}
	}
	return store, cleanup
}

func testRecord(id string, createdAt time.Time) *Record {
	return &Record{
		ID:               id,
		Status:           StatusCompleted,
		AccountCount:     2,
		TransactionCount: 1,
		Result: &engine.Result{
			Nodes: []engine.Node{
				{ID: "a", Score: 0, Bucket: engine.BucketLow},
				{ID: "b", Score: 0, Bucket: engine.BucketLow},
			},
			Edges: []engine.Edge{
				{Source: "a", Target: "b", Kind: engine.EdgeTransaction, Count: 1, TotalAmount: 100},
			},
			Summary: engine.Summary{TotalAccounts: 2, TotalTransactions: 1},
		},
		CreatedAt: createdAt,
	}
}

func TestPostgresAnalysis_CreateAndGet(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	rec := testRecord("an_000000000000000000000001", time.Now().UTC())

	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != StatusCompleted || got.AccountCount != 2 {
		t.Errorf("unexpected record: %+v", got)
	}
	if len(got.Result.Nodes) != 2 || len(got.Result.Edges) != 1 {
		t.Errorf("result did not round-trip: %+v", got.Result)
	}
}

func TestPostgresAnalysis_LatestAndList(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().UTC()

	older := testRecord("an_000000000000000000000002", now.Add(-time.Hour))
	newer := testRecord("an_000000000000000000000003", now)
	if err := store.Create(ctx, older); err != nil {
		t.Fatalf("Create older: %v", err)
	}
	if err := store.Create(ctx, newer); err != nil {
		t.Fatalf("Create newer: %v", err)
	}

	latest, err := store.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest.ID != newer.ID {
		t.Errorf("latest = %s, want %s", latest.ID, newer.ID)
	}

	records, err := store.List(ctx, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 2 || records[0].ID != newer.ID {
		t.Errorf("list order wrong: got %d records", len(records))
	}
}

func TestPostgresAnalysis_DeleteAndNotFound(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	if _, err := store.Get(ctx, "an_00000000000000000000dead"); err != ErrNotFound {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}
	if _, err := store.Latest(ctx); err != ErrNoAnalyses {
		t.Errorf("Latest on empty = %v, want ErrNoAnalyses", err)
	}

	rec := testRecord("an_000000000000000000000004", time.Now().UTC())
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete(ctx, rec.ID); err != ErrNotFound {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}
}

func TestPostgresAnalysis_ListSurfacesCorruptResult(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	good := testRecord("an_000000000000000000000005", time.Now().UTC())
	if err := store.Create(ctx, good); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	// A scalar is valid JSONB but not a result document.
	if _, err := store.db.ExecContext(ctx,
		`UPDATE analyses SET result = '"garbage"'::jsonb WHERE id = $1`, good.ID,
	); err != nil {
		t.Fatalf("corrupt row: %v", err)
	}

	if _, err := store.List(ctx, 10); err == nil {
		t.Fatal("List must report rows it cannot decode, not skip them")
	}
}

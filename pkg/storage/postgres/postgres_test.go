package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rhuss/remedy/pkg/api"
	"github.com/rhuss/remedy/pkg/storage"
	"github.com/rhuss/remedy/pkg/transport"
)

func init() {
	// Configure testcontainers to use podman.
	// Detect the podman socket from `podman machine inspect`.
	if os.Getenv("DOCKER_HOST") == "" {
		out, err := exec.Command("podman", "machine", "inspect", "--format", "{{.ConnectionInfo.PodmanSocket.Path}}").Output()
		if err == nil {
			sock := strings.TrimSpace(string(out))
			if sock != "" {
				os.Setenv("DOCKER_HOST", "unix://"+sock)
			}
		}
	}
	// Ryuk needs privileged mode with podman.
	if os.Getenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED", "true")
	}
}

// setupTestDB starts a PostgreSQL container and returns a connected Store.
// Tests are skipped if no container runtime is available.
func setupTestDB(t *testing.T) *Store {
	t.Helper()

	if os.Getenv("SKIP_INTEGRATION") == "true" {
		t.Skip("SKIP_INTEGRATION=true, skipping PostgreSQL integration tests")
	}

	if _, err := exec.LookPath("podman"); err != nil {
		t.Skip("podman not found, skipping integration tests")
	}

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("remedy_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skipf("skipping: could not start PostgreSQL container (is podman running?): %v", err)
	}

	t.Cleanup(func() {
		container.Terminate(context.Background())
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}

	store, err := New(ctx, Config{
		DSN:            connStr,
		MaxConns:       5,
		MinConns:       1,
		MigrateOnStart: true,
	})
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func makeTestRepair(id string) *api.Repair {
	return &api.Repair{
		ID:         id,
		Object:     "repair",
		Status:     api.RepairStatusSolved,
		FinalCode:  "print('fixed')",
		MaxRetries: 3,
		History: []api.AttemptRecord{
			{Attempt: 1, Output: "NameError: name 'x' is not defined", ExitCode: 1,
				Explanation: "x was never assigned", Diff: "--- original.py\n+++ fixed.py\n"},
			{Attempt: 2, Output: "fixed\n", ExitCode: 0,
				Explanation: "Code executed successfully"},
		},
		CreatedAt: time.Now().Unix(),
	}
}

func TestPostgres_SaveAndGet(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	rep := makeTestRepair(fmt.Sprintf("run_pg_get_%d", time.Now().UnixNano()))
	if err := store.SaveRepair(ctx, rep); err != nil {
		t.Fatalf("SaveRepair failed: %v", err)
	}

	got, err := store.GetRepair(ctx, rep.ID)
	if err != nil {
		t.Fatalf("GetRepair failed: %v", err)
	}

	if got.ID != rep.ID {
		t.Errorf("ID = %q, want %q", got.ID, rep.ID)
	}
	if got.Status != api.RepairStatusSolved {
		t.Errorf("Status = %q, want solved", got.Status)
	}
	if got.FinalCode != "print('fixed')" {
		t.Errorf("FinalCode = %q, want %q", got.FinalCode, "print('fixed')")
	}
	if got.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", got.MaxRetries)
	}
	if len(got.History) != 2 {
		t.Fatalf("len(History) = %d, want 2", len(got.History))
	}
	if got.History[0].ExitCode != 1 || got.History[1].ExitCode != 0 {
		t.Errorf("history exit codes = %d,%d, want 1,0", got.History[0].ExitCode, got.History[1].ExitCode)
	}
	if got.History[0].Diff == "" {
		t.Error("history[0].Diff lost in round-trip")
	}
}

func TestPostgres_GetNotFound(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	_, err := store.GetRepair(ctx, "run_nonexistent")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgres_Update(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	rep := makeTestRepair(fmt.Sprintf("run_pg_upd_%d", time.Now().UnixNano()))
	rep.Status = api.RepairStatusInProgress
	rep.History = nil
	rep.FinalCode = ""
	if err := store.SaveRepair(ctx, rep); err != nil {
		t.Fatalf("SaveRepair failed: %v", err)
	}

	final := makeTestRepair(rep.ID)
	final.Status = api.RepairStatusUnsolved
	final.Error = api.NewUpstreamTimeoutError("fix oracle timed out")
	if err := store.UpdateRepair(ctx, final); err != nil {
		t.Fatalf("UpdateRepair failed: %v", err)
	}

	got, err := store.GetRepair(ctx, rep.ID)
	if err != nil {
		t.Fatalf("GetRepair after update failed: %v", err)
	}
	if got.Status != api.RepairStatusUnsolved {
		t.Errorf("Status = %q, want unsolved", got.Status)
	}
	if len(got.History) != 2 {
		t.Errorf("len(History) = %d, want 2", len(got.History))
	}
	if got.Error == nil || got.Error.Type != api.ErrorTypeUpstreamTimeout {
		t.Errorf("Error = %v, want upstream_timeout", got.Error)
	}
}

func TestPostgres_UpdateNotFound(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	err := store.UpdateRepair(ctx, makeTestRepair("run_nonexistent"))
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgres_SoftDelete(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	rep := makeTestRepair(fmt.Sprintf("run_pg_del_%d", time.Now().UnixNano()))
	store.SaveRepair(ctx, rep)

	if err := store.DeleteRepair(ctx, rep.ID); err != nil {
		t.Fatalf("DeleteRepair failed: %v", err)
	}

	// GetRepair should return not-found.
	if _, err := store.GetRepair(ctx, rep.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	// Deleting again should also report not-found.
	if err := store.DeleteRepair(ctx, rep.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound on double delete, got %v", err)
	}
}

func TestPostgres_DuplicateSave(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	rep := makeTestRepair(fmt.Sprintf("run_pg_dup_%d", time.Now().UnixNano()))
	store.SaveRepair(ctx, rep)

	err := store.SaveRepair(ctx, rep)
	if !errors.Is(err, storage.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestPostgres_HealthCheck(t *testing.T) {
	store := setupTestDB(t)
	if err := store.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}

func TestPostgres_List(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	ts := time.Now().UnixNano()
	base := time.Now().Unix()
	for i := 0; i < 5; i++ {
		rep := makeTestRepair(fmt.Sprintf("run_pg_list%d_%d", i, ts))
		rep.CreatedAt = base + int64(i)
		if i%2 == 0 {
			rep.Status = api.RepairStatusUnsolved
		}
		if err := store.SaveRepair(ctx, rep); err != nil {
			t.Fatalf("SaveRepair(%d) failed: %v", i, err)
		}
	}

	// Newest first by default.
	got, err := store.ListRepairs(ctx, transport.ListOptions{})
	if err != nil {
		t.Fatalf("ListRepairs failed: %v", err)
	}
	if len(got.Data) < 5 {
		t.Fatalf("len(Data) = %d, want >= 5", len(got.Data))
	}
	if got.Data[0].CreatedAt < got.Data[1].CreatedAt {
		t.Error("default order should be newest first")
	}

	// Status filter.
	unsolved, err := store.ListRepairs(ctx, transport.ListOptions{Status: "unsolved"})
	if err != nil {
		t.Fatalf("ListRepairs(status) failed: %v", err)
	}
	for _, r := range unsolved.Data {
		if r.Status != api.RepairStatusUnsolved {
			t.Errorf("status filter leaked %q", r.Status)
		}
	}

	// Cursor pagination.
	first, err := store.ListRepairs(ctx, transport.ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("ListRepairs(limit) failed: %v", err)
	}
	if len(first.Data) != 2 || !first.HasMore {
		t.Fatalf("first page: len=%d hasMore=%v, want 2/true", len(first.Data), first.HasMore)
	}

	second, err := store.ListRepairs(ctx, transport.ListOptions{Limit: 2, After: first.LastID})
	if err != nil {
		t.Fatalf("ListRepairs(after) failed: %v", err)
	}
	for _, r := range second.Data {
		if r.ID == first.Data[0].ID || r.ID == first.Data[1].ID {
			t.Errorf("page 2 repeats %q from page 1", r.ID)
		}
	}
}

func TestPostgres_TenantIsolation(t *testing.T) {
	store := setupTestDB(t)

	ts := time.Now().UnixNano()
	ctxA := storage.SetTenant(context.Background(), "tenant-a")
	ctxB := storage.SetTenant(context.Background(), "tenant-b")

	rep := makeTestRepair(fmt.Sprintf("run_pg_tenant_%d", ts))
	store.SaveRepair(ctxA, rep)

	// Tenant A can retrieve.
	if _, err := store.GetRepair(ctxA, rep.ID); err != nil {
		t.Fatalf("tenant A should see own repair: %v", err)
	}

	// Tenant B cannot retrieve, update, or delete.
	if _, err := store.GetRepair(ctxB, rep.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Error("tenant B should not see tenant A's repair")
	}
	if err := store.UpdateRepair(ctxB, rep); !errors.Is(err, storage.ErrNotFound) {
		t.Error("tenant B should not update tenant A's repair")
	}
	if err := store.DeleteRepair(ctxB, rep.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Error("tenant B should not delete tenant A's repair")
	}

	// No tenant can retrieve (single-tenant mode).
	if _, err := store.GetRepair(context.Background(), rep.ID); err != nil {
		t.Fatalf("no-tenant should see all: %v", err)
	}
}

package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/interview-scheduler/internal/application"
	"github.com/example/interview-scheduler/internal/archive"
	"github.com/example/interview-scheduler/internal/config"
	"github.com/example/interview-scheduler/internal/logging"
)

const testRoster = `
interviewers:
  - name: Ravi Kumar
    email: ravi@example.com
    phone: "9999900001"
    time_zone: UTC
    availability:
      - {day: monday, start: "10:00", end: "13:00"}
candidates:
  - name: Asha Rao
    phone: "9876543210"
    score: 91
    rank: 1
  - name: Bilal
    phone: "9876543211"
    score: 78
    rank: 2
`

// useTempDatabase points the process configuration at a fresh SQLite file.
func useTempDatabase(t *testing.T) {
	t.Helper()
	t.Setenv("INTERVIEW_DB_DRIVER", "sqlite")
	t.Setenv("INTERVIEW_DB_DSN", filepath.Join(t.TempDir(), "interviews.db"))
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestHashKeyCommand(t *testing.T) {
	out, err := runCLI(t, "", "hash-key", "s3cret")
	if err != nil {
		t.Fatalf("hash-key with argument: %v", err)
	}
	hash := strings.TrimSpace(out)
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Fatalf("expected argon2id encoding, got %q", hash)
	}
	if err := application.VerifyAPIKey(hash, "s3cret"); err != nil {
		t.Fatalf("printed hash does not verify: %v", err)
	}

	out, err = runCLI(t, "from-stdin\n", "hash-key")
	if err != nil {
		t.Fatalf("hash-key from stdin: %v", err)
	}
	if err := application.VerifyAPIKey(strings.TrimSpace(out), "from-stdin"); err != nil {
		t.Fatalf("stdin hash does not verify: %v", err)
	}

	if _, err := runCLI(t, "", "hash-key"); err == nil {
		t.Fatalf("expected an empty key to be rejected")
	}
}

func TestMigrateSeedAndSweep(t *testing.T) {
	useTempDatabase(t)

	out, err := runCLI(t, "", "migrate")
	if err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if !strings.Contains(out, "applied 001") {
		t.Fatalf("expected first migration to be applied, got %q", out)
	}

	out, err = runCLI(t, "", "migrate")
	if err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if !strings.Contains(out, "schema is up to date") {
		t.Fatalf("expected nothing pending, got %q", out)
	}

	rosterPath := filepath.Join(t.TempDir(), "roster.yaml")
	if err := os.WriteFile(rosterPath, []byte(testRoster), 0o600); err != nil {
		t.Fatalf("write roster: %v", err)
	}

	out, err = runCLI(t, "", "seed", "--file", rosterPath)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if want := "candidates=2 interviewers=1 skipped=0\n"; out != want {
		t.Fatalf("seed output = %q, want %q", out, want)
	}

	out, err = runCLI(t, "", "seed", "-f", rosterPath)
	if err != nil {
		t.Fatalf("reseed: %v", err)
	}
	if want := "candidates=0 interviewers=0 skipped=3\n"; out != want {
		t.Fatalf("reseed output = %q, want %q", out, want)
	}

	out, err = runCLI(t, "", "sweep", "--once")
	if err != nil {
		t.Fatalf("sweep --once: %v", err)
	}
	for _, phase := range []string{"expire_holds=0", "response_timeouts=0", "retry_due=0", "feedback_applied=0"} {
		if !strings.Contains(out, phase) {
			t.Errorf("sweep output missing %q:\n%s", phase, out)
		}
	}
}

func TestArchiveRequiresBucket(t *testing.T) {
	useTempDatabase(t)
	t.Setenv("INTERVIEW_ARCHIVE_BUCKET", "")

	if _, err := runCLI(t, "", "migrate"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	_, err := runCLI(t, "", "archive", "--older-than", "1h")
	if !errors.Is(err, archive.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestServeRequiresAdminKey(t *testing.T) {
	useTempDatabase(t)
	t.Setenv("INTERVIEW_ADMIN_KEY", "")
	t.Setenv("INTERVIEW_ADMIN_KEY_HASH", "")

	_, err := runCLI(t, "", "serve")
	if !errors.Is(err, config.ErrMissingAdminKey) {
		t.Fatalf("expected ErrMissingAdminKey, got %v", err)
	}
}

func TestInvalidEnvironmentIsReported(t *testing.T) {
	t.Setenv("INTERVIEW_DB_DRIVER", "mysql")

	_, err := runCLI(t, "", "migrate")
	if err == nil || !strings.Contains(err.Error(), "INTERVIEW_DB_DRIVER") {
		t.Fatalf("expected INTERVIEW_DB_DRIVER to be reported, got %v", err)
	}
}

func TestAppHandler(t *testing.T) {
	useTempDatabase(t)
	t.Setenv("INTERVIEW_ADMIN_KEY", "admin-key")
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg, logging.Discard())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	if _, err := a.store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	handler := a.handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"store":"ok"`) {
		t.Fatalf("healthz = %d %s", rec.Code, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/candidates", strings.NewReader(`{"name":"Asha","phone":"9876543210","score":90}`))
	req.Header.Set("X-API-Key", "admin-key")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create candidate = %d %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"phone":"+919876543210"`) {
		t.Fatalf("expected normalized phone, got %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/candidates", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", rec.Code)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	useTempDatabase(t)
	t.Setenv("INTERVIEW_ADMIN_KEY", "admin-key")
	t.Setenv("INTERVIEW_HTTP_PORT", "18181")
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	a, err := newApp(context.Background(), cfg, logging.Discard())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, a) }()
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("serve returned %v after cancel", err)
	}
}

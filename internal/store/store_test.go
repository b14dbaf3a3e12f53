package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Atyanta/VideoFaceDLFromYt/internal/types"
)

func TestMigrateURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"postgres://u:p@localhost:5432/db?sslmode=disable", "pgx5://u:p@localhost:5432/db?sslmode=disable", false},
		{"postgresql://u@h/db", "pgx5://u@h/db", false},
		{"pgx5://u@h/db", "pgx5://u@h/db", false},
		{"host=localhost user=u", "", true},
	}
	for _, tt := range tests {
		got, err := migrateURL(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("migrateURL(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("migrateURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestStoreIntegration runs a full integration test against a real Postgres container.
// It requires Docker to be running.
func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// Recover from panics inside testcontainers (e.g. socket not found)
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		_, err = testcontainers.NewDockerClientWithOpts(ctx)
		return
	}()
	if err != nil {
		t.Fatalf("Docker not available, cannot run integration test: %v", err)
	}

	pgContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("facecrop_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
		testcontainers.WithLogger(noopLogger{}),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("Failed to terminate container: %v", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	// Initialize Store (runs migrations)
	s, err := New(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to connect to store: %v", err)
	}
	defer s.Close(ctx)

	// Migrations are idempotent across runs.
	s2, err := New(ctx, connStr)
	if err != nil {
		t.Fatalf("Second New failed: %v", err)
	}
	s2.Close(ctx)

	s.Uploads = &fakeUploader{}

	alice := types.ClipRecord{
		VideoID: "abc123", PersonName: "Alice", Height: 360, Width: 640,
		StartFrame: 125, EndFrame: 375,
		Box:    types.FaceBox{Left: 80, Top: 30, Right: 220, Bottom: 170},
		Gender: "female", Country: "ID", Racial: "asian", Age: "30-40",
	}
	if err := s.Record(ctx, alice, "/out/Alice/abc123_cropped.mp4"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	// Duplicate window is ignored.
	if err := s.InsertClip(ctx, alice, "/elsewhere.mp4", ""); err != nil {
		t.Fatalf("Duplicate InsertClip failed: %v", err)
	}

	bob := alice
	bob.PersonName, bob.VideoID = "Bob", "def456"
	s.Uploads = &fakeUploader{err: errors.New("access denied")}
	if err := s.Record(ctx, bob, "/out/Bob/def456_cropped.mp4"); err == nil {
		t.Fatal("Expected the upload error to be reported")
	}

	all, err := s.ListClips(ctx, "")
	if err != nil {
		t.Fatalf("ListClips failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 clips, got %d", len(all))
	}
	if all[0].ClipPath != "/out/Alice/abc123_cropped.mp4" {
		t.Errorf("Duplicate insert overwrote clip path: %s", all[0].ClipPath)
	}
	if all[0].Record != alice {
		t.Errorf("Round trip mismatch: got %+v, want %+v", all[0].Record, alice)
	}
	if all[0].ObjectKey != "Alice/abc123_cropped.mp4" {
		t.Errorf("Unexpected object key %q", all[0].ObjectKey)
	}

	onlyBob, err := s.ListClips(ctx, "Bob")
	if err != nil {
		t.Fatalf("ListClips(Bob) failed: %v", err)
	}
	if len(onlyBob) != 1 || onlyBob[0].Record.VideoID != "def456" {
		t.Fatalf("Expected only Bob's clip, got %+v", onlyBob)
	}
	if onlyBob[0].ObjectKey != "" {
		t.Errorf("Failed upload left object key %q", onlyBob[0].ObjectKey)
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	left, err := s.ListClips(ctx, "")
	if err != nil {
		t.Fatalf("ListClips after reset failed: %v", err)
	}
	if len(left) != 0 {
		t.Errorf("Expected empty catalog after reset, got %d clips", len(left))
	}
}

type fakeUploader struct {
	err   error
	calls int
}

func (u *fakeUploader) Upload(ctx context.Context, rec types.ClipRecord, clipPath string) (string, error) {
	u.calls++
	if u.err != nil {
		return "", fmt.Errorf("upload %s/%s_cropped.mp4: %w", rec.PersonName, rec.VideoID, u.err)
	}
	return rec.PersonName + "/" + rec.VideoID + "_cropped.mp4", nil
}

// recordingConn captures the arguments of every Exec.
type recordingConn struct {
	execs [][]any
	err   error
}

func (c *recordingConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	c.execs = append(c.execs, args)
	return pgconn.CommandTag{}, c.err
}

func (c *recordingConn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (c *recordingConn) Close(ctx context.Context) error { return nil }

// objectKeyArg returns the object_key argument of the i-th insert.
func objectKeyArg(t *testing.T, c *recordingConn, i int) *string {
	t.Helper()
	args := c.execs[i]
	key, ok := args[len(args)-1].(*string)
	if !ok {
		t.Fatalf("object_key argument has type %T", args[len(args)-1])
	}
	return key
}

func TestRecord_ObjectKeyFollowsUpload(t *testing.T) {
	ctx := context.Background()
	rec := types.ClipRecord{VideoID: "abc123", PersonName: "Alice", StartFrame: 125, EndFrame: 375}

	t.Run("uploaded", func(t *testing.T) {
		c := &recordingConn{}
		s := &Store{conn: c, Uploads: &fakeUploader{}}
		if err := s.Record(ctx, rec, "/out/Alice/abc123_cropped.mp4"); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
		key := objectKeyArg(t, c, 0)
		if key == nil || *key != "Alice/abc123_cropped.mp4" {
			t.Errorf("Expected object key Alice/abc123_cropped.mp4, got %v", key)
		}
	})

	t.Run("upload failed", func(t *testing.T) {
		c := &recordingConn{}
		s := &Store{conn: c, Uploads: &fakeUploader{err: errors.New("access denied")}}
		err := s.Record(ctx, rec, "/out/Alice/abc123_cropped.mp4")
		if err == nil || !strings.Contains(err.Error(), "access denied") {
			t.Fatalf("Expected upload error, got %v", err)
		}
		if len(c.execs) != 1 {
			t.Fatalf("Expected the clip to be catalogued anyway, got %d inserts", len(c.execs))
		}
		if key := objectKeyArg(t, c, 0); key != nil {
			t.Errorf("Expected NULL object key after a failed upload, got %q", *key)
		}
	})

	t.Run("no object storage", func(t *testing.T) {
		c := &recordingConn{}
		s := &Store{conn: c}
		if err := s.Record(ctx, rec, "/out/Alice/abc123_cropped.mp4"); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
		if key := objectKeyArg(t, c, 0); key != nil {
			t.Errorf("Expected NULL object key, got %q", *key)
		}
	})

	t.Run("both fail", func(t *testing.T) {
		c := &recordingConn{err: errors.New("connection reset")}
		s := &Store{conn: c, Uploads: &fakeUploader{err: errors.New("access denied")}}
		err := s.Record(ctx, rec, "x.mp4")
		if err == nil || !strings.Contains(err.Error(), "access denied") || !strings.Contains(err.Error(), "connection reset") {
			t.Errorf("Expected both errors, got %v", err)
		}
	})
}

type noopLogger struct{}

func (n noopLogger) Printf(format string, v ...interface{}) {}

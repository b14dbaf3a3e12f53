package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Atyanta/VideoFaceDLFromYt/internal/types"
)

//go:embed migrations/*.sql
var migrations embed.FS

// dbConn is the subset of *pgx.Conn the store uses.
type dbConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close(ctx context.Context) error
}

// ClipUploader copies a clip to object storage and returns its object key.
type ClipUploader interface {
	Upload(ctx context.Context, rec types.ClipRecord, clipPath string) (string, error)
}

// Store mirrors produced clips into PostgreSQL.
type Store struct {
	conn dbConn

	// Uploads, when set, receives each clip before it is catalogued.
	// object_key is only filled for uploads that succeeded.
	Uploads ClipUploader
}

// Clip is one catalog row.
type Clip struct {
	ID        int64
	Record    types.ClipRecord
	ClipPath  string
	ObjectKey string
	CreatedAt time.Time
}

// New applies pending migrations and opens the connection.
func New(ctx context.Context, connString string) (*Store, error) {
	if err := runMigrations(connString); err != nil {
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}
	return &Store{conn: conn}, nil
}

func runMigrations(connString string) error {
	dbURL, err := migrateURL(connString)
	if err != nil {
		return err
	}
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dbURL)
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// migrateURL rewrites a postgres:// URL to the pgx5:// scheme the migrate driver registers.
func migrateURL(connString string) (string, error) {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if rest, ok := strings.CutPrefix(connString, prefix); ok {
			return "pgx5://" + rest, nil
		}
	}
	if strings.HasPrefix(connString, "pgx5://") {
		return connString, nil
	}
	return "", fmt.Errorf("database URL must start with postgres:// or postgresql://")
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// InsertClip saves a clip. An empty objectKey is stored as NULL.
// Re-inserting the same clip window is a no-op.
func (s *Store) InsertClip(ctx context.Context, rec types.ClipRecord, clipPath, objectKey string) error {
	var key *string
	if objectKey != "" {
		key = &objectKey
	}
	_, err := s.conn.Exec(ctx, `
		INSERT INTO clips (
			video_id, person_name, height, width, start_frame, end_frame,
			box_left, box_top, box_right, box_bottom,
			gender, country, racial, age, clip_path, object_key
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (video_id, person_name, start_frame, end_frame) DO NOTHING
	`,
		rec.VideoID, rec.PersonName, rec.Height, rec.Width, rec.StartFrame, rec.EndFrame,
		rec.Box.Left, rec.Box.Top, rec.Box.Right, rec.Box.Bottom,
		rec.Gender, rec.Country, rec.Racial, rec.Age, clipPath, key,
	)
	return err
}

// Record implements the pipeline sink contract. A failed upload still
// catalogues the clip, without an object key, and is reported.
func (s *Store) Record(ctx context.Context, rec types.ClipRecord, clipPath string) error {
	var key string
	var upErr error
	if s.Uploads != nil {
		key, upErr = s.Uploads.Upload(ctx, rec, clipPath)
		if upErr != nil {
			key = ""
		}
	}
	if err := s.InsertClip(ctx, rec, clipPath, key); err != nil {
		return errors.Join(upErr, err)
	}
	return upErr
}

func (s *Store) Name() string { return "catalog" }

// Reset removes every catalogued clip and restarts the id sequence.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `TRUNCATE clips RESTART IDENTITY`)
	return err
}

// ListClips returns clips in insertion order, optionally filtered by person.
func (s *Store) ListClips(ctx context.Context, person string) ([]Clip, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, video_id, person_name, height, width, start_frame, end_frame,
			box_left, box_top, box_right, box_bottom,
			gender, country, racial, age, clip_path, COALESCE(object_key, ''), created_at
		FROM clips
		WHERE $1 = '' OR person_name = $1
		ORDER BY id ASC
	`, person)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clips []Clip
	for rows.Next() {
		var c Clip
		r := &c.Record
		if err := rows.Scan(&c.ID, &r.VideoID, &r.PersonName, &r.Height, &r.Width, &r.StartFrame, &r.EndFrame,
			&r.Box.Left, &r.Box.Top, &r.Box.Right, &r.Box.Bottom,
			&r.Gender, &r.Country, &r.Racial, &r.Age, &c.ClipPath, &c.ObjectKey, &c.CreatedAt); err != nil {
			return nil, err
		}
		clips = append(clips, c)
	}
	return clips, rows.Err()
}

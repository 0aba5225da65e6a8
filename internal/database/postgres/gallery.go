package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/facebuddy/facebuddy/internal/database"
	"github.com/facebuddy/facebuddy/internal/facematch"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// uniqueViolation is the PostgreSQL error code for a unique constraint failure.
const uniqueViolation = "23505"

// GalleryRepository provides PostgreSQL-backed gallery storage.
type GalleryRepository struct {
	pool *Pool
}

// NewGalleryRepository creates a new PostgreSQL gallery repository.
func NewGalleryRepository(pool *Pool) *GalleryRepository {
	return &GalleryRepository{pool: pool}
}

func (r *GalleryRepository) Name() string { return "postgres" }

// Close closes the underlying pool.
func (r *GalleryRepository) Close() error {
	return r.pool.Close()
}

// ListFaces retrieves every face joined with its current profile, oldest first.
func (r *GalleryRepository) ListFaces(ctx context.Context) ([]database.StoredFace, error) {
	query := `
		SELECT f.id, f.embedding, f.source, f.created_at,
		       p.name, p.linkedin, p.telegram, p.twitter, p.preferred_token, p.human_id
		FROM faces f
		JOIN profiles p ON p.name = f.profile_name
		ORDER BY f.id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query faces: %w", err)
	}
	defer rows.Close()

	var faces []database.StoredFace
	for rows.Next() {
		var f database.StoredFace
		var vec pgvector.Vector
		if err := rows.Scan(
			&f.ID, &vec, &f.Source, &f.CreatedAt,
			&f.Profile.Name, &f.Profile.LinkedIn, &f.Profile.Telegram,
			&f.Profile.Twitter, &f.Profile.PreferredToken, &f.Profile.HumanID,
		); err != nil {
			return nil, fmt.Errorf("scan face: %w", err)
		}
		f.Embedding = vec.Slice()
		faces = append(faces, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate faces: %w", err)
	}
	return faces, nil
}

// Count returns the total number of stored embeddings.
func (r *GalleryRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM faces").Scan(&count); err != nil {
		return 0, fmt.Errorf("count faces: %w", err)
	}
	return count, nil
}

// GetProfile returns the profile stored under name, nil when unknown.
func (r *GalleryRepository) GetProfile(ctx context.Context, name string) (*facematch.Profile, error) {
	var p facematch.Profile
	err := r.pool.QueryRow(ctx, `
		SELECT name, linkedin, telegram, twitter, preferred_token, human_id
		FROM profiles WHERE name = $1
	`, name).Scan(&p.Name, &p.LinkedIn, &p.Telegram, &p.Twitter, &p.PreferredToken, &p.HumanID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

// AddFace upserts the profile and inserts the embedding in one transaction.
func (r *GalleryRepository) AddFace(ctx context.Context, face database.StoredFace) (int64, error) {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	id, err := insertFace(ctx, tx, face)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit face: %w", err)
	}
	return id, nil
}

// AddFaces stores all faces or none.
func (r *GalleryRepository) AddFaces(ctx context.Context, faces []database.StoredFace) (int, error) {
	if len(faces) == 0 {
		return 0, nil
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for i, f := range faces {
		if _, err := insertFace(ctx, tx, f); err != nil {
			return 0, fmt.Errorf("face %d (%s): %w", i, f.Profile.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit faces: %w", err)
	}
	return len(faces), nil
}

func insertFace(ctx context.Context, tx *sql.Tx, face database.StoredFace) (int64, error) {
	p := face.Profile
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO profiles (name, linkedin, telegram, twitter, preferred_token, human_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (name) DO UPDATE SET
			linkedin = EXCLUDED.linkedin,
			telegram = EXCLUDED.telegram,
			twitter = EXCLUDED.twitter,
			preferred_token = EXCLUDED.preferred_token,
			human_id = EXCLUDED.human_id,
			updated_at = NOW()
	`, p.Name, p.LinkedIn, p.Telegram, p.Twitter, p.PreferredToken, p.HumanID); err != nil {
		return 0, fmt.Errorf("upsert profile: %w", err)
	}

	source := face.Source
	if source == "" {
		source = database.SourceAPI
	}

	var id int64
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO faces (profile_name, embedding, dim, source)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, p.Name, pgvector.NewVector(face.Embedding), len(face.Embedding), source).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert face: %w", err)
	}
	return id, nil
}

// RecordSnapshot stores a publication; a blob ID recorded before is ignored.
func (r *GalleryRepository) RecordSnapshot(ctx context.Context, blobID string, faceCount int) error {
	_, err := r.pool.Exec(ctx,
		"INSERT INTO snapshots (blob_id, face_count) VALUES ($1, $2)", blobID, faceCount)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return nil
	}
	if err != nil {
		return fmt.Errorf("record snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the most recent publication, nil if none.
func (r *GalleryRepository) LatestSnapshot(ctx context.Context) (*database.Snapshot, error) {
	var s database.Snapshot
	err := r.pool.QueryRow(ctx, `
		SELECT id, blob_id, face_count, created_at
		FROM snapshots ORDER BY id DESC LIMIT 1
	`).Scan(&s.ID, &s.BlobID, &s.FaceCount, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	return &s, nil
}

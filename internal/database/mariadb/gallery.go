package mariadb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/facebuddy/facebuddy/internal/database"
	"github.com/facebuddy/facebuddy/internal/facematch"
	"github.com/go-sql-driver/mysql"
)

// errDuplicateEntry is MySQL/MariaDB ER_DUP_ENTRY.
const errDuplicateEntry = 1062

// GalleryRepository stores the gallery in MariaDB with embeddings as JSON.
type GalleryRepository struct {
	pool *Pool
}

// NewGalleryRepository creates a new MariaDB gallery repository.
func NewGalleryRepository(pool *Pool) *GalleryRepository {
	return &GalleryRepository{pool: pool}
}

func (r *GalleryRepository) Name() string { return "mariadb" }

func (r *GalleryRepository) Close() error {
	return r.pool.Close()
}

func (r *GalleryRepository) ListFaces(ctx context.Context) ([]database.StoredFace, error) {
	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT f.id, f.embedding_json, f.source, f.created_at,
		       p.name, p.linkedin, p.telegram, p.twitter, p.preferred_token, p.human_id
		FROM faces f
		JOIN profiles p ON p.name = f.profile_name
		ORDER BY f.id
	`)
	if err != nil {
		return nil, fmt.Errorf("query faces: %w", err)
	}
	defer rows.Close()

	var faces []database.StoredFace
	for rows.Next() {
		var f database.StoredFace
		var raw []byte
		if err := rows.Scan(
			&f.ID, &raw, &f.Source, &f.CreatedAt,
			&f.Profile.Name, &f.Profile.LinkedIn, &f.Profile.Telegram,
			&f.Profile.Twitter, &f.Profile.PreferredToken, &f.Profile.HumanID,
		); err != nil {
			return nil, fmt.Errorf("scan face: %w", err)
		}
		if err := json.Unmarshal(raw, &f.Embedding); err != nil {
			return nil, fmt.Errorf("decode embedding of face %d: %w", f.ID, err)
		}
		faces = append(faces, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate faces: %w", err)
	}
	return faces, nil
}

func (r *GalleryRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM faces").Scan(&count); err != nil {
		return 0, fmt.Errorf("count faces: %w", err)
	}
	return count, nil
}

func (r *GalleryRepository) GetProfile(ctx context.Context, name string) (*facematch.Profile, error) {
	var p facematch.Profile
	err := r.pool.db.QueryRowContext(ctx, `
		SELECT name, linkedin, telegram, twitter, preferred_token, human_id
		FROM profiles WHERE name = ?
	`, name).Scan(&p.Name, &p.LinkedIn, &p.Telegram, &p.Twitter, &p.PreferredToken, &p.HumanID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

func (r *GalleryRepository) AddFace(ctx context.Context, face database.StoredFace) (int64, error) {
	tx, err := r.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
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

func (r *GalleryRepository) AddFaces(ctx context.Context, faces []database.StoredFace) (int, error) {
	if len(faces) == 0 {
		return 0, nil
	}

	tx, err := r.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
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
		INSERT INTO profiles (name, linkedin, telegram, twitter, preferred_token, human_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			linkedin = VALUES(linkedin),
			telegram = VALUES(telegram),
			twitter = VALUES(twitter),
			preferred_token = VALUES(preferred_token),
			human_id = VALUES(human_id)
	`, p.Name, p.LinkedIn, p.Telegram, p.Twitter, p.PreferredToken, p.HumanID); err != nil {
		return 0, fmt.Errorf("upsert profile: %w", err)
	}

	data, err := json.Marshal(face.Embedding)
	if err != nil {
		return 0, fmt.Errorf("marshal embedding: %w", err)
	}
	source := face.Source
	if source == "" {
		source = database.SourceAPI
	}

	res, err := tx.ExecContext(ctx,
		"INSERT INTO faces (profile_name, embedding_json, dim, source) VALUES (?, ?, ?, ?)",
		p.Name, data, len(face.Embedding), source)
	if err != nil {
		return 0, fmt.Errorf("insert face: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("face id: %w", err)
	}
	return id, nil
}

func (r *GalleryRepository) RecordSnapshot(ctx context.Context, blobID string, faceCount int) error {
	_, err := r.pool.db.ExecContext(ctx,
		"INSERT INTO snapshots (blob_id, face_count) VALUES (?, ?)", blobID, faceCount)
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == errDuplicateEntry {
		return nil
	}
	if err != nil {
		return fmt.Errorf("record snapshot: %w", err)
	}
	return nil
}

func (r *GalleryRepository) LatestSnapshot(ctx context.Context) (*database.Snapshot, error) {
	var s database.Snapshot
	err := r.pool.db.QueryRowContext(ctx, `
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

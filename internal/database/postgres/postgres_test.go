//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/facebuddy/facebuddy/internal/config"
	"github.com/facebuddy/facebuddy/internal/database"
	"github.com/facebuddy/facebuddy/internal/facematch"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	cfg := &config.DatabaseConfig{
		URL:          dbURL,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := NewPool(cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	// Run migrations
	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

func TestGalleryRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewGalleryRepository(pool)

	alice := facematch.Profile{Name: "0xalice", Telegram: "alice_tg", PreferredToken: "USDC"}

	t.Run("AddFaceAndList", func(t *testing.T) {
		id, err := repo.AddFace(ctx, database.StoredFace{
			Profile:   alice,
			Embedding: []float32{0.1, 0.2, 0.3},
		})
		if err != nil {
			t.Fatalf("Failed to add face: %v", err)
		}
		if id == 0 {
			t.Error("Expected non-zero face ID")
		}

		faces, err := repo.ListFaces(ctx)
		if err != nil {
			t.Fatalf("Failed to list faces: %v", err)
		}
		if len(faces) != 1 {
			t.Fatalf("Expected 1 face, got %d", len(faces))
		}
		if faces[0].Profile != alice {
			t.Errorf("Unexpected profile %+v", faces[0].Profile)
		}
		if len(faces[0].Embedding) != 3 || faces[0].Embedding[2] != 0.3 {
			t.Errorf("Unexpected embedding %v", faces[0].Embedding)
		}
		if faces[0].Source != database.SourceAPI {
			t.Errorf("Expected default source %q, got %q", database.SourceAPI, faces[0].Source)
		}
	})

	t.Run("ReRegistrationUpdatesProfile", func(t *testing.T) {
		updated := alice
		updated.LinkedIn = "alice-li"
		if _, err := repo.AddFace(ctx, database.StoredFace{Profile: updated, Embedding: []float32{0.1, 0.2, 0.4}}); err != nil {
			t.Fatalf("Failed to add face: %v", err)
		}

		p, err := repo.GetProfile(ctx, alice.Name)
		if err != nil {
			t.Fatalf("Failed to get profile: %v", err)
		}
		if p == nil || p.LinkedIn != "alice-li" {
			t.Errorf("Expected updated profile, got %+v", p)
		}

		faces, _ := repo.ListFaces(ctx)
		for _, f := range faces {
			if f.Profile.LinkedIn != "alice-li" {
				t.Errorf("Face %d still carries the old profile", f.ID)
			}
		}
	})

	t.Run("AddFacesBatch", func(t *testing.T) {
		n, err := repo.AddFaces(ctx, []database.StoredFace{
			{Profile: facematch.Profile{Name: "0xbob"}, Embedding: []float32{1, 1, 1}, Source: database.SourceImport},
			{Profile: facematch.Profile{Name: "0xcarol"}, Embedding: []float32{2, 2, 2}, Source: database.SourceImport},
		})
		if err != nil {
			t.Fatalf("Failed to add faces: %v", err)
		}
		if n != 2 {
			t.Errorf("Expected 2 stored, got %d", n)
		}

		count, err := repo.Count(ctx)
		if err != nil {
			t.Fatalf("Failed to count: %v", err)
		}
		if count != 4 {
			t.Errorf("Expected 4 faces, got %d", count)
		}
	})

	t.Run("UnknownProfile", func(t *testing.T) {
		p, err := repo.GetProfile(ctx, "0xnobody")
		if err != nil {
			t.Fatalf("Failed to get profile: %v", err)
		}
		if p != nil {
			t.Errorf("Expected nil, got %+v", p)
		}
	})

	t.Run("Snapshots", func(t *testing.T) {
		latest, err := repo.LatestSnapshot(ctx)
		if err != nil {
			t.Fatalf("Failed to get latest snapshot: %v", err)
		}
		if latest != nil {
			t.Fatalf("Expected no snapshot, got %+v", latest)
		}

		if err := repo.RecordSnapshot(ctx, "blob-1", 2); err != nil {
			t.Fatalf("Failed to record snapshot: %v", err)
		}
		if err := repo.RecordSnapshot(ctx, "blob-2", 4); err != nil {
			t.Fatalf("Failed to record snapshot: %v", err)
		}
		if err := repo.RecordSnapshot(ctx, "blob-1", 2); err != nil {
			t.Fatalf("Duplicate blob ID should be ignored, got %v", err)
		}

		latest, err = repo.LatestSnapshot(ctx)
		if err != nil {
			t.Fatalf("Failed to get latest snapshot: %v", err)
		}
		if latest == nil || latest.BlobID != "blob-2" || latest.FaceCount != 4 {
			t.Errorf("Unexpected latest snapshot %+v", latest)
		}
	})
}

func TestMigrations(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()

	// Check migrations were applied
	applied, err := pool.MigrationsApplied(ctx)
	if err != nil {
		t.Fatalf("Failed to get applied migrations: %v", err)
	}

	expectedMigrations := []string{
		"001_gallery.sql",
	}

	if len(applied) != len(expectedMigrations) {
		t.Errorf("Expected %d migrations, got %d", len(expectedMigrations), len(applied))
	}

	for i, expected := range expectedMigrations {
		if i < len(applied) && applied[i] != expected {
			t.Errorf("Migration %d: expected '%s', got '%s'", i, expected, applied[i])
		}
	}

	// Running again is a no-op.
	if err := pool.Migrate(ctx); err != nil {
		t.Fatalf("Second migration run failed: %v", err)
	}
}

func TestOpenRegistered(t *testing.T) {
	schemes := database.RegisteredSchemes()
	found := false
	for _, s := range schemes {
		if s == "postgres" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected postgres scheme registered, got %v", schemes)
	}
}

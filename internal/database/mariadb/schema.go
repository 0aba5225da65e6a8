package mariadb

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS profiles (
		name            VARCHAR(255) NOT NULL PRIMARY KEY,
		linkedin        VARCHAR(255) NOT NULL DEFAULT '',
		telegram        VARCHAR(255) NOT NULL DEFAULT '',
		twitter         VARCHAR(255) NOT NULL DEFAULT '',
		preferred_token VARCHAR(32) NOT NULL DEFAULT '',
		human_id        VARCHAR(255) NOT NULL DEFAULT '',
		updated_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	) DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS faces (
		id             BIGINT AUTO_INCREMENT PRIMARY KEY,
		profile_name   VARCHAR(255) NOT NULL,
		embedding_json LONGTEXT NOT NULL,
		dim            INT NOT NULL,
		source         VARCHAR(16) NOT NULL DEFAULT 'api',
		created_at     TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		INDEX idx_faces_profile_name (profile_name),
		CONSTRAINT fk_faces_profile FOREIGN KEY (profile_name) REFERENCES profiles(name) ON DELETE CASCADE
	) DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS snapshots (
		id         BIGINT AUTO_INCREMENT PRIMARY KEY,
		blob_id    VARCHAR(255) NOT NULL UNIQUE,
		face_count INT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	) DEFAULT CHARSET=utf8mb4`,
}

// EnsureSchema creates the gallery tables if they do not exist yet.
func (p *Pool) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

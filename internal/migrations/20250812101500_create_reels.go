package migrations

import (
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigration(upCreateReels, downCreateReels)
}

func upCreateReels(tx *sql.Tx) error {
	_, err := tx.Exec(`
	CREATE TABLE reels (
		id UUID PRIMARY KEY,
		title VARCHAR NOT NULL,
		narration TEXT NOT NULL,
		author_id VARCHAR NOT NULL,
		author_name VARCHAR NOT NULL DEFAULT '',
		author_image VARCHAR NOT NULL DEFAULT '',
		thumbnails JSONB NOT NULL DEFAULT '[]',
		storage_id VARCHAR NOT NULL DEFAULT '',
		video_url VARCHAR NOT NULL DEFAULT '',
		status VARCHAR NOT NULL DEFAULT 'processing',
		duration INTEGER NOT NULL DEFAULT 0,
		like_count INTEGER NOT NULL DEFAULT 0,
		liked_by JSONB NOT NULL DEFAULT '[]',
		view_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX idx_reels_author ON reels (author_id, created_at DESC);
	CREATE INDEX idx_reels_status ON reels (status, created_at);
	`)
	if err != nil {
		return err
	}
	return nil
}

func downCreateReels(tx *sql.Tx) error {
	_, err := tx.Exec(`
	DROP TABLE reels;
	`)
	if err != nil {
		return err
	}
	return nil
}

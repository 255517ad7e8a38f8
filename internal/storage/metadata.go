package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vaibh/video-segmenter/internal/types"
)

// SegmentRecord is one persisted output file.
type SegmentRecord struct {
	AssetID   string    `json:"asset_id"`
	FileName  string    `json:"file_name"`
	Location  string    `json:"location"`
	CreatedAt time.Time `json:"created_at"`
}

// MetadataDB records provenance: every ingested source and every segment
// produced from it. Failures here surface as job FAILED in the executor.
type MetadataDB struct {
	db *sql.DB
}

// NewMetadataDB opens (and if needed initializes) the SQLite database.
func NewMetadataDB(dbPath string) (*MetadataDB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS original_videos (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		asset_id TEXT NOT NULL UNIQUE,
		filename TEXT NOT NULL,
		location TEXT NOT NULL,
		source TEXT NOT NULL,
		size INTEGER,
		duration REAL,
		width INTEGER,
		height INTEGER,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trimmed_segments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		asset_id TEXT NOT NULL,
		file_name TEXT NOT NULL,
		location TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_segments_asset ON trimmed_segments(asset_id);
	CREATE INDEX IF NOT EXISTS idx_originals_created ON original_videos(created_at);
	`

	if _, err := db.Exec(createTableSQL); err != nil {
		return nil, fmt.Errorf("failed to create tables: %v", err)
	}

	return &MetadataDB{db: db}, nil
}

// SaveOriginalAsset records an ingested source file.
func (mdb *MetadataDB) SaveOriginalAsset(asset types.MediaAsset) error {
	query := `
	INSERT INTO original_videos (asset_id, filename, location, source, size, duration, width, height, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := mdb.db.Exec(query, asset.ID, asset.Filename, asset.Path, asset.Source,
		asset.Size, asset.Duration, asset.Width, asset.Height, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save original asset: %v", err)
	}
	return nil
}

// SaveSegment records one produced output file for an asset.
func (mdb *MetadataDB) SaveSegment(assetID, fileName, location string) error {
	query := `
	INSERT INTO trimmed_segments (asset_id, file_name, location, created_at)
	VALUES (?, ?, ?, ?)
	`
	_, err := mdb.db.Exec(query, assetID, fileName, location, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save segment %s: %v", fileName, err)
	}
	return nil
}

// FindAssetByID retrieves a recorded source by its asset id.
func (mdb *MetadataDB) FindAssetByID(assetID string) (*types.MediaAsset, error) {
	query := `
	SELECT asset_id, filename, location, source, size, duration, width, height
	FROM original_videos WHERE asset_id = ?
	`
	row := mdb.db.QueryRow(query, assetID)

	var asset types.MediaAsset
	err := row.Scan(&asset.ID, &asset.Filename, &asset.Path, &asset.Source,
		&asset.Size, &asset.Duration, &asset.Width, &asset.Height)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("asset %s not found", assetID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load asset: %v", err)
	}
	return &asset, nil
}

// FindSegmentsByAssetID lists the persisted segments of an asset, oldest first.
func (mdb *MetadataDB) FindSegmentsByAssetID(assetID string) ([]SegmentRecord, error) {
	query := `
	SELECT asset_id, file_name, location, created_at
	FROM trimmed_segments WHERE asset_id = ? ORDER BY file_name
	`
	rows, err := mdb.db.Query(query, assetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list segments: %v", err)
	}
	defer rows.Close()

	var segments []SegmentRecord
	for rows.Next() {
		var rec SegmentRecord
		if err := rows.Scan(&rec.AssetID, &rec.FileName, &rec.Location, &rec.CreatedAt); err != nil {
			continue
		}
		segments = append(segments, rec)
	}
	return segments, rows.Err()
}

// Close closes the database connection.
func (mdb *MetadataDB) Close() error {
	return mdb.db.Close()
}

// Package goldstore keeps the human-reviewed gold labels and the historical
// provider outputs they are matched against, in SQLite. It feeds the
// calibration trainer and the reliability table's gold counts.
package goldstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"prism/internal/calib"
	"prism/internal/concern"
)

const schemaVersion = 1

const schema = `
CREATE TABLE schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE gold_labels (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	asset_id      TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	quality_grade TEXT NOT NULL DEFAULT '',
	lighting      TEXT NOT NULL DEFAULT '',
	tone_bucket   TEXT NOT NULL DEFAULT '',
	concerns      TEXT NOT NULL
);
CREATE INDEX idx_gold_labels_asset ON gold_labels(asset_id);

CREATE TABLE provider_outputs (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	asset_id      TEXT NOT NULL,
	inference_id  TEXT NOT NULL DEFAULT '',
	created_at    TEXT NOT NULL,
	provider      TEXT NOT NULL,
	model_name    TEXT NOT NULL DEFAULT '',
	ok            INTEGER NOT NULL,
	quality_grade TEXT NOT NULL DEFAULT '',
	lighting      TEXT NOT NULL DEFAULT '',
	tone_bucket   TEXT NOT NULL DEFAULT '',
	concerns      TEXT NOT NULL
);
CREATE INDEX idx_provider_outputs_asset ON provider_outputs(asset_id);
`

// nowUTC returns the current UTC time as an ISO 8601 string.
func nowUTC() string { return time.Now().UTC().Format(time.RFC3339) }

// GoldLabel is one reviewed image: the concerns a human annotator accepted
// as ground truth, with the photo's context buckets.
type GoldLabel struct {
	ID           int64             `json:"id"`
	AssetID      string            `json:"asset_id"`
	CreatedAt    string            `json:"created_at"`
	QualityGrade string            `json:"quality_grade"`
	Lighting     string            `json:"lighting"`
	ToneBucket   string            `json:"tone_bucket"`
	Concerns     []concern.Concern `json:"concerns"`
}

// OutputRecord is one historical provider call kept for training.
type OutputRecord struct {
	ID           int64             `json:"id"`
	AssetID      string            `json:"asset_id"`
	InferenceID  string            `json:"inference_id"`
	CreatedAt    string            `json:"created_at"`
	Provider     string            `json:"provider"`
	ModelName    string            `json:"model_name"`
	OK           bool              `json:"ok"`
	QualityGrade string            `json:"quality_grade"`
	Lighting     string            `json:"lighting"`
	ToneBucket   string            `json:"tone_bucket"`
	Concerns     []concern.Concern `json:"concerns"`
}

// Store is the SQLite-backed gold store.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and runs migrations. The
// parent directory is created if missing.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	var tableCount int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableCount)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableCount == 0 {
		if _, err := s.db.Exec(schema); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_version(version) VALUES(?)", schemaVersion); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
		return nil
	}

	var v int
	if err := s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if v != schemaVersion {
		return fmt.Errorf("unknown schema version %d", v)
	}
	return nil
}

// AddGoldLabel stores one reviewed label.
func (s *Store) AddGoldLabel(g *GoldLabel) (int64, error) {
	if g == nil {
		return 0, errors.New("gold label is nil")
	}
	if g.CreatedAt == "" {
		g.CreatedAt = nowUTC()
	}
	concerns, err := json.Marshal(g.Concerns)
	if err != nil {
		return 0, fmt.Errorf("encode gold concerns: %w", err)
	}
	res, err := s.db.Exec(
		`INSERT INTO gold_labels(asset_id, created_at, quality_grade, lighting, tone_bucket, concerns)
		 VALUES(?, ?, ?, ?, ?, ?)`,
		g.AssetID, g.CreatedAt, g.QualityGrade, g.Lighting, g.ToneBucket, string(concerns),
	)
	if err != nil {
		return 0, fmt.Errorf("insert gold label: %w", err)
	}
	return res.LastInsertId()
}

// ListGoldLabels returns every stored gold label, oldest first.
func (s *Store) ListGoldLabels() ([]*GoldLabel, error) {
	rows, err := s.db.Query(
		`SELECT id, asset_id, created_at, quality_grade, lighting, tone_bucket, concerns
		 FROM gold_labels ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list gold labels: %w", err)
	}
	defer rows.Close()
	var out []*GoldLabel
	for rows.Next() {
		var g GoldLabel
		var concerns string
		if err := rows.Scan(&g.ID, &g.AssetID, &g.CreatedAt, &g.QualityGrade, &g.Lighting, &g.ToneBucket, &concerns); err != nil {
			return nil, fmt.Errorf("scan gold label: %w", err)
		}
		if err := json.Unmarshal([]byte(concerns), &g.Concerns); err != nil {
			return nil, fmt.Errorf("decode gold concerns: %w", err)
		}
		out = append(out, &g)
	}
	return out, rows.Err()
}

// GoldLabelForAsset returns the newest gold label for an asset, nil if none.
func (s *Store) GoldLabelForAsset(assetID string) (*GoldLabel, error) {
	var g GoldLabel
	var concerns string
	err := s.db.QueryRow(
		`SELECT id, asset_id, created_at, quality_grade, lighting, tone_bucket, concerns
		 FROM gold_labels WHERE asset_id = ? ORDER BY id DESC LIMIT 1`, assetID,
	).Scan(&g.ID, &g.AssetID, &g.CreatedAt, &g.QualityGrade, &g.Lighting, &g.ToneBucket, &concerns)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get gold label: %w", err)
	}
	if err := json.Unmarshal([]byte(concerns), &g.Concerns); err != nil {
		return nil, fmt.Errorf("decode gold concerns: %w", err)
	}
	return &g, nil
}

// AddOutput stores one historical provider output.
func (s *Store) AddOutput(r *OutputRecord) (int64, error) {
	if r == nil {
		return 0, errors.New("output record is nil")
	}
	if r.CreatedAt == "" {
		r.CreatedAt = nowUTC()
	}
	concerns, err := json.Marshal(r.Concerns)
	if err != nil {
		return 0, fmt.Errorf("encode output concerns: %w", err)
	}
	res, err := s.db.Exec(
		`INSERT INTO provider_outputs(asset_id, inference_id, created_at, provider, model_name, ok, quality_grade, lighting, tone_bucket, concerns)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.AssetID, r.InferenceID, r.CreatedAt, r.Provider, r.ModelName, boolInt(r.OK),
		r.QualityGrade, r.Lighting, r.ToneBucket, string(concerns),
	)
	if err != nil {
		return 0, fmt.Errorf("insert provider output: %w", err)
	}
	return res.LastInsertId()
}

// ListOutputs returns every stored provider output, oldest first.
func (s *Store) ListOutputs() ([]*OutputRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, asset_id, inference_id, created_at, provider, model_name, ok, quality_grade, lighting, tone_bucket, concerns
		 FROM provider_outputs ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list provider outputs: %w", err)
	}
	defer rows.Close()
	var out []*OutputRecord
	for rows.Next() {
		var r OutputRecord
		var ok int
		var concerns string
		if err := rows.Scan(&r.ID, &r.AssetID, &r.InferenceID, &r.CreatedAt, &r.Provider, &r.ModelName, &ok, &r.QualityGrade, &r.Lighting, &r.ToneBucket, &concerns); err != nil {
			return nil, fmt.Errorf("scan provider output: %w", err)
		}
		r.OK = ok != 0
		if err := json.Unmarshal([]byte(concerns), &r.Concerns); err != nil {
			return nil, fmt.Errorf("decode output concerns: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// TrainingSamples joins stored outputs with the newest gold label per
// asset. Outputs without a gold label are skipped; they carry no signal.
func (s *Store) TrainingSamples() ([]calib.Sample, error) {
	outputs, err := s.ListOutputs()
	if err != nil {
		return nil, err
	}
	labels, err := s.ListGoldLabels()
	if err != nil {
		return nil, err
	}
	goldByAsset := map[string]*GoldLabel{}
	for _, g := range labels {
		goldByAsset[g.AssetID] = g // ascending ids, newest wins
	}

	var samples []calib.Sample
	for _, r := range outputs {
		g, ok := goldByAsset[r.AssetID]
		if !ok {
			continue
		}
		samples = append(samples, calib.Sample{
			Output: concern.ProviderOutput{
				Provider:  r.Provider,
				ModelName: r.ModelName,
				OK:        r.OK,
				Concerns:  r.Concerns,
			},
			Gold: g.Concerns,
			Context: concern.Context{
				AssetID:      r.AssetID,
				InferenceID:  r.InferenceID,
				QualityGrade: r.QualityGrade,
				Lighting:     r.Lighting,
				ToneBucket:   r.ToneBucket,
			},
		})
	}
	return samples, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package reliability

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"prism/internal/logging"
)

// SaveTable writes the table atomically: temp file then rename.
func SaveTable(t *Table, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create table dir: %w", err)
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("encode table: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write table temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace table: %w", err)
	}
	return nil
}

// LoadTable reads a table file, rejecting schema version mismatches.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read table: %w", err)
	}
	var t Table
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode table: %w", err)
	}
	if t.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("table schema version %d, want %d", t.SchemaVersion, SchemaVersion)
	}
	return &t, nil
}

// Decision is a vote-gate answer with its reasoning.
type Decision struct {
	UseVerifier bool     `json:"use_verifier"`
	Reasons     []string `json:"reasons,omitempty"`
}

// Gate answers vote-gating lookups against a table file, reloading when the
// file's mtime changes. Missing table or bucket always means "don't trust".
type Gate struct {
	Path string

	mu    sync.Mutex
	table *Table
	index map[string]*Bucket
	mtime time.Time
	ok    bool
}

// NewGate builds a gate over a table file path.
func NewGate(path string) *Gate {
	return &Gate{Path: path}
}

// ShouldUseVerifierInVote looks up the exact bucket key. A missing table
// yields RELIABILITY_TABLE_MISSING, an unknown bucket BUCKET_NOT_FOUND;
// otherwise the bucket's own eligibility and reasons are returned.
func (g *Gate) ShouldUseVerifierInVote(key BucketKey) Decision {
	table := g.load()
	if table == nil {
		return Decision{Reasons: []string{ReasonTableMissing}}
	}
	b, ok := g.lookup(key)
	if !ok {
		return Decision{Reasons: []string{ReasonBucketNotFound}}
	}
	return Decision{UseVerifier: b.EligibleForVote, Reasons: b.IneligibleReasons}
}

// Table returns the currently loaded table, nil when unavailable.
func (g *Gate) Table() *Table { return g.load() }

// Reset drops the cache. Test isolation hook.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.table, g.index, g.mtime, g.ok = nil, nil, time.Time{}, false
}

func (g *Gate) load() *Table {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.Path == "" {
		return nil
	}
	info, err := os.Stat(g.Path)
	if err != nil {
		if g.ok {
			logging.New("reliability").Warn("reliability table went missing", "path", g.Path)
		}
		g.table, g.index, g.ok = nil, nil, false
		return nil
	}
	if g.ok && info.ModTime().Equal(g.mtime) {
		return g.table
	}

	table, err := LoadTable(g.Path)
	if err != nil {
		logging.New("reliability").Warn("reliability table unreadable", "path", g.Path, "error", err)
		g.table, g.index, g.ok = nil, nil, false
		return nil
	}
	index := make(map[string]*Bucket, len(table.Buckets))
	for i := range table.Buckets {
		index[table.Buckets[i].Key.String()] = &table.Buckets[i]
	}
	g.table, g.index, g.mtime, g.ok = table, index, info.ModTime(), true
	return g.table
}

func (g *Gate) lookup(key BucketKey) (*Bucket, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.index[key.String()]
	return b, ok
}

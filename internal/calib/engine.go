package calib

import (
	"os"
	"sync"
	"time"

	"prism/internal/logging"
)

// Engine serves a calibration model at fusion/verify time with mtime-based
// cache invalidation. A missing, malformed, or version-mismatched file
// degrades to the identity model with a warning; calibration failures must
// never block inference.
type Engine struct {
	Path string

	mu       sync.Mutex
	model    *Model
	mtime    time.Time
	loadedOK bool
}

// NewEngine returns an engine reading from path. An empty path always
// serves the identity model.
func NewEngine(path string) *Engine {
	return &Engine{Path: path}
}

// Model returns the current model, reloading when the file's mtime changed
// since the last load.
func (e *Engine) Model() *Model {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.Path == "" {
		if e.model == nil {
			e.model = IdentityModel()
		}
		return e.model
	}

	info, err := os.Stat(e.Path)
	if err != nil {
		if e.model == nil || e.loadedOK {
			logging.New("calib").Warn("calibration model unavailable, using identity", "path", e.Path, "error", err)
			e.model = IdentityModel()
			e.loadedOK = false
		}
		return e.model
	}

	if e.model != nil && e.loadedOK && info.ModTime().Equal(e.mtime) {
		return e.model
	}

	m, err := LoadModel(e.Path)
	if err != nil {
		logging.New("calib").Warn("calibration model load failed, using identity", "path", e.Path, "error", err)
		e.model = IdentityModel()
		e.loadedOK = false
		e.mtime = info.ModTime()
		return e.model
	}
	e.model = m
	e.loadedOK = true
	e.mtime = info.ModTime()
	return e.model
}

// Reset drops the cached model; the next Model call reloads from disk.
// Exposed for test isolation.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.model = nil
	e.mtime = time.Time{}
	e.loadedOK = false
}

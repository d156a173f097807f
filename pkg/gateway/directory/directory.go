// Package directory resolves agent identifiers to knowledge scopes from a
// flat key-value file on disk.
package directory

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

// Entry is one agent's directory record.
type Entry struct {
	Scope    string `toml:"scope"`
	Language string `toml:"language,omitempty"`
}

type fileFormat struct {
	Agents map[string]Entry `toml:"agents"`
}

// Directory maps agent ids to knowledge scopes. The backing TOML file is
// re-read when its mtime changes; a missing or corrupt file degrades to an
// empty directory rather than failing lookups.
type Directory struct {
	path   string
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]Entry
	modTime time.Time
}

// Load creates a directory backed by the given TOML file and performs the
// initial read.
func Load(path string, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Directory{
		path:    path,
		logger:  logger,
		entries: make(map[string]Entry),
	}
	d.reload()
	return d
}

// Lookup resolves an agent id. The second return value reports whether the
// agent exists and has a non-empty scope.
func (d *Directory) Lookup(agentID string) (Entry, bool) {
	d.maybeReload()

	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.entries[agentID]
	if !ok || e.Scope == "" {
		return Entry{}, false
	}
	return e, true
}

// Len reports the number of known agents.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

func (d *Directory) maybeReload() {
	if d.path == "" {
		return
	}
	info, err := os.Stat(d.path)
	if err != nil {
		return
	}
	d.mu.RLock()
	changed := !info.ModTime().Equal(d.modTime)
	d.mu.RUnlock()
	if changed {
		d.reload()
	}
}

func (d *Directory) reload() {
	if d.path == "" {
		return
	}

	var parsed fileFormat
	meta, err := os.Stat(d.path)
	if err != nil {
		d.logger.Warn("agent directory unavailable, using empty directory", "path", d.path, "error", err)
		d.replace(nil, time.Time{})
		return
	}
	if _, err := toml.DecodeFile(d.path, &parsed); err != nil {
		d.logger.Warn("agent directory unreadable, using empty directory", "path", d.path, "error", err)
		d.replace(nil, meta.ModTime())
		return
	}
	d.replace(parsed.Agents, meta.ModTime())
}

func (d *Directory) replace(entries map[string]Entry, modTime time.Time) {
	if entries == nil {
		entries = make(map[string]Entry)
	}
	d.mu.Lock()
	d.entries = entries
	d.modTime = modTime
	d.mu.Unlock()
}

// Package prompt renders the planner system prompt from the trading edge and
// the facts the code already knows.
package prompt

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"tradecoach/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

//go:embed edge.yaml
var defaultEdge []byte

// Edge is the rule set the planner must apply.
type Edge struct {
	ID           string            `yaml:"id"`
	Version      int               `yaml:"version"`
	Summary      string            `yaml:"summary"`
	Sequence     []string          `yaml:"sequence"`
	Filters      []string          `yaml:"filters"`
	Invalidation string            `yaml:"invalidation"`
	Targets      []string          `yaml:"targets"`
	Modes        map[string]string `yaml:"modes"`
}

type edgeFile struct {
	Edge Edge `yaml:"edge"`
}

// Snapshot is the currently loaded edge.
type Snapshot struct {
	Edge     Edge
	Source   string
	Revision int64
	LoadedAt time.Time
}

// Registry holds the active edge. With a file path it reloads on change.
type Registry struct {
	path string

	mu       sync.RWMutex
	snapshot Snapshot
}

// DefaultEdge returns the built-in edge.
func DefaultEdge() Edge {
	e, err := parseEdge(defaultEdge)
	if err != nil {
		panic(fmt.Sprintf("embedded edge invalid: %v", err))
	}
	return e
}

// NewRegistry loads the edge from path, or the built-in edge when path is
// empty, and watches the file for edits.
func NewRegistry(path string) (*Registry, error) {
	path = strings.TrimSpace(path)
	r := &Registry{path: path}
	if path == "" {
		r.snapshot = Snapshot{Edge: DefaultEdge(), Source: "embedded", Revision: 1, LoadedAt: time.Now()}
		return r, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read edge config failed: %w", err)
	}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("edge reload failed, keeping revision %d: %v", r.Snapshot().Revision, err)
		}
	})
	v.WatchConfig()
	return r, nil
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot
}

func (r *Registry) Edge() Edge { return r.Snapshot().Edge }

func (r *Registry) reload() error {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("read edge config failed: %w", err)
	}
	edge, err := parseEdge(raw)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Edge:     edge,
		Source:   r.path,
		Revision: r.snapshot.Revision + 1,
		LoadedAt: time.Now(),
	}
	r.mu.Unlock()
	logger.Infof("edge %s v%d loaded from %s", edge.ID, edge.Version, filepath.Base(r.path))
	return nil
}

func parseEdge(raw []byte) (Edge, error) {
	var file edgeFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return Edge{}, fmt.Errorf("parse edge config failed: %w", err)
	}
	e := file.Edge
	e.ID = strings.TrimSpace(e.ID)
	if e.ID == "" {
		return Edge{}, fmt.Errorf("edge id is required")
	}
	if len(e.Sequence) == 0 {
		return Edge{}, fmt.Errorf("edge %s has no sequence", e.ID)
	}
	if e.Version <= 0 {
		e.Version = 1
	}
	return e, nil
}

// Package store keeps the history of compiled threat models. Every record
// holds a complete JSON snapshot so a stored model never depends on state
// outside itself.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mark-chris/threatc/internal/threatmodel"
)

// ErrNotFound is returned for unknown model ids
var ErrNotFound = errors.New("threat model not found")

// Drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Record is the listing view of a stored model
type Record struct {
	ID          string    `json:"id"`
	Application string    `json:"application"`
	CreatedAt   time.Time `json:"created_at"`
	ThreatCount int       `json:"threat_count"`
	Complete    bool      `json:"complete"`
}

// Store persists threat models. Saving a model whose id is already stored
// replaces it, which is how regenerated sections are kept.
type Store interface {
	Save(ctx context.Context, m *threatmodel.ThreatModel) error
	Get(ctx context.Context, id string) (*threatmodel.ThreatModel, error)
	// List returns the newest records first; limit <= 0 means all.
	List(ctx context.Context, limit int) ([]Record, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// Config selects and configures a driver
type Config struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Open creates the store for a driver
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Driver {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverSQLite:
		return OpenSQLite(ctx, cfg.DSN)
	case DriverPostgres:
		return OpenPostgres(ctx, cfg.DSN, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func recordOf(m *threatmodel.ThreatModel) Record {
	name := m.Application.Name
	if name == "" {
		name = m.Application.Type
	}
	return Record{
		ID:          m.ID,
		Application: name,
		CreatedAt:   m.CreatedAt,
		ThreatCount: len(m.Threats),
		Complete:    m.Complete,
	}
}

func encode(m *threatmodel.ThreatModel) ([]byte, error) {
	if m == nil || m.ID == "" {
		return nil, &threatmodel.InputError{Field: "model", Message: "model without id cannot be stored"}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode model %s: %w", m.ID, err)
	}
	return data, nil
}

func decode(id string, data []byte) (*threatmodel.ThreatModel, error) {
	var m threatmodel.ThreatModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode model %s: %w", id, err)
	}
	return &m, nil
}

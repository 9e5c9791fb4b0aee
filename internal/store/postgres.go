package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mark-chris/threatc/internal/threatmodel"
)

const (
	connectAttempts = 10
	connectDelay    = 2 * time.Second
)

// modelRow is the gorm mapping of a stored model
type modelRow struct {
	ID          string    `gorm:"primaryKey;size:36"`
	Application string    `gorm:"size:255"`
	CreatedAt   time.Time `gorm:"index"`
	UpdatedAt   time.Time
	ThreatCount int
	Complete    bool
	Snapshot    string `gorm:"type:text;not null"`
}

func (modelRow) TableName() string { return "threat_models" }

// Postgres keeps history in PostgreSQL for the HTTP server
type Postgres struct {
	db *gorm.DB
}

// OpenPostgres connects with retries, since the database often starts
// alongside the server, and migrates the schema.
func OpenPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*Postgres, error) {
	if dsn == "" {
		return nil, &threatmodel.InputError{Field: "store.dsn", Message: "postgres requires a DSN"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		db  *gorm.DB
		err error
	)
	for i := 1; i <= connectAttempts; i++ {
		logger.Info("connecting to postgres", zap.Int("attempt", i), zap.Int("max_attempts", connectAttempts))

		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
		if err == nil {
			break
		}
		logger.Warn("failed to connect to postgres", zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(connectDelay):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres after %d attempts: %w", connectAttempts, err)
	}

	if err := db.WithContext(ctx).AutoMigrate(&modelRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	logger.Info("connected to postgres")
	return &Postgres{db: db}, nil
}

func (s *Postgres) Save(ctx context.Context, m *threatmodel.ThreatModel) error {
	data, err := encode(m)
	if err != nil {
		return err
	}
	r := recordOf(m)
	row := modelRow{
		ID:          r.ID,
		Application: r.Application,
		CreatedAt:   r.CreatedAt,
		ThreatCount: r.ThreatCount,
		Complete:    r.Complete,
		Snapshot:    string(data),
	}
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("failed to save model %s: %w", m.ID, err)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, id string) (*threatmodel.ThreatModel, error) {
	var row modelRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load model %s: %w", id, err)
	}
	return decode(id, []byte(row.Snapshot))
}

func (s *Postgres) List(ctx context.Context, limit int) ([]Record, error) {
	var rows []modelRow
	q := s.db.WithContext(ctx).
		Select("id", "application", "created_at", "threat_count", "complete").
		Order("created_at DESC").Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, Record{
			ID:          row.ID,
			Application: row.Application,
			CreatedAt:   row.CreatedAt.UTC(),
			ThreatCount: row.ThreatCount,
			Complete:    row.Complete,
		})
	}
	return out, nil
}

func (s *Postgres) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&modelRow{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete model %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

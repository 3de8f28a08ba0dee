package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// postgresSaveChunk bounds the rows per INSERT.
const postgresSaveChunk = 500

// EntryModel is one cached lookup result.
type EntryModel struct {
	Number    string    `gorm:"primaryKey;size:32"`
	Result    string    `gorm:"not null;size:128"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName implements gorm's tabler.
func (EntryModel) TableName() string {
	return "lrn_cache_entries"
}

// PostgresStore keeps the cache in a Postgres table through gorm.
type PostgresStore struct {
	db *gorm.DB
}

// OpenPostgres connects to dsn and applies the cache migrations.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Warn),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates the cache table.
func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_lrn_cache_entries",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&EntryModel{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&EntryModel{})
			},
		},
	})

	if err := m.Migrate(); err != nil {
		return fmt.Errorf("migrate cache table: %w", err)
	}
	return nil
}

// NewPostgresStore creates a store on an already migrated database.
func NewPostgresStore(db *gorm.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, ErrNilStore
	}
	return &PostgresStore{db: db}, nil
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context) (map[string]string, error) {
	var rows []EntryModel
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		CacheErrors.WithLabelValues("load").Inc()
		return nil, fmt.Errorf("select cache entries: %w", err)
	}

	entries := make(map[string]string, len(rows))
	for _, row := range rows {
		entries[row.Number] = row.Result
	}

	CacheEntries.WithLabelValues("postgres").Set(float64(len(entries)))
	return entries, nil
}

// Save implements Store. Rows already present are left untouched.
func (s *PostgresStore) Save(ctx context.Context, entries map[string]string) error {
	if len(entries) == 0 {
		return nil
	}

	now := time.Now()
	rows := make([]EntryModel, 0, len(entries))
	for number, result := range entries {
		rows = append(rows, EntryModel{Number: number, Result: result, CreatedAt: now})
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(rows, postgresSaveChunk).Error
	if err != nil {
		CacheErrors.WithLabelValues("save").Inc()
		return fmt.Errorf("insert cache entries: %w", err)
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&EntryModel{}).Count(&count).Error; err == nil {
		CacheEntries.WithLabelValues("postgres").Set(float64(count))
	}
	return nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

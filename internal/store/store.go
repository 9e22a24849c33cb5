// Package store is the relational system of record: fields, AWD
// configurations, sessions, anomalies, performance records and the SCADA
// gate command table. Time-series data (readings, monitoring samples)
// lives in InfluxDB instead.
package store

import (
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/munbon/awd-control/internal/model/entities"
)

var (
	// ErrNotFound: the field/session the caller named does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict: an active session already exists for the field.
	ErrConflict = errors.New("active session already exists")
)

// Open opens (or creates) the sqlite database and migrates the schema.
// Use "file::memory:?cache=shared" in tests.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", dsn, err)
	}
	if err := db.AutoMigrate(
		&entities.Field{},
		&entities.AwdConfiguration{},
		&entities.IrrigationSession{},
		&entities.Anomaly{},
		&entities.PerformanceRecord{},
		&entities.GateCommand{},
	); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

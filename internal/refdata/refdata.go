// Package refdata serves the read-only medicine reference catalog: a
// SQLite database of known medicine names users can search while adding
// their own entries.
package refdata

import (
	"database/sql"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite" // Pure Go SQLite driver
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	apperr "github.com/mvdwal/meditrack/internal/errors"
)

// RefMedicine is one catalog row. The catalog is populated out of band
// (an import job loads it from a registry dump); this package only
// reads it.
type RefMedicine struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Name      string `gorm:"index" json:"name"`
	Substance string `gorm:"index" json:"substance"`
	Strength  string `json:"strength,omitempty"`
	Form      string `json:"form,omitempty"`
	ATCCode   string `json:"atc_code,omitempty"`
}

func (RefMedicine) TableName() string { return "medicines" }

// Catalog wraps the reference database.
type Catalog struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open opens (or creates) the catalog database.
func Open(path string, log *zap.Logger) (*Catalog, error) {
	sqliteDB, err := sql.Open("sqlite", path+"?_journal=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindConnection, "STORE_003", "failed to open reference catalog")
	}
	sqliteDB.SetMaxOpenConns(4)
	sqliteDB.SetConnMaxLifetime(time.Hour)

	db, err := gorm.Open(sqlite.Dialector{Conn: sqliteDB}, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindConnection, "STORE_003", "failed to open reference catalog")
	}

	if err := db.AutoMigrate(&RefMedicine{}); err != nil {
		return nil, apperr.Operation("failed to migrate reference catalog", err)
	}

	return &Catalog{db: db, logger: log}, nil
}

// Search returns catalog rows whose name or substance contains the
// query, case-insensitively, up to limit.
func (c *Catalog) Search(query string, limit int) ([]RefMedicine, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []RefMedicine{}, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	pattern := "%" + strings.ToLower(query) + "%"
	var rows []RefMedicine
	err := c.db.
		Where("LOWER(name) LIKE ? OR LOWER(substance) LIKE ?", pattern, pattern).
		Order("name").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, apperr.Operation("catalog search failed", err)
	}
	return rows, nil
}

// Count reports how many catalog rows are loaded.
func (c *Catalog) Count() (int64, error) {
	var n int64
	if err := c.db.Model(&RefMedicine{}).Count(&n).Error; err != nil {
		return 0, apperr.Operation("catalog count failed", err)
	}
	return n, nil
}

// Import bulk-loads catalog rows, replacing nothing; it is additive and
// meant for the out-of-band import job.
func (c *Catalog) Import(rows []RefMedicine) error {
	if len(rows) == 0 {
		return nil
	}
	if err := c.db.CreateInBatches(rows, 500).Error; err != nil {
		return apperr.Operation("catalog import failed", err)
	}
	c.logger.Info("imported catalog rows", zap.Int("count", len(rows)))
	return nil
}

// Close releases the underlying connection.
func (c *Catalog) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

package database

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/weatherdepot/weatherdepot/internal/log"
	"github.com/weatherdepot/weatherdepot/pkg/config"
	"go.uber.org/zap"
)

// Client holds the two PostgreSQL connection pools. The API pool serves
// read requests; the ingest pool backs the scheduled jobs. They must not
// be cross-used so a slow backfill cannot starve the read path.
type Client struct {
	config *config.DatabaseConfig
	API    *gorm.DB
	Ingest *gorm.DB
	logger *zap.SugaredLogger
}

// NewClient creates a new database client
func NewClient(c *config.DatabaseConfig, logger *zap.SugaredLogger) *Client {
	return &Client{
		config: c,
		logger: logger,
	}
}

// Connect opens both pools against the configured PostgreSQL database.
func (c *Client) Connect() error {
	var err error

	log.Info("connecting to PostgreSQL...")
	c.API, err = open(c.config.ConnectionString, c.config.APIPoolMax)
	if err != nil {
		return fmt.Errorf("unable to open API pool: %w", err)
	}
	c.Ingest, err = open(c.config.ConnectionString, c.config.IngestPoolMax)
	if err != nil {
		return fmt.Errorf("unable to open ingest pool: %w", err)
	}
	log.Info("PostgreSQL connection successful")

	return nil
}

// Close drains both pools.
func (c *Client) Close() {
	for _, db := range []*gorm.DB{c.API, c.Ingest} {
		if db == nil {
			continue
		}
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}
}

// Ping verifies the API pool is reachable.
func (c *Client) Ping() error {
	sqlDB, err := c.API.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func open(connectionString string, maxConns int) (*gorm.DB, error) {
	// Create a logger for gorm
	dbLogger := logger.New(
		zap.NewStdLog(log.GetZapLogger()),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(connectionString), &gorm.Config{Logger: dbLogger})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(maxConns / 2)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

// CreateConnection is a helper to open a single standalone pool, used by
// the administrative CLIs.
func CreateConnection(connectionString string) (*gorm.DB, error) {
	return open(connectionString, 4)
}

package config

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Config holds the runtime configuration. Values are populated from CLI
// flags with environment fallbacks in cmd/tile-server.
type Config struct {
	AppPort string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	// MemoryRegistry replaces the Postgres registry with the in-memory one
	// for single-node deployments. Lifecycle state does not survive restarts.
	MemoryRegistry bool

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioSSL       bool

	CacheDir          string // root directory for materialized source images
	WorkerCount       int    // concurrent ingestion workers
	RasterConcurrency int    // statistics scans allowed in flight
	Resampling        string // nearest, bilinear or cubic
	LogLevel          string
}

// Validate checks the field combinations that cannot start a server.
func (c *Config) Validate() error {
	if c.MinioEndpoint == "" || c.MinioAccessKey == "" || c.MinioSecretKey == "" {
		return fmt.Errorf("minio configuration is incomplete")
	}
	if !c.MemoryRegistry && (c.DBHost == "" || c.DBUser == "" || c.DBName == "") {
		return fmt.Errorf("database configuration is incomplete")
	}
	return nil
}

// ConnectDatabase initializes a GORM database connection to PostgreSQL.
func ConnectDatabase(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return db, nil
}

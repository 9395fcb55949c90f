package database

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/diwise/farm-operations/internal/pkg/infrastructure/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	svclog "github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type ConnectorConfig struct {
	Host     string
	Username string
	DbName   string
	Password string
	SslMode  string
}

func LoadConfigFromEnv(ctx context.Context) ConnectorConfig {
	log := svclog.GetFromContext(ctx)

	return ConnectorConfig{
		Host:     os.Getenv("POSTGRES_HOST"),
		Username: os.Getenv("POSTGRES_USER"),
		DbName:   env.GetVariableOrDefault(log, "POSTGRES_DBNAME", "farmops"),
		Password: os.Getenv("POSTGRES_PASSWORD"),
		SslMode:  env.GetVariableOrDefault(log, "POSTGRES_SSLMODE", "disable"),
	}
}

// ConnectorFunc returns the same *gorm.DB every time it is called, so that
// all repositories created from one connector share a database.
type ConnectorFunc func() (*gorm.DB, error)

func now() time.Time {
	return time.Now().UTC()
}

func once(open func() (*gorm.DB, error)) ConnectorFunc {
	var (
		db  *gorm.DB
		err error
		mu  sync.Once
	)

	return func() (*gorm.DB, error) {
		mu.Do(func() {
			db, err = open()
		})
		return db, err
	}
}

func NewSQLiteConnector(ctx context.Context) ConnectorFunc {
	return once(func() (*gorm.DB, error) {
		db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
			Logger:          logger.Default.LogMode(logger.Silent),
			CreateBatchSize: 1000,
			NowFunc:         now,
		})

		if err == nil {
			db.Exec("PRAGMA foreign_keys = ON")
			sqldb, _ := db.DB()
			sqldb.SetMaxOpenConns(1)
		}

		return db, err
	})
}

func NewPostgreSQLConnector(ctx context.Context, cfg ConnectorConfig) ConnectorFunc {
	dbURI := fmt.Sprintf("host=%s user=%s dbname=%s sslmode=%s password=%s", cfg.Host, cfg.Username, cfg.DbName, cfg.SslMode, cfg.Password)

	log := svclog.GetFromContext(ctx)

	return once(func() (*gorm.DB, error) {
		sublogger := log.With().Str("host", cfg.Host).Str("database", cfg.DbName).Logger()

		var err error

		for attempt := 1; attempt <= 5; attempt++ {
			sublogger.Info().Msg("connecting to database host")

			var db *gorm.DB
			db, err = gorm.Open(postgres.Open(dbURI), &gorm.Config{
				Logger:  logging.NewGormLogger(sublogger, time.Second),
				NowFunc: now,
			})
			if err == nil {
				return db, nil
			}

			sublogger.Error().Err(err).Msgf("failed to connect to database (attempt %d)", attempt)
			time.Sleep(3 * time.Second)
		}

		return nil, err
	})
}

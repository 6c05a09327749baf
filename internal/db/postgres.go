package db

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/yungbote/ghiblify-backend/internal/domain/payments"
	"github.com/yungbote/ghiblify-backend/internal/platform/logger"
)

type Config struct {
	// Driver is "postgres" or "sqlite".
	Driver string
	DSN    string
}

func (c Config) Enabled() bool { return strings.TrimSpace(c.DSN) != "" }

type Service struct {
	db  *gorm.DB
	log *logger.Logger
}

// Open connects to the journal database. Postgres goes through pgx so that
// connection settings in the DSN (statement cache, TLS) are honored.
func Open(log *logger.Logger, cfg Config) (*Service, error) {
	serviceLog := log.With("service", "JournalDB")
	gcfg := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Warn),
	}

	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "postgres", "postgresql":
		pgxCfg, err := pgx.ParseConfig(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("parse journal dsn: %w", err)
		}
		dialector = postgres.New(postgres.Config{Conn: stdlib.OpenDB(*pgxCfg)})
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported JOURNAL_DRIVER %q", cfg.Driver)
	}

	serviceLog.Info("Connecting to journal database...", "driver", cfg.Driver)
	db, err := gorm.Open(dialector, gcfg)
	if err != nil {
		serviceLog.Error("Failed to connect to journal database", "error", err)
		return nil, fmt.Errorf("connect journal db: %w", err)
	}
	return &Service{db: db, log: serviceLog}, nil
}

func (s *Service) AutoMigrateAll() error {
	s.log.Info("Auto migrating journal tables...")
	if err := s.db.AutoMigrate(&payments.LedgerEntry{}); err != nil {
		s.log.Error("Auto migration failed for journal tables", "error", err)
		return err
	}
	return nil
}

func (s *Service) DB() *gorm.DB { return s.db }

func (s *Service) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

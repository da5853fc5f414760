package persistence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/VozVule/local-knowledge/domain/persistence"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type txKey struct{}

// DatabaseManager implements the persistence.DatabaseManager interface
type DatabaseManager struct {
	db       *gorm.DB
	driver   string
	messages persistence.MessageRepository
	configs  persistence.ModelConfigRepository
	docs     persistence.DocumentRepository
	exchange persistence.ExchangeRepository
}

// NewDatabaseManager creates a new database manager instance
func NewDatabaseManager() *DatabaseManager {
	return &DatabaseManager{}
}

// OpenDialector selects the gorm driver for a DSN.
// postgres:// and postgresql:// URLs and key=value DSNs use PostgreSQL; everything else is a SQLite path.
func OpenDialector(dsn string) (gorm.Dialector, string) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"), strings.Contains(dsn, "host="):
		return postgres.Open(dsn), "postgres"
	case strings.HasPrefix(dsn, "sqlite:///"):
		return sqlite.Open(strings.TrimPrefix(dsn, "sqlite:///")), "sqlite"
	case strings.HasPrefix(dsn, "sqlite:"):
		return sqlite.Open(strings.TrimPrefix(dsn, "sqlite:")), "sqlite"
	default:
		return sqlite.Open(dsn), "sqlite"
	}
}

// Connect establishes database connection
func (dm *DatabaseManager) Connect(ctx context.Context, dsn string) error {
	dialector, driver := OpenDialector(dsn)
	logrus.WithField("driver", driver).Info("Connecting to database...")

	// Configure GORM logger
	gormLogger := logger.New(
		logrus.StandardLogger(),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}

	if driver == "sqlite" {
		// single writer; keeps :memory: databases alive across calls
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	dm.db = db
	dm.driver = driver

	dm.messages = NewMessageRepository(db)
	dm.configs = NewModelConfigRepository(db)
	dm.docs = NewDocumentRepository(db)
	dm.exchange = NewExchangeRepository(db)

	logrus.WithField("driver", driver).Info("Successfully connected to database")
	return nil
}

// Close closes the database connection
func (dm *DatabaseManager) Close() error {
	if dm.db == nil {
		return nil
	}

	sqlDB, err := dm.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL DB for close: %w", err)
	}

	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	logrus.Info("Database connection closed successfully")
	return nil
}

// Migrate creates or updates the schema
func (dm *DatabaseManager) Migrate() error {
	if dm.db == nil {
		return fmt.Errorf("database connection not established")
	}

	logrus.Info("Running database migrations...")

	if err := dm.db.AutoMigrate(
		&persistence.MessageRecord{},
		&persistence.AppConfig{},
		&persistence.Document{},
		&persistence.ExchangeRecord{},
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	logrus.Info("Database migrations completed successfully")
	return nil
}

// Health checks database connectivity
func (dm *DatabaseManager) Health(ctx context.Context) error {
	if dm.db == nil {
		return fmt.Errorf("database connection not established")
	}

	sqlDB, err := dm.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}

// Driver returns "sqlite" or "postgres" once connected
func (dm *DatabaseManager) Driver() string {
	return dm.driver
}

// Messages returns the message repository
func (dm *DatabaseManager) Messages() persistence.MessageRepository {
	return dm.messages
}

// ModelConfigs returns the app_config repository
func (dm *DatabaseManager) ModelConfigs() persistence.ModelConfigRepository {
	return dm.configs
}

// Documents returns the document repository
func (dm *DatabaseManager) Documents() persistence.DocumentRepository {
	return dm.docs
}

// Exchanges returns the exchange metrics repository
func (dm *DatabaseManager) Exchanges() persistence.ExchangeRepository {
	return dm.exchange
}

// GetDB returns the underlying GORM database instance
func (dm *DatabaseManager) GetDB() *gorm.DB {
	return dm.db
}

// WithTransaction executes a function within a database transaction
func (dm *DatabaseManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if dm.db == nil {
		return fmt.Errorf("database connection not established")
	}

	tx := dm.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	// repositories pick the transaction up from the context
	txCtx := context.WithValue(ctx, txKey{}, tx)

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback().Error; rbErr != nil {
			logrus.WithError(rbErr).Error("Failed to rollback transaction")
		}
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// dbFrom returns the transaction in ctx, or db bound to ctx
func dbFrom(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return db.WithContext(ctx)
}

// Package connect opens the host gorm.DB connection this module writes
// outbox/inbox rows through. It is a trimmed-down descendant of the
// teacher's pkg/database/sql/adapters/{postgres,mysql,sqlite,mssql}: same
// per-driver DSN construction and gorm.Open call, minus the multi-tenant
// sharding (GetShard) and document/vector store surface those adapters
// carried for unrelated domains.
package connect

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"

	"github.com/txkafka/txkafka/pkg/errors"
	"github.com/txkafka/txkafka/pkg/gormstore"
)

// Driver selects which gorm dialect to open.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
	DriverSQLite   Driver = "sqlite"
	DriverSQLServer Driver = "sqlserver"
)

// Config describes a host database connection.
type Config struct {
	Driver   Driver `env:"TXKAFKA_DB_DRIVER" env-default:"postgres"`
	Host     string `env:"TXKAFKA_DB_HOST"`
	Port     string `env:"TXKAFKA_DB_PORT"`
	User     string `env:"TXKAFKA_DB_USER"`
	Password string `env:"TXKAFKA_DB_PASSWORD"`
	Name     string `env:"TXKAFKA_DB_NAME"`
	SSLMode  string `env:"TXKAFKA_DB_SSLMODE" env-default:"disable"`

	MaxIdleConns int `env:"TXKAFKA_DB_MAX_IDLE_CONNS" env-default:"10"`
	MaxOpenConns int `env:"TXKAFKA_DB_MAX_OPEN_CONNS" env-default:"50"`
}

// Open connects and runs AutoMigrate for the outbox/inbox tables.
func Open(cfg Config) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)

	gcfg := &gorm.Config{Logger: gormstore.NewGORMLogger(), TranslateError: true}

	switch cfg.Driver {
	case DriverPostgres:
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
			cfg.Host, cfg.User, cfg.Password, cfg.Name, cfg.Port, cfg.SSLMode)
		db, err = gorm.Open(postgres.Open(dsn), gcfg)
	case DriverMySQL:
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name)
		db, err = gorm.Open(mysql.Open(dsn), gcfg)
	case DriverSQLite:
		path := cfg.Name
		if path == "" {
			path = "txkafka.db"
		}
		db, err = gorm.Open(sqlite.Open(path), gcfg)
	case DriverSQLServer:
		dsn := fmt.Sprintf("sqlserver://%s:%s@%s:%s?database=%s", cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name)
		db, err = gorm.Open(sqlserver.Open(dsn), gcfg)
	default:
		return nil, errors.New(errors.CodeInvalidArgument, "unknown database driver: "+string(cfg.Driver), nil)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to open host database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get underlying sql.DB")
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)

	if err := gormstore.AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

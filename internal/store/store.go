// Package store persists meetings, participants, media-server state and the
// waiting room. It is the only place rows are written.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dkeye/Meet/internal/domain"
)

type Store struct {
	db *gorm.DB
}

type txKey struct{}

// Open connects to postgres or sqlite. sqlite schemas are created with
// AutoMigrate; postgres schemas come from the embedded migrations.
func Open(driver, dsn string, debug bool) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", driver)
	}

	level := logger.Warn
	if debug {
		level = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", driver, err)
	}

	if driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// sqlite allows a single writer.
		sqlDB.SetMaxOpenConns(1)
		if err := db.AutoMigrate(Models()...); err != nil {
			return nil, fmt.Errorf("store: automigrate: %w", err)
		}
	}
	log.Info().Str("module", "store").Str("driver", driver).Msg("database ready")
	return &Store{db: db}, nil
}

// OpenInMemory opens a private in-memory sqlite database.
func OpenInMemory(name string) (*Store, error) {
	name = strings.NewReplacer("/", "_", " ", "_").Replace(name)
	return Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", name), false)
}

func Models() []any {
	return []any{
		&domain.Meeting{},
		&domain.VideoServerMeeting{},
		&domain.Participant{},
		&domain.VideoServerSession{},
		&domain.WaitingParticipant{},
		&domain.RoomMember{},
	}
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Transaction runs fn inside a database transaction carried by the context
// passed to fn. Store methods called with that context join the
// transaction; a nested call reuses the outer one.
func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return s.db.WithContext(ctx)
}

// translate maps driver errors to domain sentinels.
func translate(err error, format string, args ...any) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return domain.NotFound(format, args...)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return domain.Conflict(format, args...)
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

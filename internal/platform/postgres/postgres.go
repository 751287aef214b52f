package postgres

import (
	"context"
	"fmt"
	"time"

	"linkscan/internal/logger"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Options struct {
	URL          string
	MaxOpenConns int
}

type Service struct {
	db  *sqlx.DB
	log *logger.Logger
}

func New(ctx context.Context, opts Options) (*Service, error) {
	db, err := sqlx.Open("postgres", opts.URL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
		db.SetMaxIdleConns(opts.MaxOpenConns)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewFromDB(db), nil
}

// NewFromDB wraps an existing handle.
func NewFromDB(db *sqlx.DB) *Service {
	return &Service{db: db, log: logger.New("Postgres")}
}

func (s *Service) DB() *sqlx.DB { return s.db }
func (s *Service) Close() error { return s.db.Close() }

func (s *Service) HealthCheck(ctx context.Context) error {
	var one int
	if err := s.db.GetContext(ctx, &one, "SELECT 1"); err != nil {
		s.log.LogErrorf("Postgres health check failed: %v", err)
		return fmt.Errorf("postgres query failed: %w", err)
	}
	return nil
}

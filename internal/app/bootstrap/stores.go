package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/availability-engine/internal/bookings"
	"github.com/wolfman30/availability-engine/internal/rules"
	"github.com/wolfman30/availability-engine/pkg/logging"
)

// Stores holds the persistence layer. Without a database URL everything is
// kept in memory and Auditor is nil.
type Stores struct {
	Rules    rules.Store
	Bookings bookings.Source
	Auditor  rules.Auditor
	Pool     *pgxpool.Pool
	SQL      *sql.DB

	// Memory is set when the in-memory booking source is in use so local
	// tooling can seed bookings.
	Memory *bookings.MemorySource
}

// Close releases database handles.
func (s *Stores) Close() {
	if s == nil {
		return
	}
	if s.Pool != nil {
		s.Pool.Close()
	}
	if s.SQL != nil {
		_ = s.SQL.Close()
	}
}

// BuildStores connects to Postgres when databaseURL is set. The rule store
// and booking reads go through pgx; the audit log uses database/sql.
func BuildStores(ctx context.Context, databaseURL string, logger *logging.Logger) (*Stores, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(databaseURL) == "" {
		logger.Warn("DATABASE_URL not set; using in-memory rule and booking stores")
		mem := bookings.NewMemorySource()
		return &Stores{Rules: rules.NewMemoryStore(), Bookings: mem, Memory: mem}, nil
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}

	sqlDB, err := sql.Open("postgres", databaseURL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: open audit db: %w", err)
	}
	sqlDB.SetMaxOpenConns(4)

	logger.Info("connected to postgres")
	return &Stores{
		Rules:    rules.NewPostgresStore(pool),
		Bookings: bookings.NewPostgresSource(pool),
		Auditor:  rules.NewAuditLog(sqlDB),
		Pool:     pool,
		SQL:      sqlDB,
	}, nil
}

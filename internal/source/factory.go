package source

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/pdq-signal-server/internal/database"
	"github.com/pdq-signal-server/internal/domain"
)

// New builds the source selected by cfg.Source.Type. Database backed sources
// are wrapped in a circuit breaker. The returned cleanup releases any
// connection the source opened.
func New(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) (domain.RecordSource, func(), error) {
	switch cfg.Source.Type {
	case domain.SourceFAERS:
		return NewFAERSDirSource(cfg.Source.Dir, cfg.Source.Quarter, logger), func() {}, nil

	case domain.SourceSQLite:
		src, err := OpenSQLite(cfg.Source.SQLitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			if err := src.Close(); err != nil {
				logger.WithError(err).Warn("Failed to close SQLite source")
			}
		}
		return NewBreakerSource(src, cfg.CircuitBreaker, logger), cleanup, nil

	case domain.SourcePostgres:
		db, err := database.NewConnection(ctx, cfg.Database, logger)
		if err != nil {
			return nil, nil, err
		}
		return NewBreakerSource(NewPostgresSource(db.Pool, logger), cfg.CircuitBreaker, logger), db.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown source type %q", cfg.Source.Type)
	}
}

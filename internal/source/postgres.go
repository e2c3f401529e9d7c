package source

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/pdq-signal-server/internal/domain"
)

// PostgresSource loads the staging tables written by the COPY loader
type PostgresSource struct {
	pool   *pgxpool.Pool
	logger *logrus.Logger
}

// NewPostgresSource creates a source on an open pool
func NewPostgresSource(pool *pgxpool.Pool, logger *logrus.Logger) *PostgresSource {
	return &PostgresSource{pool: pool, logger: logger}
}

// Name identifies the source
func (s *PostgresSource) Name() string {
	return "postgres:staging"
}

// Load reads all six staging tables in one read-only transaction so the
// snapshot is consistent with a concurrent load.
func (s *PostgresSource) Load(ctx context.Context) (*domain.RecordSet, error) {
	start := time.Now()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback(ctx)

	set := &domain.RecordSet{}

	set.Demographics, err = collect(ctx, tx, queryDemo, func(row pgx.CollectableRow) (domain.CaseDemographics, error) {
		var d domain.CaseDemographics
		var sex *string
		err := row.Scan(&d.CaseID, &d.Age, &sex, &d.Weight)
		if sex != nil {
			d.Sex = *sex
		}
		return d, err
	})
	if err != nil {
		return nil, err
	}

	set.Drugs, err = collect(ctx, tx, queryDrug, func(row pgx.CollectableRow) (domain.DrugExposure, error) {
		var d domain.DrugExposure
		err := row.Scan(&d.CaseID, &d.DrugName)
		return d, err
	})
	if err != nil {
		return nil, err
	}

	set.Reactions, err = collect(ctx, tx, queryReac, func(row pgx.CollectableRow) (domain.ReactionEvent, error) {
		var r domain.ReactionEvent
		err := row.Scan(&r.CaseID, &r.PreferredTerm)
		return r, err
	})
	if err != nil {
		return nil, err
	}

	set.Therapies, err = collect(ctx, tx, queryTher, func(row pgx.CollectableRow) (domain.RawTherapyInterval, error) {
		var t domain.RawTherapyInterval
		err := row.Scan(&t.CaseID, &t.CaseRef, &t.StartDate, &t.EndDate)
		return t, err
	})
	if err != nil {
		return nil, err
	}

	set.Indications, err = collect(ctx, tx, queryIndi, func(row pgx.CollectableRow) (domain.IndicationRecord, error) {
		var i domain.IndicationRecord
		err := row.Scan(&i.CaseID, &i.IndicationTerm)
		return i, err
	})
	if err != nil {
		return nil, err
	}

	set.Outcomes, err = collect(ctx, tx, queryOutc, func(row pgx.CollectableRow) (domain.OutcomeRecord, error) {
		var o domain.OutcomeRecord
		err := row.Scan(&o.CaseID, &o.OutcomeCode)
		return o, err
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"source":      s.Name(),
		"counts":      set.Counts(),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Staging tables loaded")
	return set, nil
}

func collect[T any](ctx context.Context, tx pgx.Tx, query string, fn pgx.RowToFunc[T]) ([]T, error) {
	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", query, err)
	}
	out, err := pgx.CollectRows(rows, fn)
	if err != nil {
		return nil, fmt.Errorf("collect %q: %w", query, err)
	}
	return out, nil
}

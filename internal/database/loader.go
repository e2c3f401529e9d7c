package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/pdq-signal-server/internal/domain"
)

// Staging tables in load order
var stagingTables = []string{"demo", "drug", "reac", "ther", "indi", "outc"}

// LoadStats holds the rows copied per staging table
type LoadStats map[string]int64

// Total returns the rows copied across all tables
func (s LoadStats) Total() int64 {
	var n int64
	for _, v := range s {
		n += v
	}
	return n
}

// copier is the subset of pgx.Tx the loader needs
type copier interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Loader replaces the staging tables with a record set using COPY
type Loader struct {
	db        *DB
	batchSize int
	log       *logrus.Logger
}

// NewLoader creates a loader. batchSize bounds the rows sent per COPY call.
func NewLoader(db *DB, batchSize int, logger *logrus.Logger) *Loader {
	if batchSize <= 0 {
		batchSize = 10000
	}
	return &Loader{db: db, batchSize: batchSize, log: logger}
}

// Load truncates the staging tables and copies set into them in a single
// transaction, then records the run in load_runs.
func (l *Loader) Load(ctx context.Context, quarter string, set *domain.RecordSet) (LoadStats, error) {
	start := time.Now()

	tx, err := l.db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin load transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "TRUNCATE demo, drug, reac, ther, indi, outc"); err != nil {
		return nil, fmt.Errorf("truncate staging tables: %w", err)
	}

	stats := make(LoadStats, len(stagingTables))
	for _, table := range stagingTables {
		columns, rows := stagingRows(table, set)
		n, err := l.copyBatches(ctx, tx, table, columns, rows)
		if err != nil {
			return nil, err
		}
		stats[table] = n
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO load_runs (quarter, demo_rows, drug_rows, reac_rows, ther_rows, indi_rows, outc_rows)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		quarter, stats["demo"], stats["drug"], stats["reac"], stats["ther"], stats["indi"], stats["outc"],
	)
	if err != nil {
		return nil, fmt.Errorf("record load run: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit load transaction: %w", err)
	}

	l.log.WithFields(logrus.Fields{
		"quarter":     quarter,
		"rows":        stats.Total(),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("FAERS staging tables loaded")
	return stats, nil
}

func (l *Loader) copyBatches(ctx context.Context, c copier, table string, columns []string, rows [][]interface{}) (int64, error) {
	var total int64
	for offset := 0; offset < len(rows); offset += l.batchSize {
		end := offset + l.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		n, err := c.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows[offset:end]))
		if err != nil {
			return total, fmt.Errorf("copy into %s: %w", table, err)
		}
		total += n
		l.log.WithFields(logrus.Fields{
			"table": table,
			"rows":  total,
		}).Debug("Copied batch")
	}
	return total, nil
}

// stagingRows flattens one collection of set into COPY rows
func stagingRows(table string, set *domain.RecordSet) ([]string, [][]interface{}) {
	var rows [][]interface{}
	switch table {
	case "demo":
		for _, d := range set.Demographics {
			rows = append(rows, []interface{}{d.CaseID, d.Age, d.Sex, d.Weight})
		}
		return []string{"primaryid", "age", "sex", "wt"}, rows
	case "drug":
		for _, d := range set.Drugs {
			rows = append(rows, []interface{}{d.CaseID, d.DrugName})
		}
		return []string{"primaryid", "drugname"}, rows
	case "reac":
		for _, r := range set.Reactions {
			rows = append(rows, []interface{}{r.CaseID, r.PreferredTerm})
		}
		return []string{"primaryid", "pt"}, rows
	case "ther":
		for _, t := range set.Therapies {
			rows = append(rows, []interface{}{t.CaseID, t.CaseRef, t.StartDate, t.EndDate})
		}
		return []string{"primaryid", "caseid", "start_dt", "end_dt"}, rows
	case "indi":
		for _, i := range set.Indications {
			rows = append(rows, []interface{}{i.CaseID, i.IndicationTerm})
		}
		return []string{"primaryid", "indi_pt"}, rows
	case "outc":
		for _, o := range set.Outcomes {
			rows = append(rows, []interface{}{o.CaseID, o.OutcomeCode})
		}
		return []string{"primaryid", "outc_cod"}, rows
	}
	return nil, nil
}

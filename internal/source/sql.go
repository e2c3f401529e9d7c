package source

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/pdq-signal-server/internal/domain"
)

// Queries for the six case tables. Column names follow the FAERS files.
const (
	queryDemo = "SELECT primaryid, age, sex, wt FROM demo"
	queryDrug = "SELECT primaryid, drugname FROM drug"
	queryReac = "SELECT primaryid, pt FROM reac"
	queryTher = "SELECT primaryid, caseid, start_dt, end_dt FROM ther"
	queryIndi = "SELECT primaryid, indi_pt FROM indi"
	queryOutc = "SELECT primaryid, outc_cod FROM outc"
)

// SQLSource loads the case tables through database/sql
type SQLSource struct {
	db     *sql.DB
	name   string
	logger *logrus.Logger
}

// NewSQLSource wraps an open database. The source does not own db.
func NewSQLSource(db *sql.DB, name string, logger *logrus.Logger) *SQLSource {
	return &SQLSource{db: db, name: name, logger: logger}
}

// OpenSQLite opens a SQLite file holding the case tables
func OpenSQLite(path string, logger *logrus.Logger) (*SQLSource, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	return NewSQLSource(db, "sqlite:"+path, logger), nil
}

// OpenPostgresURL opens a PostgreSQL database through lib/pq
func OpenPostgresURL(databaseURL string, logger *logrus.Logger) (*SQLSource, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewSQLSource(db, "postgres", logger), nil
}

// Name identifies the database
func (s *SQLSource) Name() string {
	return s.name
}

// Close closes the underlying database
func (s *SQLSource) Close() error {
	return s.db.Close()
}

// Load reads all six tables
func (s *SQLSource) Load(ctx context.Context) (*domain.RecordSet, error) {
	start := time.Now()
	set := &domain.RecordSet{}

	err := queryRows(ctx, s.db, queryDemo, func(rows *sql.Rows) error {
		var d domain.CaseDemographics
		var age, wt sql.NullFloat64
		var sex sql.NullString
		if err := rows.Scan(&d.CaseID, &age, &sex, &wt); err != nil {
			return err
		}
		d.Age = nullFloat(age)
		d.Sex = sex.String
		d.Weight = nullFloat(wt)
		set.Demographics = append(set.Demographics, d)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = queryRows(ctx, s.db, queryDrug, func(rows *sql.Rows) error {
		var d domain.DrugExposure
		var name sql.NullString
		if err := rows.Scan(&d.CaseID, &name); err != nil {
			return err
		}
		d.DrugName = name.String
		set.Drugs = append(set.Drugs, d)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = queryRows(ctx, s.db, queryReac, func(rows *sql.Rows) error {
		var r domain.ReactionEvent
		var pt sql.NullString
		if err := rows.Scan(&r.CaseID, &pt); err != nil {
			return err
		}
		r.PreferredTerm = nullString(pt)
		set.Reactions = append(set.Reactions, r)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = queryRows(ctx, s.db, queryTher, func(rows *sql.Rows) error {
		var t domain.RawTherapyInterval
		var caseRef, startDt, endDt sql.NullString
		if err := rows.Scan(&t.CaseID, &caseRef, &startDt, &endDt); err != nil {
			return err
		}
		t.CaseRef = caseRef.String
		t.StartDate = startDt.String
		t.EndDate = endDt.String
		set.Therapies = append(set.Therapies, t)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = queryRows(ctx, s.db, queryIndi, func(rows *sql.Rows) error {
		var i domain.IndicationRecord
		var pt sql.NullString
		if err := rows.Scan(&i.CaseID, &pt); err != nil {
			return err
		}
		i.IndicationTerm = nullString(pt)
		set.Indications = append(set.Indications, i)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = queryRows(ctx, s.db, queryOutc, func(rows *sql.Rows) error {
		var o domain.OutcomeRecord
		var code sql.NullString
		if err := rows.Scan(&o.CaseID, &code); err != nil {
			return err
		}
		o.OutcomeCode = code.String
		set.Outcomes = append(set.Outcomes, o)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"source":      s.name,
		"counts":      set.Counts(),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Case tables loaded")
	return set, nil
}

func queryRows(ctx context.Context, db *sql.DB, query string, scan func(*sql.Rows) error) error {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("query %q: %w", query, err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("scan %q: %w", query, err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate %q: %w", query, err)
	}
	return nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullString(v sql.NullString) *string {
	if !v.Valid || v.String == "" {
		return nil
	}
	s := v.String
	return &s
}

// Package source provides the record sources a batch run can load from:
// FAERS quarterly files on disk, SQL databases holding the six case tables,
// and a circuit breaker decorator for sources behind a network.
package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pdq-signal-server/internal/domain"
	"github.com/pdq-signal-server/internal/ingest"
)

// FAERSDirSource loads one quarter of FAERS ASCII files from a directory
type FAERSDirSource struct {
	dir     string
	quarter string
	logger  *logrus.Logger
}

// NewFAERSDirSource creates a source for files such as DEMO20Q4.txt in dir
func NewFAERSDirSource(dir, quarter string, logger *logrus.Logger) *FAERSDirSource {
	return &FAERSDirSource{dir: dir, quarter: quarter, logger: logger}
}

// Name identifies the directory and quarter
func (s *FAERSDirSource) Name() string {
	return fmt.Sprintf("faers:%s/%s", s.dir, strings.ToUpper(s.quarter))
}

// Load reads the six tables concurrently
func (s *FAERSDirSource) Load(ctx context.Context) (*domain.RecordSet, error) {
	start := time.Now()

	paths := make(map[ingest.Table]string, len(ingest.Tables))
	for _, t := range ingest.Tables {
		p, err := s.locate(t)
		if err != nil {
			return nil, err
		}
		paths[t] = p
	}

	// each goroutine writes a distinct field of its own set
	parts := make([]domain.RecordSet, len(ingest.Tables))
	g, ctx := errgroup.WithContext(ctx)
	for i, t := range ingest.Tables {
		i, t := i, t
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := ingest.Open(paths[t])
			if err != nil {
				return err
			}
			defer r.Close()
			return ingest.ReadInto(&parts[i], t, r)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("loading %s: %w", s.Name(), err)
	}

	set := &domain.RecordSet{
		Demographics: parts[0].Demographics,
		Drugs:        parts[1].Drugs,
		Reactions:    parts[2].Reactions,
		Therapies:    parts[3].Therapies,
		Indications:  parts[4].Indications,
		Outcomes:     parts[5].Outcomes,
	}

	s.logger.WithFields(logrus.Fields{
		"source":      s.Name(),
		"counts":      set.Counts(),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("FAERS quarter loaded")
	return set, nil
}

// locate finds the file for t, accepting any letter case in the file name
func (s *FAERSDirSource) locate(t ingest.Table) (string, error) {
	want := t.FileName(s.quarter)
	exact := filepath.Join(s.dir, want)
	if _, err := os.Stat(exact); err == nil {
		return exact, nil
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return "", fmt.Errorf("reading FAERS directory: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(e.Name(), want) {
			return filepath.Join(s.dir, e.Name()), nil
		}
	}
	return "", fmt.Errorf("%s not found in %s: %w", want, s.dir, domain.ErrMissingTable)
}

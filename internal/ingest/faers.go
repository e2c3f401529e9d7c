// Package ingest reads FAERS quarterly ASCII extracts. Each table is a
// '$'-delimited, Latin-1 encoded text file with a header row, for example
// DEMO20Q4.txt or REAC20Q4.txt.
package ingest

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// Table identifies one FAERS table
type Table string

const (
	TableDemo Table = "DEMO"
	TableDrug Table = "DRUG"
	TableReac Table = "REAC"
	TableTher Table = "THER"
	TableIndi Table = "INDI"
	TableOutc Table = "OUTC"
)

// Tables lists every table a complete quarter provides
var Tables = []Table{TableDemo, TableDrug, TableReac, TableTher, TableIndi, TableOutc}

// FileName returns the conventional file name of the table for a quarter tag
// such as "20Q4".
func (t Table) FileName(quarter string) string {
	return fmt.Sprintf("%s%s.txt", t, strings.ToUpper(quarter))
}

// Columns every table must provide
var requiredColumns = map[Table][]string{
	TableDemo: {"primaryid", "age", "sex", "wt"},
	TableDrug: {"primaryid", "drugname"},
	TableReac: {"primaryid", "pt"},
	TableTher: {"primaryid", "caseid", "start_dt", "end_dt"},
	TableIndi: {"primaryid", "indi_pt"},
	TableOutc: {"primaryid", "outc_cod"},
}

// MissingColumnError reports a required column absent from a header row
type MissingColumnError struct {
	Name   string
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("%s: missing required column %q", e.Name, e.Column)
}

// Reader streams rows of one FAERS table. Columns are looked up by their
// lowercase header name.
type Reader struct {
	name   string
	closer io.Closer
	csv    *csv.Reader
	colIdx map[string]int
	rowNum int64
}

// Open opens a FAERS table file
func Open(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	r, err := NewReader(path, file)
	if err != nil {
		file.Close()
		return nil, err
	}
	r.closer = file
	return r, nil
}

// NewReader reads the header row from src. name is used in error messages.
func NewReader(name string, src io.Reader) (*Reader, error) {
	bufReader := bufio.NewReaderSize(charmap.ISO8859_1.NewDecoder().Reader(src), 256*1024)

	// Skip a UTF-8 BOM that survived a re-save; after Latin-1 decoding it
	// arrives as the three runes ï » ¿
	if bom, err := bufReader.Peek(6); err == nil && string(bom) == "ï»¿" {
		bufReader.Discard(6)
	}

	reader := csv.NewReader(bufReader)
	reader.Comma = '$'
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	r := &Reader{
		name:   name,
		csv:    reader,
		colIdx: make(map[string]int),
	}

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%s: empty file", name)
		}
		return nil, fmt.Errorf("%s: read header: %w", name, err)
	}
	r.rowNum++
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		if _, dup := r.colIdx[h]; !dup {
			r.colIdx[h] = i
		}
	}
	return r, nil
}

// Require checks that every column is present in the header
func (r *Reader) Require(columns ...string) error {
	for _, c := range columns {
		if !r.HasColumn(c) {
			return &MissingColumnError{Name: r.name, Column: c}
		}
	}
	return nil
}

// HasColumn reports whether the header names the column
func (r *Reader) HasColumn(col string) bool {
	_, ok := r.colIdx[strings.ToLower(col)]
	return ok
}

// Next returns the next data row, skipping blank lines. It returns io.EOF at
// the end of the file.
func (r *Reader) Next() (Row, error) {
	for {
		rec, err := r.csv.Read()
		if err != nil {
			if err == io.EOF {
				return Row{}, io.EOF
			}
			return Row{}, fmt.Errorf("%s: row %d: %w", r.name, r.rowNum+1, err)
		}
		r.rowNum++

		if len(rec) == 0 || (len(rec) == 1 && strings.TrimSpace(rec[0]) == "") {
			continue
		}
		return Row{fields: rec, colIdx: r.colIdx}, nil
	}
}

// RowNum returns the number of lines read so far, header included
func (r *Reader) RowNum() int64 {
	return r.rowNum
}

// Name returns the name given at construction
func (r *Reader) Name() string {
	return r.name
}

// Close releases the underlying file, if any
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// Row is one data row with header-indexed accessors
type Row struct {
	fields []string
	colIdx map[string]int
}

// Value returns the trimmed text of a column, or "" when absent
func (r Row) Value(col string) string {
	if i, ok := r.colIdx[col]; ok && i < len(r.fields) {
		return strings.TrimSpace(r.fields[i])
	}
	return ""
}

// Opt returns the trimmed text of a column, or nil when empty or absent
func (r Row) Opt(col string) *string {
	s := r.Value(col)
	if s == "" {
		return nil
	}
	return &s
}

// Float returns the numeric value of a column, or nil when the column is
// empty, absent or not a finite number
func (r Row) Float(col string) *float64 {
	s := r.Value(col)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

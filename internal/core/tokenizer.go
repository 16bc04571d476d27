package core

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// RawRow is one data record keyed by its header.
type RawRow struct {
	// Number is the 1-based position among non-blank data rows.
	Number  int
	Columns []string
	// Values maps the canonical header key to the raw cell.
	Values map[string]string
	cells  []string
}

// Get returns the cell under header name, matched by canonical key.
func (r RawRow) Get(name string) string {
	return r.Values[canonicalKey(name)]
}

// Original returns the cells in source order.
func (r RawRow) Original() []string {
	out := make([]string, len(r.cells))
	copy(out, r.cells)
	return out
}

// Tokenizer reads a header and then lazily yields data rows.
// It is single-pass; tokenizing again requires a new Tokenizer.
type Tokenizer struct {
	src    *sourceReader
	csv    *csv.Reader
	header []string
	keys   []string
	rows   int
	done   bool
}

// NewTokenizer wraps r. Nothing is read until Header or Next is called.
func NewTokenizer(r io.Reader) *Tokenizer {
	src := newSourceReader(r)
	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return &Tokenizer{src: src, csv: cr}
}

// Header returns the trimmed header cells, reading them on first use.
// It returns an error wrapping ErrEmptyInput if the source has no records.
func (t *Tokenizer) Header() ([]string, error) {
	if t.header != nil {
		return t.header, nil
	}

	rec, err := t.readRecord()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: no header row found", ErrEmptyInput)
	}
	if err != nil {
		return nil, err
	}

	t.header = make([]string, len(rec))
	t.keys = make([]string, len(rec))
	for i, cell := range rec {
		t.header[i] = strings.TrimSpace(cell)
		t.keys[i] = canonicalKey(t.header[i])
	}
	return t.header, nil
}

// Next returns the next data row, or io.EOF once the source is exhausted.
// A row whose field count differs from the header is returned as a
// *RowError; the caller may keep reading after it.
func (t *Tokenizer) Next() (RawRow, error) {
	if _, err := t.Header(); err != nil {
		return RawRow{}, err
	}
	if t.done {
		return RawRow{}, io.EOF
	}

	rec, err := t.readRecord()
	if err == io.EOF {
		t.done = true
		return RawRow{}, io.EOF
	}
	if err != nil {
		return RawRow{}, err
	}

	t.rows++
	if len(rec) != len(t.header) {
		return RawRow{Number: t.rows, Columns: t.header, cells: rec},
			newRowError(t.rows, "expected %d fields, got %d", len(t.header), len(rec))
	}

	values := make(map[string]string, len(rec))
	for i, cell := range rec {
		key := t.keys[i]
		if _, dup := values[key]; dup {
			continue
		}
		values[key] = cell
	}
	return RawRow{Number: t.rows, Columns: t.header, Values: values, cells: rec}, nil
}

// readRecord returns the next non-blank record.
func (t *Tokenizer) readRecord() ([]string, error) {
	for {
		rec, err := t.csv.Read()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return nil, fmt.Errorf("%w: %v", ErrMalformedInput, perr)
			}
			return nil, fmt.Errorf("read source: %w", err)
		}
		if isBlankRecord(rec) {
			continue
		}
		return rec, nil
	}
}

// isBlankRecord reports an empty or whitespace-only line. A line of bare
// delimiters is a row of empty cells and is kept.
func isBlankRecord(rec []string) bool {
	return len(rec) == 1 && strings.TrimSpace(rec[0]) == ""
}

// TokenizedRow pairs a row with the tokenizer error attributed to it.
type TokenizedRow struct {
	Row RawRow
	Err *RowError
}

// ReadAll drains t, keeping row-level errors in row order.
// Fatal errors abort and are returned as-is.
func ReadAll(t *Tokenizer) ([]TokenizedRow, error) {
	var out []TokenizedRow
	for {
		row, err := t.Next()
		if err == io.EOF {
			return out, nil
		}
		var rowErr *RowError
		if errors.As(err, &rowErr) {
			out = append(out, TokenizedRow{Row: row, Err: rowErr})
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, TokenizedRow{Row: row})
	}
}

// Tokenize reads all of r, returning the well-formed rows and the row-level
// errors separately.
func Tokenize(r io.Reader) ([]RawRow, []RowError, error) {
	items, err := ReadAll(NewTokenizer(r))
	if err != nil {
		return nil, nil, err
	}

	var rows []RawRow
	var errs []RowError
	for _, item := range items {
		if item.Err != nil {
			errs = append(errs, *item.Err)
			continue
		}
		rows = append(rows, item.Row)
	}
	return rows, errs, nil
}

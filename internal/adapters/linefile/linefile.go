// Package linefile produces raw lines from extracted statement text and
// ledger exports on disk.
//
// Text files are read line by line; a form feed starts a new page and line
// numbers restart at 1 on every page. CSV files need a header row and are
// flattened into the same "date description amount balance" shape a
// statement line has, with the debit/credit column reported as position.
package linefile

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/eshaffer321/ledger-recon/internal/domain/normalizer"
	"github.com/eshaffer321/ledger-recon/internal/domain/txn"
)

// ErrNoDateColumn is returned for a CSV export without a recognizable date column
var ErrNoDateColumn = errors.New("csv has no date column")

// maxLineBytes bounds a single extracted line
const maxLineBytes = 1 << 20

// Options controls how files become raw lines
type Options struct {
	// SourceID labels every line. Defaults to the file name without extension.
	SourceID string

	// YearHint is attached to every line for year-less dates.
	YearHint int
}

// ReadFile reads one file, choosing the CSV reader for .csv files
func ReadFile(path string, opts Options) ([]normalizer.RawLine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	if opts.SourceID == "" {
		opts.SourceID = SourceID(path)
	}

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return ReadCSV(f, opts)
	}
	return ReadText(f, opts)
}

// ReadFiles reads several files in order. Each file gets its own source ID
// unless opts.SourceID is set.
func ReadFiles(paths []string, opts Options) ([]normalizer.RawLine, error) {
	var out []normalizer.RawLine
	for _, p := range paths {
		lines, err := ReadFile(p, opts)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		out = append(out, lines...)
	}
	return out, nil
}

// SourceID derives a source ID from a path: the base name without extension
func SourceID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ReadText reads extracted statement text. Blank lines are skipped but
// still counted.
func ReadText(r io.Reader, opts Options) ([]normalizer.RawLine, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var out []normalizer.RawLine
	page, line := 1, 0
	for scanner.Scan() {
		parts := strings.Split(scanner.Text(), "\f")
		for i, part := range parts {
			if i > 0 {
				page++
				line = 0
			}
			line++
			text := strings.TrimRight(part, "\r")
			if strings.TrimSpace(text) == "" {
				continue
			}
			out = append(out, normalizer.RawLine{
				Text:     text,
				SourceID: opts.SourceID,
				Page:     page,
				Line:     line,
				YearHint: opts.YearHint,
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// column names recognized in CSV headers, lower-cased
var (
	dateColumns        = []string{"date", "posted", "posting date", "transaction date", "txn date"}
	descriptionColumns = []string{"description", "memo", "payee", "details", "narrative", "name"}
	amountColumns      = []string{"amount", "value"}
	debitColumns       = []string{"debit", "withdrawal", "withdrawals", "money out", "paid out"}
	creditColumns      = []string{"credit", "deposit", "deposits", "money in", "paid in"}
	balanceColumns     = []string{"balance", "running balance"}
	referenceColumns   = []string{"reference", "ref", "cheque", "check", "cheque number", "check number"}
)

type csvLayout struct {
	date, description, amount, debit, credit, balance, reference int
}

func findColumn(header map[string]int, names []string) int {
	for _, n := range names {
		if i, ok := header[n]; ok {
			return i
		}
	}
	return -1
}

func layoutFor(headers []string) (csvLayout, error) {
	header := make(map[string]int, len(headers))
	for i, h := range headers {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, seen := header[key]; !seen {
			header[key] = i
		}
	}
	l := csvLayout{
		date:        findColumn(header, dateColumns),
		description: findColumn(header, descriptionColumns),
		amount:      findColumn(header, amountColumns),
		debit:       findColumn(header, debitColumns),
		credit:      findColumn(header, creditColumns),
		balance:     findColumn(header, balanceColumns),
		reference:   findColumn(header, referenceColumns),
	}
	if l.date < 0 {
		return l, fmt.Errorf("%w: headers %v", ErrNoDateColumn, headers)
	}
	return l, nil
}

// ReadCSV reads a ledger or bank export. Line numbers are CSV row numbers
// with the header as row 1.
func ReadCSV(r io.Reader, opts Options) ([]normalizer.RawLine, error) {
	reader := csv.NewReader(bufio.NewReader(r))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("error reading CSV headers: %w", err)
	}
	layout, err := layoutFor(headers)
	if err != nil {
		return nil, err
	}

	var out []normalizer.RawLine
	row := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			return nil, fmt.Errorf("error reading row %d: %w", row, err)
		}

		text, position := layout.flatten(record)
		if strings.TrimSpace(text) == "" {
			continue
		}
		out = append(out, normalizer.RawLine{
			Text:     text,
			SourceID: opts.SourceID,
			Page:     1,
			Line:     row,
			YearHint: opts.YearHint,
			Position: position,
		})
	}
	return out, nil
}

func (l csvLayout) flatten(record []string) (string, txn.Direction) {
	field := func(i int) string {
		if i < 0 || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var parts []string
	add := func(s string) {
		if s != "" {
			parts = append(parts, s)
		}
	}

	add(field(l.date))
	if ref := field(l.reference); ref != "" {
		add("ref " + ref)
	}
	add(field(l.description))

	var position txn.Direction
	switch debit, credit := field(l.debit), field(l.credit); {
	case debit != "" && !isZero(debit):
		add(debit)
		position = txn.Debit
	case credit != "" && !isZero(credit):
		add(credit)
		position = txn.Credit
	default:
		add(field(l.amount))
	}
	add(field(l.balance))

	return strings.Join(parts, "  "), position
}

func isZero(s string) bool {
	return strings.Trim(s, "0.,-$ ") == ""
}

// Package normalizer turns raw text lines from any producer (OCR/PDF text,
// legacy database exports, registry dumps) into txn.Transaction records.
//
// Normalization is a pure function of the line, the caller-supplied year hint
// and the configured pattern tables. A line that cannot become a transaction
// is returned as a *Rejection; nothing is dropped silently.
//
// Example usage:
//
//	n := normalizer.New(normalizer.DefaultConfig())
//	batch := n.NormalizeAll(lines)
//	for _, r := range batch.Rejected {
//		log.Println(r.Error())
//	}
package normalizer

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/eshaffer321/ledger-recon/internal/domain/txn"
	"github.com/shopspring/decimal"
)

// RawLine is one line as handed over by a producer.
type RawLine struct {
	Text     string
	SourceID string
	Page     int
	Line     int

	// YearHint overrides Config.YearHint for this line when non-zero.
	YearHint int

	// SegmentID, when set, pins the line to a segment instead of letting
	// segment markers decide.
	SegmentID string

	// Position is the direction implied by the column the producer found the
	// amount in. Empty when the producer has no column information.
	Position txn.Direction
}

// Normalizer applies a Config to raw lines.
type Normalizer struct {
	config Config
}

// New creates a normalizer with the given config
func New(config Config) *Normalizer {
	if !config.DefaultDirection.Valid() {
		config.DefaultDirection = txn.Debit
	}
	return &Normalizer{config: config}
}

// Batch is the outcome of normalizing a finite set of lines.
type Batch struct {
	Records  []txn.Transaction
	Rejected []Rejection

	// OpeningBalances maps segment IDs to balances announced by segment
	// marker lines ("Opening balance 1,000.00").
	OpeningBalances map[string]decimal.Decimal

	Markers int
	Skipped int
}

// NormalizeAll normalizes lines in order, assigning segment IDs per source.
// A segment marker line starts a new segment for its source once the current
// segment holds at least one record.
func (n *Normalizer) NormalizeAll(lines []RawLine) Batch {
	batch := Batch{OpeningBalances: make(map[string]decimal.Decimal)}

	segment := make(map[string]int)
	filled := make(map[string]bool)

	for _, line := range lines {
		if n.matchesAny(n.config.SkipPatterns, line.Text) {
			batch.Skipped++
			continue
		}

		if line.SegmentID == "" && n.matchesAny(n.config.SegmentMarkers, line.Text) {
			batch.Markers++
			if segment[line.SourceID] == 0 || filled[line.SourceID] {
				segment[line.SourceID]++
				filled[line.SourceID] = false
			}
			id := segmentID(line.SourceID, segment[line.SourceID])
			if bal, ok := n.markerBalance(line); ok {
				batch.OpeningBalances[id] = bal
			}
			continue
		}

		rec, err := n.Normalize(line)
		if err != nil {
			var rej *Rejection
			if errors.As(err, &rej) {
				batch.Rejected = append(batch.Rejected, *rej)
			} else {
				batch.Rejected = append(batch.Rejected, Rejection{Line: line, Reason: err})
			}
			continue
		}

		if line.SegmentID == "" {
			if segment[line.SourceID] == 0 {
				segment[line.SourceID] = 1
			}
			rec.SegmentID = segmentID(line.SourceID, segment[line.SourceID])
			filled[line.SourceID] = true
		}
		batch.Records = append(batch.Records, rec)
	}

	return batch
}

func segmentID(source string, n int) string {
	return fmt.Sprintf("%s#%d", source, n)
}

// Normalize converts one line. The returned error is always a *Rejection.
func (n *Normalizer) Normalize(line RawLine) (txn.Transaction, error) {
	text := strings.TrimSpace(line.Text)
	if text == "" {
		return txn.Transaction{}, reject(line, ErrEmptyLine, "")
	}

	clean := n.stripNoise(text)

	yearHint := line.YearHint
	if yearHint == 0 {
		yearHint = n.config.YearHint
	}
	date, ok, missingYear := parseDate(clean, yearHint)
	if !ok {
		detail := "no date pattern matched"
		if missingYear {
			detail = "year-less date and no year hint"
		}
		return txn.Transaction{}, reject(line, ErrDateUnparseable, detail)
	}
	rest := blank(clean, date.span)

	ref, refSpan := firstCapture(n.config.ReferencePatterns, rest)
	key, keySpan := firstCapture(n.config.BusinessKeyPatterns, rest)

	numeric := blank(blank(rest, refSpan), keySpan)
	amount, balance, pool, err := pickAmounts(findMoney(numeric), n.config.AmountCeiling)
	if err != nil {
		return txn.Transaction{}, reject(line, err, "")
	}

	descText := rest
	for _, c := range pool {
		descText = blank(descText, c.span)
	}
	description := foldDescription(descText)

	rec := txn.Transaction{
		ID:           recordID(line),
		OccurredOn:   date.date,
		Magnitude:    amount.value,
		Description:  description,
		SourceID:     line.SourceID,
		SegmentID:    line.SegmentID,
		ExtractedRef: strings.ToUpper(ref),
		BusinessKey:  strings.ToUpper(key),
		Page:         line.Page,
		Line:         line.Line,
		Raw:          line.Text,
	}
	if balance != nil {
		rec.RunningBalance = decimal.NewNullDecimal(signedBalance(*balance))
	}
	rec.Direction, rec.DirectionSource = n.direction(description, amount, line.Position)

	return rec, nil
}

// direction resolves sign semantics: keyword vote first, then the
// producer's column position, then the token's own sign, then the default.
func (n *Normalizer) direction(description string, amount moneyCandidate, position txn.Direction) (txn.Direction, txn.DirectionSource) {
	padded := " " + description + " "
	credit := countKeywords(padded, n.config.CreditKeywords)
	debit := countKeywords(padded, n.config.DebitKeywords)
	switch amount.suffix {
	case txn.Credit:
		credit++
	case txn.Debit:
		debit++
	}

	switch {
	case credit > debit:
		return txn.Credit, txn.FromKeyword
	case debit > credit:
		return txn.Debit, txn.FromKeyword
	case position.Valid():
		return position, txn.FromPosition
	case amount.negative:
		return txn.Debit, txn.FromSign
	}
	return n.config.DefaultDirection, txn.FromDefault
}

// countKeywords scores the keywords found in padded. A phrase counts once
// per word, so "deposit chq" outvotes the single debit word inside it.
func countKeywords(padded string, keywords []string) int {
	count := 0
	for _, kw := range keywords {
		kw = foldDescription(kw)
		if kw == "" {
			continue
		}
		if strings.Contains(padded, " "+kw+" ") {
			count += len(strings.Fields(kw))
		}
	}
	return count
}

func (n *Normalizer) stripNoise(text string) string {
	for _, re := range n.config.NoisePatterns {
		text = re.ReplaceAllString(text, " ")
	}
	return text
}

func (n *Normalizer) matchesAny(patterns []*regexp.Regexp, text string) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// markerBalance reads the largest money token on a segment marker line.
func (n *Normalizer) markerBalance(line RawLine) (decimal.Decimal, bool) {
	clean := n.stripNoise(line.Text)
	yearHint := line.YearHint
	if yearHint == 0 {
		yearHint = n.config.YearHint
	}
	if d, ok, _ := parseDate(clean, yearHint); ok {
		clean = blank(clean, d.span)
	}
	var best *moneyCandidate
	for _, c := range findMoney(clean) {
		if best == nil || c.value.GreaterThan(best.value) {
			best = &c
		}
	}
	if best == nil {
		return decimal.Decimal{}, false
	}
	return signedBalance(*best), true
}

func recordID(line RawLine) string {
	return fmt.Sprintf("%s:%d:%d", line.SourceID, line.Page, line.Line)
}

// firstCapture returns the first capture group of the first matching pattern
// and the span of that group.
func firstCapture(patterns []*regexp.Regexp, text string) (string, []int) {
	for _, re := range patterns {
		m := re.FindStringSubmatchIndex(text)
		if len(m) >= 4 && m[2] >= 0 {
			return text[m[2]:m[3]], []int{m[2], m[3]}
		}
	}
	return "", nil
}

// blank overwrites a byte span with spaces so later offsets stay valid.
func blank(text string, span []int) string {
	if len(span) != 2 || span[0] < 0 || span[1] > len(text) || span[0] >= span[1] {
		return text
	}
	return text[:span[0]] + strings.Repeat(" ", span[1]-span[0]) + text[span[1]:]
}

// foldDescription case-folds and collapses everything that is not a letter
// or digit into single spaces.
func foldDescription(text string) string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(fields, " ")
}

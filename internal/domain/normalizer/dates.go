package normalizer

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/eshaffer321/ledger-recon/internal/domain/txn"
)

const monthAlt = `(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\.?`

type dateLayout int

const (
	layoutISO         dateLayout = iota // YYYY-MM-DD
	layoutUS                            // MM/DD/YYYY
	layoutDayMonDash                    // DD-Mon-YYYY
	layoutDayMonSpace                   // DD Mon YYYY
	layoutMonDayYear                    // Mon DD, YYYY
	layoutMonDay                        // Mon DD (needs hint)
	layoutUSShort                       // MM/DD (needs hint)
)

type datePattern struct {
	layout   dateLayout
	re       *regexp.Regexp
	needYear bool
}

// Order matters: fully-specified formats win over year-less ones.
var datePatterns = []datePattern{
	{layoutISO, regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`), false},
	{layoutUS, regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4}|\d{2})\b`), false},
	{layoutDayMonDash, regexp.MustCompile(`(?i)\b(\d{1,2})-` + monthAlt + `-(\d{4}|\d{2})\b`), false},
	{layoutDayMonSpace, regexp.MustCompile(`(?i)\b(\d{1,2})\s+` + monthAlt + `\s+(\d{4})\b`), false},
	{layoutMonDayYear, regexp.MustCompile(`(?i)\b` + monthAlt + `\s+(\d{1,2}),?\s+(\d{4})\b`), false},
	{layoutMonDay, regexp.MustCompile(`(?i)\b` + monthAlt + `\s+(\d{1,2})(?:st|nd|rd|th)?\b`), true},
	{layoutUSShort, regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})\b`), true},
}

// dateResult is a parsed date plus the byte span it occupied in the line.
type dateResult struct {
	date time.Time
	span []int
}

// parseDate finds the first resolvable date in text. missingYear is true when
// only year-less formats matched and no hint was available.
func parseDate(text string, yearHint int) (res dateResult, ok bool, missingYear bool) {
	for _, p := range datePatterns {
		for _, m := range p.re.FindAllStringSubmatchIndex(text, -1) {
			if p.needYear && yearHint == 0 {
				missingYear = true
				continue
			}
			groups := submatches(text, m)
			d, valid := p.resolve(groups, yearHint)
			if !valid {
				continue
			}
			return dateResult{date: d, span: []int{m[0], m[1]}}, true, false
		}
	}
	return dateResult{}, false, missingYear
}

func submatches(text string, m []int) []string {
	out := make([]string, 0, len(m)/2)
	for i := 2; i+1 < len(m); i += 2 {
		if m[i] < 0 {
			out = append(out, "")
			continue
		}
		out = append(out, text[m[i]:m[i+1]])
	}
	return out
}

func (p datePattern) resolve(g []string, yearHint int) (time.Time, bool) {
	var year, month, day int
	switch p.layout {
	case layoutISO:
		year, month, day = atoi(g[0]), atoi(g[1]), atoi(g[2])
	case layoutUS:
		month, day, year = atoi(g[0]), atoi(g[1]), expandYear(g[2])
	case layoutDayMonDash, layoutDayMonSpace:
		day, month, year = atoi(g[0]), monthNumber(g[1]), expandYear(g[2])
	case layoutMonDayYear:
		month, day, year = monthNumber(g[0]), atoi(g[1]), atoi(g[2])
	case layoutMonDay:
		month, day, year = monthNumber(g[0]), atoi(g[1]), yearHint
	case layoutUSShort:
		month, day, year = atoi(g[0]), atoi(g[1]), yearHint
	}
	return calendarDate(year, month, day)
}

// calendarDate rejects dates that time.Date would silently roll over.
func calendarDate(year, month, day int) (time.Time, bool) {
	if year < 1900 || year > 2200 || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	d := txn.Date(year, time.Month(month), day)
	if d.Day() != day || int(d.Month()) != month {
		return time.Time{}, false
	}
	return d, true
}

func expandYear(s string) int {
	y := atoi(s)
	if len(s) == 2 {
		return 2000 + y
	}
	return y
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}

func monthNumber(s string) int {
	s = strings.ToLower(strings.TrimSuffix(s, "."))
	if len(s) < 3 {
		return -1
	}
	switch s[:3] {
	case "jan":
		return 1
	case "feb":
		return 2
	case "mar":
		return 3
	case "apr":
		return 4
	case "may":
		return 5
	case "jun":
		return 6
	case "jul":
		return 7
	case "aug":
		return 8
	case "sep":
		return 9
	case "oct":
		return 10
	case "nov":
		return 11
	case "dec":
		return 12
	}
	return -1
}

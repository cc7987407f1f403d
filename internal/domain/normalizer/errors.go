package normalizer

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyLine          = errors.New("empty line")
	ErrDateUnparseable    = errors.New("date unparseable")
	ErrNoAmount           = errors.New("no numeric token")
	ErrAmountAboveCeiling = errors.New("amount above sanity ceiling")
)

// Rejection is a line that could not become a transaction.
type Rejection struct {
	Line   RawLine
	Reason error
	Detail string
}

func reject(line RawLine, reason error, detail string) *Rejection {
	return &Rejection{Line: line, Reason: reason, Detail: detail}
}

func (r *Rejection) Error() string {
	loc := fmt.Sprintf("%s:%d:%d", r.Line.SourceID, r.Line.Page, r.Line.Line)
	if r.Detail != "" {
		return fmt.Sprintf("%s: %v (%s): %q", loc, r.Reason, r.Detail, r.Line.Text)
	}
	return fmt.Sprintf("%s: %v: %q", loc, r.Reason, r.Line.Text)
}

func (r *Rejection) Unwrap() error {
	return r.Reason
}

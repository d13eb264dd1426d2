package ingest

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSchema matches any *SchemaError.
	ErrSchema = errors.New("schema error")
	// ErrValidation matches any *ValidationError.
	ErrValidation = errors.New("validation error")
)

// SchemaError reports a table that cannot be mapped onto a record type.
type SchemaError struct {
	Source  string
	Missing []string
	Reason  string
}

func (e *SchemaError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("%s: %s: missing required column(s): %s",
			ErrSchema, e.Source, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("%s: %s: %s", ErrSchema, e.Source, e.Reason)
}

func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// Issue is one rejected cell. Row is the 1-based line in the source with the
// header on line 1.
type Issue struct {
	Row    int    `json:"row"`
	Column string `json:"column"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

func (i Issue) String() string {
	return fmt.Sprintf("row %d %s %q: %s", i.Row, i.Column, i.Value, i.Reason)
}

// ValidationError rejects a whole batch. Every offending cell is listed.
type ValidationError struct {
	Source string
	Issues []Issue
}

const maxIssuesInMessage = 5

func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s: %d issue(s)", ErrValidation, e.Source, len(e.Issues))
	for i, issue := range e.Issues {
		if i == maxIssuesInMessage {
			fmt.Fprintf(&b, "; and %d more", len(e.Issues)-maxIssuesInMessage)
			break
		}
		b.WriteString("; ")
		b.WriteString(issue.String())
	}
	return b.String()
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

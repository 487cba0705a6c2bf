package kb

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingResource indicates a knowledge resource that could not be found
	ErrMissingResource = errors.New("knowledge resource missing")

	// ErrParse indicates a knowledge resource that could not be decoded
	ErrParse = errors.New("knowledge resource unreadable")
)

// IssueKind classifies a loader problem
type IssueKind string

const (
	IssueMissing IssueKind = "missing"
	IssueParse   IssueKind = "parse"
	IssueSkipped IssueKind = "skipped"
)

// Issue is one degraded resource or skipped record
type Issue struct {
	Resource string
	Kind     IssueKind
	Err      error
}

func (i Issue) String() string {
	return fmt.Sprintf("[%s] %s: %v", i.Kind, i.Resource, i.Err)
}

// Report summarizes what the loader found
type Report struct {
	Issues          []Issue
	RedFlagRules    int
	RedFlagKeywords int
	ProtocolBytes   int
	Documents       []string
	ContextChars    int
	Truncated       bool
	Facilities      int
	Cities          []string
}

// OK reports whether every resource loaded cleanly
func (r *Report) OK() bool {
	return len(r.Issues) == 0
}

// Has reports whether an issue of the given kind was recorded
func (r *Report) Has(kind IssueKind) bool {
	for _, issue := range r.Issues {
		if issue.Kind == kind {
			return true
		}
	}
	return false
}

// String renders a short multi-line summary
func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "red flags:  %d rules, %d keywords\n", r.RedFlagRules, r.RedFlagKeywords)
	fmt.Fprintf(&b, "protocol:   %d bytes\n", r.ProtocolBytes)
	fmt.Fprintf(&b, "clinical:   %d documents, %d chars", len(r.Documents), r.ContextChars)
	if r.Truncated {
		b.WriteString(" (truncated)")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "facilities: %d in %d cities\n", r.Facilities, len(r.Cities))
	for _, issue := range r.Issues {
		b.WriteString("  ")
		b.WriteString(issue.String())
		b.WriteString("\n")
	}
	return b.String()
}

func (r *Report) add(resource string, kind IssueKind, err error) {
	r.Issues = append(r.Issues, Issue{Resource: resource, Kind: kind, Err: err})
}

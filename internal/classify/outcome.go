package classify

import (
	"fmt"
	"strings"
)

// Reason is the outcome category of one parts-list row.
type Reason int

const (
	Classified Reason = iota
	SkipEmptyPart
	SkipUnmatchedMaterial
	SkipNoFile
	FailCopy
)

func (r Reason) String() string {
	switch r {
	case Classified:
		return "classified"
	case SkipEmptyPart:
		return "empty_part"
	case SkipUnmatchedMaterial:
		return "unmatched_material"
	case SkipNoFile:
		return "no_file"
	case FailCopy:
		return "copy_failed"
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// Skipped reports whether r is one of the skip categories.
func (r Reason) Skipped() bool {
	return r == SkipEmptyPart || r == SkipUnmatchedMaterial || r == SkipNoFile
}

// MaterialSource tells where a row's material bucket came from.
type MaterialSource string

const (
	SourcePrimary   MaterialSource = "primary"
	SourceBackup    MaterialSource = "backup"
	SourceSuggested MaterialSource = "suggested"
	SourceDefault   MaterialSource = "default"
)

// Outcome is the result of one row.
type Outcome struct {
	Line      int
	Part      string
	Reason    Reason
	Material  string
	Thickness string
	Source    MaterialSource
	// Files are the written destination paths.
	Files     []string
	Converted int
	Err       error
}

// Result aggregates a classification pass.
type Result struct {
	Rows        int
	Classified  int
	FilesPlaced int
	Converted   int
	Skips       map[Reason]int
	Failures    int
	Canceled    bool
	Outcomes    []Outcome
	Lines       []string
}

func (r *Result) record(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch {
	case o.Reason == Classified:
		r.Classified++
		r.FilesPlaced += len(o.Files)
	case o.Reason == FailCopy:
		r.Failures++
		r.FilesPlaced += len(o.Files)
	case o.Reason.Skipped():
		r.Skips[o.Reason]++
	}
}

// Skipped returns the total number of skipped rows.
func (r Result) Skipped() int {
	n := 0
	for _, c := range r.Skips {
		n += c
	}
	return n
}

// FormatSummary renders a one-paragraph summary of a classification pass.
func FormatSummary(r Result) string {
	if r.Rows == 0 {
		return "Parts list has no data rows."
	}
	msg := fmt.Sprintf("Classified %d of %d rows, %d files placed", r.Classified, r.Rows, r.FilesPlaced)
	if r.Converted > 0 {
		msg += fmt.Sprintf(" (%d converted)", r.Converted)
	}

	var reasons []string
	for _, reason := range []Reason{SkipEmptyPart, SkipUnmatchedMaterial, SkipNoFile} {
		if n := r.Skips[reason]; n > 0 {
			reasons = append(reasons, fmt.Sprintf("%d %s", n, strings.ReplaceAll(reason.String(), "_", " ")))
		}
	}
	if len(reasons) > 0 {
		msg += fmt.Sprintf("; skipped %s", strings.Join(reasons, ", "))
	}
	if r.Failures > 0 {
		msg += fmt.Sprintf("; %d failed", r.Failures)
	}
	if r.Canceled {
		msg += "; canceled"
	}
	return msg + "."
}

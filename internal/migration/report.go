package migration

import (
	"fmt"
	"time"
)

// RecordError is one record that could not be imported. The pipeline keeps
// going; hard failures never abort the batch.
type RecordError struct {
	Entity   string `json:"entity"`
	LegacyID string `json:"legacyId"`
	Reason   string `json:"reason"`
}

// Report is the outcome of one migration run, presented to the operator
// after the fact; migration failures are a post-run report, never
// interactive prompts.
type Report struct {
	Success   bool             `json:"success"`
	DryRun    bool             `json:"dryRun"`
	Exported  map[string]int   `json:"exported"`
	Imported  map[string]int   `json:"imported"`
	Verified  map[string]int64 `json:"verified"`
	Errors    []RecordError    `json:"errors"`
	Warnings  []string         `json:"warnings"`
	StartedAt time.Time        `json:"startedAt"`
	Duration  time.Duration    `json:"duration"`

	// Mapping is the legacy-to-new id mapping built during the run. It is
	// kept on the report for post-run inspection, not serialized.
	Mapping *IDMapping `json:"-"`
}

func newReport(dryRun bool) *Report {
	return &Report{
		DryRun:    dryRun,
		Exported:  make(map[string]int),
		Imported:  make(map[string]int),
		Verified:  make(map[string]int64),
		StartedAt: time.Now().UTC(),
	}
}

func (r *Report) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *Report) fail(entity, legacyID string, err error) {
	r.Errors = append(r.Errors, RecordError{Entity: entity, LegacyID: legacyID, Reason: err.Error()})
}

func (r *Report) finish() {
	r.Success = len(r.Errors) == 0
	r.Duration = time.Since(r.StartedAt)
}

package testutil

import "dupe-go/internal/dupe"

// RecordingReporter remembers every progress call.
type RecordingReporter struct {
	Started  []string
	Advanced []string
	Finished int
}

func (r *RecordingReporter) Start(label string, total int) { r.Started = append(r.Started, label) }
func (r *RecordingReporter) Advance(path string)           { r.Advanced = append(r.Advanced, path) }
func (r *RecordingReporter) Finish()                       { r.Finished++ }

var _ dupe.Reporter = (*RecordingReporter)(nil)

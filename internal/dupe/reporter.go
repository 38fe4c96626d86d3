package dupe

// Reporter receives progress notifications from long-running operations.
// It is a side channel: nothing it does affects the operation's outcome.
type Reporter interface {
	// Start begins a phase. total is -1 when the number of items is unknown.
	Start(label string, total int)
	// Advance is called once per processed file.
	Advance(path string)
	// Finish ends the current phase.
	Finish()
}

// NopReporter ignores all progress.
type NopReporter struct{}

func (NopReporter) Start(string, int) {}
func (NopReporter) Advance(string)    {}
func (NopReporter) Finish()           {}

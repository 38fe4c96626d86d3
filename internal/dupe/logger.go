package dupe

// Logger is the structured logger the ledger, scanner and resolver write to.
// args are slog-style key/value pairs; per-file problems such as an
// unreadable source or a missing file go to Warn, run summaries to Info.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NopLogger drops everything. Constructors fall back to it when given a nil
// Logger.
type NopLogger struct{}

func NewNopLogger() *NopLogger { return &NopLogger{} }

func (*NopLogger) Debug(string, ...any) {}
func (*NopLogger) Info(string, ...any)  {}
func (*NopLogger) Warn(string, ...any)  {}
func (*NopLogger) Error(string, ...any) {}

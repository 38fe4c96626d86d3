package app

import "time"

// Operation statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Operation tracks one CLI command. Commands that change the ledger mark the
// operation as mutating, which makes Close snapshot the ledger to the vaults.
type Operation struct {
	// ID tags every log line written during the command.
	ID       string
	Name     string
	Status   string
	Started  time.Time
	Mutating bool
}

// NewOperation creates an operation that started at now.
func NewOperation(name string, now time.Time) *Operation {
	return &Operation{
		ID:      now.UTC().Format("20060102T150405Z"),
		Name:    name,
		Status:  StatusSuccess,
		Started: now,
	}
}

// MarkMutating records that the command changed the ledger.
func (op *Operation) MarkMutating() {
	op.Mutating = true
}

// Fail records that the command ended with an error.
func (op *Operation) Fail() {
	op.Status = StatusError
}

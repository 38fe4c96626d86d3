package app

import (
	"testing"
	"time"
)

func TestNewOperation(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 30, 5, 0, time.FixedZone("CET", 3600))
	op := NewOperation("Resolve", now)

	if op.ID != "20240115T093005Z" {
		t.Errorf("ID = %q, want %q", op.ID, "20240115T093005Z")
	}
	if op.Name != "Resolve" {
		t.Errorf("Name = %q, want %q", op.Name, "Resolve")
	}
	if op.Status != StatusSuccess {
		t.Errorf("Status = %q, want %q", op.Status, StatusSuccess)
	}
	if op.Mutating {
		t.Error("Mutating = true for a new operation")
	}
}

func TestOperation_Transitions(t *testing.T) {
	op := NewOperation("Scan", time.Now())

	op.MarkMutating()
	op.Fail()

	if !op.Mutating {
		t.Error("MarkMutating() did not mark the operation")
	}
	if op.Status != StatusError {
		t.Errorf("Status = %q after Fail(), want %q", op.Status, StatusError)
	}
}

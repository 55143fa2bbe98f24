// Package storage defines the local journal of dispatched commands.
package storage

import (
	"context"
	"time"
)

// Dispatch modes.
const (
	ModePlayer  = "player"
	ModeConsole = "console"
)

// Dispatch outcomes.
const (
	OutcomeExecuted = "executed"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// DispatchRecord is one command delivery handled by this process.
type DispatchRecord struct {
	ID        int64
	Target    string
	Command   string
	Sender    string
	Mode      string
	Outcome   string
	Error     string
	CreatedAt time.Time
}

// DispatchStore persists dispatch records.
type DispatchStore interface {
	RecordDispatch(ctx context.Context, record DispatchRecord) error
	ListDispatches(ctx context.Context, limit int) ([]DispatchRecord, error)
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// TxType classifies a ledger line.
type TxType string

const (
	TxCredit TxType = "CREDIT"
	TxDebit  TxType = "DEBIT"
	TxAdjust TxType = "ADJUST"
)

// TxTypeFor derives the ledger kind from the sign of delta.
func TxTypeFor(delta float64) TxType {
	switch {
	case delta > 0:
		return TxCredit
	case delta < 0:
		return TxDebit
	default:
		return TxAdjust
	}
}

// TransactionEntry is one immutable history line.
type TransactionEntry struct {
	Type        TxType  `json:"type"`
	Amount      float64 `json:"amount"`
	OtherPlayer string  `json:"otherPlayer,omitempty"`
	Timestamp   int64   `json:"timestamp,string"`
	Reason      string  `json:"reason"`
}

// Time returns the entry timestamp.
func (e TransactionEntry) Time() time.Time {
	return time.UnixMilli(e.Timestamp).UTC()
}

// Counterparty parses OtherPlayer, returning uuid.Nil when absent.
func (e TransactionEntry) Counterparty() uuid.UUID {
	id, err := uuid.Parse(e.OtherPlayer)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// BalanceUpdate is published on the updates channel after a balance change.
type BalanceUpdate struct {
	PlayerUUID      string `json:"playerUuid"`
	NewBalance      string `json:"newBalance"`
	ServerSource    string `json:"serverSource"`
	TransactionType TxType `json:"transactionType"`
}

package domain

import "github.com/shopspring/decimal"

// ============================================================
// Engine requests (matches the HTTP API contract)
// ============================================================

// AdjustmentRequest is the body for operator credit/debit.
type AdjustmentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

// InternalTransferRequest moves money between two accounts of one profile.
type InternalTransferRequest struct {
	FromAccountID string          `json:"fromAccountId"`
	ToAccountID   string          `json:"toAccountId"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description,omitempty"`
}

// InternalTransferResult holds both legs of a settled internal transfer.
type InternalTransferResult struct {
	Debit  Transaction `json:"debit"`
	Credit Transaction `json:"credit"`
}

// ExternalTransferRequest asks an operator to pay a beneficiary.
type ExternalTransferRequest struct {
	FromAccountID string          `json:"fromAccountId"`
	BeneficiaryID string          `json:"beneficiaryId"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description,omitempty"`
}

// BulkDeleteRequest is the body for POST .../transactions/delete.
type BulkDeleteRequest struct {
	IDs []string `json:"ids"`
}

// BulkDeleteResult reports how many transactions were actually removed.
type BulkDeleteResult struct {
	Removed int `json:"removed"`
}

// ============================================================
// Notifications
// ============================================================

// SettlementOutcome is the terminal status reported to the notifier.
type SettlementOutcome string

const (
	OutcomeCompleted SettlementOutcome = "completed"
	OutcomeFailed    SettlementOutcome = "failed"
)

// TransferEvent is the payload delivered by notifiers.
type TransferEvent struct {
	Event         string            `json:"event"` // transfer.requested, transfer.settled
	ProfileID     string            `json:"profile_id"`
	TransactionID string            `json:"transaction_id"`
	Outcome       SettlementOutcome `json:"outcome,omitempty"`
}

const (
	EventTransferRequested = "transfer.requested"
	EventTransferSettled   = "transfer.settled"
)

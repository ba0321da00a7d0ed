package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Currency is the only currency the ledger books. Multi-currency is not modeled.
const Currency = "EUR"

// ============================================================
// Accounts
// ============================================================

// AccountKind classifies an account inside a profile.
type AccountKind string

const (
	AccountChecking AccountKind = "checking"
	AccountSavings  AccountKind = "savings"
	AccountCredit   AccountKind = "credit"
)

// AccountStatus is the operational status of an account.
type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountSuspended AccountStatus = "suspended"
)

// Account is a single balance holder owned by a profile.
// Balance is authoritative and stored, not derived from transactions.
type Account struct {
	ID             string          `json:"id"`
	Kind           AccountKind     `json:"kind"`
	Balance        decimal.Decimal `json:"balance"`
	Currency       string          `json:"currency"`
	ExternalNumber string          `json:"external_number"`
	Status         AccountStatus   `json:"status"`
}

// CanDebit reports whether amount can be taken from the account without
// going below zero. No account kind permits overdraft.
func (a *Account) CanDebit(amount decimal.Decimal) bool {
	return a.Balance.GreaterThanOrEqual(amount)
}

// ============================================================
// Transactions
// ============================================================

// TransactionStatus is the lifecycle state of a transaction.
type TransactionStatus string

const (
	StatusPending    TransactionStatus = "pending"
	StatusInProgress TransactionStatus = "in_progress"
	StatusInReview   TransactionStatus = "in_review"
	StatusCompleted  TransactionStatus = "completed"
	StatusFailed     TransactionStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s TransactionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// TransactionType tags what produced a transaction.
type TransactionType string

const (
	TypeInternalTransfer TransactionType = "internal_transfer"
	TypeOutgoingTransfer TransactionType = "outgoing_transfer"
	TypeAdjustment       TransactionType = "adjustment"
)

// Transaction categories used by the engine.
const (
	CategoryTransfer   = "transfer"
	CategoryAdjustment = "adjustment"
)

// Transaction is a signed movement on one account. Amount is negative for
// money leaving the account.
type Transaction struct {
	ID              string            `json:"id"`
	AccountID       string            `json:"account_id"`
	Timestamp       time.Time         `json:"timestamp"`
	Description     string            `json:"description"`
	Amount          decimal.Decimal   `json:"amount"`
	Currency        string            `json:"currency"`
	Category        string            `json:"category"`
	Status          TransactionStatus `json:"status"`
	Type            TransactionType   `json:"type"`
	BeneficiaryID   string            `json:"beneficiary_id,omitempty"`
	BeneficiaryName string            `json:"beneficiary_name,omitempty"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Settled reports whether the transaction's amount is reflected in the
// account balance.
func (t *Transaction) Settled() bool {
	return t.Status == StatusCompleted
}

// TransactionFilter narrows ListTransactions results. Zero values match all.
type TransactionFilter struct {
	AccountID string
	Status    TransactionStatus
	Type      TransactionType
	Limit     int
}

// Match reports whether tx satisfies the filter (Limit is applied by callers).
func (f TransactionFilter) Match(tx *Transaction) bool {
	if f.AccountID != "" && tx.AccountID != f.AccountID {
		return false
	}
	if f.Status != "" && tx.Status != f.Status {
		return false
	}
	if f.Type != "" && tx.Type != f.Type {
		return false
	}
	return true
}

// ============================================================
// Beneficiaries & budgets
// ============================================================

// Beneficiary is an external payee the profile can send money to.
type Beneficiary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	IBAN string `json:"iban"`
	BIC  string `json:"bic,omitempty"`
}

// Budget is stored with the profile but never interpreted by the ledger.
type Budget struct {
	ID           string          `json:"id"`
	Category     string          `json:"category"`
	MonthlyLimit decimal.Decimal `json:"monthly_limit"`
}

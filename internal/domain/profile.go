package domain

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Profile aggregate
// ============================================================

// Profile is the complete financial record of one user and the unit of
// storage and concurrency control. Version is bumped by the store on every
// successful compare-and-swap.
type Profile struct {
	ID            string        `json:"id"`
	Version       int64         `json:"version"`
	Accounts      []Account     `json:"accounts"`
	Transactions  []Transaction `json:"transactions"`
	Beneficiaries []Beneficiary `json:"beneficiaries"`
	Budgets       []Budget      `json:"budgets"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// DefaultAccountKinds are the accounts every profile is opened with.
var DefaultAccountKinds = []AccountKind{AccountChecking, AccountSavings, AccountCredit}

// Clone returns a deep copy. Stores hand out clones so mutators never touch
// shared state.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Accounts = slices.Clone(p.Accounts)
	cp.Transactions = slices.Clone(p.Transactions)
	cp.Beneficiaries = slices.Clone(p.Beneficiaries)
	cp.Budgets = slices.Clone(p.Budgets)
	return &cp
}

// Account returns a pointer into the Accounts slice, or nil.
func (p *Profile) Account(id string) *Account {
	for i := range p.Accounts {
		if p.Accounts[i].ID == id {
			return &p.Accounts[i]
		}
	}
	return nil
}

// Transaction returns a pointer into the Transactions slice, or nil.
func (p *Profile) Transaction(id string) *Transaction {
	for i := range p.Transactions {
		if p.Transactions[i].ID == id {
			return &p.Transactions[i]
		}
	}
	return nil
}

// Beneficiary returns a pointer into the Beneficiaries slice, or nil.
func (p *Profile) Beneficiary(id string) *Beneficiary {
	for i := range p.Beneficiaries {
		if p.Beneficiaries[i].ID == id {
			return &p.Beneficiaries[i]
		}
	}
	return nil
}

// RemoveTransaction drops a transaction and reverses its effect on the
// account balance if it had one. It returns false when id is unknown.
func (p *Profile) RemoveTransaction(id string) bool {
	idx := slices.IndexFunc(p.Transactions, func(t Transaction) bool { return t.ID == id })
	if idx < 0 {
		return false
	}
	tx := p.Transactions[idx]
	if tx.Settled() {
		if acct := p.Account(tx.AccountID); acct != nil {
			acct.Balance = acct.Balance.Sub(tx.Amount)
		}
	}
	p.Transactions = slices.Delete(p.Transactions, idx, idx+1)
	return true
}

// SettledSum is the net of all completed transactions booked on accountID.
func (p *Profile) SettledSum(accountID string) decimal.Decimal {
	sum := decimal.Zero
	for i := range p.Transactions {
		tx := &p.Transactions[i]
		if tx.AccountID == accountID && tx.Settled() {
			sum = sum.Add(tx.Amount)
		}
	}
	return sum
}

// Unreconciled lists the accounts whose balance does not match the net of
// their completed transactions. A fresh profile, or one only mutated through
// the ledger (without ResetBalance), always returns an empty slice.
func (p *Profile) Unreconciled() []string {
	var out []string
	for i := range p.Accounts {
		a := &p.Accounts[i]
		if !a.Balance.Equal(p.SettledSum(a.ID)) {
			out = append(out, a.ID)
		}
	}
	return out
}

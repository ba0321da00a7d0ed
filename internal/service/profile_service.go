package service

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/boddenberg/ledger-settlement-go/internal/domain"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ============================================================
// Account opening
// ============================================================

// OpenProfile creates a profile with one zero-balance account of each
// default kind. It fails with *domain.ErrConflict if the profile exists.
func (s *LedgerService) OpenProfile(ctx context.Context, profileID string) (*domain.Profile, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.OpenProfile")
	defer span.End()
	span.SetAttributes(profileAttr(profileID))

	if err := requireID("profileId", profileID); err != nil {
		return nil, err
	}

	now := s.now()
	p := &domain.Profile{
		ID:            profileID,
		Accounts:      make([]domain.Account, 0, len(domain.DefaultAccountKinds)),
		Transactions:  []domain.Transaction{},
		Beneficiaries: []domain.Beneficiary{},
		Budgets:       []domain.Budget{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, kind := range domain.DefaultAccountKinds {
		p.Accounts = append(p.Accounts, domain.Account{
			ID:             s.newID(),
			Kind:           kind,
			Balance:        decimal.Zero,
			Currency:       domain.Currency,
			ExternalNumber: newExternalNumber(),
			Status:         domain.AccountActive,
		})
	}

	start := time.Now()
	err := s.call(ctx, "OpenProfile", func(ctx context.Context) error {
		return s.store.Create(ctx, p)
	})
	s.metrics.RecordOperation("OpenProfile", resultLabel(err), time.Since(start))
	if err != nil {
		return nil, err
	}

	s.logger.Info("profile opened",
		zap.String("profile_id", profileID),
		zap.Int("accounts", len(p.Accounts)),
	)
	return p.Clone(), nil
}

// newExternalNumber returns a German-format IBAN with valid check digits.
func newExternalNumber() string {
	var bban strings.Builder
	bban.Grow(18)
	for i := 0; i < 18; i++ {
		bban.WriteByte(byte('0' + rand.Intn(10)))
	}
	check := 98 - mod97(bban.String()+"131400") // "DE" → 13 14, check digits 00
	return fmt.Sprintf("DE%02d%s", check, bban.String())
}

// mod97 computes n mod 97 for a decimal digit string of any length.
func mod97(digits string) int {
	r := 0
	for i := 0; i < len(digits); i++ {
		r = (r*10 + int(digits[i]-'0')) % 97
	}
	return r
}

// ============================================================
// Reads
// ============================================================

// GetProfile returns a private copy of the whole aggregate.
func (s *LedgerService) GetProfile(ctx context.Context, profileID string) (*domain.Profile, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.GetProfile")
	defer span.End()
	span.SetAttributes(profileAttr(profileID))

	return s.read(ctx, "GetProfile", profileID)
}

// ListAccounts returns the profile's accounts in opening order.
func (s *LedgerService) ListAccounts(ctx context.Context, profileID string) ([]domain.Account, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.ListAccounts")
	defer span.End()
	span.SetAttributes(profileAttr(profileID))

	p, err := s.read(ctx, "ListAccounts", profileID)
	if err != nil {
		return nil, err
	}
	return p.Accounts, nil
}

// GetAccount returns one account or *domain.ErrNotFound.
func (s *LedgerService) GetAccount(ctx context.Context, profileID, accountID string) (*domain.Account, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.GetAccount")
	defer span.End()
	span.SetAttributes(profileAttr(profileID))

	p, err := s.read(ctx, "GetAccount", profileID)
	if err != nil {
		return nil, err
	}
	return findAccount(p, accountID)
}

// ListTransactions returns the profile's transactions newest first.
func (s *LedgerService) ListTransactions(ctx context.Context, profileID string, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.ListTransactions")
	defer span.End()
	span.SetAttributes(profileAttr(profileID))

	p, err := s.read(ctx, "ListTransactions", profileID)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Transaction, 0, len(p.Transactions))
	for i := len(p.Transactions) - 1; i >= 0; i-- {
		tx := &p.Transactions[i]
		if !filter.Match(tx) {
			continue
		}
		out = append(out, *tx)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

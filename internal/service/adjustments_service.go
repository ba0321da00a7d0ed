package service

import (
	"context"

	"github.com/boddenberg/ledger-settlement-go/internal/domain"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Credit adds amount to an account and books a completed adjustment.
// Suspended accounts can still be credited.
func (s *LedgerService) Credit(ctx context.Context, profileID, accountID string, amount decimal.Decimal, reason string) (*domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.Credit")
	defer span.End()
	span.SetAttributes(profileAttr(profileID), attribute.String("account.id", accountID))

	return s.adjust(ctx, "Credit", profileID, accountID, amount, reason, false)
}

// Debit removes amount from an account and books a completed adjustment.
func (s *LedgerService) Debit(ctx context.Context, profileID, accountID string, amount decimal.Decimal, reason string) (*domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.Debit")
	defer span.End()
	span.SetAttributes(profileAttr(profileID), attribute.String("account.id", accountID))

	return s.adjust(ctx, "Debit", profileID, accountID, amount, reason, true)
}

func (s *LedgerService) adjust(ctx context.Context, op, profileID, accountID string, amount decimal.Decimal, reason string, debit bool) (*domain.Transaction, error) {
	amount, err := normalizeAmount(amount)
	if err != nil {
		return nil, err
	}
	if reason == "" {
		reason = "Manual credit"
		if debit {
			reason = "Manual debit"
		}
	}

	var booked domain.Transaction
	_, err = s.mutate(ctx, op, profileID, func(p *domain.Profile) error {
		acct, err := findAccount(p, accountID)
		if err != nil {
			return err
		}

		signed := amount
		if debit {
			if err := debitable(acct, amount); err != nil {
				return err
			}
			signed = amount.Neg()
		}
		acct.Balance = acct.Balance.Add(signed)

		now := s.now()
		booked = domain.Transaction{
			ID:          s.newID(),
			AccountID:   acct.ID,
			Timestamp:   now,
			Description: reason,
			Amount:      signed,
			Currency:    domain.Currency,
			Category:    domain.CategoryAdjustment,
			Status:      domain.StatusCompleted,
			Type:        domain.TypeAdjustment,
			UpdatedAt:   now,
		}
		p.Transactions = append(p.Transactions, booked)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("balance adjusted",
		zap.String("operation", op),
		zap.String("profile_id", profileID),
		zap.String("account_id", accountID),
		zap.String("amount", booked.Amount.StringFixed(2)),
		zap.String("transaction_id", booked.ID),
	)
	return &booked, nil
}

// ResetBalance forces an account balance to zero without booking a
// transaction. This deliberately breaks the balance/transaction invariant
// and is reserved for operator repair work.
func (s *LedgerService) ResetBalance(ctx context.Context, profileID, accountID string) (*domain.Account, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.ResetBalance")
	defer span.End()
	span.SetAttributes(profileAttr(profileID), attribute.String("account.id", accountID))

	var (
		previous decimal.Decimal
		result   domain.Account
	)
	_, err := s.mutate(ctx, "ResetBalance", profileID, func(p *domain.Profile) error {
		acct, err := findAccount(p, accountID)
		if err != nil {
			return err
		}
		previous = acct.Balance
		acct.Balance = decimal.Zero
		result = *acct
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Warn("account balance reset without transaction",
		zap.String("profile_id", profileID),
		zap.String("account_id", accountID),
		zap.String("previous_balance", previous.StringFixed(2)),
	)
	return &result, nil
}

package service

import (
	"context"

	"github.com/boddenberg/ledger-settlement-go/internal/domain"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Reconciliation (operator tooling)
//
// Removing a completed transaction reverses its amount on the account.
// Transactions that never touched the balance (pending, in_progress,
// in_review, failed) are removed without a balance change.
// ============================================================

// DeleteTransaction removes one transaction, reversing it if settled.
func (s *LedgerService) DeleteTransaction(ctx context.Context, profileID, txID string) error {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.DeleteTransaction")
	defer span.End()
	span.SetAttributes(profileAttr(profileID), attribute.String("transaction.id", txID))

	_, err := s.mutate(ctx, "DeleteTransaction", profileID, func(p *domain.Profile) error {
		if !p.RemoveTransaction(txID) {
			return &domain.ErrNotFound{Resource: "transaction", ID: txID}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("transaction deleted",
		zap.String("profile_id", profileID),
		zap.String("transaction_id", txID),
	)
	return nil
}

// DeleteTransactions removes every listed transaction in one write. Unknown
// ids are skipped; the number actually removed is returned.
func (s *LedgerService) DeleteTransactions(ctx context.Context, profileID string, txIDs []string) (int, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.DeleteTransactions")
	defer span.End()
	span.SetAttributes(profileAttr(profileID), attribute.Int("transaction.count", len(txIDs)))

	var removed int
	_, err := s.mutate(ctx, "DeleteTransactions", profileID, func(p *domain.Profile) error {
		removed = 0
		for _, id := range txIDs {
			if p.RemoveTransaction(id) {
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("transactions deleted",
		zap.String("profile_id", profileID),
		zap.Int("requested", len(txIDs)),
		zap.Int("removed", removed),
	)
	return removed, nil
}

// DeleteAllTransactions clears the transaction list and zeroes every
// balance in one write.
func (s *LedgerService) DeleteAllTransactions(ctx context.Context, profileID string) error {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.DeleteAllTransactions")
	defer span.End()
	span.SetAttributes(profileAttr(profileID))

	var removed int
	_, err := s.mutate(ctx, "DeleteAllTransactions", profileID, func(p *domain.Profile) error {
		removed = len(p.Transactions)
		for i := range p.Accounts {
			p.Accounts[i].Balance = decimal.Zero
		}
		p.Transactions = []domain.Transaction{}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Warn("all transactions deleted",
		zap.String("profile_id", profileID),
		zap.Int("removed", removed),
	)
	return nil
}

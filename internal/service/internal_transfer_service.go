package service

import (
	"context"
	"fmt"

	"github.com/boddenberg/ledger-settlement-go/internal/domain"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// TransferInternal moves money between two accounts of the same profile.
// Both legs and both balance changes are committed in one write.
func (s *LedgerService) TransferInternal(ctx context.Context, profileID string, req domain.InternalTransferRequest) (*domain.InternalTransferResult, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.TransferInternal")
	defer span.End()
	span.SetAttributes(
		profileAttr(profileID),
		attribute.String("from.account.id", req.FromAccountID),
		attribute.String("to.account.id", req.ToAccountID),
	)

	if err := requireID("fromAccountId", req.FromAccountID); err != nil {
		return nil, err
	}
	if err := requireID("toAccountId", req.ToAccountID); err != nil {
		return nil, err
	}
	if req.FromAccountID == req.ToAccountID {
		return nil, &domain.ErrSameAccount{AccountID: req.FromAccountID}
	}
	amount, err := normalizeAmount(req.Amount)
	if err != nil {
		return nil, err
	}

	var result domain.InternalTransferResult
	_, err = s.mutate(ctx, "TransferInternal", profileID, func(p *domain.Profile) error {
		from, err := findAccount(p, req.FromAccountID)
		if err != nil {
			return err
		}
		to, err := findAccount(p, req.ToAccountID)
		if err != nil {
			return err
		}
		if to.Status == domain.AccountSuspended {
			return &domain.ErrAccountSuspended{AccountID: to.ID}
		}
		if err := debitable(from, amount); err != nil {
			return err
		}

		from.Balance = from.Balance.Sub(amount)
		to.Balance = to.Balance.Add(amount)

		now := s.now()
		leg := func(account, counterpart *domain.Account, signed decimal.Decimal) domain.Transaction {
			return domain.Transaction{
				ID:          s.newID(),
				AccountID:   account.ID,
				Timestamp:   now,
				Description: legDescription(signed.IsNegative(), counterpart, req.Description),
				Amount:      signed,
				Currency:    domain.Currency,
				Category:    domain.CategoryTransfer,
				Status:      domain.StatusCompleted,
				Type:        domain.TypeInternalTransfer,
				UpdatedAt:   now,
			}
		}
		result.Debit = leg(from, to, amount.Neg())
		result.Credit = leg(to, from, amount)

		p.Transactions = append(p.Transactions, result.Debit, result.Credit)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("internal transfer settled",
		zap.String("profile_id", profileID),
		zap.String("from_account_id", req.FromAccountID),
		zap.String("to_account_id", req.ToAccountID),
		zap.String("amount", amount.StringFixed(2)),
	)
	return &result, nil
}

// legDescription names the counterpart account, followed by the caller's note.
func legDescription(outgoing bool, counterpart *domain.Account, note string) string {
	direction := "from"
	if outgoing {
		direction = "to"
	}
	desc := fmt.Sprintf("Transfer %s %s account %s", direction, counterpart.Kind, counterpart.ExternalNumber)
	if note != "" {
		desc += ": " + note
	}
	return desc
}

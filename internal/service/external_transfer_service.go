package service

import (
	"context"
	"slices"

	"github.com/boddenberg/ledger-settlement-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// External transfer workflow
//
//   pending ──Validate──▶ in_progress ──Execute──▶ completed
//      │                      │
//      └──────Cancel──────────┴──────Cancel──────▶ failed
// ============================================================

// RequestTransfer books a pending outgoing transfer to a beneficiary. The
// balance is not touched until ExecuteTransfer.
func (s *LedgerService) RequestTransfer(ctx context.Context, profileID string, req domain.ExternalTransferRequest) (*domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.RequestTransfer")
	defer span.End()
	span.SetAttributes(
		profileAttr(profileID),
		attribute.String("from.account.id", req.FromAccountID),
		attribute.String("beneficiary.id", req.BeneficiaryID),
	)

	if err := requireID("fromAccountId", req.FromAccountID); err != nil {
		return nil, err
	}
	if err := requireID("beneficiaryId", req.BeneficiaryID); err != nil {
		return nil, err
	}
	amount, err := normalizeAmount(req.Amount)
	if err != nil {
		return nil, err
	}

	var booked domain.Transaction
	_, err = s.mutate(ctx, "RequestTransfer", profileID, func(p *domain.Profile) error {
		acct, err := findAccount(p, req.FromAccountID)
		if err != nil {
			return err
		}
		if acct.Status == domain.AccountSuspended {
			return &domain.ErrAccountSuspended{AccountID: acct.ID}
		}
		ben := p.Beneficiary(req.BeneficiaryID)
		if ben == nil {
			return &domain.ErrNotFound{Resource: "beneficiary", ID: req.BeneficiaryID}
		}

		description := req.Description
		if description == "" {
			description = "Transfer to " + ben.Name
		}

		now := s.now()
		booked = domain.Transaction{
			ID:              s.newID(),
			AccountID:       acct.ID,
			Timestamp:       now,
			Description:     description,
			Amount:          amount.Neg(),
			Currency:        domain.Currency,
			Category:        domain.CategoryTransfer,
			Status:          domain.StatusPending,
			Type:            domain.TypeOutgoingTransfer,
			BeneficiaryID:   ben.ID,
			BeneficiaryName: ben.Name,
			UpdatedAt:       now,
		}
		p.Transactions = append(p.Transactions, booked)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("external transfer requested",
		zap.String("profile_id", profileID),
		zap.String("transaction_id", booked.ID),
		zap.String("beneficiary_id", booked.BeneficiaryID),
		zap.String("amount", amount.StringFixed(2)),
	)
	s.transferRequested(ctx, profileID, booked.ID)
	return &booked, nil
}

// ValidateTransfer approves a pending transfer for execution.
func (s *LedgerService) ValidateTransfer(ctx context.Context, profileID, txID string) (*domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.ValidateTransfer")
	defer span.End()
	span.SetAttributes(profileAttr(profileID), attribute.String("transaction.id", txID))

	return s.transition(ctx, "ValidateTransfer", profileID, txID, domain.StatusInProgress, nil, domain.StatusPending)
}

// ExecuteTransfer debits the source account and settles the transfer. Funds
// are checked against the balance at execution time, not request time.
func (s *LedgerService) ExecuteTransfer(ctx context.Context, profileID, txID string) (*domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.ExecuteTransfer")
	defer span.End()
	span.SetAttributes(profileAttr(profileID), attribute.String("transaction.id", txID))

	tx, err := s.transition(ctx, "ExecuteTransfer", profileID, txID, domain.StatusCompleted,
		func(p *domain.Profile, tx *domain.Transaction) error {
			acct, err := findAccount(p, tx.AccountID)
			if err != nil {
				return err
			}
			amount := tx.Amount.Abs()
			if err := debitable(acct, amount); err != nil {
				return err
			}
			acct.Balance = acct.Balance.Sub(amount)
			return nil
		},
		domain.StatusInProgress,
	)
	if err != nil {
		return nil, err
	}
	s.transferSettled(ctx, profileID, txID, domain.OutcomeCompleted)
	return tx, nil
}

// CancelTransfer fails a transfer that has not been executed. Nothing was
// debited, so no balance changes.
func (s *LedgerService) CancelTransfer(ctx context.Context, profileID, txID string) (*domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.CancelTransfer")
	defer span.End()
	span.SetAttributes(profileAttr(profileID), attribute.String("transaction.id", txID))

	tx, err := s.transition(ctx, "CancelTransfer", profileID, txID, domain.StatusFailed, nil,
		domain.StatusPending, domain.StatusInProgress)
	if err != nil {
		return nil, err
	}
	s.transferSettled(ctx, profileID, txID, domain.OutcomeFailed)
	return tx, nil
}

// transition moves an outgoing transfer from one of the allowed states to
// target, running effect on the same copy so both commit together.
func (s *LedgerService) transition(
	ctx context.Context,
	op, profileID, txID string,
	target domain.TransactionStatus,
	effect func(p *domain.Profile, tx *domain.Transaction) error,
	from ...domain.TransactionStatus,
) (*domain.Transaction, error) {
	if err := requireID("transactionId", txID); err != nil {
		return nil, err
	}

	var (
		result   domain.Transaction
		previous domain.TransactionStatus
	)
	_, err := s.mutate(ctx, op, profileID, func(p *domain.Profile) error {
		tx, err := findTransaction(p, txID)
		if err != nil {
			return err
		}
		if tx.Type != domain.TypeOutgoingTransfer {
			return &domain.ErrValidation{Field: "transactionId", Message: "not an outgoing transfer"}
		}
		if !slices.Contains(from, tx.Status) {
			return &domain.ErrInvalidState{TransactionID: txID, Current: tx.Status, Want: from}
		}
		if effect != nil {
			if err := effect(p, tx); err != nil {
				return err
			}
		}
		previous = tx.Status
		tx.Status = target
		tx.UpdatedAt = s.now()
		result = *tx
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("transfer state changed",
		zap.String("profile_id", profileID),
		zap.String("transaction_id", txID),
		zap.String("from", string(previous)),
		zap.String("to", string(target)),
	)
	return &result, nil
}

// ListPendingTransfers returns outgoing transfers still waiting for an
// operator decision, oldest first.
func (s *LedgerService) ListPendingTransfers(ctx context.Context, profileID string) ([]domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.ListPendingTransfers")
	defer span.End()
	span.SetAttributes(profileAttr(profileID))

	p, err := s.read(ctx, "ListPendingTransfers", profileID)
	if err != nil {
		return nil, err
	}

	out := []domain.Transaction{}
	for _, tx := range p.Transactions {
		if tx.Type != domain.TypeOutgoingTransfer {
			continue
		}
		if tx.Status == domain.StatusPending || tx.Status == domain.StatusInProgress {
			out = append(out, tx)
		}
	}
	return out, nil
}

package service

import (
	"context"
	"slices"
	"strings"

	"github.com/boddenberg/ledger-settlement-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// AddBeneficiary registers a payee. IBANs are compared ignoring spaces and case.
func (s *LedgerService) AddBeneficiary(ctx context.Context, profileID string, b domain.Beneficiary) (*domain.Beneficiary, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.AddBeneficiary")
	defer span.End()
	span.SetAttributes(profileAttr(profileID))

	b.Name = strings.TrimSpace(b.Name)
	b.IBAN = normalizeIBAN(b.IBAN)
	b.BIC = strings.ToUpper(strings.TrimSpace(b.BIC))
	if b.Name == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "is required"}
	}
	if b.IBAN == "" {
		return nil, &domain.ErrValidation{Field: "iban", Message: "is required"}
	}
	if b.ID == "" {
		b.ID = s.newID()
	}

	_, err := s.mutate(ctx, "AddBeneficiary", profileID, func(p *domain.Profile) error {
		for _, existing := range p.Beneficiaries {
			if existing.ID == b.ID {
				return &domain.ErrConflict{Message: "beneficiary already exists: " + b.ID}
			}
			if normalizeIBAN(existing.IBAN) == b.IBAN {
				return &domain.ErrConflict{Message: "beneficiary with this IBAN already exists"}
			}
		}
		p.Beneficiaries = append(p.Beneficiaries, b)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("beneficiary added",
		zap.String("profile_id", profileID),
		zap.String("beneficiary_id", b.ID),
	)
	return &b, nil
}

// RemoveBeneficiary deletes a payee. Transactions that reference it keep
// their BeneficiaryName snapshot.
func (s *LedgerService) RemoveBeneficiary(ctx context.Context, profileID, beneficiaryID string) error {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.RemoveBeneficiary")
	defer span.End()
	span.SetAttributes(profileAttr(profileID), attribute.String("beneficiary.id", beneficiaryID))

	_, err := s.mutate(ctx, "RemoveBeneficiary", profileID, func(p *domain.Profile) error {
		idx := slices.IndexFunc(p.Beneficiaries, func(b domain.Beneficiary) bool { return b.ID == beneficiaryID })
		if idx < 0 {
			return &domain.ErrNotFound{Resource: "beneficiary", ID: beneficiaryID}
		}
		p.Beneficiaries = slices.Delete(p.Beneficiaries, idx, idx+1)
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("beneficiary removed",
		zap.String("profile_id", profileID),
		zap.String("beneficiary_id", beneficiaryID),
	)
	return nil
}

// ListBeneficiaries returns the profile's registered payees.
func (s *LedgerService) ListBeneficiaries(ctx context.Context, profileID string) ([]domain.Beneficiary, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.ListBeneficiaries")
	defer span.End()
	span.SetAttributes(profileAttr(profileID))

	p, err := s.read(ctx, "ListBeneficiaries", profileID)
	if err != nil {
		return nil, err
	}
	return p.Beneficiaries, nil
}

func normalizeIBAN(iban string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(iban), " ", ""))
}

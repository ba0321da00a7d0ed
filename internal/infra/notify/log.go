package notify

import (
	"context"

	"github.com/boddenberg/ledger-settlement-go/internal/domain"

	"go.uber.org/zap"
)

// Log writes every event to the structured log. Used when no webhook is configured.
type Log struct {
	logger *zap.Logger
}

func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger.Named("notify")}
}

func (l *Log) NotifyTransferRequested(_ context.Context, profileID, transactionID string) error {
	l.logger.Info(domain.EventTransferRequested,
		zap.String("profile_id", profileID),
		zap.String("transaction_id", transactionID),
	)
	return nil
}

func (l *Log) NotifyTransferSettled(_ context.Context, profileID, transactionID string, outcome domain.SettlementOutcome) error {
	l.logger.Info(domain.EventTransferSettled,
		zap.String("profile_id", profileID),
		zap.String("transaction_id", transactionID),
		zap.String("outcome", string(outcome)),
	)
	return nil
}

package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/kmassidik/movegh/internal/common/kafka"
	"github.com/kmassidik/movegh/internal/common/logger"
)

// TopicSettlementReports carries provider settlement totals
const TopicSettlementReports = "provider.settlement_reports"

// RetryBackoff is the pause after a failed message before consuming again
const RetryBackoff = 5 * time.Second

// MessageSource is satisfied by *kafka.Consumer
type MessageSource interface {
	Consume(ctx context.Context, handler func(ctx context.Context, key, value []byte) error) error
}

// ReportConsumer runs a reconciliation for every provider report on the topic
type ReportConsumer struct {
	source  MessageSource
	service *Service
	logger  *logger.Logger
}

func NewReportConsumer(source MessageSource, service *Service, log *logger.Logger) *ReportConsumer {
	return &ReportConsumer{source: source, service: service, logger: log}
}

// Run consumes until ctx is done, backing off after each failure
func (c *ReportConsumer) Run(ctx context.Context) {
	c.logger.Infof("Settlement report consumer started on %s", TopicSettlementReports)
	for {
		err := c.source.Consume(ctx, c.HandleMessage)
		if ctx.Err() != nil {
			c.logger.Info("Settlement report consumer stopped")
			return
		}
		if err != nil {
			c.logger.Errorf("Settlement report consumer error: %v", err)
		}

		select {
		case <-ctx.Done():
			c.logger.Info("Settlement report consumer stopped")
			return
		case <-time.After(RetryBackoff):
		}
	}
}

// HandleMessage reconciles one report. Malformed reports are logged and
// skipped so they cannot block the partition.
func (c *ReportConsumer) HandleMessage(ctx context.Context, key, value []byte) error {
	var msg ReportMessage
	if err := kafka.UnmarshalEvent(value, &msg); err != nil {
		c.logger.Warnf("Skipping malformed settlement report key=%s: %v", string(key), err)
		return nil
	}

	_, err := c.service.RunReconciliation(ctx, Input{
		Provider:      msg.Provider,
		Currency:      msg.Currency,
		ProviderTotal: msg.ProviderTotal,
		PeriodStart:   msg.PeriodStart,
		PeriodEnd:     msg.PeriodEnd,
	})
	if errors.Is(err, ErrMissingProvider) || errors.Is(err, ErrInvalidPeriod) {
		c.logger.Warnf("Skipping invalid settlement report key=%s: %v", string(key), err)
		return nil
	}
	return err
}

var _ MessageSource = (*kafka.Consumer)(nil)

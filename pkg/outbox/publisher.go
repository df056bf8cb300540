package outbox

import (
	"context"
	"time"

	"github.com/kmassidik/movegh/internal/common/logger"
)

// EventProducer is the subset of the kafka producer the publisher needs
type EventProducer interface {
	PublishEvent(ctx context.Context, topic, key string, v interface{}) error
}

// Publisher polls pending outbox rows and ships them to Kafka
type Publisher struct {
	repo      *Repository
	producer  EventProducer
	logger    *logger.Logger
	interval  time.Duration
	batchSize int
}

func NewPublisher(repo *Repository, producer EventProducer, log *logger.Logger, interval time.Duration) *Publisher {
	return &Publisher{
		repo:      repo,
		producer:  producer,
		logger:    log,
		interval:  interval,
		batchSize: 100,
	}
}

// Start blocks until ctx is cancelled
func (p *Publisher) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox publisher stopped")
			return
		case <-ticker.C:
			if n, err := p.PublishPending(ctx); err != nil {
				p.logger.Errorf("Outbox publish cycle failed: %v", err)
			} else if n > 0 {
				p.logger.Debugf("Outbox published %d events", n)
			}
		}
	}
}

// PublishPending runs one polling cycle and returns how many events were sent
func (p *Publisher) PublishPending(ctx context.Context) (int, error) {
	events, err := p.repo.GetPendingEvents(ctx, p.batchSize)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, event := range events {
		message := map[string]interface{}{
			"event_id":   event.ID,
			"event_type": event.EventType,
			"created_at": event.CreatedAt,
			"payload":    event.Payload,
		}

		if err := p.producer.PublishEvent(ctx, event.Topic, event.AggregateID, message); err != nil {
			p.logger.Warnf("Failed to publish outbox event %s: %v", event.ID, err)
			if event.Attempts+1 >= MaxAttempts {
				p.repo.MarkAsFailed(ctx, event.ID, err.Error())
				continue
			}
			p.repo.IncrementAttempt(ctx, event.ID, err.Error())
			continue
		}

		if err := p.repo.MarkAsPublished(ctx, event.ID); err != nil {
			p.logger.Errorf("Published event %s but failed to mark it: %v", event.ID, err)
			continue
		}
		published++
	}

	return published, nil
}

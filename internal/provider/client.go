package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/kmassidik/movegh/internal/common/logger"
	"github.com/kmassidik/movegh/internal/common/metrics"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	maxAttempts      = 3
	initialBackoff   = 200 * time.Millisecond
	breakerThreshold = 3
	breakerCooldown  = 30 * time.Second
	requestTimeout   = 15 * time.Second
)

// newBreaker opens after breakerThreshold consecutive failed calls. After
// cooldown one trial call is let through; its failure reopens the breaker.
func newBreaker(name string, cooldown time.Duration, log *logger.Logger) *gobreaker.TwoStepCircuitBreaker {
	return gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnf("Provider %s circuit %s -> %s", name, from, to)
		},
	})
}

// Client is the signed HTTP client shared by live providers
type Client struct {
	cfg     *Config
	http    *resty.Client
	breaker *gobreaker.TwoStepCircuitBreaker
	backoff time.Duration
	logger  *logger.Logger
}

func NewClient(cfg *Config, log *logger.Logger) *Client {
	return &Client{
		cfg:     cfg,
		http:    resty.New().SetTimeout(requestTimeout),
		breaker: newBreaker(cfg.Name, breakerCooldown, log),
		backoff: initialBackoff,
		logger:  log,
	}
}

// Response is the decoded body of a provider reply
type Response struct {
	StatusCode int
	Body       map[string]interface{}
}

func (c *Client) headers(rc RequestContext, payload []byte) map[string]string {
	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
	nonce := uuid.New().String()
	requestID := rc.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	return map[string]string{
		"Content-Type":      "application/json",
		"Authorization":     "Bearer " + c.cfg.APIKey,
		"X-Request-Id":      requestID,
		"X-Correlation-Id":  rc.CorrelationID,
		"X-Idempotency-Key": rc.IdempotencyKey,
		"X-Timestamp":       timestamp,
		"X-Nonce":           nonce,
		"X-Signature":       Sign(c.cfg.APISecret, timestamp, nonce, payload),
	}
}

// Do sends a signed request with retries. action labels metrics and spans.
func (c *Client) Do(ctx context.Context, action, method, path string, rc RequestContext, body interface{}) (*Response, error) {
	tracer := otel.Tracer("movegh/provider")
	ctx, span := tracer.Start(ctx, c.cfg.Name+"."+action)
	defer span.End()
	span.SetAttributes(
		attribute.String("provider", c.cfg.Name),
		attribute.String("action", action),
		attribute.String("correlation_id", rc.CorrelationID),
	)

	payload, err := json.Marshal(body)
	if err != nil {
		fail(span, err)
		return nil, fmt.Errorf("failed to encode %s request: %w", action, err)
	}

	done, err := c.breaker.Allow()
	if err != nil {
		fail(span, ErrCircuitOpen)
		return nil, ErrCircuitOpen
	}

	start := time.Now()
	defer func() {
		metrics.ProviderLatency.WithLabelValues(c.cfg.Name, action).Observe(time.Since(start).Seconds())
	}()

	url := strings.TrimRight(c.cfg.BaseURL, "/") + path
	delay := c.backoff
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := c.http.R().
			SetContext(ctx).
			SetHeaders(c.headers(rc, payload)).
			SetBody(payload).
			Execute(method, url)

		switch {
		case err != nil:
			lastErr = fmt.Errorf("%w: %s %s: %v", ErrProviderRequestFailure, c.cfg.Name, action, err)
		case resp.StatusCode() >= http.StatusInternalServerError:
			lastErr = fmt.Errorf("%w: %s %s returned %d", ErrProviderRequestFailure, c.cfg.Name, action, resp.StatusCode())
		default:
			decoded := map[string]interface{}{}
			if len(resp.Body()) > 0 {
				if err := json.Unmarshal(resp.Body(), &decoded); err != nil {
					done(false)
					fail(span, err)
					return nil, fmt.Errorf("%w: %s %s: invalid response body", ErrProviderRequestFailure, c.cfg.Name, action)
				}
			}
			span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode()))
			done(resp.StatusCode() < http.StatusBadRequest)
			return &Response{StatusCode: resp.StatusCode(), Body: decoded}, nil
		}

		c.logger.Warnf("Provider %s %s attempt %d/%d failed: %v", c.cfg.Name, action, attempt, maxAttempts, lastErr)
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			done(false)
			fail(span, ctx.Err())
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	done(false)
	fail(span, lastErr)
	return nil, lastErr
}

// CircuitOpen reports whether calls are currently short-circuited
func (c *Client) CircuitOpen() bool {
	return c.breaker.State() == gobreaker.StateOpen
}

func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

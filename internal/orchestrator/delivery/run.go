// Package delivery drains the activation queue and POSTs each event to the
// configured webhook endpoint.
package delivery

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"brandconfig/internal/config"
	"brandconfig/internal/metrics"
	"brandconfig/internal/pgmq"

	"github.com/rs/zerolog"
)

// Queue is the subset of the pgmq client the worker uses.
type Queue interface {
	ReadWithPoll(ctx context.Context, queue string, timeoutSec, maxMessages int) ([]*pgmq.Message, error)
	Send(ctx context.Context, queue string, payload []byte) (int64, error)
	Delete(ctx context.Context, queue string, msgIDs []int64) error
}

const (
	SignatureHeader = "X-Brandconfig-Signature"
	EventHeader     = "X-Brandconfig-Event"
)

type Options struct {
	Queue          string
	DeadLetter     string
	Endpoint       string
	SigningSecret  string
	MaxRetries     int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	PollTimeoutSec int
	PollMaxMsg     int
	HTTPClient     *http.Client
}

// OptionsFromConfig maps env settings onto worker options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Queue:          cfg.PgmqActivationQueue,
		DeadLetter:     cfg.DeliveryDeadLetterQueue,
		Endpoint:       cfg.DeliveryEndpointURL,
		SigningSecret:  cfg.DeliverySigningSecret,
		MaxRetries:     cfg.DeliveryMaxRetries,
		BackoffInitial: time.Duration(cfg.DeliveryBackoffInitialSec) * time.Second,
		BackoffMax:     time.Duration(cfg.DeliveryBackoffMaxSec) * time.Second,
		PollTimeoutSec: cfg.DeliveryPollTimeoutSec,
		PollMaxMsg:     cfg.DeliveryPollMaxMsg,
	}
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Run starts the delivery orchestrator and returns when ctx is cancelled.
func Run(ctx context.Context, logger zerolog.Logger, q Queue, opts Options) error {
	if opts.Endpoint == "" {
		return fmt.Errorf("delivery endpoint is not configured")
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	logger = logger.With().Str("orchestrator", "delivery").Logger()
	logger.Info().Str("queue", opts.Queue).Str("endpoint", opts.Endpoint).Msg("Starting delivery orchestrator")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Shutting down delivery orchestrator")
			return nil
		default:
		}

		msgs, err := q.ReadWithPoll(ctx, opts.Queue, opts.PollTimeoutSec, opts.PollMaxMsg)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			logger.Error().Err(err).Msg("Error reading activation queue")
			sleep(ctx, time.Second)
			continue
		}
		for _, msg := range msgs {
			deliverOne(ctx, logger, q, opts, msg)
		}
	}
}

func deliverOne(ctx context.Context, logger zerolog.Logger, q Queue, opts Options, msg *pgmq.Message) {
	log := logger.With().Int64("msg_id", msg.ID).Logger()

	backoff := opts.BackoffInitial
	var httpErr error
	for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
		start := time.Now()
		httpErr = post(ctx, opts, msg)
		if httpErr == nil {
			metrics.DeliveryAttemptsTotal.WithLabelValues("success").Inc()
			log.Info().Str("duration", time.Since(start).String()).Int("attempt", attempt).Msg("Activation delivered")
			break
		}
		metrics.DeliveryAttemptsTotal.WithLabelValues("failure").Inc()
		log.Error().Err(httpErr).Int("attempt", attempt).Msg("Delivery failed")
		if attempt == opts.MaxRetries || ctx.Err() != nil {
			break
		}
		sleep(ctx, backoff)
		backoff *= 2
		if backoff > opts.BackoffMax {
			backoff = opts.BackoffMax
		}
	}

	if httpErr != nil {
		if ctx.Err() != nil {
			// Leave the message; it becomes visible again after its timeout.
			return
		}
		if _, err := q.Send(ctx, opts.DeadLetter, msg.Data); err != nil {
			log.Error().Err(err).Str("dlq", opts.DeadLetter).Msg("Failed to send message to dead-letter queue")
			return
		}
		metrics.DeliveryAttemptsTotal.WithLabelValues("dead_letter").Inc()
		log.Warn().Int("attempts", opts.MaxRetries).Err(httpErr).Msg("Exhausted delivery retries; moved event to DLQ")
	}

	if err := q.Delete(ctx, opts.Queue, []int64{msg.ID}); err != nil {
		log.Error().Err(err).Msg("Error deleting activation message")
	}
}

func post(ctx context.Context, opts Options, msg *pgmq.Message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, opts.Endpoint, bytes.NewReader(msg.Data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, "config.activated")
	req.Header.Set("X-Brandconfig-Delivery", strconv.FormatInt(msg.ID, 10))
	if opts.SigningSecret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(opts.SigningSecret, msg.Data))
	}
	resp, err := opts.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"brandconfig/internal/metrics"
	"brandconfig/internal/model"
	"brandconfig/internal/pubsub"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// ActivationEvent is emitted after an active-version pointer changes.
type ActivationEvent struct {
	Company      string         `json:"company"`
	BrandID      string         `json:"brandId"`
	BrandName    string         `json:"brandName"`
	DefinitionID string         `json:"definitionId"`
	Config       string         `json:"config"`
	Version      int            `json:"version"`
	FormData     model.Document `json:"formData"`
	ActivatedBy  string         `json:"activatedBy"`
	ActivatedAt  time.Time      `json:"activatedAt"`

	// WebhooksEnabled is true when the owner's plan grants WEBHOOKS.
	WebhooksEnabled bool `json:"-"`
}

// ActivationNotifier receives activation events. Failures are reported to
// the caller but never undo the activation.
type ActivationNotifier interface {
	NotifyActivation(ctx context.Context, ev ActivationEvent) error
}

// MultiNotifier fans an event out to every sink and joins their errors.
type MultiNotifier []ActivationNotifier

func (m MultiNotifier) NotifyActivation(ctx context.Context, ev ActivationEvent) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyActivation(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type eventNotifier struct {
	pub    pubsub.Publisher
	topic  string
	sink   string
	logger zerolog.Logger
}

// NewEventNotifier publishes activation events for webhook fan-out. Both the
// Pub/Sub publisher and the pgmq client satisfy pubsub.Publisher.
func NewEventNotifier(pub pubsub.Publisher, topic, sink string, logger zerolog.Logger) ActivationNotifier {
	return &eventNotifier{
		pub:    pub,
		topic:  topic,
		sink:   sink,
		logger: logger.With().Str("service", "EventNotifier").Str("sink", sink).Logger(),
	}
}

func (n *eventNotifier) NotifyActivation(ctx context.Context, ev ActivationEvent) error {
	if !ev.WebhooksEnabled {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal activation event: %w", err)
	}
	attrs := map[string]string{
		"company":  ev.Company,
		"brand_id": ev.BrandID,
		"config":   ev.Config,
	}
	id, err := n.pub.Publish(ctx, n.topic, payload, attrs)
	if err != nil {
		metrics.NotifyErrorsTotal.WithLabelValues(n.sink).Inc()
		return fmt.Errorf("publish activation of %q: %w", ev.Config, err)
	}
	n.logger.Debug().Str("message_id", id).Str("config", ev.Config).Int("version", ev.Version).Msg("Activation event published")
	return nil
}

// ObjectStore is the subset of *s3.Client the snapshot writer needs.
type ObjectStore interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// SnapshotStore mirrors the value SDK callers would resolve for each config.
// NotifyActivation writes the event's version under SnapshotKey.
type SnapshotStore interface {
	ActivationNotifier
	DeleteSnapshot(ctx context.Context, company, brand, config string) error
}

type snapshotNotifier struct {
	client ObjectStore
	bucket string
	logger zerolog.Logger
}

// NewSnapshotNotifier writes served configs to object storage so edge SDKs
// can fetch them without calling the API.
func NewSnapshotNotifier(client ObjectStore, bucket string, logger zerolog.Logger) SnapshotStore {
	return &snapshotNotifier{
		client: client,
		bucket: bucket,
		logger: logger.With().Str("service", "SnapshotNotifier").Logger(),
	}
}

// SnapshotKey is the object key of a config snapshot.
func SnapshotKey(company, brand, config string) string {
	return url.PathEscape(company) + "/" + url.PathEscape(brand) + "/" + url.PathEscape(config) + ".json"
}

type snapshot struct {
	Brand     string         `json:"brand"`
	Config    string         `json:"config"`
	Version   int            `json:"version"`
	FormData  model.Document `json:"formData"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func (n *snapshotNotifier) NotifyActivation(ctx context.Context, ev ActivationEvent) error {
	body, err := json.Marshal(snapshot{
		Brand:     ev.BrandName,
		Config:    ev.Config,
		Version:   ev.Version,
		FormData:  ev.FormData,
		UpdatedAt: ev.ActivatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	key := SnapshotKey(ev.Company, ev.BrandName, ev.Config)
	_, err = n.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(n.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(body),
		ContentType:  aws.String("application/json"),
		CacheControl: aws.String("no-cache"),
	})
	if err != nil {
		metrics.NotifyErrorsTotal.WithLabelValues("s3").Inc()
		return fmt.Errorf("write snapshot %s: %w", key, err)
	}
	n.logger.Debug().Str("key", key).Int("version", ev.Version).Msg("Snapshot written")
	return nil
}

// DeleteSnapshot removes a snapshot. A missing object is not an error.
func (n *snapshotNotifier) DeleteSnapshot(ctx context.Context, company, brand, config string) error {
	key := SnapshotKey(company, brand, config)
	_, err := n.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(n.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		metrics.NotifyErrorsTotal.WithLabelValues("s3").Inc()
		return fmt.Errorf("delete snapshot %s: %w", key, err)
	}
	n.logger.Debug().Str("key", key).Msg("Snapshot deleted")
	return nil
}

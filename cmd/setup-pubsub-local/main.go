package main

import (
	"context"
	"fmt"
	"time"

	"brandconfig/internal/config"
	"brandconfig/internal/logger"

	"cloud.google.com/go/pubsub"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

func main() {
	// Load environment variables early for local development
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, relying on system environment variables.")
	}

	logger := logger.New()
	logger.Info().Msg("Starting Pub/Sub setup for the local environment.")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Msgf("Failed to load config: %v", err)
	}
	if cfg.GCPProjectID == "" {
		logger.Fatal().Msg("GCP_PROJECT_ID is not set in the environment.")
	}
	if cfg.PubSubEmulatorHost == "" {
		logger.Fatal().Msg("PUBSUB_EMULATOR_HOST must be set for local environment.")
	}

	clientOptions := []option.ClientOption{
		option.WithEndpoint(cfg.PubSubEmulatorHost),
		option.WithoutAuthentication(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := pubsub.NewClient(ctx, cfg.GCPProjectID, clientOptions...)
	if err != nil {
		logger.Fatal().Msgf("Failed to create Pub/Sub client: %v", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Error().Msgf("Failed to close pubsub client: %v", err)
		}
	}()

	resetLocalEmulator(ctx, client, logger)
	createResources(ctx, client, cfg, logger)

	logger.Info().Msg("Pub/Sub setup for local environment complete.")
}

// resetLocalEmulator deletes every topic and subscription. Emulator only.
func resetLocalEmulator(ctx context.Context, client *pubsub.Client, logger zerolog.Logger) {
	logger.Info().Msg("Deleting all existing resources for a clean local setup")

	subs := client.Subscriptions(ctx)
	for {
		sub, err := subs.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			logger.Fatal().Msgf("Failed to list subscriptions: %v", err)
		}
		logger.Info().Msgf("Deleting subscription: %s", sub.ID())
		if err := sub.Delete(ctx); err != nil {
			logger.Warn().Msgf("Failed to delete subscription %s: %v", sub.ID(), err)
		}
	}

	topics := client.Topics(ctx)
	for {
		topic, err := topics.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			logger.Fatal().Msgf("Failed to list topics: %v", err)
		}
		logger.Info().Msgf("Deleting topic: %s", topic.ID())
		if err := topic.Delete(ctx); err != nil {
			logger.Warn().Msgf("Failed to delete topic %s: %v", topic.ID(), err)
		}
	}
}

// createResources creates the activation topic, its dead-letter topic and a
// subscription for each. When DELIVERY_ENDPOINT_URL is set the main
// subscription pushes straight to it; otherwise it is a pull subscription.
func createResources(ctx context.Context, client *pubsub.Client, cfg *config.Config, logger zerolog.Logger) {
	topicID := cfg.PubSubActivationTopic
	dlqTopicID := topicID + "-dlq"
	retention := 7 * 24 * time.Hour

	dlqTopic := createTopic(ctx, client, logger, dlqTopicID, retention)
	mainTopic := createTopic(ctx, client, logger, topicID, retention)

	mainSub := pubsub.SubscriptionConfig{
		Topic:            mainTopic,
		AckDeadline:      60 * time.Second,
		ExpirationPolicy: 31 * 24 * time.Hour,
		RetryPolicy: &pubsub.RetryPolicy{
			MinimumBackoff: time.Duration(cfg.DeliveryBackoffInitialSec) * time.Second,
			MaximumBackoff: time.Duration(cfg.DeliveryBackoffMaxSec) * time.Second,
		},
		DeadLetterPolicy: &pubsub.DeadLetterPolicy{
			DeadLetterTopic:     dlqTopic.String(),
			MaxDeliveryAttempts: max(cfg.DeliveryMaxRetries, 5),
		},
	}
	if cfg.DeliveryEndpointURL != "" {
		mainSub.PushConfig = pubsub.PushConfig{Endpoint: cfg.DeliveryEndpointURL}
	}
	createSubscription(ctx, client, logger, topicID+"-sub", mainSub)
	createSubscription(ctx, client, logger, dlqTopicID+"-sub", pubsub.SubscriptionConfig{
		Topic:            dlqTopic,
		AckDeadline:      60 * time.Second,
		ExpirationPolicy: 31 * 24 * time.Hour,
	})
}

func createTopic(ctx context.Context, client *pubsub.Client, logger zerolog.Logger, topicID string, retention time.Duration) *pubsub.Topic {
	logger.Info().Msgf("Creating topic: %s with %v retention", topicID, retention)
	topic, err := client.CreateTopicWithConfig(ctx, topicID, &pubsub.TopicConfig{RetentionDuration: retention})
	if err != nil {
		logger.Fatal().Msgf("Failed to create topic %s: %v", topicID, err)
	}
	return topic
}

func createSubscription(ctx context.Context, client *pubsub.Client, logger zerolog.Logger, subID string, sc pubsub.SubscriptionConfig) {
	logger.Info().Msgf("Creating subscription %s (push endpoint %q)", subID, sc.PushConfig.Endpoint)
	if _, err := client.CreateSubscription(ctx, subID, sc); err != nil {
		logger.Fatal().Msgf("Failed to create subscription '%s': %v", subID, err)
	}
}

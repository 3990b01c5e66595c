package config

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENV" default:"development"`

	// Storage
	StoreDriver        string `envconfig:"STORE_DRIVER" default:"postgres"` // postgres|memory
	DBConnectionString string `envconfig:"DB_CONNECTION_STRING"`
	AutoMigrate        bool   `envconfig:"AUTO_MIGRATE" default:"false"`

	// Auth
	JWTSecret          string   `envconfig:"JWT_SECRET" required:"true"`
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	RateLimitPerSec    float64  `envconfig:"RATE_LIMIT_PER_SEC" default:"20"`
	RateLimitBurst     int      `envconfig:"RATE_LIMIT_BURST" default:"40"`

	// Cleanup sweep
	CleanupIntervalSec int `envconfig:"CLEANUP_INTERVAL_SEC" default:"3600"`

	// Activation events
	EventsBackend         string `envconfig:"EVENTS_BACKEND" default:"none"` // none|pubsub|pgmq
	GCPProjectID          string `envconfig:"GCP_PROJECT_ID"`
	GoogleCredentialsFile string `envconfig:"GOOGLE_CREDENTIALS_FILE"`
	PubSubEmulatorHost    string `envconfig:"PUBSUB_EMULATOR_HOST"`
	PubSubActivationTopic string `envconfig:"PUBSUB_ACTIVATION_TOPIC" default:"config-activations"`
	PgmqActivationQueue   string `envconfig:"PGMQ_ACTIVATION_QUEUE" default:"config_activations"`

	// Webhook delivery worker (reads the pgmq activation queue)
	DeliveryEndpointURL       string `envconfig:"DELIVERY_ENDPOINT_URL"`
	DeliverySigningSecret     string `envconfig:"DELIVERY_SIGNING_SECRET"`
	DeliveryDeadLetterQueue   string `envconfig:"DELIVERY_DEAD_LETTER_QUEUE" default:"config_activations_dlq"`
	DeliveryMaxRetries        int    `envconfig:"DELIVERY_MAX_RETRIES" default:"5"`
	DeliveryBackoffInitialSec int    `envconfig:"DELIVERY_BACKOFF_INITIAL_SEC" default:"1"`
	DeliveryBackoffMaxSec     int    `envconfig:"DELIVERY_BACKOFF_MAX_SEC" default:"30"`
	DeliveryPollTimeoutSec    int    `envconfig:"DELIVERY_POLL_TIMEOUT_SEC" default:"5"`
	DeliveryPollMaxMsg        int    `envconfig:"DELIVERY_POLL_MAX_MSG" default:"10"`

	// Snapshot bucket for edge SDK delivery
	SnapshotBucket string `envconfig:"SNAPSHOT_BUCKET"`
	S3URL          string `envconfig:"S3_URL"`
	S3Region       string `envconfig:"S3_REGION" default:"us-east-1"`
	S3AccessKey    string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey    string `envconfig:"S3_SECRET_KEY"`

	// Stripe
	StripeSecretKey       string `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret   string `envconfig:"STRIPE_WEBHOOK_SECRET"`
	StripePortalReturnURL string `envconfig:"STRIPE_PORTAL_RETURN_URL" default:"http://localhost:3000/settings/billing"`
	StripePriceStarter    string `envconfig:"STRIPE_PRICE_STARTER"`
	StripePricePro        string `envconfig:"STRIPE_PRICE_PRO"`
	StripePriceCustom     string `envconfig:"STRIPE_PRICE_CUSTOM"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks combinations envconfig tags cannot express.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "memory":
	case "postgres":
		if c.DBConnectionString == "" {
			return fmt.Errorf("DB_CONNECTION_STRING is required when STORE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.EventsBackend {
	case "none":
	case "pubsub":
		if c.GCPProjectID == "" {
			return fmt.Errorf("GCP_PROJECT_ID is required when EVENTS_BACKEND=pubsub")
		}
	case "pgmq":
		if c.StoreDriver != "postgres" {
			return fmt.Errorf("EVENTS_BACKEND=pgmq requires STORE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unknown EVENTS_BACKEND %q", c.EventsBackend)
	}
	return nil
}

func (c *Config) IsDevelopment() bool { return c.Environment == "development" }

// SecretPrefix marks a value to be fetched from Secret Manager, e.g.
// JWT_SECRET=sm://jwt-signing-key.
const SecretPrefix = "sm://"

// SecretAccessor reads the latest version of a secret.
type SecretAccessor interface {
	AccessSecret(ctx context.Context, name string) (string, error)
}

// HasSecretRefs reports whether any string field needs resolving.
func (c *Config) HasSecretRefs() bool {
	found := false
	c.eachString(func(_ string, v *string) {
		if strings.HasPrefix(*v, SecretPrefix) {
			found = true
		}
	})
	return found
}

// ResolveSecrets replaces every sm:// value with the secret's payload.
func (c *Config) ResolveSecrets(ctx context.Context, acc SecretAccessor) error {
	var firstErr error
	c.eachString(func(field string, v *string) {
		if firstErr != nil || !strings.HasPrefix(*v, SecretPrefix) {
			return
		}
		name := strings.TrimPrefix(*v, SecretPrefix)
		if !strings.HasPrefix(name, "projects/") {
			name = fmt.Sprintf("projects/%s/secrets/%s/versions/latest", c.GCPProjectID, name)
		}
		val, err := acc.AccessSecret(ctx, name)
		if err != nil {
			firstErr = fmt.Errorf("resolve %s: %w", field, err)
			return
		}
		*v = val
	})
	return firstErr
}

func (c *Config) eachString(fn func(field string, v *string)) {
	rv := reflect.ValueOf(c).Elem()
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		if f := rv.Field(i); f.Kind() == reflect.String {
			fn(rt.Field(i).Name, f.Addr().Interface().(*string))
		}
	}
}

package service

import (
	"context"
	"fmt"

	"brandconfig/internal/config"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"
)

// SecretManager reads config secrets stored in Google Secret Manager. It
// satisfies config.SecretAccessor.
type SecretManager struct {
	client *secretmanager.Client
}

func NewSecretManager(ctx context.Context, cfg *config.Config) (*SecretManager, error) {
	if cfg.GCPProjectID == "" {
		return nil, fmt.Errorf("GCP_PROJECT_ID is required to resolve %s values", config.SecretPrefix)
	}
	var opts []option.ClientOption
	if cfg.GoogleCredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.GoogleCredentialsFile))
	}
	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Secret Manager client: %w", err)
	}
	return &SecretManager{client: client}, nil
}

// AccessSecret returns the payload of a fully qualified secret version name.
func (s *SecretManager) AccessSecret(ctx context.Context, name string) (string, error) {
	result, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", fmt.Errorf("failed to access secret version %s: %w", name, err)
	}
	return string(result.Payload.Data), nil
}

func (s *SecretManager) Close() error {
	return s.client.Close()
}

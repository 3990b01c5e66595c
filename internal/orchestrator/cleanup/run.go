// Package cleanup periodically purges expired revoked-token and API key rows.
package cleanup

import (
	"context"
	"time"

	"brandconfig/internal/metrics"
	"brandconfig/internal/repository"

	"github.com/rs/zerolog"
)

// Sweep runs one purge pass. Errors are logged and the pass continues.
func Sweep(ctx context.Context, logger zerolog.Logger, tokens repository.TokenRepository, keys repository.APIKeyRepository, now time.Time) {
	if n, err := tokens.PurgeExpired(ctx, now); err != nil {
		logger.Error().Err(err).Msg("Failed to purge expired revoked tokens")
	} else if n > 0 {
		metrics.CleanupPurgedTotal.WithLabelValues("revoked_tokens").Add(float64(n))
		logger.Info().Int64("purged", n).Msg("Purged expired revoked tokens")
	}
	if n, err := keys.PurgeExpired(ctx, now); err != nil {
		logger.Error().Err(err).Msg("Failed to purge expired API keys")
	} else if n > 0 {
		metrics.CleanupPurgedTotal.WithLabelValues("api_keys").Add(float64(n))
		logger.Info().Int64("purged", n).Msg("Purged expired API keys")
	}
}

// Run sweeps immediately and then every interval until ctx is cancelled.
func Run(ctx context.Context, logger zerolog.Logger, tokens repository.TokenRepository, keys repository.APIKeyRepository, interval time.Duration) error {
	logger = logger.With().Str("orchestrator", "cleanup").Logger()
	logger.Info().Str("interval", interval.String()).Msg("Starting cleanup orchestrator")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		Sweep(ctx, logger, tokens, keys, time.Now().UTC())
		select {
		case <-ctx.Done():
			logger.Info().Msg("Shutting down cleanup orchestrator")
			return nil
		case <-ticker.C:
		}
	}
}

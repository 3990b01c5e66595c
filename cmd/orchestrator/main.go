package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"brandconfig/internal/config"
	"brandconfig/internal/logger"
	"brandconfig/internal/model"
	"brandconfig/internal/orchestrator/cleanup"
	"brandconfig/internal/orchestrator/delivery"
	"brandconfig/internal/pgmq"
	"brandconfig/internal/repository"

	"github.com/joho/godotenv"
)

func main() {
	// Parse mode flag
	mode := flag.String("mode", "", "Orchestrator mode: cleanup|delivery|issue-key|issue-token")
	company := flag.String("company", "", "issue-key/issue-token: company the credential is bound to")
	clientID := flag.String("client", "", "issue-key: client id recorded with the key")
	scopes := flag.String("scopes", model.ScopeReadBrands+","+model.ScopeReadConfigs, "issue-key: comma separated scopes")
	ttl := flag.Duration("ttl", 0, "issue-key/issue-token: lifetime, 0 means no expiry for keys and 24h for tokens")
	subject := flag.String("subject", "", "issue-token: user id placed in the sub claim")
	email := flag.String("email", "", "issue-token: email claim")
	flag.Parse()

	// Initialize logger
	logger := logger.New()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg("Warning: no .env file found")
	}

	// Load config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Msgf("Error loading config: %v", err)
	}

	if *mode == "issue-token" {
		if *subject == "" || *company == "" {
			logger.Fatal().Msg("issue-token requires -subject and -company")
		}
		lifetime := *ttl
		if lifetime == 0 {
			lifetime = 24 * time.Hour
		}
		tok, err := issueToken(cfg.JWTSecret, *subject, *email, *company, lifetime)
		if err != nil {
			logger.Fatal().Msgf("Failed to sign token: %v", err)
		}
		fmt.Println(tok)
		return
	}

	// Initialize DB connection
	db, err := repository.OpenDB(cfg)
	if err != nil {
		logger.Fatal().Msgf("Failed to open DB connection: %v", err)
	}
	defer db.Close()
	logger.Info().Msg("Database connection established")

	// Set up context with graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Dispatch to the selected orchestrator
	var runErr error
	switch *mode {
	case "cleanup":
		interval := time.Duration(cfg.CleanupIntervalSec) * time.Second
		runErr = cleanup.Run(ctx, logger, repository.NewTokenRepo(db), repository.NewAPIKeyRepo(db), interval)
	case "delivery":
		pgmqClient := pgmq.New(db)
		logger.Info().Msg("PGMQ client initialized")
		opts := delivery.OptionsFromConfig(cfg)
		for _, q := range []string{opts.Queue, opts.DeadLetter} {
			if err := pgmqClient.CreateQueue(ctx, q); err != nil {
				logger.Fatal().Msgf("Failed to create queue %s: %v", q, err)
			}
		}
		runErr = delivery.Run(ctx, logger, pgmqClient, opts)
	case "issue-key":
		if *company == "" || *clientID == "" {
			logger.Fatal().Msg("issue-key requires -company and -client")
		}
		raw, err := newAPIKey()
		if err != nil {
			logger.Fatal().Msgf("Failed to generate key: %v", err)
		}
		key := &model.APIKey{
			ClientID: *clientID,
			Company:  *company,
			KeyHash:  repository.HashAPIKey(raw),
			Scopes:   splitScopes(*scopes),
		}
		if *ttl > 0 {
			exp := time.Now().UTC().Add(*ttl)
			key.ExpiresAt = &exp
		}
		if err := repository.NewAPIKeyRepo(db).Create(ctx, key); err != nil {
			logger.Fatal().Msgf("Failed to store key: %v", err)
		}
		logger.Info().Str("key_id", key.ID).Str("client_id", key.ClientID).Str("company", key.Company).Msg("API key issued")
		// The raw key is shown once and never stored.
		fmt.Println(raw)
		return
	default:
		logger.Fatal().Msgf("Invalid mode: %s", *mode)
	}

	if runErr != nil {
		logger.Fatal().Msgf("%s orchestrator failed: %v", *mode, runErr)
	}

	logger.Info().Msgf("%s orchestrator stopped gracefully", *mode)
}

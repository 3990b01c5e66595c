package main

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"brandconfig/internal/util"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const apiKeyPrefix = "bc_"

// newAPIKey returns a random key. Only its hash is persisted.
func newAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return apiKeyPrefix + hex.EncodeToString(buf), nil
}

func splitScopes(s string) []string {
	var out []string
	for _, sc := range strings.Split(s, ",") {
		if sc = strings.TrimSpace(sc); sc != "" {
			out = append(out, sc)
		}
	}
	return out
}

// issueToken signs an operator token for local development and smoke tests.
func issueToken(secret, subject, email, company string, ttl time.Duration) (string, error) {
	claims := util.Claims{
		Email:            email,
		Company:          company,
		RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
	}
	return util.IssueHS256(claims, secret, ttl, uuid.NewString())
}

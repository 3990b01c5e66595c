package main

import (
	"strings"
	"testing"
	"time"

	"brandconfig/internal/util"
)

func TestNewAPIKey(t *testing.T) {
	a, err := newAPIKey()
	if err != nil {
		t.Fatal(err)
	}
	b, _ := newAPIKey()
	if !strings.HasPrefix(a, apiKeyPrefix) || len(a) != len(apiKeyPrefix)+64 {
		t.Fatalf("unexpected key shape %q", a)
	}
	if a == b {
		t.Fatal("keys must differ")
	}
}

func TestSplitScopes(t *testing.T) {
	got := splitScopes(" read:brands, ,read:configs")
	if len(got) != 2 || got[0] != "read:brands" || got[1] != "read:configs" {
		t.Fatalf("splitScopes = %v", got)
	}
	if splitScopes("") != nil {
		t.Fatal("empty input must yield no scopes")
	}
}

func TestIssueToken(t *testing.T) {
	tok, err := issueToken("s3cret", "auth0|u1", "a@example.com", "acme", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := util.ValidateJWT(tok, "s3cret")
	if err != nil {
		t.Fatal(err)
	}
	if claims.Subject != "auth0|u1" || claims.Company != "acme" || claims.ID == "" {
		t.Fatalf("claims = %+v", claims)
	}
}

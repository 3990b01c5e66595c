package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestTokenRepoRevokeAndCheck(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO revoked_tokens (jti, expires_at) VALUES ($1, $2)`)).
		WithArgs("tok-1", exp).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE jti = $1)`)).
		WithArgs("tok-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	repo := NewTokenRepo(db)
	if err := repo.Revoke(context.Background(), "tok-1", exp); err != nil {
		t.Fatalf("Revoke error: %v", err)
	}
	revoked, err := repo.IsRevoked(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("IsRevoked error: %v", err)
	}
	if !revoked {
		t.Fatal("expected token to be revoked")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestTokenRepoPurgeExpired(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Now()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM revoked_tokens WHERE expires_at < $1`)).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := NewTokenRepo(db).PurgeExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("PurgeExpired error: %v", err)
	}
	if n != 3 {
		t.Fatalf("purged %d rows, want 3", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

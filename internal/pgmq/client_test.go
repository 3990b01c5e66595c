package pgmq

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestSendReturnsMessageID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT pgmq.send($1, $2::jsonb, 0)")).
		WithArgs("config_activations", `{"config":"FeatureFlags"}`).
		WillReturnRows(sqlmock.NewRows([]string{"send"}).AddRow(int64(17)))

	id, err := New(db).Publish(context.Background(), "config_activations", []byte(`{"config":"FeatureFlags"}`), nil)
	if err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if id != "17" {
		t.Fatalf("id = %q, want 17", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestReadWithPoll(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT msg_id, message FROM pgmq.read_with_poll($1, 30, $2, $3)")).
		WithArgs("q", 1, 5).
		WillReturnRows(sqlmock.NewRows([]string{"msg_id", "message"}).AddRow(int64(3), []byte(`{}`)))

	msgs, err := New(db).ReadWithPoll(context.Background(), "q", 5, 1)
	if err != nil {
		t.Fatalf("ReadWithPoll error: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != 3 {
		t.Fatalf("unexpected messages: %#v", msgs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

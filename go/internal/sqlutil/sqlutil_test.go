package sqlutil

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestNullConverters(t *testing.T) {
	s := "x"
	assert.Equal(t, sql.NullString{String: "x", Valid: true}, ToSqlString(&s))
	assert.False(t, ToSqlString(nil).Valid)
	assert.Nil(t, FromSqlStringPtr(sql.NullString{}))
	assert.Equal(t, "x", *FromSqlStringPtr(sql.NullString{String: "x", Valid: true}))

	now := time.Now()
	assert.Equal(t, now, *FromSqlTime(ToSqlTime(&now)))
	assert.Nil(t, FromSqlTime(ToSqlTime(nil)))

	assert.False(t, ToNullRawMessage(nil).Valid)
	assert.JSONEq(t, `{"a":1}`, string(FromNullRawMessage(ToNullRawMessage([]byte(`{"a":1}`)))))
}

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	assert.True(t, IsUniqueViolation(err))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(sql.ErrNoRows))
}

package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryToNDJSON(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, name FROM users").WillReturnRows(
		sqlmock.NewRows([]string{"id", "name"}).
			AddRow(int64(1), "ada").
			AddRow(int64(2), "grace"))

	var out bytes.Buffer
	require.NoError(t, queryToNDJSON(context.Background(), sqlx.NewDb(db, "sqlmock"), "SELECT id, name FROM users", &out))

	assert.Equal(t, "{\"id\":1,\"name\":\"ada\"}\n{\"id\":2,\"name\":\"grace\"}\n", out.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryToNDJSON_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT boom").WillReturnError(assert.AnError)

	var out bytes.Buffer
	err = queryToNDJSON(context.Background(), sqlx.NewDb(db, "sqlmock"), "SELECT boom", &out)
	require.Error(t, err)
	assert.Empty(t, out.String())
}

// TestNormalizeRow checks []byte column values (the common driver
// representation for TEXT) marshal as JSON strings, not base64.
func TestNormalizeRow(t *testing.T) {
	row := map[string]interface{}{"name": []byte("ada"), "id": int64(1)}
	normalizeRow(row)
	assert.Equal(t, "ada", row["name"])
	assert.Equal(t, int64(1), row["id"])
}

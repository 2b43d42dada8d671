package audit

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepositoryLog_FillsDefaults(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	meta := json.RawMessage(`{"rows":3}`)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WithArgs(sqlmock.AnyArg(), "user-1", "operator", "billing.process", "billing_period", "run-1", "2024-08",
			[]byte(meta), DigestJSON(meta), "10.0.0.1", "curl", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewRepository(db)
	err = repo.Log(context.Background(), Entry{
		Actor:        "user-1",
		Role:         "operator",
		Action:       "billing.process",
		ResourceType: "billing_period",
		ResourceID:   "run-1",
		Period:       "2024-08",
		Metadata:     meta,
		IP:           "10.0.0.1",
		UserAgent:    "curl",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryLog_NilRepo(t *testing.T) {
	var repo *Repository
	assert.Error(t, repo.Log(context.Background(), Entry{}))
	assert.Nil(t, NewRepository(nil))
}

func TestNewID(t *testing.T) {
	id := NewID()
	assert.True(t, strings.HasPrefix(id, "audit-"))
	assert.NotEqual(t, id, NewID())
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.168.1.9:5123"
	assert.Equal(t, "192.168.1.9", ClientIP(req))

	req.Header.Set("X-Real-IP", "10.1.1.1")
	assert.Equal(t, "10.1.1.1", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.2")
	assert.Equal(t, "203.0.113.7", ClientIP(req))
}

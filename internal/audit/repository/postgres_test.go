package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/backend/internal/audit/domain"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		conn.Close()
	})
	return NewPostgresRepository(conn), mock
}

func TestCreate_NullsEmptyAccountAndMetadata(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now().UTC()
	mock.ExpectExec(`INSERT INTO audit_logs`).
		WithArgs("id-1", sql.NullString{}, "login_failure", "account", "10.0.0.1", sql.NullString{}, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &domain.AuditLog{
		ID: "id-1", Action: "login_failure", Resource: "account", IP: "10.0.0.1", CreatedAt: now,
	})
	require.NoError(t, err)
}

func TestCreate_Error(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectExec(`INSERT INTO audit_logs`).WillReturnError(errors.New("disk full"))

	err := repo.Create(context.Background(), &domain.AuditLog{ID: "id-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit_logs: create")
}

func TestListByAccount(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`FROM audit_logs WHERE account_id = \$1 ORDER BY created_at DESC`).
		WithArgs("acc-1", int32(10), int32(0)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "account_id", "action", "resource", "ip", "metadata", "created_at"}).
			AddRow("id-2", "acc-1", "logout", "session", "1.1.1.1", nil, now).
			AddRow("id-1", "acc-1", "login_success", "session", "1.1.1.1", `{"session_id":"s1"}`, now.Add(-time.Minute)))

	logs, err := repo.ListByAccount(context.Background(), "acc-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "logout", logs[0].Action)
	assert.Empty(t, logs[0].Metadata)
	assert.Equal(t, `{"session_id":"s1"}`, logs[1].Metadata)
}

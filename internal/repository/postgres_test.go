package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/Phucdanghoc/File-store-sub000/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationNames_Ordered(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"001_documents.sql", "002_jobs.sql", "003_job_lease.sql", "004_document_trash.sql"}, names)
}

func TestListPredicate(t *testing.T) {
	where, args := listPredicate("u1", domain.ListFilter{})
	assert.Equal(t, "owner_id = $1 AND trashed_at IS NULL", where)
	assert.Equal(t, []interface{}{"u1"}, args)

	where, _ = listPredicate("u1", domain.ListFilter{Trashed: true})
	assert.Equal(t, "owner_id = $1 AND trashed_at IS NOT NULL", where)

	before := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	where, args = listPredicate("u1", domain.ListFilter{
		Category:      domain.CategoryPDF,
		SourceJobID:   "job-9",
		CreatedBefore: before,
		Search:        "50%_off",
	})
	assert.Equal(t,
		"owner_id = $1 AND trashed_at IS NULL AND category = $2 AND source_job_id = $3 AND created_at < $4 AND "+
			"(title ILIKE $5 OR description ILIKE $5 OR original_filename ILIKE $5)",
		where)
	require.Len(t, args, 5)
	assert.Equal(t, "pdf", args[1])
	assert.Equal(t, before, args[3])
	assert.Equal(t, `%50\%\_off%`, args[4])
}

func TestEncodeJob_EmptyCollections(t *testing.T) {
	cols, err := encodeJob(&domain.Job{ID: "j"})
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(cols.targets))
	assert.JSONEq(t, `{}`, string(cols.params))
	assert.JSONEq(t, `[]`, string(cols.resultIDs))
	assert.Nil(t, cols.result)
}

func TestPostgresErrorClassifiers(t *testing.T) {
	assert.True(t, isNoRows(pgx.ErrNoRows))
	assert.False(t, isNoRows(errors.New("boom")))

	assert.True(t, isDuplicateKey(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isDuplicateKey(&pgconn.PgError{Code: "23503"}))
	assert.Nil(t, nullString(""))
	assert.Equal(t, "x", *nullString("x"))
}

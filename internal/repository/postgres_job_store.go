package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Phucdanghoc/File-store-sub000/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const jobColumns = `id, type, owner_id, target_record_ids, parameters, status, result_record_id,
	result_record_ids, result, error_message, attempts, created_at, started_at, updated_at, completed_at,
	lease_expires_at`

// PostgresJobStore is a JobStatusStore over a PostgreSQL jobs table.
type PostgresJobStore struct {
	pool *pgxpool.Pool
}

// NewPostgresJobStore creates a job store on an existing pool.
func NewPostgresJobStore(pool *pgxpool.Pool) *PostgresJobStore {
	return &PostgresJobStore{pool: pool}
}

func (s *PostgresJobStore) Create(ctx context.Context, job *domain.Job) error {
	cols, err := encodeJob(job)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		job.ID, string(job.Type), job.OwnerID, cols.targets, cols.params, string(job.Status),
		nullString(job.ResultRecordID), cols.resultIDs, cols.result, nullString(job.ErrorMessage),
		job.Attempts, job.CreatedAt, job.StartedAt, job.UpdatedAt, job.CompletedAt, job.LeaseExpiresAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return domain.ErrDuplicateKey
		}
		return fmt.Errorf("postgres: create job: %w", err)
	}
	return nil
}

func (s *PostgresJobStore) Get(ctx context.Context, jobID, ownerID string) (*domain.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 AND owner_id = $2`, jobID, ownerID)
	job, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get job: %w", err)
	}
	return job, nil
}

// UpdateStatus is a compare-and-set on the status column.
func (s *PostgresJobStore) UpdateStatus(ctx context.Context, job *domain.Job, from domain.JobStatus) error {
	if job.Status != from && !from.CanTransition(job.Status) {
		return domain.ErrInvalidTransition
	}
	cols, err := encodeJob(job)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET
			status = $3, result_record_id = $4, result_record_ids = $5, result = $6,
			error_message = $7, attempts = $8, started_at = $9, updated_at = $10, completed_at = $11,
			lease_expires_at = $12
		WHERE id = $1 AND status = $2`,
		job.ID, string(from), string(job.Status), nullString(job.ResultRecordID), cols.resultIDs,
		cols.result, nullString(job.ErrorMessage), job.Attempts, job.StartedAt, job.UpdatedAt, job.CompletedAt,
		job.LeaseExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1)`, job.ID).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: check job: %w", err)
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrInvalidTransition
	}
	return nil
}

type jobJSON struct {
	targets   []byte
	params    []byte
	resultIDs []byte
	result    []byte
}

func encodeJob(job *domain.Job) (*jobJSON, error) {
	var (
		out jobJSON
		err error
	)
	targets := job.TargetRecordIDs
	if targets == nil {
		targets = []string{}
	}
	if out.targets, err = json.Marshal(targets); err != nil {
		return nil, fmt.Errorf("encode targets: %w", err)
	}
	params := job.Parameters
	if params == nil {
		params = map[string]interface{}{}
	}
	if out.params, err = json.Marshal(params); err != nil {
		return nil, fmt.Errorf("encode parameters: %w", err)
	}
	resultIDs := job.ResultRecordIDs
	if resultIDs == nil {
		resultIDs = []string{}
	}
	if out.resultIDs, err = json.Marshal(resultIDs); err != nil {
		return nil, fmt.Errorf("encode result ids: %w", err)
	}
	if job.Result != nil {
		if out.result, err = json.Marshal(job.Result); err != nil {
			return nil, fmt.Errorf("encode result: %w", err)
		}
	}
	return &out, nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job                        domain.Job
		jobType, status            string
		targets, params, resultIDs []byte
		result                     []byte
		resultRecordID, errMessage *string
		startedAt, completedAt     *time.Time
		leaseExpiresAt             *time.Time
	)
	err := row.Scan(
		&job.ID, &jobType, &job.OwnerID, &targets, &params, &status, &resultRecordID,
		&resultIDs, &result, &errMessage, &job.Attempts, &job.CreatedAt, &startedAt, &job.UpdatedAt, &completedAt,
		&leaseExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	job.Type = domain.JobType(jobType)
	job.Status = domain.JobStatus(status)
	job.StartedAt = startedAt
	job.CompletedAt = completedAt
	job.LeaseExpiresAt = leaseExpiresAt
	if resultRecordID != nil {
		job.ResultRecordID = *resultRecordID
	}
	if errMessage != nil {
		job.ErrorMessage = *errMessage
	}
	if err := json.Unmarshal(targets, &job.TargetRecordIDs); err != nil {
		return nil, fmt.Errorf("decode targets: %w", err)
	}
	if err := json.Unmarshal(params, &job.Parameters); err != nil {
		return nil, fmt.Errorf("decode parameters: %w", err)
	}
	if err := json.Unmarshal(resultIDs, &job.ResultRecordIDs); err != nil {
		return nil, fmt.Errorf("decode result ids: %w", err)
	}
	if len(result) > 0 {
		if err := json.Unmarshal(result, &job.Result); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
	}
	return &job, nil
}

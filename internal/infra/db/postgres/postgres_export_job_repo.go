package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"async-import-export/internal/domain"
	"async-import-export/internal/domain/model"
	"async-import-export/internal/domain/ports/repository"
)

var _ repository.ExportJobRepository = (*exportJobRepo)(nil)

type exportJobRepo struct {
	pool *pgxpool.Pool
}

func NewExportJobRepo(pool *pgxpool.Pool) *exportJobRepo {
	return &exportJobRepo{pool: pool}
}

const exportJobColumns = `
id, resource_key, resource_params, file_format, file_path, status, result,
error_message, traceback, progress_current, progress_total, task_id,
created_at, updated_at, started_at, finished_at`

func (r *exportJobRepo) Create(ctx context.Context, tx repository.Tx, job *model.ExportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.UpdatedAt = time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = job.UpdatedAt
	}

	params, result, err := marshalJobPayloads(job.ResourceParams, job.Result)
	if err != nil {
		return err
	}

	const q = `
INSERT INTO export_jobs (` + exportJobColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16);`

	_, err = execSQL(ctx, r.pool, tx, q,
		job.ID, job.ResourceKey, params, job.FileFormat, job.FilePath, job.Status, result,
		job.ErrorMessage, job.Traceback, job.Progress.Current, job.Progress.Total, job.TaskID,
		job.CreatedAt, job.UpdatedAt, job.StartedAt, job.FinishedAt)
	return err
}

func (r *exportJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ExportJob, error) {
	const q = `SELECT ` + exportJobColumns + ` FROM export_jobs WHERE id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanExportJob(row)
}

func (r *exportJobRepo) List(ctx context.Context, tx repository.Tx, offset, limit int) ([]*model.ExportJob, error) {
	const q = `SELECT ` + exportJobColumns + `
FROM export_jobs ORDER BY created_at DESC OFFSET $1 LIMIT $2;`
	rows, err := pickRows(ctx, r.pool, tx, q, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*model.ExportJob
	for rows.Next() {
		job, err := scanExportJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *exportJobRepo) Count(ctx context.Context, tx repository.Tx) (int, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT count(*) FROM export_jobs;`)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}

// ClaimExporting is the application-level idempotency barrier: the task queue
// guarantees at-least-once delivery, so a duplicate delivery finds the job
// already past CREATED and is rejected here instead of re-running rows.
func (r *exportJobRepo) ClaimExporting(ctx context.Context, id string) (*model.ExportJob, error) {
	const q = `
UPDATE export_jobs
SET status = $2, started_at = now(), updated_at = now()
WHERE id = $1 AND status = $3
RETURNING ` + exportJobColumns + `;`

	row, err := pickRow(ctx, r.pool, nil, q, id, model.ExportStatusExporting, model.ExportStatusCreated)
	if err != nil {
		return nil, err
	}
	job, err := scanExportJob(row)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, r.claimFailure(ctx, id)
	}
	return job, err
}

func (r *exportJobRepo) claimFailure(ctx context.Context, id string) error {
	status, err := r.GetStatus(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: export job %s is %s", domain.ErrIllegalTransition, id, status)
}

func (r *exportJobRepo) Update(ctx context.Context, tx repository.Tx, job *model.ExportJob, from model.ExportStatus) error {
	job.UpdatedAt = time.Now()
	params, result, err := marshalJobPayloads(job.ResourceParams, job.Result)
	if err != nil {
		return err
	}

	const q = `
UPDATE export_jobs
SET resource_params = $3, file_path = $4, status = $5, result = $6,
    error_message = $7, traceback = $8, progress_current = $9, progress_total = $10,
    task_id = $11, updated_at = $12, started_at = $13, finished_at = $14
WHERE id = $1 AND status = $2;`

	tag, err := execSQL(ctx, r.pool, tx, q,
		job.ID, from, params, job.FilePath, job.Status, result,
		job.ErrorMessage, job.Traceback, job.Progress.Current, job.Progress.Total,
		job.TaskID, job.UpdatedAt, job.StartedAt, job.FinishedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.claimFailure(ctx, job.ID)
	}
	return nil
}

func (r *exportJobRepo) SetProgress(ctx context.Context, id string, p model.Progress) error {
	const q = `
UPDATE export_jobs SET progress_current = $2, progress_total = $3, updated_at = now()
WHERE id = $1;`
	_, err := execSQL(ctx, r.pool, nil, q, id, p.Current, p.Total)
	return err
}

func (r *exportJobRepo) GetProgress(ctx context.Context, id string) (model.Progress, error) {
	row, err := pickRow(ctx, r.pool, nil,
		`SELECT progress_current, progress_total FROM export_jobs WHERE id = $1;`, id)
	if err != nil {
		return model.Progress{}, err
	}
	var p model.Progress
	if err := row.Scan(&p.Current, &p.Total); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Progress{}, domain.ErrNotFound
		}
		return model.Progress{}, domain.ErrReadDatabaseRow
	}
	return p, nil
}

func (r *exportJobRepo) GetStatus(ctx context.Context, id string) (model.ExportStatus, error) {
	row, err := pickRow(ctx, r.pool, nil, `SELECT status FROM export_jobs WHERE id = $1;`, id)
	if err != nil {
		return "", err
	}
	var status string
	if err := row.Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrNotFound
		}
		return "", domain.ErrReadDatabaseRow
	}
	return model.ExportStatus(status), nil
}

func (r *exportJobRepo) Cancel(ctx context.Context, id string) error {
	const q = `
UPDATE export_jobs SET status = $2, updated_at = now()
WHERE id = $1 AND status IN ($3, $4);`
	tag, err := execSQL(ctx, r.pool, nil, q, id,
		model.ExportStatusCancelled, model.ExportStatusCreated, model.ExportStatusExporting)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.claimFailure(ctx, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanExportJob(row rowScanner) (*model.ExportJob, error) {
	var (
		job        model.ExportJob
		statusStr  string
		paramsJSON []byte
		resultJSON []byte
	)
	err := row.Scan(
		&job.ID, &job.ResourceKey, &paramsJSON, &job.FileFormat, &job.FilePath, &statusStr, &resultJSON,
		&job.ErrorMessage, &job.Traceback, &job.Progress.Current, &job.Progress.Total, &job.TaskID,
		&job.CreatedAt, &job.UpdatedAt, &job.StartedAt, &job.FinishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	job.Status = model.ExportStatus(statusStr)
	if err := unmarshalJobPayloads(paramsJSON, resultJSON, &job.ResourceParams, &job.Result); err != nil {
		return nil, err
	}
	return &job, nil
}

func marshalJobPayloads(params model.Params, result *model.Result) (string, interface{}, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return "", nil, err
	}
	if result == nil {
		return string(paramsJSON), nil, nil
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return "", nil, err
	}
	return string(paramsJSON), string(resultJSON), nil
}

func unmarshalJobPayloads(paramsJSON, resultJSON []byte, params *model.Params, result **model.Result) error {
	if len(paramsJSON) > 0 {
		if err := json.Unmarshal(paramsJSON, params); err != nil {
			return domain.ErrReadDatabaseRow
		}
	}
	if len(resultJSON) > 0 {
		var res model.Result
		if err := json.Unmarshal(resultJSON, &res); err != nil {
			return domain.ErrReadDatabaseRow
		}
		*result = &res
	}
	return nil
}

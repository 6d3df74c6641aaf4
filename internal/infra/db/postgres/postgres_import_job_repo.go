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

var _ repository.ImportJobRepository = (*importJobRepo)(nil)

type importJobRepo struct {
	pool *pgxpool.Pool
}

func NewImportJobRepo(pool *pgxpool.Pool) *importJobRepo {
	return &importJobRepo{pool: pool}
}

const importJobColumns = `
id, resource_key, resource_params, filename, file_path, status,
skip_confirm, force_import, fail_fast, parsed_data, result,
error_message, traceback, progress_current, progress_total, task_id,
created_at, updated_at, started_at, parse_finished, apply_started, finished_at`

func (r *importJobRepo) Create(ctx context.Context, tx repository.Tx, job *model.ImportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.UpdatedAt = time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = job.UpdatedAt
	}

	params, parsed, result, err := marshalImportPayloads(job)
	if err != nil {
		return err
	}

	const q = `
INSERT INTO import_jobs (` + importJobColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
        $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22);`

	_, err = execSQL(ctx, r.pool, tx, q,
		job.ID, job.ResourceKey, params, job.Filename, job.FilePath, job.Status,
		job.SkipConfirm, job.ForceImport, job.FailFast, parsed, result,
		job.ErrorMessage, job.Traceback, job.Progress.Current, job.Progress.Total, job.TaskID,
		job.CreatedAt, job.UpdatedAt, job.StartedAt, job.ParseFinished, job.ApplyStartedAt, job.FinishedAt)
	return err
}

func (r *importJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ImportJob, error) {
	const q = `SELECT ` + importJobColumns + ` FROM import_jobs WHERE id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanImportJob(row)
}

func (r *importJobRepo) List(ctx context.Context, tx repository.Tx, offset, limit int) ([]*model.ImportJob, error) {
	const q = `SELECT ` + importJobColumns + `
FROM import_jobs ORDER BY created_at DESC OFFSET $1 LIMIT $2;`
	rows, err := pickRows(ctx, r.pool, tx, q, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*model.ImportJob
	for rows.Next() {
		job, err := scanImportJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *importJobRepo) Count(ctx context.Context, tx repository.Tx) (int, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT count(*) FROM import_jobs;`)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}

// ClaimParsing atomically moves a CREATED job to PARSING; duplicate task
// deliveries find the job already claimed and are rejected.
func (r *importJobRepo) ClaimParsing(ctx context.Context, id string) (*model.ImportJob, error) {
	const q = `
UPDATE import_jobs
SET status = $2, started_at = now(), updated_at = now()
WHERE id = $1 AND status = $3
RETURNING ` + importJobColumns + `;`

	row, err := pickRow(ctx, r.pool, nil, q, id, model.ImportStatusParsing, model.ImportStatusCreated)
	if err != nil {
		return nil, err
	}
	job, err := scanImportJob(row)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, r.claimFailure(ctx, id)
	}
	return job, err
}

// ClaimApply stamps the apply-phase start on a CONFIRMING job. The stamp is
// what makes confirmation single-use under at-least-once task delivery.
func (r *importJobRepo) ClaimApply(ctx context.Context, id string) (*model.ImportJob, error) {
	const q = `
UPDATE import_jobs
SET apply_started = now(), updated_at = now()
WHERE id = $1 AND status = $2 AND apply_started IS NULL
RETURNING ` + importJobColumns + `;`

	row, err := pickRow(ctx, r.pool, nil, q, id, model.ImportStatusConfirming)
	if err != nil {
		return nil, err
	}
	job, err := scanImportJob(row)
	if !errors.Is(err, domain.ErrNotFound) {
		return job, err
	}

	// Distinguish a duplicate delivery from a plain bad state.
	existing, ferr := r.FindByID(ctx, nil, id)
	if ferr != nil {
		return nil, ferr
	}
	if existing.Status == model.ImportStatusConfirming && existing.ApplyStartedAt != nil {
		return nil, fmt.Errorf("%w: import job %s apply already started", domain.ErrAlreadyClaimed, id)
	}
	return nil, fmt.Errorf("%w: import job %s is %s", domain.ErrIllegalTransition, id, existing.Status)
}

func (r *importJobRepo) claimFailure(ctx context.Context, id string) error {
	status, err := r.GetStatus(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: import job %s is %s", domain.ErrIllegalTransition, id, status)
}

func (r *importJobRepo) Update(ctx context.Context, tx repository.Tx, job *model.ImportJob, from model.ImportStatus) error {
	job.UpdatedAt = time.Now()
	params, parsed, result, err := marshalImportPayloads(job)
	if err != nil {
		return err
	}

	const q = `
UPDATE import_jobs
SET resource_params = $3, file_path = $4, status = $5, parsed_data = $6, result = $7,
    error_message = $8, traceback = $9, progress_current = $10, progress_total = $11,
    task_id = $12, updated_at = $13, started_at = $14, parse_finished = $15,
    apply_started = $16, finished_at = $17
WHERE id = $1 AND status = $2;`

	tag, err := execSQL(ctx, r.pool, tx, q,
		job.ID, from, params, job.FilePath, job.Status, parsed, result,
		job.ErrorMessage, job.Traceback, job.Progress.Current, job.Progress.Total,
		job.TaskID, job.UpdatedAt, job.StartedAt, job.ParseFinished,
		job.ApplyStartedAt, job.FinishedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.claimFailure(ctx, job.ID)
	}
	return nil
}

func (r *importJobRepo) SetProgress(ctx context.Context, id string, p model.Progress) error {
	const q = `
UPDATE import_jobs SET progress_current = $2, progress_total = $3, updated_at = now()
WHERE id = $1;`
	_, err := execSQL(ctx, r.pool, nil, q, id, p.Current, p.Total)
	return err
}

func (r *importJobRepo) GetProgress(ctx context.Context, id string) (model.Progress, error) {
	row, err := pickRow(ctx, r.pool, nil,
		`SELECT progress_current, progress_total FROM import_jobs WHERE id = $1;`, id)
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

func (r *importJobRepo) GetStatus(ctx context.Context, id string) (model.ImportStatus, error) {
	row, err := pickRow(ctx, r.pool, nil, `SELECT status FROM import_jobs WHERE id = $1;`, id)
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
	return model.ImportStatus(status), nil
}

func (r *importJobRepo) Cancel(ctx context.Context, id string) error {
	const q = `
UPDATE import_jobs SET status = $2, updated_at = now()
WHERE id = $1 AND status IN ($3, $4, $5, $6);`
	tag, err := execSQL(ctx, r.pool, nil, q, id, model.ImportStatusCancelled,
		model.ImportStatusCreated, model.ImportStatusParsing,
		model.ImportStatusParsed, model.ImportStatusConfirming)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.claimFailure(ctx, id)
	}
	return nil
}

func scanImportJob(row rowScanner) (*model.ImportJob, error) {
	var (
		job        model.ImportJob
		statusStr  string
		paramsJSON []byte
		parsedJSON []byte
		resultJSON []byte
	)
	err := row.Scan(
		&job.ID, &job.ResourceKey, &paramsJSON, &job.Filename, &job.FilePath, &statusStr,
		&job.SkipConfirm, &job.ForceImport, &job.FailFast, &parsedJSON, &resultJSON,
		&job.ErrorMessage, &job.Traceback, &job.Progress.Current, &job.Progress.Total, &job.TaskID,
		&job.CreatedAt, &job.UpdatedAt, &job.StartedAt, &job.ParseFinished, &job.ApplyStartedAt, &job.FinishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	job.Status = model.ImportStatus(statusStr)
	if err := unmarshalJobPayloads(paramsJSON, resultJSON, &job.ResourceParams, &job.Result); err != nil {
		return nil, err
	}
	if len(parsedJSON) > 0 {
		var ds model.Dataset
		if err := json.Unmarshal(parsedJSON, &ds); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		job.ParsedData = &ds
	}
	return &job, nil
}

func marshalImportPayloads(job *model.ImportJob) (string, interface{}, interface{}, error) {
	params, result, err := marshalJobPayloads(job.ResourceParams, job.Result)
	if err != nil {
		return "", nil, nil, err
	}
	if job.ParsedData == nil {
		return params, nil, result, nil
	}
	parsedJSON, err := json.Marshal(job.ParsedData)
	if err != nil {
		return "", nil, nil, err
	}
	return params, string(parsedJSON), result, nil
}

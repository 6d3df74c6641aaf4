package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"async-import-export/internal/domain"
	"async-import-export/internal/domain/model"
	"async-import-export/internal/domain/ports/queue"
	"async-import-export/internal/domain/ports/repository"
	"async-import-export/internal/infra/storage"
	"async-import-export/internal/resource"
)

const importArtifactDir = "imports"

// ImportJobUseCase manages import jobs through both phases: the parse dry run
// and the confirmed apply.
type ImportJobUseCase struct {
	repo    repository.ImportJobRepository
	txm     repository.TransactionManager
	queue   queue.TaskQueue
	adapter *resource.Adapter
	store   storage.ArtifactStore
	log     zerolog.Logger
}

func NewImportJobUseCase(
	repo repository.ImportJobRepository,
	txm repository.TransactionManager,
	q queue.TaskQueue,
	adapter *resource.Adapter,
	store storage.ArtifactStore,
	logger zerolog.Logger,
) *ImportJobUseCase {
	return &ImportJobUseCase{
		repo:    repo,
		txm:     txm,
		queue:   q,
		adapter: adapter,
		store:   store,
		log:     logger.With().Str("component", "import-uc").Logger(),
	}
}

// Create validates the request synchronously, stores the input file and
// enqueues the parse phase. The row ceiling is enforced here: an oversized
// file is rejected before any job exists, so no rows are ever processed.
func (uc *ImportJobUseCase) Create(
	ctx context.Context,
	resourceKey, filename string,
	data []byte,
	params model.Params,
	opts model.ImportOptions,
) (*model.ImportJob, error) {
	if err := uc.adapter.ValidateKey(resourceKey); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: input file is empty", domain.ErrInvalidArgument)
	}
	if _, err := uc.adapter.ParseDataset(filename, data); err != nil {
		return nil, err
	}

	job := model.NewImportJob(resourceKey, filename, params, opts)
	job.ID = uuid.NewString()

	path, err := uc.store.Save(importArtifactDir, job.ID, filename, data)
	if err != nil {
		return nil, fmt.Errorf("store input file: %w", err)
	}
	job.FilePath = path

	if err := uc.repo.Create(ctx, nil, job); err != nil {
		return nil, fmt.Errorf("create import job: %w", err)
	}

	taskID, err := uc.queue.EnqueueParse(ctx, job.ID)
	if err != nil {
		uc.log.Error().Err(err).Str("job_id", job.ID).Msg("enqueue parse")
		if ferr := job.FailParse(fmt.Sprintf("enqueue: %v", err), ""); ferr == nil {
			_ = uc.repo.Update(ctx, nil, job, model.ImportStatusCreated)
		}
		return nil, fmt.Errorf("enqueue import job: %w", err)
	}
	job.TaskID = taskID
	if err := uc.repo.Update(ctx, nil, job, model.ImportStatusCreated); err != nil &&
		!errors.Is(err, domain.ErrIllegalTransition) {
		return nil, err
	}

	uc.log.Info().Str("job_id", job.ID).Str("resource", resourceKey).
		Str("file", filename).Msg("import job created")
	return job, nil
}

// Confirm moves a reviewed PARSED job into the apply phase and enqueues it.
// The PARSED to CONFIRMING update is a compare-and-set, so a confirm can
// succeed at most once per job.
func (uc *ImportJobUseCase) Confirm(ctx context.Context, id string) (*model.ImportJob, error) {
	job, err := uc.repo.FindByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if err := job.Confirm(); err != nil {
		return nil, err
	}
	if err := uc.repo.Update(ctx, nil, job, model.ImportStatusParsed); err != nil {
		return nil, err
	}

	taskID, err := uc.queue.EnqueueConfirm(ctx, job.ID)
	if err != nil {
		uc.log.Error().Err(err).Str("job_id", job.ID).Msg("enqueue confirm")
		if ferr := job.FailInput(fmt.Sprintf("enqueue: %v", err), ""); ferr == nil {
			_ = uc.repo.Update(ctx, nil, job, model.ImportStatusConfirming)
		}
		return nil, fmt.Errorf("enqueue confirm: %w", err)
	}
	job.TaskID = taskID
	if err := uc.repo.Update(ctx, nil, job, model.ImportStatusConfirming); err != nil &&
		!errors.Is(err, domain.ErrIllegalTransition) {
		return nil, err
	}

	uc.log.Info().Str("job_id", job.ID).Msg("import job confirmed")
	return job, nil
}

func (uc *ImportJobUseCase) Get(ctx context.Context, id string) (*model.ImportJob, error) {
	return uc.repo.FindByID(ctx, nil, id)
}

// List returns one page of jobs, newest first, and the total count. Page and
// count are read in one transaction so they describe the same snapshot.
func (uc *ImportJobUseCase) List(ctx context.Context, offset, limit int) ([]*model.ImportJob, int, error) {
	var (
		jobs  []*model.ImportJob
		total int
	)
	read := func(ctx context.Context, tx repository.Tx) error {
		var err error
		if jobs, err = uc.repo.List(ctx, tx, offset, limit); err != nil {
			return err
		}
		total, err = uc.repo.Count(ctx, tx)
		return err
	}
	if uc.txm == nil {
		if err := read(ctx, nil); err != nil {
			return nil, 0, err
		}
		return jobs, total, nil
	}
	if err := uc.txm.WithTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly}, read); err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

func (uc *ImportJobUseCase) Progress(ctx context.Context, id string) (model.Progress, error) {
	return uc.repo.GetProgress(ctx, id)
}

// Cancel requests cooperative cancellation from any non-terminal status.
// Rows already applied stay applied.
func (uc *ImportJobUseCase) Cancel(ctx context.Context, id string) error {
	if err := uc.repo.Cancel(ctx, id); err != nil {
		return err
	}
	uc.log.Info().Str("job_id", id).Msg("import job cancelled")
	return nil
}

// Download streams the original input file of the job.
func (uc *ImportJobUseCase) Download(ctx context.Context, id string) (io.ReadCloser, string, error) {
	job, err := uc.repo.FindByID(ctx, nil, id)
	if err != nil {
		return nil, "", err
	}
	if job.FilePath == "" {
		return nil, "", fmt.Errorf("%w: import job %s has no input file", domain.ErrNoArtifact, job.ID)
	}
	rc, err := uc.store.Open(job.FilePath)
	if err != nil {
		return nil, "", err
	}
	return rc, job.Filename, nil
}

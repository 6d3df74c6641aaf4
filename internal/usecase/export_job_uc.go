// Package usecase implements the application operations exposed over the
// admin API: creating jobs, inspecting them, cancelling them and fetching
// their artifacts. Use cases validate input synchronously and hand long
// running work to the task queue.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"async-import-export/internal/domain"
	"async-import-export/internal/domain/model"
	"async-import-export/internal/domain/ports/queue"
	"async-import-export/internal/domain/ports/repository"
	"async-import-export/internal/infra/storage"
	"async-import-export/internal/resource"
)

// ExportJobUseCase manages export jobs.
type ExportJobUseCase struct {
	repo    repository.ExportJobRepository
	txm     repository.TransactionManager
	queue   queue.TaskQueue
	adapter *resource.Adapter
	store   storage.ArtifactStore
	log     zerolog.Logger
}

func NewExportJobUseCase(
	repo repository.ExportJobRepository,
	txm repository.TransactionManager,
	q queue.TaskQueue,
	adapter *resource.Adapter,
	store storage.ArtifactStore,
	logger zerolog.Logger,
) *ExportJobUseCase {
	return &ExportJobUseCase{
		repo:    repo,
		txm:     txm,
		queue:   q,
		adapter: adapter,
		store:   store,
		log:     logger.With().Str("component", "export-uc").Logger(),
	}
}

// Create validates the request, persists a CREATED job and enqueues its run.
// Unknown resource keys and formats fail synchronously; nothing is enqueued.
func (uc *ExportJobUseCase) Create(ctx context.Context, resourceKey, fileFormat string, params model.Params) (*model.ExportJob, error) {
	if err := uc.adapter.ValidateKey(resourceKey); err != nil {
		return nil, err
	}
	if _, err := resource.FormatByName(fileFormat); err != nil {
		return nil, err
	}

	job := model.NewExportJob(resourceKey, fileFormat, params)
	if err := uc.repo.Create(ctx, nil, job); err != nil {
		return nil, fmt.Errorf("create export job: %w", err)
	}

	taskID, err := uc.queue.EnqueueExport(ctx, job.ID)
	if err != nil {
		// The job exists but will never run; record that instead of leaving
		// it stuck in CREATED.
		uc.log.Error().Err(err).Str("job_id", job.ID).Msg("enqueue export")
		if ferr := job.Fail(fmt.Sprintf("enqueue: %v", err), ""); ferr == nil {
			_ = uc.repo.Update(ctx, nil, job, model.ExportStatusCreated)
		}
		return nil, fmt.Errorf("enqueue export job: %w", err)
	}
	job.TaskID = taskID
	if err := uc.repo.Update(ctx, nil, job, model.ExportStatusCreated); err != nil &&
		!errors.Is(err, domain.ErrIllegalTransition) {
		return nil, err
	}

	uc.log.Info().Str("job_id", job.ID).Str("resource", resourceKey).
		Str("format", fileFormat).Msg("export job created")
	return job, nil
}

func (uc *ExportJobUseCase) Get(ctx context.Context, id string) (*model.ExportJob, error) {
	return uc.repo.FindByID(ctx, nil, id)
}

// List returns one page of jobs, newest first, and the total count. Page and
// count are read in one transaction so they describe the same snapshot.
func (uc *ExportJobUseCase) List(ctx context.Context, offset, limit int) ([]*model.ExportJob, int, error) {
	var (
		jobs  []*model.ExportJob
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

func (uc *ExportJobUseCase) Progress(ctx context.Context, id string) (model.Progress, error) {
	return uc.repo.GetProgress(ctx, id)
}

// Cancel requests cooperative cancellation. A terminal job reports an
// illegal transition; rows already written are not rolled back.
func (uc *ExportJobUseCase) Cancel(ctx context.Context, id string) error {
	if err := uc.repo.Cancel(ctx, id); err != nil {
		return err
	}
	uc.log.Info().Str("job_id", id).Msg("export job cancelled")
	return nil
}

// Download streams the artifact of an EXPORTED job.
func (uc *ExportJobUseCase) Download(ctx context.Context, id string) (io.ReadCloser, string, error) {
	job, err := uc.repo.FindByID(ctx, nil, id)
	if err != nil {
		return nil, "", err
	}
	if !job.Succeeded() || job.FilePath == "" {
		return nil, "", fmt.Errorf("%w: export job %s has status %s", domain.ErrNoArtifact, job.ID, job.Status)
	}
	rc, err := uc.store.Open(job.FilePath)
	if err != nil {
		return nil, "", err
	}
	return rc, filepath.Base(job.FilePath), nil
}

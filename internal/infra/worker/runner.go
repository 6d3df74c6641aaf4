// Package worker executes claimed jobs: it drives the chunked row loop,
// persists progress, observes cancellation and finalizes the job record.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"async-import-export/internal/domain"
	"async-import-export/internal/domain/model"
	"async-import-export/internal/domain/ports/engine"
	"async-import-export/internal/domain/ports/repository"
	"async-import-export/internal/infra/metrics"
	"async-import-export/internal/infra/queue"
	"async-import-export/internal/infra/storage"
	"async-import-export/internal/resource"
)

const (
	kindExport = "export"
	kindImport = "import"

	exportArtifactDir = "exports"
)

var _ queue.Runner = (*Runner)(nil)

// Runner owns one job run at a time per delivered task. Once a job is
// claimed, every failure of the run (bad file, broken engine, storage,
// panic) is recorded on the job record and settles the delivery. An error
// return after a successful claim means the job record itself could not be
// written; redelivery cannot resume such a run because the claim only
// admits fresh jobs, so the queue drops it and the record keeps its last
// persisted status.
type Runner struct {
	exports  repository.ExportJobRepository
	imports  repository.ImportJobRepository
	adapter  *resource.Adapter
	store    storage.ArtifactStore
	chunkSze int
	log      zerolog.Logger
}

func NewRunner(
	exports repository.ExportJobRepository,
	imports repository.ImportJobRepository,
	adapter *resource.Adapter,
	store storage.ArtifactStore,
	chunkSize int,
	logger zerolog.Logger,
) *Runner {
	if chunkSize <= 0 {
		chunkSize = 100
	}
	return &Runner{
		exports:  exports,
		imports:  imports,
		adapter:  adapter,
		store:    store,
		chunkSze: chunkSize,
		log:      logger.With().Str("component", "job-runner").Logger(),
	}
}

// RunExport executes one export job from claim to terminal status.
func (r *Runner) RunExport(ctx context.Context, jobID string) (err error) {
	job, err := r.exports.ClaimExporting(ctx, jobID)
	if err != nil {
		return err
	}
	start := time.Now()
	log := r.log.With().Str("job_id", job.ID).Str("resource", job.ResourceKey).Logger()
	log.Info().Msg("export started")

	defer func() {
		if rec := recover(); rec != nil {
			err = r.failExport(ctx, job, fmt.Sprintf("panic: %v", rec), string(debug.Stack()))
		}
	}()

	format, err := resource.FormatByName(job.FileFormat)
	if err != nil {
		return r.failExport(ctx, job, err.Error(), "")
	}
	res, ds, err := r.adapter.ExportDataset(ctx, job.ResourceKey, job.ResourceParams)
	if err != nil {
		return r.failExport(ctx, job, err.Error(), "")
	}

	// Encode into memory first so a cancelled or failed run leaves no artifact.
	var buf bytes.Buffer
	enc := format.NewEncoder(&buf)
	headers := ds.Headers
	if len(headers) == 0 {
		headers = res.Headers()
	}
	if err := enc.WriteHeader(headers); err != nil {
		return r.failExport(ctx, job, err.Error(), "")
	}

	total := ds.Len()
	if err := r.exports.SetProgress(ctx, job.ID, model.Progress{Total: total}); err != nil {
		log.Warn().Err(err).Msg("persist progress")
	}
	result := &model.Result{}
	for i, row := range ds.Rows {
		if err := enc.WriteRow(row); err != nil {
			return r.failExport(ctx, job, fmt.Sprintf("encode row %d: %v", i+1, err), "")
		}
		done := i + 1
		if done%r.chunkSze == 0 || done == total {
			if err := r.exports.SetProgress(ctx, job.ID, model.Progress{Current: done, Total: total}); err != nil {
				log.Warn().Err(err).Msg("persist progress")
			}
			cancelled, err := r.exportCancelled(ctx, job.ID)
			if err != nil {
				return r.failExport(ctx, job, fmt.Sprintf("check job status: %v", err), "")
			}
			if cancelled {
				log.Info().Int("rows", done).Msg("export cancelled")
				metrics.IncJobFinished(kindExport, string(model.ExportStatusCancelled))
				return nil
			}
		}
	}
	if err := enc.Close(); err != nil {
		return r.failExport(ctx, job, err.Error(), "")
	}
	result.AppendExported(total)

	filename := r.adapter.ExportFilename(job.ResourceKey, job.ResourceParams, format)
	path, err := r.store.Save(exportArtifactDir, job.ID, filename, buf.Bytes())
	if err != nil {
		return r.failExport(ctx, job, fmt.Sprintf("store artifact: %v", err), "")
	}

	if err := job.FinishExported(path, result); err != nil {
		return err
	}
	if err := r.exports.Update(ctx, nil, job, model.ExportStatusExporting); err != nil {
		if errors.Is(err, domain.ErrIllegalTransition) {
			// Cancellation won the race; drop the orphaned artifact.
			_ = r.store.Remove(path)
			metrics.IncJobFinished(kindExport, string(model.ExportStatusCancelled))
			return nil
		}
		return err
	}

	metrics.IncJobFinished(kindExport, string(job.Status))
	metrics.AddRowsProcessed(kindExport, total)
	metrics.ObserveJobDuration(kindExport, time.Since(start))
	log.Info().Int("rows", total).Str("file", path).Dur("took", time.Since(start)).
		Msg("export finished")
	return nil
}

// RunParse executes the dry-run phase of one import job. On a clean parse of
// a job created with SkipConfirm it continues straight into the apply phase.
func (r *Runner) RunParse(ctx context.Context, jobID string) (err error) {
	job, err := r.imports.ClaimParsing(ctx, jobID)
	if err != nil {
		return err
	}
	start := time.Now()
	log := r.log.With().Str("job_id", job.ID).Str("resource", job.ResourceKey).Logger()
	log.Info().Str("file", job.Filename).Msg("parse started")

	defer func() {
		if rec := recover(); rec != nil {
			err = r.failParse(ctx, job, fmt.Sprintf("panic: %v", rec), string(debug.Stack()))
		}
	}()

	data, err := r.store.Load(job.FilePath)
	if err != nil {
		return r.failParse(ctx, job, fmt.Sprintf("read input file: %v", err), "")
	}
	ds, err := r.adapter.ParseDataset(job.Filename, data)
	if err != nil {
		return r.failParse(ctx, job, err.Error(), "")
	}
	res, err := r.adapter.Resolve(job.ResourceKey, job.ResourceParams)
	if err != nil {
		return r.failParse(ctx, job, err.Error(), "")
	}

	result, done, err := r.processRows(ctx, job.ID, res, ds, true, job.FailFast, log)
	if err != nil {
		return r.failParse(ctx, job, fmt.Sprintf("check job status: %v", err), "")
	}
	if done < 0 {
		metrics.IncJobFinished(kindImport, string(model.ImportStatusCancelled))
		return nil
	}

	if err := job.FinishParsed(result, ds); err != nil {
		return err
	}
	if err := r.imports.Update(ctx, nil, job, model.ImportStatusParsing); err != nil {
		if errors.Is(err, domain.ErrIllegalTransition) {
			metrics.IncJobFinished(kindImport, string(model.ImportStatusCancelled))
			return nil
		}
		return err
	}
	log.Info().Int("rows", result.TotalRows).Int("invalid", len(result.InvalidRows)).
		Dur("took", time.Since(start)).Msg("parse finished")

	if job.SkipConfirm {
		if err := job.Confirm(); err != nil {
			// Invalid rows block the automatic confirm; the job stays PARSED
			// for review like any other.
			log.Info().Err(err).Msg("skip_confirm blocked, awaiting review")
			return nil
		}
		if err := r.imports.Update(ctx, nil, job, model.ImportStatusParsed); err != nil {
			if errors.Is(err, domain.ErrIllegalTransition) {
				return nil
			}
			return err
		}
		return r.RunConfirm(ctx, job.ID)
	}
	return nil
}

// RunConfirm executes the apply phase of a confirmed import job, re-applying
// the dataset persisted at parse time.
func (r *Runner) RunConfirm(ctx context.Context, jobID string) (err error) {
	job, err := r.imports.ClaimApply(ctx, jobID)
	if err != nil {
		return err
	}
	start := time.Now()
	log := r.log.With().Str("job_id", job.ID).Str("resource", job.ResourceKey).Logger()
	log.Info().Msg("apply started")

	defer func() {
		if rec := recover(); rec != nil {
			err = r.failInput(ctx, job, fmt.Sprintf("panic: %v", rec), string(debug.Stack()))
		}
	}()

	if job.ParsedData == nil {
		return r.failInput(ctx, job, "parsed dataset is missing", "")
	}
	res, err := r.adapter.Resolve(job.ResourceKey, job.ResourceParams)
	if err != nil {
		return r.failInput(ctx, job, err.Error(), "")
	}

	result, done, err := r.processRows(ctx, job.ID, res, job.ParsedData, false, job.FailFast, log)
	if err != nil {
		return r.failInput(ctx, job, fmt.Sprintf("check job status: %v", err), "")
	}
	if done < 0 {
		metrics.IncJobFinished(kindImport, string(model.ImportStatusCancelled))
		return nil
	}
	if job.FailFast && result.HasInvalidRows() {
		last := result.InvalidRows[len(result.InvalidRows)-1]
		return r.failInput(ctx, job,
			fmt.Sprintf("row %d failed: %v", last.Number, firstError(last)), "")
	}

	if err := job.FinishImported(result); err != nil {
		return err
	}
	if err := r.imports.Update(ctx, nil, job, model.ImportStatusConfirming); err != nil {
		if errors.Is(err, domain.ErrIllegalTransition) {
			metrics.IncJobFinished(kindImport, string(model.ImportStatusCancelled))
			return nil
		}
		return err
	}

	metrics.IncJobFinished(kindImport, string(job.Status))
	metrics.AddRowsProcessed(kindImport, result.TotalRows)
	metrics.ObserveJobDuration(kindImport, time.Since(start))
	log.Info().Int("rows", result.TotalRows).Int("failed", result.Totals.Failed).
		Dur("took", time.Since(start)).Msg("apply finished")
	return nil
}

// processRows runs the chunked row loop shared by both import phases. It
// returns done == -1 when the job was cancelled mid-run.
func (r *Runner) processRows(
	ctx context.Context,
	jobID string,
	res engine.Resource,
	ds *model.Dataset,
	dryRun bool,
	failFast bool,
	log zerolog.Logger,
) (*model.Result, int, error) {
	total := ds.Len()
	if err := r.imports.SetProgress(ctx, jobID, model.Progress{Total: total}); err != nil {
		log.Warn().Err(err).Msg("persist progress")
	}
	result := &model.Result{}
	done := 0
	for i, row := range ds.Rows {
		number := i + 1
		rowRes, err := res.ImportRow(ctx, number, row, dryRun)
		if err != nil {
			// Engine-level breakage, not a row problem. Record it as a failed
			// row so the result stays consistent with rows processed.
			rowRes = model.RowResult{
				Number: number,
				Kind:   model.RowFailed,
				Errors: []string{err.Error()},
			}
		}
		result.Append(rowRes)
		done = number

		if failFast && rowRes.Invalid() {
			log.Info().Int("row", number).Msg("stopping at first invalid row")
			break
		}
		if number%r.chunkSze == 0 || number == total {
			if err := r.imports.SetProgress(ctx, jobID, model.Progress{Current: number, Total: total}); err != nil {
				log.Warn().Err(err).Msg("persist progress")
			}
			status, err := r.imports.GetStatus(ctx, jobID)
			if err != nil {
				return nil, 0, err
			}
			if status == model.ImportStatusCancelled {
				log.Info().Int("rows", number).Msg("import cancelled")
				return nil, -1, nil
			}
		}
	}
	return result, done, nil
}

func (r *Runner) exportCancelled(ctx context.Context, jobID string) (bool, error) {
	status, err := r.exports.GetStatus(ctx, jobID)
	if err != nil {
		return false, err
	}
	return status == model.ExportStatusCancelled, nil
}

// failExport records a run failure on the export job. A concurrent cancel
// wins the race and the failure is discarded.
func (r *Runner) failExport(ctx context.Context, job *model.ExportJob, message, traceback string) error {
	from := job.Status
	if err := job.Fail(message, traceback); err != nil {
		return err
	}
	if err := r.exports.Update(ctx, nil, job, from); err != nil {
		if errors.Is(err, domain.ErrIllegalTransition) {
			return nil
		}
		return err
	}
	metrics.IncJobFinished(kindExport, string(model.ExportStatusExportError))
	r.log.Error().Str("job_id", job.ID).Str("error", message).Msg("export failed")
	return nil
}

func (r *Runner) failParse(ctx context.Context, job *model.ImportJob, message, traceback string) error {
	from := job.Status
	if err := job.FailParse(message, traceback); err != nil {
		return err
	}
	if err := r.imports.Update(ctx, nil, job, from); err != nil {
		if errors.Is(err, domain.ErrIllegalTransition) {
			return nil
		}
		return err
	}
	metrics.IncJobFinished(kindImport, string(model.ImportStatusParseError))
	r.log.Error().Str("job_id", job.ID).Str("error", message).Msg("parse failed")
	return nil
}

func (r *Runner) failInput(ctx context.Context, job *model.ImportJob, message, traceback string) error {
	from := job.Status
	if err := job.FailInput(message, traceback); err != nil {
		return err
	}
	if err := r.imports.Update(ctx, nil, job, from); err != nil {
		if errors.Is(err, domain.ErrIllegalTransition) {
			return nil
		}
		return err
	}
	metrics.IncJobFinished(kindImport, string(model.ImportStatusInputError))
	r.log.Error().Str("job_id", job.ID).Str("error", message).Msg("apply failed")
	return nil
}

func firstError(row model.InvalidRow) string {
	if len(row.NonFieldErrors) > 0 {
		return row.NonFieldErrors[0]
	}
	for field, msg := range row.FieldErrors {
		return fmt.Sprintf("%s: %s", field, msg)
	}
	return "validation failed"
}

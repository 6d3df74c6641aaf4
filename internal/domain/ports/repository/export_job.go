package repository

import (
	"context"

	"async-import-export/internal/domain/model"
)

type ExportJobRepository interface {
	Create(ctx context.Context, tx Tx, job *model.ExportJob) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.ExportJob, error)
	List(ctx context.Context, tx Tx, offset, limit int) ([]*model.ExportJob, error)
	Count(ctx context.Context, tx Tx) (int, error)
	// ClaimExporting atomically moves a CREATED job to EXPORTING and returns it.
	// This is the idempotency barrier against duplicate task delivery: a job
	// already past CREATED yields ErrIllegalTransition.
	ClaimExporting(ctx context.Context, id string) (*model.ExportJob, error)
	// Update persists the job's mutable fields iff the stored status still
	// equals from. A cancellation that raced in wins and the update reports
	// ErrIllegalTransition.
	Update(ctx context.Context, tx Tx, job *model.ExportJob, from model.ExportStatus) error
	SetProgress(ctx context.Context, id string, p model.Progress) error
	GetProgress(ctx context.Context, id string) (model.Progress, error)
	GetStatus(ctx context.Context, id string) (model.ExportStatus, error)
	// Cancel marks the job CANCELLED if it is still in a cancellable status.
	Cancel(ctx context.Context, id string) error
}

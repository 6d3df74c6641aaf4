package repository

import (
	"context"

	"async-import-export/internal/domain/model"
)

type ImportJobRepository interface {
	Create(ctx context.Context, tx Tx, job *model.ImportJob) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.ImportJob, error)
	List(ctx context.Context, tx Tx, offset, limit int) ([]*model.ImportJob, error)
	Count(ctx context.Context, tx Tx) (int, error)
	// ClaimParsing atomically moves a CREATED job to PARSING and returns it.
	// A job already past CREATED yields ErrIllegalTransition.
	ClaimParsing(ctx context.Context, id string) (*model.ImportJob, error)
	// ClaimApply claims a CONFIRMING job for the apply phase by stamping its
	// start time. A second delivery of the confirm task finds the stamp set
	// and yields ErrAlreadyClaimed.
	ClaimApply(ctx context.Context, id string) (*model.ImportJob, error)
	// Update persists the job's mutable fields iff the stored status still
	// equals from.
	Update(ctx context.Context, tx Tx, job *model.ImportJob, from model.ImportStatus) error
	SetProgress(ctx context.Context, id string, p model.Progress) error
	GetProgress(ctx context.Context, id string) (model.Progress, error)
	GetStatus(ctx context.Context, id string) (model.ImportStatus, error)
	Cancel(ctx context.Context, id string) error
}

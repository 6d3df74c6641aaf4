package model

import (
	"fmt"
	"time"
	"unicode/utf8"

	"async-import-export/internal/domain"
)

// ExportStatus is the lifecycle stage of an export job.
//
//	CREATED → EXPORTING → {EXPORTED | EXPORT_ERROR}
//
// CANCELLED is reachable from CREATED and EXPORTING. Terminal statuses are
// final: no transition ever leaves them.
type ExportStatus string

const (
	ExportStatusCreated     ExportStatus = "CREATED"
	ExportStatusExporting   ExportStatus = "EXPORTING"
	ExportStatusExported    ExportStatus = "EXPORTED"
	ExportStatusExportError ExportStatus = "EXPORT_ERROR"
	ExportStatusCancelled   ExportStatus = "CANCELLED"
)

// errorMessageLimit bounds the human-readable message; the full detail stays
// in the traceback field.
const errorMessageLimit = 128

type ExportJob struct {
	ID             string       `json:"id"`
	ResourceKey    string       `json:"resource_key"`
	ResourceParams Params       `json:"resource_params"`
	FileFormat     string       `json:"file_format"`
	FilePath       string       `json:"file_path,omitempty"`
	Status         ExportStatus `json:"status"`
	Result         *Result      `json:"result,omitempty"`
	ErrorMessage   string       `json:"error_message,omitempty"`
	Traceback      string       `json:"traceback,omitempty"`
	Progress       Progress     `json:"progress"`
	TaskID         string       `json:"task_id,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	StartedAt      *time.Time   `json:"started_at,omitempty"`
	FinishedAt     *time.Time   `json:"finished_at,omitempty"`
}

func NewExportJob(resourceKey, fileFormat string, params Params) *ExportJob {
	return &ExportJob{
		ResourceKey:    resourceKey,
		ResourceParams: params,
		FileFormat:     fileFormat,
		Status:         ExportStatusCreated,
		CreatedAt:      time.Now(),
	}
}

// IsTerminal reports whether the job reached a final status.
func (j *ExportJob) IsTerminal() bool {
	switch j.Status {
	case ExportStatusExported, ExportStatusExportError, ExportStatusCancelled:
		return true
	}
	return false
}

// Succeeded reports whether the job finished with an artifact.
func (j *ExportJob) Succeeded() bool { return j.Status == ExportStatusExported }

// Start moves the job from CREATED to EXPORTING. Running a job twice is the
// idempotency violation this transition guards against.
func (j *ExportJob) Start() error {
	if err := j.checkStatus(ExportStatusCreated); err != nil {
		return err
	}
	now := time.Now()
	j.Status = ExportStatusExporting
	j.StartedAt = &now
	return nil
}

// FinishExported finalizes a successful run with its artifact and result.
// The artifact path is written once here and never mutated afterwards.
func (j *ExportJob) FinishExported(filePath string, res *Result) error {
	if err := j.checkStatus(ExportStatusExporting); err != nil {
		return err
	}
	now := time.Now()
	j.Status = ExportStatusExported
	j.FilePath = filePath
	j.Result = res
	j.FinishedAt = &now
	return nil
}

// Fail drives the job to EXPORT_ERROR with the captured error details.
func (j *ExportJob) Fail(message, traceback string) error {
	if j.IsTerminal() {
		return fmt.Errorf("%w: export job %s already in terminal status %s",
			domain.ErrIllegalTransition, j.ID, j.Status)
	}
	now := time.Now()
	j.Status = ExportStatusExportError
	j.ErrorMessage = truncate(message, errorMessageLimit)
	j.Traceback = traceback
	j.FinishedAt = &now
	return nil
}

// Cancel marks the job CANCELLED. Legal from CREATED and EXPORTING only; the
// worker observes the new status at the next chunk boundary and stops.
func (j *ExportJob) Cancel() error {
	if err := j.checkStatus(ExportStatusCreated, ExportStatusExporting); err != nil {
		return err
	}
	j.Status = ExportStatusCancelled
	return nil
}

func (j *ExportJob) checkStatus(expected ...ExportStatus) error {
	for _, s := range expected {
		if j.Status == s {
			return nil
		}
	}
	return fmt.Errorf("%w: export job %s has status %s, expected one of %v",
		domain.ErrIllegalTransition, j.ID, j.Status, expected)
}

// truncate cuts s to at most limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

package model

import (
	"fmt"
	"time"

	"async-import-export/internal/domain"
)

// ImportStatus is the lifecycle stage of an import job.
//
//	CREATED → PARSING → {PARSED | PARSE_ERROR}
//	PARSED → CONFIRMING → {IMPORTED | INPUT_ERROR}
//
// CANCELLED is reachable from every non-terminal status. The parse phase is a
// dry run producing a reviewable diff; only a confirmed job mutates rows, and
// confirmation re-applies the dataset persisted at parse time.
type ImportStatus string

const (
	ImportStatusCreated    ImportStatus = "CREATED"
	ImportStatusParsing    ImportStatus = "PARSING"
	ImportStatusParsed     ImportStatus = "PARSED"
	ImportStatusParseError ImportStatus = "PARSE_ERROR"
	ImportStatusConfirming ImportStatus = "CONFIRMING"
	ImportStatusImported   ImportStatus = "IMPORTED"
	ImportStatusInputError ImportStatus = "INPUT_ERROR"
	ImportStatusCancelled  ImportStatus = "CANCELLED"
)

type ImportJob struct {
	ID             string       `json:"id"`
	ResourceKey    string       `json:"resource_key"`
	ResourceParams Params       `json:"resource_params"`
	Filename       string       `json:"filename"`
	FilePath       string       `json:"file_path"`
	Status         ImportStatus `json:"status"`
	SkipConfirm    bool         `json:"skip_confirm"`
	ForceImport    bool         `json:"force_import"`
	FailFast       bool         `json:"fail_fast"`
	ParsedData     *Dataset     `json:"parsed_data,omitempty"`
	Result         *Result      `json:"result,omitempty"`
	ErrorMessage   string       `json:"error_message,omitempty"`
	Traceback      string       `json:"traceback,omitempty"`
	Progress       Progress     `json:"progress"`
	TaskID         string       `json:"task_id,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	StartedAt      *time.Time   `json:"started_at,omitempty"`
	ParseFinished  *time.Time   `json:"parse_finished,omitempty"`
	ApplyStartedAt *time.Time   `json:"apply_started_at,omitempty"`
	FinishedAt     *time.Time   `json:"finished_at,omitempty"`
}

// ImportOptions are the caller-facing knobs of an import job.
type ImportOptions struct {
	SkipConfirm bool
	ForceImport bool
	FailFast    bool
}

func NewImportJob(resourceKey, filename string, params Params, opts ImportOptions) *ImportJob {
	return &ImportJob{
		ResourceKey:    resourceKey,
		ResourceParams: params,
		Filename:       filename,
		Status:         ImportStatusCreated,
		SkipConfirm:    opts.SkipConfirm,
		ForceImport:    opts.ForceImport,
		FailFast:       opts.FailFast,
		CreatedAt:      time.Now(),
	}
}

// IsTerminal reports whether the job reached a final status.
func (j *ImportJob) IsTerminal() bool {
	switch j.Status {
	case ImportStatusParseError, ImportStatusImported, ImportStatusInputError, ImportStatusCancelled:
		return true
	}
	return false
}

// Succeeded reports whether the apply phase finished cleanly.
func (j *ImportJob) Succeeded() bool { return j.Status == ImportStatusImported }

// StartParse moves the job from CREATED to PARSING.
func (j *ImportJob) StartParse() error {
	if err := j.checkStatus(ImportStatusCreated); err != nil {
		return err
	}
	now := time.Now()
	j.Status = ImportStatusParsing
	j.StartedAt = &now
	return nil
}

// FinishParsed stores the dry-run result together with the parsed dataset the
// confirmation phase will re-apply.
func (j *ImportJob) FinishParsed(res *Result, parsed *Dataset) error {
	if err := j.checkStatus(ImportStatusParsing); err != nil {
		return err
	}
	now := time.Now()
	j.Status = ImportStatusParsed
	j.Result = res
	j.ParsedData = parsed
	j.ParseFinished = &now
	return nil
}

// Confirm moves a reviewed job into the apply phase. Blocked while validation
// errors exist unless the job was created with ForceImport. Single use: once
// CONFIRMING, a second confirm is an illegal transition.
func (j *ImportJob) Confirm() error {
	if err := j.checkStatus(ImportStatusParsed); err != nil {
		return err
	}
	if j.Result.HasInvalidRows() && !j.ForceImport {
		return fmt.Errorf("%w: import job %s has %d invalid rows",
			domain.ErrInvalidRows, j.ID, len(j.Result.InvalidRows))
	}
	j.Status = ImportStatusConfirming
	return nil
}

// FinishImported finalizes a successful apply phase. The parse preview is
// superseded by the final result.
func (j *ImportJob) FinishImported(res *Result) error {
	if err := j.checkStatus(ImportStatusConfirming); err != nil {
		return err
	}
	now := time.Now()
	j.Status = ImportStatusImported
	j.Result = res
	j.FinishedAt = &now
	return nil
}

// FailParse drives a job whose file could not be parsed to PARSE_ERROR.
func (j *ImportJob) FailParse(message, traceback string) error {
	if err := j.checkStatus(ImportStatusCreated, ImportStatusParsing); err != nil {
		return err
	}
	return j.fail(ImportStatusParseError, message, traceback)
}

// FailInput drives a failed apply phase to INPUT_ERROR.
func (j *ImportJob) FailInput(message, traceback string) error {
	if err := j.checkStatus(ImportStatusConfirming); err != nil {
		return err
	}
	return j.fail(ImportStatusInputError, message, traceback)
}

// Cancel marks the job CANCELLED from any non-terminal status. Rows already
// applied stay applied; cancellation is cooperative, not a rollback.
func (j *ImportJob) Cancel() error {
	if j.IsTerminal() {
		return fmt.Errorf("%w: import job %s already in terminal status %s",
			domain.ErrIllegalTransition, j.ID, j.Status)
	}
	j.Status = ImportStatusCancelled
	return nil
}

func (j *ImportJob) fail(status ImportStatus, message, traceback string) error {
	now := time.Now()
	j.Status = status
	j.ErrorMessage = truncate(message, errorMessageLimit)
	j.Traceback = traceback
	j.FinishedAt = &now
	return nil
}

func (j *ImportJob) checkStatus(expected ...ImportStatus) error {
	for _, s := range expected {
		if j.Status == s {
			return nil
		}
	}
	return fmt.Errorf("%w: import job %s has status %s, expected one of %v",
		domain.ErrIllegalTransition, j.ID, j.Status, expected)
}

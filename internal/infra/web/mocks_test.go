package web

import (
	"context"
	"fmt"
	"sync"
	"time"

	"async-import-export/internal/domain"
	"async-import-export/internal/domain/model"
	"async-import-export/internal/domain/ports/repository"
)

// fakeQueue records enqueued jobs instead of talking to a broker.
type fakeQueue struct {
	mu       sync.Mutex
	exports  []string
	parses   []string
	confirms []string
}

func (q *fakeQueue) EnqueueExport(ctx context.Context, jobID string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.exports = append(q.exports, jobID)
	return "task-" + jobID, nil
}

func (q *fakeQueue) EnqueueParse(ctx context.Context, jobID string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.parses = append(q.parses, jobID)
	return "task-" + jobID, nil
}

func (q *fakeQueue) EnqueueConfirm(ctx context.Context, jobID string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.confirms = append(q.confirms, jobID)
	return "task-" + jobID, nil
}

type memExportRepo struct {
	mu   sync.Mutex
	jobs map[string]*model.ExportJob
}

var _ repository.ExportJobRepository = (*memExportRepo)(nil)

func newMemExportRepo() *memExportRepo {
	return &memExportRepo{jobs: make(map[string]*model.ExportJob)}
}

func (m *memExportRepo) Create(ctx context.Context, tx repository.Tx, job *model.ExportJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID == "" {
		job.ID = fmt.Sprintf("export-%d", len(m.jobs)+1)
	}
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memExportRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ExportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *memExportRepo) List(ctx context.Context, tx repository.Tx, offset, limit int) ([]*model.ExportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var jobs []*model.ExportJob
	for _, job := range m.jobs {
		cp := *job
		jobs = append(jobs, &cp)
	}
	if offset > len(jobs) {
		offset = len(jobs)
	}
	end := offset + limit
	if end > len(jobs) {
		end = len(jobs)
	}
	return jobs[offset:end], nil
}

func (m *memExportRepo) Count(ctx context.Context, tx repository.Tx) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs), nil
}

func (m *memExportRepo) ClaimExporting(ctx context.Context, id string) (*model.ExportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if job.Status != model.ExportStatusCreated {
		return nil, fmt.Errorf("%w: status %s", domain.ErrIllegalTransition, job.Status)
	}
	now := time.Now()
	job.Status = model.ExportStatusExporting
	job.StartedAt = &now
	cp := *job
	return &cp, nil
}

func (m *memExportRepo) Update(ctx context.Context, tx repository.Tx, job *model.ExportJob, from model.ExportStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.jobs[job.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Status != from {
		return fmt.Errorf("%w: status %s, expected %s", domain.ErrIllegalTransition, stored.Status, from)
	}
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memExportRepo) SetProgress(ctx context.Context, id string, p model.Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	job.Progress = p
	return nil
}

func (m *memExportRepo) GetProgress(ctx context.Context, id string) (model.Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return model.Progress{}, domain.ErrNotFound
	}
	return job.Progress, nil
}

func (m *memExportRepo) GetStatus(ctx context.Context, id string) (model.ExportStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return "", domain.ErrNotFound
	}
	return job.Status, nil
}

func (m *memExportRepo) Cancel(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	switch job.Status {
	case model.ExportStatusCreated, model.ExportStatusExporting:
		job.Status = model.ExportStatusCancelled
		return nil
	}
	return fmt.Errorf("%w: status %s", domain.ErrIllegalTransition, job.Status)
}

type memImportRepo struct {
	mu   sync.Mutex
	jobs map[string]*model.ImportJob
}

var _ repository.ImportJobRepository = (*memImportRepo)(nil)

func newMemImportRepo() *memImportRepo {
	return &memImportRepo{jobs: make(map[string]*model.ImportJob)}
}

func (m *memImportRepo) Create(ctx context.Context, tx repository.Tx, job *model.ImportJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID == "" {
		job.ID = fmt.Sprintf("import-%d", len(m.jobs)+1)
	}
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memImportRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *memImportRepo) List(ctx context.Context, tx repository.Tx, offset, limit int) ([]*model.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var jobs []*model.ImportJob
	for _, job := range m.jobs {
		cp := *job
		jobs = append(jobs, &cp)
	}
	if offset > len(jobs) {
		offset = len(jobs)
	}
	end := offset + limit
	if end > len(jobs) {
		end = len(jobs)
	}
	return jobs[offset:end], nil
}

func (m *memImportRepo) Count(ctx context.Context, tx repository.Tx) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs), nil
}

func (m *memImportRepo) ClaimParsing(ctx context.Context, id string) (*model.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if job.Status != model.ImportStatusCreated {
		return nil, fmt.Errorf("%w: status %s", domain.ErrIllegalTransition, job.Status)
	}
	now := time.Now()
	job.Status = model.ImportStatusParsing
	job.StartedAt = &now
	cp := *job
	return &cp, nil
}

func (m *memImportRepo) ClaimApply(ctx context.Context, id string) (*model.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if job.Status != model.ImportStatusConfirming {
		return nil, fmt.Errorf("%w: status %s", domain.ErrIllegalTransition, job.Status)
	}
	if job.ApplyStartedAt != nil {
		return nil, fmt.Errorf("%w: apply already started", domain.ErrAlreadyClaimed)
	}
	now := time.Now()
	job.ApplyStartedAt = &now
	cp := *job
	return &cp, nil
}

func (m *memImportRepo) Update(ctx context.Context, tx repository.Tx, job *model.ImportJob, from model.ImportStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.jobs[job.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Status != from {
		return fmt.Errorf("%w: status %s, expected %s", domain.ErrIllegalTransition, stored.Status, from)
	}
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memImportRepo) SetProgress(ctx context.Context, id string, p model.Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	job.Progress = p
	return nil
}

func (m *memImportRepo) GetProgress(ctx context.Context, id string) (model.Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return model.Progress{}, domain.ErrNotFound
	}
	return job.Progress, nil
}

func (m *memImportRepo) GetStatus(ctx context.Context, id string) (model.ImportStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return "", domain.ErrNotFound
	}
	return job.Status, nil
}

func (m *memImportRepo) Cancel(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if job.IsTerminal() {
		return fmt.Errorf("%w: status %s", domain.ErrIllegalTransition, job.Status)
	}
	job.Status = model.ImportStatusCancelled
	return nil
}

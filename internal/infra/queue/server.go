package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"async-import-export/internal/config"
	"async-import-export/internal/domain"
)

// Runner executes one delivered task end to end. A nil return means the
// delivery is settled, including the case where the failure was recorded on
// the job itself. A non-nil return asks the broker to redeliver.
type Runner interface {
	RunExport(ctx context.Context, jobID string) error
	RunParse(ctx context.Context, jobID string) error
	RunConfirm(ctx context.Context, jobID string) error
}

// Server consumes job tasks and dispatches them to a Runner.
type Server struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	log    zerolog.Logger
}

func NewServer(cfg *config.QueueConfig, runner Runner, logger zerolog.Logger) (*Server, error) {
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse queue redis url: %w", err)
	}
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues: map[string]int{
			cfg.Queue: 1,
		},
	})

	s := &Server{
		server: srv,
		mux:    asynq.NewServeMux(),
		log:    logger.With().Str("component", "queue-server").Logger(),
	}
	s.mux.HandleFunc(TaskTypeExport, s.handle(runner.RunExport))
	s.mux.HandleFunc(TaskTypeParse, s.handle(runner.RunParse))
	s.mux.HandleFunc(TaskTypeConfirm, s.handle(runner.RunConfirm))
	return s, nil
}

// Start runs the consumer loop in the background.
func (s *Server) Start() {
	go func() {
		if err := s.server.Run(s.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			s.log.Error().Err(err).Msg("task server stopped")
		}
	}()
}

func (s *Server) Shutdown() {
	s.server.Shutdown()
}

func (s *Server) handle(run func(context.Context, string) error) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		jobID, err := jobIDFromTask(task)
		if err != nil {
			s.log.Error().Err(err).Str("task", task.Type()).Msg("drop malformed task")
			return nil
		}
		err = run(ctx, jobID)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, domain.ErrAlreadyClaimed),
			errors.Is(err, domain.ErrIllegalTransition),
			errors.Is(err, domain.ErrNotFound):
			// Stale or duplicate delivery. The job already moved on, so a
			// retry could only repeat work that must not be repeated.
			s.log.Warn().Err(err).Str("task", task.Type()).Str("job_id", jobID).
				Msg("drop stale task delivery")
			return nil
		default:
			// Runs fail in place once claimed, so an error here means the
			// claim itself failed or the job record could not be written.
			// Redelivery retries the claim; it never resumes a started run.
			s.log.Error().Err(err).Str("task", task.Type()).Str("job_id", jobID).
				Msg("task failed")
			return err
		}
	}
}

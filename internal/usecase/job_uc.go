// File: internal/usecase/job_uc.go
package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"research-assistant/internal/domain"
	"research-assistant/internal/domain/model"
	"research-assistant/internal/domain/ports/adapter"
	"research-assistant/internal/domain/ports/repository"
	"research-assistant/internal/infra/logging"
	"research-assistant/internal/infra/metrics"
)

// Compile-time check
var _ JobUseCase = (*jobUC)(nil)

type JobUseCase interface {
	// Submit registers a job and hands it to the executor. In immediate mode
	// the returned id is valid even when err reports a pipeline failure.
	Submit(ctx context.Context, input model.JobInput) (string, error)
	// Execute runs a queued job to a terminal state.
	Execute(ctx context.Context, jobID string) error
	GetStatus(ctx context.Context, jobID string) (*model.JobStatus, error)
	GetArtifact(ctx context.Context, jobID, name string) ([]byte, error)
	ListArtifacts(ctx context.Context, jobID string) ([]string, error)
}

// failureWriteTimeout bounds the bookkeeping done after the job context expired.
const failureWriteTimeout = 10 * time.Second

type jobUC struct {
	research  ResearchUseCase
	renderer  adapter.DocumentRenderer
	status    repository.JobStatusStore
	artifacts repository.ArtifactStore
	exec      Executor
	logger    *zerolog.Logger
}

func NewJobUseCase(
	research ResearchUseCase,
	renderer adapter.DocumentRenderer,
	status repository.JobStatusStore,
	artifacts repository.ArtifactStore,
	exec Executor,
	logger *zerolog.Logger,
) *jobUC {
	l := logger.With().Str("component", "jobs").Logger()
	return &jobUC{
		research:  research,
		renderer:  renderer,
		status:    status,
		artifacts: artifacts,
		exec:      exec,
		logger:    &l,
	}
}

func (u *jobUC) Submit(ctx context.Context, input model.JobInput) (string, error) {
	job, err := model.NewJob(input)
	if err != nil {
		return "", err
	}
	ctx = logging.WithJobID(ctx, job.ID)
	lg := logging.With(ctx, u.logger)

	if err := u.artifacts.CreateNamespace(ctx, job.ID); err != nil {
		return "", domain.StorageError("create job namespace", err)
	}
	raw, err := json.Marshal(job.Input)
	if err != nil {
		return "", fmt.Errorf("encode job input: %w", err)
	}
	if err := u.artifacts.Put(ctx, job.ID, model.ArtifactInput, raw); err != nil {
		return "", domain.StorageError("persist job input", err)
	}

	rec := job.Record()
	if err := u.transition(ctx, &rec, u.exec.InitialState()); err != nil {
		return "", err
	}
	lg.Info().
		Str("state", string(rec.State)).
		Str("prompt", logging.Preview(input.Prompt, 100)).
		Bool("image", job.Input.Image != nil).
		Int("context_chars", len(input.ContextText)).
		Msg("job submitted")

	err = u.exec.Dispatch(ctx, job.ID, func(runCtx context.Context) error {
		return u.run(runCtx, &rec, job.Input)
	})
	if err != nil {
		return job.ID, err
	}
	return job.ID, nil
}

func (u *jobUC) Execute(ctx context.Context, jobID string) error {
	ctx = logging.WithJobID(ctx, jobID)

	rec, err := u.status.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if rec.State != model.JobStateQueued {
		return fmt.Errorf("%w: job %s is %s", domain.ErrInvalidTransition, jobID, rec.State)
	}

	raw, err := u.artifacts.Get(ctx, jobID, model.ArtifactInput)
	if err != nil {
		return domain.StorageError("load job input", err)
	}
	var input model.JobInput
	if err := json.Unmarshal(raw, &input); err != nil {
		return fmt.Errorf("decode job input: %w", err)
	}

	if err := u.transition(ctx, &rec, model.JobStateStarted); err != nil {
		return err
	}
	return u.run(ctx, &rec, input)
}

// run drives a started job to finished or failed.
func (u *jobUC) run(ctx context.Context, rec *model.JobRecord, input model.JobInput) error {
	lg := logging.With(ctx, u.logger)
	defer logging.TraceDuration(lg, "JobUC.run")()
	start := time.Now()

	err := u.produce(ctx, rec.ID, input)
	if err == nil {
		err = u.transition(ctx, rec, model.JobStateFinished)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w (%v)", err, ctxErr)
		}
		u.fail(ctx, rec, err)
		metrics.ObserveJobDuration(string(model.JobStateFailed), time.Since(start))
		return err
	}

	metrics.ObserveJobDuration(string(model.JobStateFinished), time.Since(start))
	lg.Info().Dur("elapsed", time.Since(start)).Msg("job finished")
	return nil
}

// produce runs the research pipeline and persists the success artifacts. The
// document is rendered before anything is written so a render failure leaves
// no partial report behind.
func (u *jobUC) produce(ctx context.Context, jobID string, input model.JobInput) error {
	result, err := u.research.Run(ctx, input)
	if err != nil {
		return err
	}

	sources, err := encodeSources(result.Sources)
	if err != nil {
		return fmt.Errorf("encode sources: %w", err)
	}

	doc, err := u.renderer.Render(ctx, result.ReportText)
	if err != nil {
		if domain.KindOf(err) == "" {
			err = domain.RenderError("render report", err)
		}
		return err
	}

	for _, a := range []struct {
		name string
		data []byte
	}{
		{model.ArtifactReport, []byte(result.ReportText)},
		{model.ArtifactSources, sources},
		{model.ArtifactPDF, doc},
	} {
		if err := u.artifacts.Put(ctx, jobID, a.name, a.data); err != nil {
			return domain.StorageError("write "+a.name, err)
		}
	}
	return nil
}

// fail records the error artifact and the failed state. It runs on a context
// detached from ctx's cancellation so a timed-out job still gets recorded.
func (u *jobUC) fail(ctx context.Context, rec *model.JobRecord, cause error) {
	lg := logging.With(ctx, u.logger)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
	defer cancel()

	msg := domain.FormatError(cause)
	lg.Error().Err(cause).Str("kind", string(domain.KindOf(cause))).Msg("job failed")

	trace := msg + "\n"
	if st := domain.StackOf(cause); st != nil {
		trace += "\n" + string(st)
	}
	if err := u.artifacts.Put(ctx, rec.ID, model.ArtifactError, []byte(trace)); err != nil {
		lg.Error().Err(err).Msg("write error artifact")
	}

	rec.Error = msg
	if err := u.transition(ctx, rec, model.JobStateFailed); err != nil {
		lg.Error().Err(err).Msg("record failed state")
	}
}

func (u *jobUC) transition(ctx context.Context, rec *model.JobRecord, next model.JobState) error {
	if !rec.State.CanTransitionTo(next) {
		return fmt.Errorf("%w: %q -> %q", domain.ErrInvalidTransition, rec.State, next)
	}
	prev := *rec
	rec.State = next
	rec.UpdatedAt = time.Now().UTC()
	if next != model.JobStateFailed {
		rec.Error = ""
	}
	if err := u.status.Put(ctx, *rec); err != nil {
		*rec = prev
		return domain.StorageError("record "+string(next)+" state", err)
	}
	metrics.IncJobState(string(next))
	return nil
}

func (u *jobUC) GetStatus(ctx context.Context, jobID string) (*model.JobStatus, error) {
	rec, err := u.status.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	st := &model.JobStatus{JobID: jobID, State: rec.State}
	switch rec.State {
	case model.JobStateFailed:
		st.Error = rec.Error
	case model.JobStateFinished:
		files, err := u.artifacts.List(ctx, jobID)
		if err != nil {
			return nil, domain.StorageError("list artifacts", err)
		}
		st.Artifacts = files
	}
	return st, nil
}

func (u *jobUC) GetArtifact(ctx context.Context, jobID, name string) ([]byte, error) {
	if err := ValidateArtifactName(name); err != nil {
		return nil, err
	}
	if err := u.requireJob(ctx, jobID); err != nil {
		return nil, err
	}
	data, err := u.artifacts.Get(ctx, jobID, name)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NotFoundError("artifact "+name, err)
		}
		return nil, domain.StorageError("read "+name, err)
	}
	return data, nil
}

func (u *jobUC) ListArtifacts(ctx context.Context, jobID string) ([]string, error) {
	if err := u.requireJob(ctx, jobID); err != nil {
		return nil, err
	}
	files, err := u.artifacts.List(ctx, jobID)
	if err != nil {
		return nil, domain.StorageError("list artifacts", err)
	}
	return files, nil
}

func (u *jobUC) requireJob(ctx context.Context, jobID string) error {
	if jobID == "" || ValidateArtifactName(jobID) != nil {
		return domain.NotFoundError("job", nil)
	}
	ok, err := u.artifacts.NamespaceExists(ctx, jobID)
	if err != nil {
		return domain.StorageError("lookup job", err)
	}
	if !ok {
		return domain.NotFoundError("job "+jobID, nil)
	}
	return nil
}

// ValidateArtifactName rejects names that could escape a job namespace or
// reach hidden bookkeeping files.
func ValidateArtifactName(name string) error {
	if name == "" ||
		strings.Contains(name, "..") ||
		strings.ContainsAny(name, `/\`) ||
		strings.HasPrefix(name, ".") {
		return domain.InvalidInputError("artifact name", fmt.Errorf("%w: invalid file name %q", domain.ErrInvalidInput, name))
	}
	return nil
}

func encodeSources(records []model.SourceRecord) ([]byte, error) {
	if records == nil {
		records = []model.SourceRecord{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

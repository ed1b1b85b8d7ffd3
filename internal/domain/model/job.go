package model

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/google/uuid"

	"research-assistant/internal/domain"
)

type JobState string

const (
	JobStateQueued   JobState = "queued"
	JobStateStarted  JobState = "started"
	JobStateFinished JobState = "finished"
	JobStateFailed   JobState = "failed"
)

// Artifact names persisted in a job namespace.
const (
	ArtifactReport  = "report.md"
	ArtifactPDF     = "report.pdf"
	ArtifactSources = "sources.json"
	ArtifactError   = "error.txt"

	// ArtifactInput holds the submitted input; dot-prefixed names are hidden from listings.
	ArtifactInput = ".input.json"
)

// SuccessArtifacts lists the files a finished job always has.
func SuccessArtifacts() []string {
	return []string{ArtifactReport, ArtifactPDF, ArtifactSources}
}

func (s JobState) Valid() bool {
	switch s {
	case JobStateQueued, JobStateStarted, JobStateFinished, JobStateFailed:
		return true
	}
	return false
}

func (s JobState) Terminal() bool {
	return s == JobStateFinished || s == JobStateFailed
}

// CanTransitionTo reports whether s -> next is a legal move. The empty state
// stands for "not yet recorded"; a job may start life queued or, in immediate
// mode, started.
func (s JobState) CanTransitionTo(next JobState) bool {
	switch s {
	case "":
		return next == JobStateQueued || next == JobStateStarted
	case JobStateQueued:
		return next == JobStateStarted
	case JobStateStarted:
		return next == JobStateFinished || next == JobStateFailed
	default:
		return false
	}
}

// Image is an optional picture attached to a research request.
type Image struct {
	Data     []byte `json:"data"`
	MIMEType string `json:"mime_type"`
}

// DataURL encodes the image as a data: URL accepted by vision-capable chat APIs.
func (i *Image) DataURL() string {
	mime := i.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

type JobInput struct {
	Prompt      string `json:"prompt"`
	Image       *Image `json:"image,omitempty"`
	ContextText string `json:"context_text,omitempty"`
}

// JobRecord is what a status store persists for a job.
type JobRecord struct {
	ID        string    `json:"job_id"`
	State     JobState  `json:"state"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Job struct {
	ID        string
	Input     JobInput
	State     JobState
	Error     string
	Artifacts []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewJob allocates a fresh job for the given input. The prompt is required.
func NewJob(input JobInput) (*Job, error) {
	if strings.TrimSpace(input.Prompt) == "" {
		return nil, domain.ErrInvalidArgument
	}
	if input.Image != nil && len(input.Image.Data) == 0 {
		input.Image = nil
	}
	now := time.Now().UTC()
	return &Job{
		ID:        uuid.NewString(),
		Input:     input,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Record returns the status-store view of the job.
func (j *Job) Record() JobRecord {
	return JobRecord{
		ID:        j.ID,
		State:     j.State,
		Error:     j.Error,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}

// JobStatus is the read model returned to callers polling a job.
type JobStatus struct {
	JobID     string   `json:"job_id"`
	State     JobState `json:"status"`
	Error     string   `json:"error,omitempty"`
	Artifacts []string `json:"files,omitempty"`
}

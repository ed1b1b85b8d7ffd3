package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-assistant/internal/domain"
	"research-assistant/internal/domain/model"
	"research-assistant/internal/domain/ports/adapter"
)

func TestJobUC_DeferredLifecycle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	uc := env.deferred()

	id, err := uc.Submit(ctx, model.JobInput{Prompt: "What is quantum computing?"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	st, err := uc.GetStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStateQueued, st.State)
	assert.Empty(t, st.Artifacts)

	msg, err := env.queue.Dequeue(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, id, msg.JobID)
	assert.Equal(t, 10*time.Minute, msg.Timeout)

	require.NoError(t, uc.Execute(ctx, msg.JobID))

	st, err = uc.GetStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStateFinished, st.State)
	assert.Empty(t, st.Error)
	assert.Equal(t, []string{"report.md", "report.pdf", "sources.json"}, st.Artifacts)
	assert.Equal(t,
		[]model.JobState{model.JobStateQueued, model.JobStateStarted, model.JobStateFinished},
		env.status.History(id))

	report, err := uc.GetArtifact(ctx, id, model.ArtifactReport)
	require.NoError(t, err)
	assert.Equal(t, "# Quantum Computing\n\nA report.", string(report))

	raw, err := uc.GetArtifact(ctx, id, model.ArtifactSources)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "[\n  {\n    \"tool_name\": \"search\""), string(raw))
	var sources []map[string]any
	require.NoError(t, json.Unmarshal(raw, &sources))
	assert.Len(t, sources, 3)

	assert.False(t, env.artifacts.Has(id, model.ArtifactError))

	t.Run("status reads are idempotent", func(t *testing.T) {
		a, err := uc.GetStatus(ctx, id)
		require.NoError(t, err)
		b, err := uc.GetStatus(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, a, b)
		assert.Len(t, env.status.History(id), 3)
	})

	t.Run("re-executing a finished job is rejected", func(t *testing.T) {
		err := uc.Execute(ctx, id)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		assert.Len(t, env.status.History(id), 3)
	})
}

func TestJobUC_KnowledgeSourceDown(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	env.source.SearchFunc = func(ctx context.Context, query string, limit int) ([]string, error) {
		return nil, errors.New("wikipedia unreachable")
	}
	uc := env.deferred()

	id, err := uc.Submit(ctx, model.JobInput{Prompt: "What is quantum computing?"})
	require.NoError(t, err)
	msg, err := env.queue.Dequeue(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, uc.Execute(ctx, msg.JobID))

	t.Run("job still finishes", func(t *testing.T) {
		st, err := uc.GetStatus(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.JobStateFinished, st.State)
		assert.Empty(t, st.Error)
		assert.False(t, env.artifacts.Has(id, model.ArtifactError))
		assert.Empty(t, env.source.summaries)
	})

	t.Run("sources hold one empty search record", func(t *testing.T) {
		raw, err := uc.GetArtifact(ctx, id, model.ArtifactSources)
		require.NoError(t, err)
		assert.JSONEq(t,
			`[{"tool_name":"search","input":{"query":"Quantum computing","limit":5},"output":[]}]`,
			string(raw))
	})

	t.Run("report is still synthesized", func(t *testing.T) {
		assert.Len(t, env.ai.callsWithSystem(reportSystemPrompt), 1)
		report, err := uc.GetArtifact(ctx, id, model.ArtifactReport)
		require.NoError(t, err)
		assert.NotEmpty(t, report)
	})
}

func TestJobUC_Submit(t *testing.T) {
	ctx := context.Background()

	t.Run("empty prompt is rejected before anything is stored", func(t *testing.T) {
		env := newTestEnv()
		id, err := env.deferred().Submit(ctx, model.JobInput{Prompt: "   "})
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
		assert.Empty(t, id)
		assert.Empty(t, env.artifacts.files)
		assert.Empty(t, env.queue.msgs)
	})

	t.Run("ids are unique", func(t *testing.T) {
		env := newTestEnv()
		uc := env.deferred()
		seen := map[string]bool{}
		for i := 0; i < 20; i++ {
			id, err := uc.Submit(ctx, model.JobInput{Prompt: "p"})
			require.NoError(t, err)
			assert.False(t, seen[id])
			seen[id] = true
		}
	})

	t.Run("input round-trips through the hidden input file", func(t *testing.T) {
		env := newTestEnv()
		uc := env.deferred()
		in := model.JobInput{Prompt: "p", ContextText: "c", Image: &model.Image{Data: []byte{1, 2, 3}, MIMEType: "image/gif"}}
		id, err := uc.Submit(ctx, in)
		require.NoError(t, err)

		var got model.JobInput
		require.NoError(t, json.Unmarshal([]byte(env.artifacts.Read(id, model.ArtifactInput)), &got))
		assert.Equal(t, in, got)

		files, err := uc.ListArtifacts(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, files, "bookkeeping files are hidden")
	})

	t.Run("enqueue failure is reported", func(t *testing.T) {
		env := newTestEnv()
		env.queue.enqueueErr = errors.New("redis down")
		_, err := env.deferred().Submit(ctx, model.JobInput{Prompt: "p"})
		assert.Error(t, err)
	})
}

func TestJobUC_Immediate(t *testing.T) {
	ctx := context.Background()

	t.Run("success runs inside submit", func(t *testing.T) {
		env := newTestEnv()
		uc := env.immediate(time.Minute)

		id, err := uc.Submit(ctx, model.JobInput{Prompt: "p"})
		require.NoError(t, err)

		st, err := uc.GetStatus(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.JobStateFinished, st.State)
		assert.Equal(t, []model.JobState{model.JobStateStarted, model.JobStateFinished}, env.status.History(id))
		assert.Empty(t, env.queue.msgs)
	})

	t.Run("model failure records failed state before returning", func(t *testing.T) {
		env := newTestEnv()
		env.ai.CompleteFunc = func(ctx context.Context, req adapter.CompletionRequest) (adapter.Completion, error) {
			if systemOf(req) == reportSystemPrompt {
				return adapter.Completion{}, errors.New("invalid api key")
			}
			return adapter.Completion{Text: cannedReply(req)}, nil
		}
		uc := env.immediate(time.Minute)

		id, err := uc.Submit(ctx, model.JobInput{Prompt: "p"})
		require.Error(t, err)
		require.NotEmpty(t, id)
		assert.Equal(t, domain.KindModel, domain.KindOf(err))

		st, err := uc.GetStatus(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.JobStateFailed, st.State)
		assert.True(t, strings.HasPrefix(st.Error, "ModelError:"), st.Error)
		assert.Contains(t, st.Error, "invalid api key")
		assert.Empty(t, st.Artifacts)

		assert.False(t, env.artifacts.Has(id, model.ArtifactReport))
		assert.False(t, env.artifacts.Has(id, model.ArtifactSources))
		assert.False(t, env.artifacts.Has(id, model.ArtifactPDF))
		errText := env.artifacts.Read(id, model.ArtifactError)
		assert.True(t, strings.HasPrefix(errText, "ModelError:"))
		assert.Contains(t, errText, "goroutine", "stack trace is appended")
		assert.Contains(t, errText, "(*Synthesizer).Synthesize", "trace points at the failing call")
		assert.NotContains(t, errText, "(*jobUC).fail")

		files, err := uc.ListArtifacts(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, []string{"error.txt"}, files)
	})

	t.Run("render failure discards the report", func(t *testing.T) {
		env := newTestEnv()
		env.renderer.RenderFunc = func(ctx context.Context, md string) ([]byte, error) {
			return nil, errors.New("font missing")
		}
		uc := env.immediate(time.Minute)

		id, err := uc.Submit(ctx, model.JobInput{Prompt: "p"})
		require.Error(t, err)
		assert.Equal(t, domain.KindRender, domain.KindOf(err))

		st, err := uc.GetStatus(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.JobStateFailed, st.State)
		assert.True(t, strings.HasPrefix(st.Error, "RenderError:"), st.Error)
		assert.False(t, env.artifacts.Has(id, model.ArtifactReport))
	})

	t.Run("caller cancellation does not abort the job", func(t *testing.T) {
		env := newTestEnv()
		uc := env.immediate(time.Minute)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		id, err := uc.Submit(cctx, model.JobInput{Prompt: "p"})
		require.NoError(t, err)

		st, err := uc.GetStatus(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.JobStateFinished, st.State)
	})

	t.Run("timeout fails the job", func(t *testing.T) {
		env := newTestEnv()
		env.ai.CompleteFunc = func(ctx context.Context, req adapter.CompletionRequest) (adapter.Completion, error) {
			<-ctx.Done()
			return adapter.Completion{}, ctx.Err()
		}
		uc := env.immediate(20 * time.Millisecond)

		id, err := uc.Submit(ctx, model.JobInput{Prompt: "p"})
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		st, err := uc.GetStatus(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.JobStateFailed, st.State)
		assert.True(t, env.artifacts.Has(id, model.ArtifactError))
	})
}

func TestJobUC_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown job", func(t *testing.T) {
		env := newTestEnv()
		err := env.deferred().Execute(ctx, "nope")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("a started job is not run twice", func(t *testing.T) {
		env := newTestEnv()
		uc := env.deferred()
		id, err := uc.Submit(ctx, model.JobInput{Prompt: "p"})
		require.NoError(t, err)

		rec, err := env.status.Get(ctx, id)
		require.NoError(t, err)
		rec.State = model.JobStateStarted
		require.NoError(t, env.status.Put(ctx, rec))

		err = uc.Execute(ctx, id)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		assert.Empty(t, env.ai.Calls())
	})

	t.Run("status store failure on finish fails the job", func(t *testing.T) {
		env := newTestEnv()
		uc := env.deferred()
		id, err := uc.Submit(ctx, model.JobInput{Prompt: "p"})
		require.NoError(t, err)

		env.renderer.RenderFunc = func(ctx context.Context, md string) ([]byte, error) {
			env.status.putErr = errors.New("disk full")
			return []byte("%PDF"), nil
		}
		err = uc.Execute(ctx, id)
		require.Error(t, err)
		assert.Equal(t, domain.KindStorage, domain.KindOf(err))
	})
}

func TestJobUC_Artifacts(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	uc := env.immediate(time.Minute)
	id, err := uc.Submit(ctx, model.JobInput{Prompt: "p"})
	require.NoError(t, err)

	t.Run("unsafe names are rejected before any lookup", func(t *testing.T) {
		for _, name := range []string{"../x", "a/b", `a\b`, "..", ".status", ".input.json", ""} {
			before := env.artifacts.getCalls
			_, err := uc.GetArtifact(ctx, id, name)
			assert.ErrorIs(t, err, domain.ErrInvalidInput, name)
			assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))
			assert.Equal(t, before, env.artifacts.getCalls, name)
		}
	})

	t.Run("unknown job", func(t *testing.T) {
		_, err := uc.GetArtifact(ctx, "00000000-0000-0000-0000-000000000000", model.ArtifactReport)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		_, err = uc.ListArtifacts(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		_, err = uc.GetStatus(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("unknown artifact", func(t *testing.T) {
		_, err := uc.GetArtifact(ctx, id, "notes.txt")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("pdf is readable", func(t *testing.T) {
		data, err := uc.GetArtifact(ctx, id, model.ArtifactPDF)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(data), "%PDF"))
	})
}

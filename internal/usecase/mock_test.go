// File: internal/usecase/mock_test.go
package usecase

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"research-assistant/internal/domain"
	"research-assistant/internal/domain/model"
	"research-assistant/internal/domain/ports/adapter"
)

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// --- Mock AI

type mockAI struct {
	mu           sync.Mutex
	calls        []adapter.CompletionRequest
	CompleteFunc func(ctx context.Context, req adapter.CompletionRequest) (adapter.Completion, error)
}

func (m *mockAI) ListModels(ctx context.Context) ([]string, error) {
	return []string{"test-model"}, nil
}

func (m *mockAI) CountTokens(ctx context.Context, model string, msgs []adapter.Message) (int, error) {
	n := 0
	for _, msg := range msgs {
		n += len(msg.Text()) / 4
	}
	return n, nil
}

func (m *mockAI) Complete(ctx context.Context, req adapter.CompletionRequest) (adapter.Completion, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return adapter.Completion{Text: cannedReply(req), Model: req.Model}, nil
}

func (m *mockAI) Calls() []adapter.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]adapter.CompletionRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

// callsWithSystem returns the requests whose system message equals system.
func (m *mockAI) callsWithSystem(system string) []adapter.CompletionRequest {
	var out []adapter.CompletionRequest
	for _, c := range m.Calls() {
		if systemOf(c) == system {
			out = append(out, c)
		}
	}
	return out
}

func systemOf(req adapter.CompletionRequest) string {
	for _, m := range req.Messages {
		if m.Role == adapter.RoleSystem {
			return m.Text()
		}
	}
	return ""
}

func userOf(req adapter.CompletionRequest) adapter.Message {
	for _, m := range req.Messages {
		if m.Role == adapter.RoleUser {
			return m
		}
	}
	return adapter.Message{}
}

func cannedReply(req adapter.CompletionRequest) string {
	switch systemOf(req) {
	case summarySystemPrompt:
		return "condensed"
	case querySystemPrompt:
		return "Quantum computing"
	case reportSystemPrompt:
		return "# Quantum Computing\n\nA report."
	}
	return "ok"
}

// --- Mock knowledge source

type mockSource struct {
	mu          sync.Mutex
	searches    []string
	summaries   []string
	SearchFunc  func(ctx context.Context, query string, limit int) ([]string, error)
	SummaryFunc func(ctx context.Context, title string) (string, bool, error)
}

func (m *mockSource) Search(ctx context.Context, query string, limit int) ([]string, error) {
	m.mu.Lock()
	m.searches = append(m.searches, query)
	m.mu.Unlock()
	if m.SearchFunc != nil {
		return m.SearchFunc(ctx, query, limit)
	}
	return []string{"Quantum computing", "Qubit"}, nil
}

func (m *mockSource) Summary(ctx context.Context, title string) (string, bool, error) {
	m.mu.Lock()
	m.summaries = append(m.summaries, title)
	m.mu.Unlock()
	if m.SummaryFunc != nil {
		return m.SummaryFunc(ctx, title)
	}
	return "Summary of " + title + ".", true, nil
}

// --- Mock renderer

type mockRenderer struct {
	RenderFunc func(ctx context.Context, md string) ([]byte, error)
}

func (m *mockRenderer) Render(ctx context.Context, md string) ([]byte, error) {
	if m.RenderFunc != nil {
		return m.RenderFunc(ctx, md)
	}
	return []byte("%PDF-1.3 " + md), nil
}

func (m *mockRenderer) ContentType() string { return "application/pdf" }

// --- In-memory status store

type memStatusStore struct {
	mu      sync.Mutex
	records map[string]model.JobRecord
	history map[string][]model.JobState
	putErr  error
}

func newMemStatusStore() *memStatusStore {
	return &memStatusStore{records: map[string]model.JobRecord{}, history: map[string][]model.JobState{}}
}

func (m *memStatusStore) Put(ctx context.Context, rec model.JobRecord) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec
	m.history[rec.ID] = append(m.history[rec.ID], rec.State)
	return nil
}

func (m *memStatusStore) Get(ctx context.Context, id string) (model.JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return model.JobRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (m *memStatusStore) History(id string) []model.JobState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.JobState(nil), m.history[id]...)
}

// --- In-memory artifact store

type memArtifactStore struct {
	mu       sync.Mutex
	files    map[string]map[string][]byte
	getCalls int
}

func newMemArtifactStore() *memArtifactStore {
	return &memArtifactStore{files: map[string]map[string][]byte{}}
}

func (m *memArtifactStore) CreateNamespace(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[jobID]; !ok {
		m.files[jobID] = map[string][]byte{}
	}
	return nil
}

func (m *memArtifactStore) NamespaceExists(ctx context.Context, jobID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[jobID]
	return ok, nil
}

func (m *memArtifactStore) Put(ctx context.Context, jobID, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.files[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	ns[name] = append([]byte(nil), data...)
	return nil
}

func (m *memArtifactStore) Get(ctx context.Context, jobID, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	data, ok := m.files[jobID][name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return data, nil
}

func (m *memArtifactStore) List(ctx context.Context, jobID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for name := range m.files[jobID] {
		if !strings.HasPrefix(name, ".") {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memArtifactStore) Has(jobID, name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[jobID][name]
	return ok
}

func (m *memArtifactStore) Read(jobID, name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.files[jobID][name])
}

// --- In-memory queue

type memQueue struct {
	mu         sync.Mutex
	msgs       []adapter.JobMessage
	enqueueErr error
}

func (q *memQueue) Enqueue(ctx context.Context, msg adapter.JobMessage) error {
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgs = append(q.msgs, msg)
	return nil
}

func (q *memQueue) Dequeue(ctx context.Context, _ time.Duration) (*adapter.JobMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.msgs) == 0 {
		return nil, domain.ErrQueueEmpty
	}
	m := q.msgs[0]
	q.msgs = q.msgs[1:]
	return &m, nil
}

func (q *memQueue) Len(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.msgs)), nil
}

// --- Wiring helpers

type testEnv struct {
	ai        *mockAI
	source    *mockSource
	renderer  *mockRenderer
	status    *memStatusStore
	artifacts *memArtifactStore
	queue     *memQueue
}

func newTestEnv() *testEnv {
	return &testEnv{
		ai:        &mockAI{},
		source:    &mockSource{},
		renderer:  &mockRenderer{},
		status:    newMemStatusStore(),
		artifacts: newMemArtifactStore(),
		queue:     &memQueue{},
	}
}

func (e *testEnv) research() *researchUC {
	logger := newTestLogger()
	return NewResearchUseCase(
		NewReducer(e.ai, "test-model", logger),
		NewGatherer(e.ai, e.source, "test-model", logger),
		NewSynthesizer(e.ai, "test-model", logger),
		logger,
	)
}

func (e *testEnv) deferred() *jobUC {
	return NewJobUseCase(e.research(), e.renderer, e.status, e.artifacts,
		NewDeferredExecutor(e.queue, 10*time.Minute), newTestLogger())
}

func (e *testEnv) immediate(timeout time.Duration) *jobUC {
	return NewJobUseCase(e.research(), e.renderer, e.status, e.artifacts,
		NewImmediateExecutor(timeout), newTestLogger())
}

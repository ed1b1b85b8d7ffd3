package model

// SearchInput is the recorded input of a knowledge-source search.
type SearchInput struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// SummaryInput is the recorded input of a knowledge-source summary fetch.
type SummaryInput struct {
	Title string `json:"title"`
}

// SourceRecord is one provenance entry. Field order is part of the sources.json format.
type SourceRecord struct {
	ToolName string `json:"tool_name"`
	Input    any    `json:"input"`
	Output   any    `json:"output"`
}

const (
	ToolSearch  = "search"
	ToolSummary = "summary"
)

// SourceLog accumulates provenance for a single research run. It is not safe
// for concurrent writers; one run owns one log.
type SourceLog struct {
	records []SourceRecord
}

func NewSourceLog() *SourceLog {
	return &SourceLog{records: make([]SourceRecord, 0, 4)}
}

func (l *SourceLog) Append(r SourceRecord) {
	l.records = append(l.records, r)
}

func (l *SourceLog) Len() int { return len(l.records) }

// Records returns a copy so callers cannot mutate appended entries.
func (l *SourceLog) Records() []SourceRecord {
	out := make([]SourceRecord, len(l.records))
	copy(out, l.records)
	return out
}

type ArticleSummary struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

type KnowledgeBundle struct {
	SearchQuery   string           `json:"search_query"`
	SearchResults []string         `json:"search_results"`
	Summaries     []ArticleSummary `json:"summaries"`
}

type ResearchResult struct {
	ReportText string
	Sources    []SourceRecord
}

// ResearchPhase names the orchestrator's linear progression.
type ResearchPhase string

const (
	PhaseReducingContext    ResearchPhase = "reducing_context"
	PhaseGatheringKnowledge ResearchPhase = "gathering_knowledge"
	PhaseSynthesizing       ResearchPhase = "synthesizing"
	PhaseDone               ResearchPhase = "done"
)

// Truncate shortens s to at most n characters, appending "..." when it cut anything.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// File: internal/usecase/research_uc.go
package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"research-assistant/internal/domain/model"
	"research-assistant/internal/infra/logging"
	"research-assistant/internal/infra/metrics"
)

// Compile-time check
var _ ResearchUseCase = (*researchUC)(nil)

// ResearchUseCase runs the fixed pipeline: reduce context, gather knowledge,
// synthesize the report.
type ResearchUseCase interface {
	Run(ctx context.Context, input model.JobInput) (*model.ResearchResult, error)
}

type researchUC struct {
	reducer     *Reducer
	gatherer    *Gatherer
	synthesizer *Synthesizer
	logger      *zerolog.Logger
}

func NewResearchUseCase(reducer *Reducer, gatherer *Gatherer, synthesizer *Synthesizer, logger *zerolog.Logger) *researchUC {
	l := logger.With().Str("component", "research").Logger()
	return &researchUC{reducer: reducer, gatherer: gatherer, synthesizer: synthesizer, logger: &l}
}

func (r *researchUC) Run(ctx context.Context, input model.JobInput) (*model.ResearchResult, error) {
	lg := logging.With(ctx, r.logger)
	defer logging.TraceDuration(lg, "ResearchUC.Run")()

	sources := model.NewSourceLog()

	var reduced string
	if input.ContextText != "" {
		done := r.phase(lg, model.PhaseReducingContext)
		out, err := r.reducer.Reduce(ctx, input.ContextText)
		done()
		if err != nil {
			return nil, err
		}
		reduced = out
	} else {
		lg.Debug().Msg("no context text, skipping reduction")
	}

	done := r.phase(lg, model.PhaseGatheringKnowledge)
	bundle, err := r.gatherer.Gather(ctx, input.Prompt, sources)
	done()
	if err != nil {
		return nil, err
	}

	done = r.phase(lg, model.PhaseSynthesizing)
	report, err := r.synthesizer.Synthesize(ctx, input.Prompt, input.Image, reduced, bundle)
	done()
	if err != nil {
		return nil, err
	}

	lg.Info().Str("phase", string(model.PhaseDone)).Int("sources", sources.Len()).Msg("research completed")
	return &model.ResearchResult{ReportText: report, Sources: sources.Records()}, nil
}

func (r *researchUC) phase(lg *zerolog.Logger, p model.ResearchPhase) func() {
	start := time.Now()
	lg.Info().Str("phase", string(p)).Msg("phase started")
	return func() {
		metrics.ObservePhase(string(p), time.Since(start))
	}
}

// Package generation drives one media generation end to end: build the
// workflow graph, submit it, poll until the backend finishes, locate the
// artifact and, for video, store it locally.
package generation

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/influencerlab/api/internal/client"
	"github.com/influencerlab/api/internal/config"
	"github.com/influencerlab/api/internal/model"
	"github.com/influencerlab/api/internal/workflow"
)

// maxSeed keeps seed and seed+1 inside the range every sampler accepts.
const maxSeed = 1 << 48

// Step names reported through ProgressFunc.
const (
	StepBuilding    = "building"
	StepSubmitting  = "submitting"
	StepRendering   = "rendering"
	StepResolving   = "resolving"
	StepSaving      = "saving"
	StepDone        = "done"
	progressPolling = 20
	progressPollEnd = 85
)

// ProgressFunc receives coarse progress (0-100) while a generation runs.
type ProgressFunc func(step string, percent int)

// Orchestrator composes the generation pipeline. It holds no per-call state
// and is safe for concurrent use.
type Orchestrator struct {
	baseURL      string
	builder      *workflow.Builder
	submitter    *Submitter
	poller       *Poller
	resolver     *Resolver
	materializer *Materializer
	policies     map[model.MediaKind]PollPolicy
	seed         func() int64
	logger       zerolog.Logger
}

// NewOrchestrator wires the pipeline against api. store may be nil.
func NewOrchestrator(cfg *config.Config, api client.ComputeAPI, store client.ObjectStore, logger zerolog.Logger) *Orchestrator {
	logger = logger.With().Str("component", "orchestrator").Logger()
	clock := RealClock()
	return &Orchestrator{
		baseURL:      cfg.Compute.BaseURL,
		builder:      workflow.NewBuilder(workflow.DefaultPersonas()),
		submitter:    NewSubmitter(api, clock, logger),
		poller:       NewPoller(api, clock, logger),
		resolver:     NewResolver(api),
		materializer: NewMaterializer(api, cfg.Storage.OutputDir, cfg.Storage.PublicPrefix, store, logger),
		policies: map[model.MediaKind]PollPolicy{
			model.MediaKindImage: {Interval: cfg.Compute.Image.Interval, MaxWait: cfg.Compute.Image.MaxWait},
			model.MediaKindVideo: {Interval: cfg.Compute.Video.Interval, MaxWait: cfg.Compute.Video.MaxWait},
		},
		seed:   func() int64 { return rand.Int64N(maxSeed) },
		logger: logger,
	}
}

// Generate runs req to completion. See GenerateWithProgress.
func (o *Orchestrator) Generate(ctx context.Context, req model.GenerationRequest) (*model.Artifact, error) {
	return o.GenerateWithProgress(ctx, req, nil)
}

// GenerateWithProgress builds, submits, polls, resolves and (for video)
// materializes req, stopping at the first failure. Every returned error
// matches one of the Err* kinds except context cancellation.
func (o *Orchestrator) GenerateWithProgress(ctx context.Context, req model.GenerationRequest, progress ProgressFunc) (*model.Artifact, error) {
	report := func(step string, pct int) {
		if progress != nil {
			progress(step, pct)
		}
	}

	if strings.TrimSpace(o.baseURL) == "" {
		return nil, newError(ErrConfiguration, "generate", "compute base URL is not configured", nil)
	}

	seed := o.seed()
	if req.Seed != nil {
		seed = *req.Seed
	}
	params := workflow.ParamsFromRequest(req, seed)
	policy, ok := o.policies[params.Kind]
	if !ok {
		return nil, newError(ErrConfiguration, "generate", "unsupported media kind "+string(params.Kind), nil)
	}

	log := o.logger.With().Str("kind", string(params.Kind)).Int64("seed", seed).Logger()

	report(StepBuilding, 5)
	graph, err := o.builder.Build(params)
	if errors.Is(err, workflow.ErrEmptyPrompt) {
		return nil, newError(ErrInvalidRequest, "build", "prompt is required", err)
	}
	if err != nil {
		msg := "build workflow"
		if errors.Is(err, workflow.ErrUnknownPersona) {
			msg = "no adapter weights for persona " + params.PersonaID
		}
		return nil, newError(ErrConfiguration, "build", msg, err)
	}

	report(StepSubmitting, 10)
	handle, err := o.submitter.Submit(ctx, graph)
	if err != nil {
		return nil, err
	}
	log = log.With().Str("prompt_id", handle.ID).Logger()

	report(StepRendering, progressPolling)
	policy.OnTick = func(_ int, elapsed time.Duration) {
		report(StepRendering, pollProgress(elapsed, policy.MaxWait))
	}
	status, err := o.poller.Poll(ctx, handle, policy)
	if err != nil {
		log.Warn().Err(err).Msg("generation did not complete")
		return nil, err
	}

	report(StepResolving, 90)
	artifact, err := o.resolver.Resolve(params.Kind, status.Outputs)
	if err != nil {
		log.Error().Err(err).Strs("output_nodes", outputIDs(status.Outputs)).Msg("template and outputs disagree")
		return nil, err
	}

	if params.Kind == model.MediaKindVideo {
		report(StepSaving, 95)
		artifact, err = o.materializer.Materialize(ctx, artifact, params.PersonaID)
		if err != nil {
			return nil, err
		}
	}

	report(StepDone, 100)
	log.Info().Str("filename", artifact.Filename).Msg("generation complete")
	return artifact, nil
}

func pollProgress(elapsed, maxWait time.Duration) int {
	if maxWait <= 0 {
		return progressPolling
	}
	span := progressPollEnd - progressPolling
	pct := progressPolling + int(float64(span)*float64(elapsed)/float64(maxWait))
	if pct > progressPollEnd {
		return progressPollEnd
	}
	return pct
}

func outputIDs(outputs map[string]model.NodeOutput) []string {
	ids := make([]string, 0, len(outputs))
	for id := range outputs {
		ids = append(ids, id)
	}
	return ids
}

package workflow

import (
	"fmt"
	"math"
	"strings"

	"github.com/influencerlab/api/internal/model"
)

// Defaults applied to zero-valued request fields.
const (
	DefaultNegativePrompt = "blurry, low quality, distorted, deformed, extra limbs, watermark, text, logo"
	DefaultImageSteps     = 25
	DefaultImageGuidance  = 7.0
	DefaultVideoSteps     = 20
	DefaultVideoGuidance  = 3.5
	DefaultVideoDurationS = 5.0
	minVideoFrames        = 1
)

// Params are the fully resolved inputs of one graph. Seed is always
// explicit: callers draw a random seed before building so identical Params
// always yield identical graphs.
type Params struct {
	Kind           model.MediaKind
	Prompt         string
	NegativePrompt string
	AspectRatio    model.AspectRatio
	StyleReference string
	Steps          int
	GuidanceScale  float64
	Seed           int64
	FrameCount     int
	PersonaID      string
}

// ParamsFromRequest fills request defaults and attaches seed.
func ParamsFromRequest(req model.GenerationRequest, seed int64) Params {
	kind := req.Kind
	if kind == "" {
		kind = model.MediaKindImage
	}
	p := Params{
		Kind:           kind,
		Prompt:         strings.TrimSpace(req.Prompt),
		NegativePrompt: strings.TrimSpace(req.NegativePrompt),
		AspectRatio:    req.AspectRatio,
		Steps:          req.Steps,
		GuidanceScale:  req.GuidanceScale,
		Seed:           seed,
		PersonaID:      req.PersonaID,
	}
	if req.StyleReference != nil {
		p.StyleReference = strings.TrimSpace(*req.StyleReference)
	}
	if p.NegativePrompt == "" {
		p.NegativePrompt = DefaultNegativePrompt
	}

	switch kind {
	case model.MediaKindVideo:
		if p.Steps <= 0 {
			p.Steps = DefaultVideoSteps
		}
		if p.GuidanceScale <= 0 {
			p.GuidanceScale = DefaultVideoGuidance
		}
		duration := req.DurationSeconds
		if duration <= 0 {
			duration = DefaultVideoDurationS
		}
		p.FrameCount = FrameCount(duration)
	default:
		if p.Steps <= 0 {
			p.Steps = DefaultImageSteps
		}
		if p.GuidanceScale <= 0 {
			p.GuidanceScale = DefaultImageGuidance
		}
	}
	return p
}

// FrameCount converts a duration to frames at the fixed video frame rate.
func FrameCount(durationSeconds float64) int {
	n := int(math.Round(durationSeconds * VideoFrameRate))
	if n < minVideoFrames {
		return minVideoFrames
	}
	return n
}

// Builder turns Params into a validated Graph. It performs no I/O.
type Builder struct {
	personas *PersonaRegistry
}

// NewBuilder returns a builder resolving video personas through personas.
func NewBuilder(personas *PersonaRegistry) *Builder {
	if personas == nil {
		personas = DefaultPersonas()
	}
	return &Builder{personas: personas}
}

// Build instantiates the template for p.Kind and overwrites its inputs.
func (b *Builder) Build(p Params) (*Graph, error) {
	if strings.TrimSpace(p.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	var (
		g   *Graph
		err error
	)
	switch p.Kind {
	case model.MediaKindVideo:
		g, err = b.buildVideo(p)
	case model.MediaKindImage, "":
		g, err = b.buildImage(p)
	default:
		return nil, fmt.Errorf("workflow: unsupported media kind %q", p.Kind)
	}
	if err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func (b *Builder) buildImage(p Params) (*Graph, error) {
	g := imagePrototype.Clone()
	res := ResolveResolution(model.MediaKindImage, p.AspectRatio)

	if p.StyleReference != "" {
		if err := g.SetLiteral(ImageNodeLoRA, "lora_name", p.StyleReference); err != nil {
			return nil, err
		}
	} else {
		// Without a style adapter the encoders and sampler read straight
		// from the checkpoint.
		g.Remove(ImageNodeLoRA)
		sets := []struct {
			node, input string
			ref         NodeRef
		}{
			{ImageNodePositive, "clip", Ref(ImageNodeCheckpoint, 1)},
			{ImageNodeNegative, "clip", Ref(ImageNodeCheckpoint, 1)},
			{ImageNodeSampler, "model", Ref(ImageNodeCheckpoint, 0)},
		}
		for _, s := range sets {
			if err := g.Set(s.node, s.input, s.ref); err != nil {
				return nil, err
			}
		}
	}

	literals := []struct {
		node, input string
		value       any
	}{
		{ImageNodeCheckpoint, "ckpt_name", ImageCheckpoint},
		{ImageNodePositive, "text", p.Prompt},
		{ImageNodeNegative, "text", p.NegativePrompt},
		{ImageNodeLatent, "width", res.Width},
		{ImageNodeLatent, "height", res.Height},
		{ImageNodeSampler, "seed", p.Seed},
		{ImageNodeSampler, "steps", p.Steps},
		{ImageNodeSampler, "cfg", p.GuidanceScale},
		{ImageNodeSampler, "sampler_name", SamplerName},
		{ImageNodeSampler, "scheduler", SchedulerName},
		{ImageNodeSampler, "denoise", 1.0},
	}
	for _, l := range literals {
		if err := g.SetLiteral(l.node, l.input, l.value); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (b *Builder) buildVideo(p Params) (*Graph, error) {
	weights, err := b.personas.Lookup(p.PersonaID)
	if err != nil {
		return nil, err
	}

	g := videoPrototype.Clone()
	res := ResolveResolution(model.MediaKindVideo, p.AspectRatio)
	frames := p.FrameCount
	if frames < minVideoFrames {
		frames = FrameCount(DefaultVideoDurationS)
	}
	split := p.Steps / 2

	literals := []struct {
		node, input string
		value       any
	}{
		{VideoNodeLoRAHigh, "lora_name", weights.HighNoise},
		{VideoNodeLoRALow, "lora_name", weights.LowNoise},
		{VideoNodePositive, "text", p.Prompt},
		{VideoNodeNegative, "text", p.NegativePrompt},
		{VideoNodeLatent, "width", res.Width},
		{VideoNodeLatent, "height", res.Height},
		{VideoNodeLatent, "length", frames},
		{VideoNodeSamplerHigh, "noise_seed", p.Seed},
		{VideoNodeSamplerHigh, "steps", p.Steps},
		{VideoNodeSamplerHigh, "cfg", p.GuidanceScale},
		{VideoNodeSamplerHigh, "end_at_step", split},
		{VideoNodeSamplerLow, "noise_seed", p.Seed + 1},
		{VideoNodeSamplerLow, "steps", p.Steps},
		{VideoNodeSamplerLow, "cfg", p.GuidanceScale},
		{VideoNodeSamplerLow, "start_at_step", split},
	}
	for _, l := range literals {
		if err := g.SetLiteral(l.node, l.input, l.value); err != nil {
			return nil, err
		}
	}

	// Explicit decode wiring: samples from the final pass, vae from the loader.
	if err := g.Set(VideoNodeDecode, "samples", Ref(VideoNodeSamplerLow, 0)); err != nil {
		return nil, err
	}
	if err := g.Set(VideoNodeDecode, "vae", Ref(VideoNodeVAE, 0)); err != nil {
		return nil, err
	}
	return g, nil
}

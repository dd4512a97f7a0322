package model

import "time"

// GenerationRequest is the caller's intent for a single image or video.
type GenerationRequest struct {
	Kind            MediaKind   `json:"kind" validate:"omitempty,oneof=image video"`
	Prompt          string      `json:"prompt" validate:"required,min=1,max=4000"`
	NegativePrompt  string      `json:"negativePrompt,omitempty" validate:"max=4000"`
	AspectRatio     AspectRatio `json:"aspectRatio,omitempty"`
	StyleReference  *string     `json:"styleReference,omitempty"`
	Steps           int         `json:"steps,omitempty" validate:"gte=0,lte=150"`
	GuidanceScale   float64     `json:"guidanceScale,omitempty" validate:"gte=0,lte=30"`
	Seed            *int64      `json:"seed,omitempty"`
	DurationSeconds float64     `json:"durationSeconds,omitempty" validate:"gte=0,lte=30"`
	PersonaID       string      `json:"personaId,omitempty" validate:"required_if=Kind video"`
}

// JobHandle identifies a job accepted by the compute backend.
type JobHandle struct {
	ID          string    `json:"id"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// MediaDescriptor is one file entry in a backend output node.
type MediaDescriptor struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// NodeOutput is the output section of a single graph node. Stills are
// reported under images, video containers under gifs.
type NodeOutput struct {
	Images []MediaDescriptor `json:"images,omitempty"`
	Gifs   []MediaDescriptor `json:"gifs,omitempty"`
}

// Artifact is the generated media returned to callers.
type Artifact struct {
	URL       string  `json:"url"`
	Filename  string  `json:"filename"`
	Subfolder string  `json:"subfolder"`
	Type      string  `json:"type"`
	MediaType string  `json:"mediaType"`
	LocalPath *string `json:"localPath,omitempty"`
	PublicURL string  `json:"publicUrl,omitempty"`
}

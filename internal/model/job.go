package model

import "time"

// Job represents a queued generation in the system
type Job struct {
	ID          string     `json:"id"`
	Kind        MediaKind  `json:"kind"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	CurrentStep string     `json:"currentStep,omitempty"`
	BackendID   string     `json:"backendId,omitempty"`
	Error       *JobError  `json:"error,omitempty"`
	Payload     []byte     `json:"payload,omitempty"`
	Result      []byte     `json:"result,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// JobError keeps the taxonomy code next to the message so API clients can
// tell "still processing" from "generation failed".
type JobError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// GenerationJobPayload contains the data for a generation task
type GenerationJobPayload struct {
	Request GenerationRequest `json:"request"`
}

// GenerateStartResponse is returned when a generation is accepted
type GenerateStartResponse struct {
	JobID     string    `json:"jobId"`
	Kind      MediaKind `json:"kind"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// GenerateStatusResponse reports the progress of a generation job
type GenerateStatusResponse struct {
	JobID       string     `json:"jobId"`
	Kind        MediaKind  `json:"kind"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	CurrentStep string     `json:"currentStep,omitempty"`
	Error       *JobError  `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// GenerateResultResponse is the artifact of a succeeded job
type GenerateResultResponse struct {
	JobID    string    `json:"jobId"`
	Kind     MediaKind `json:"kind"`
	Artifact Artifact  `json:"artifact"`
}

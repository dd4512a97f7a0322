package model

// Media kinds
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

// Aspect ratios accepted on generation requests
type AspectRatio string

const (
	AspectSquare    AspectRatio = "1:1"
	AspectLandscape AspectRatio = "16:9"
	AspectPortrait  AspectRatio = "9:16"
	AspectClassic   AspectRatio = "4:3"
	AspectTall      AspectRatio = "3:4"
	AspectPhoto     AspectRatio = "3:2"
	AspectPoster    AspectRatio = "2:3"
)

var ValidAspectRatios = []AspectRatio{
	AspectSquare, AspectLandscape, AspectPortrait, AspectClassic,
	AspectTall, AspectPhoto, AspectPoster,
}

// Job status
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusTimedOut  JobStatus = "timed_out"
	JobStatusCanceled  JobStatus = "canceled"
)

// IsTerminal reports whether no further transitions are expected.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusTimedOut, JobStatusCanceled:
		return true
	default:
		return false
	}
}

// Artifact media types, named after the output array they were found in
const (
	ArtifactMediaImage = "image"
	ArtifactMediaVideo = "video"
)

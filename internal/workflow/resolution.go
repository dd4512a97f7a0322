package workflow

import "github.com/influencerlab/api/internal/model"

// Resolution is a latent size in pixels.
type Resolution struct {
	Width  int
	Height int
}

// DefaultAspectRatio is used for empty or unrecognised ratios.
const DefaultAspectRatio = model.AspectSquare

var imageResolutions = map[model.AspectRatio]Resolution{
	model.AspectSquare:    {Width: 1024, Height: 1024},
	model.AspectLandscape: {Width: 1344, Height: 768},
	model.AspectPortrait:  {Width: 768, Height: 1344},
	model.AspectClassic:   {Width: 1152, Height: 896},
	model.AspectTall:      {Width: 896, Height: 1152},
	model.AspectPhoto:     {Width: 1216, Height: 832},
	model.AspectPoster:    {Width: 832, Height: 1216},
}

// Video latents are far more expensive per pixel, so the table is smaller.
var videoResolutions = map[model.AspectRatio]Resolution{
	model.AspectSquare:    {Width: 640, Height: 640},
	model.AspectLandscape: {Width: 832, Height: 480},
	model.AspectPortrait:  {Width: 480, Height: 832},
	model.AspectClassic:   {Width: 704, Height: 528},
	model.AspectTall:      {Width: 528, Height: 704},
	model.AspectPhoto:     {Width: 768, Height: 512},
	model.AspectPoster:    {Width: 512, Height: 768},
}

// ResolveResolution maps an aspect ratio to the fixed size for kind. Unknown
// ratios fall back to DefaultAspectRatio; this never fails.
func ResolveResolution(kind model.MediaKind, ratio model.AspectRatio) Resolution {
	table := imageResolutions
	if kind == model.MediaKindVideo {
		table = videoResolutions
	}
	if r, ok := table[ratio]; ok {
		return r
	}
	return table[DefaultAspectRatio]
}

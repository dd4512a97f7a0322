package generation

import (
	"sort"

	"github.com/influencerlab/api/internal/model"
	"github.com/influencerlab/api/internal/workflow"
)

const defaultFolderType = "output"

// URLBuilder builds the fetch URL of a backend output file.
type URLBuilder interface {
	ViewURL(filename, subfolder, folderType string) string
}

// Resolver locates the generated media in a finished job's outputs.
type Resolver struct {
	urls     URLBuilder
	expected map[model.MediaKind][]string
}

func NewResolver(urls URLBuilder) *Resolver {
	return &Resolver{
		urls: urls,
		expected: map[model.MediaKind][]string{
			model.MediaKindImage: workflow.ImageOutputNodes,
			model.MediaKindVideo: workflow.VideoOutputNodes,
		},
	}
}

type mediaField struct {
	mediaType string
	pick      func(model.NodeOutput) []model.MediaDescriptor
}

var (
	imagesField = mediaField{model.ArtifactMediaImage, func(o model.NodeOutput) []model.MediaDescriptor { return o.Images }}
	gifsField   = mediaField{model.ArtifactMediaVideo, func(o model.NodeOutput) []model.MediaDescriptor { return o.Gifs }}
)

// Resolve returns the first artifact found in outputs. The template's
// expected output nodes are checked first, then every node in ascending id
// order. Video jobs look at gifs before images; image jobs the reverse.
func (r *Resolver) Resolve(kind model.MediaKind, outputs map[string]model.NodeOutput) (*model.Artifact, error) {
	fields := []mediaField{imagesField, gifsField}
	if kind == model.MediaKindVideo {
		fields = []mediaField{gifsField, imagesField}
	}

	for _, id := range r.expected[kind] {
		if out, ok := outputs[id]; ok {
			if a := r.fromNode(out, fields); a != nil {
				return a, nil
			}
		}
	}

	ids := make([]string, 0, len(outputs))
	for id := range outputs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if a := r.fromNode(outputs[id], fields); a != nil {
			return a, nil
		}
	}

	return nil, newError(ErrArtifactNotFound, "resolve", "job succeeded but no output node exposed media", nil)
}

func (r *Resolver) fromNode(out model.NodeOutput, fields []mediaField) *model.Artifact {
	for _, f := range fields {
		for _, d := range f.pick(out) {
			if d.Filename == "" {
				continue
			}
			folderType := d.Type
			if folderType == "" {
				folderType = defaultFolderType
			}
			return &model.Artifact{
				URL:       r.urls.ViewURL(d.Filename, d.Subfolder, folderType),
				Filename:  d.Filename,
				Subfolder: d.Subfolder,
				Type:      folderType,
				MediaType: f.mediaType,
			}
		}
	}
	return nil
}

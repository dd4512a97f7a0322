package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/influencerlab/api/internal/client"
	"github.com/influencerlab/api/internal/model"
)

const (
	defaultVideoExt   = ".mp4"
	mirrorKeyPrefix   = "videos/"
	maxNameAttempts   = 3
	shortIDLength     = 8
	defaultPersonaTag = "video"
)

// Downloader fetches artifact bytes from the backend.
type Downloader interface {
	Download(ctx context.Context, rawURL string) (io.ReadCloser, error)
}

// Materializer copies a resolved video artifact into local storage so it can
// be served without exposing the backend URL.
type Materializer struct {
	downloader   Downloader
	outputDir    string
	publicPrefix string
	store        client.ObjectStore
	now          func() time.Time
	newID        func() string
	logger       zerolog.Logger
}

// NewMaterializer writes into outputDir and reports paths under
// publicPrefix. store is optional; when set every file is mirrored to it.
func NewMaterializer(d Downloader, outputDir, publicPrefix string, store client.ObjectStore, logger zerolog.Logger) *Materializer {
	return &Materializer{
		downloader:   d,
		outputDir:    outputDir,
		publicPrefix: "/" + strings.Trim(publicPrefix, "/"),
		store:        store,
		now:          time.Now,
		newID:        uuid.NewString,
		logger:       logger,
	}
}

// Materialize downloads a.URL and returns a copy of a whose LocalPath and
// URL point at the stored file. On error nothing is left under the final
// name.
func (m *Materializer) Materialize(ctx context.Context, a *model.Artifact, personaID string) (*model.Artifact, error) {
	const op = "materialize"
	if a == nil || a.URL == "" {
		return nil, newError(ErrMaterialization, op, "artifact has no source URL", nil)
	}
	if err := os.MkdirAll(m.outputDir, 0o755); err != nil {
		return nil, newError(ErrMaterialization, op, "ensure output directory", err)
	}

	tmpPath, size, err := m.download(ctx, a.URL)
	if err != nil {
		return nil, newError(ErrMaterialization, op, "download", err)
	}
	defer os.Remove(tmpPath)

	ext := strings.ToLower(filepath.Ext(a.Filename))
	if ext == "" {
		ext = defaultVideoExt
	}
	name, err := m.place(tmpPath, personaID, ext)
	if err != nil {
		return nil, newError(ErrMaterialization, op, "store file", err)
	}
	finalPath := filepath.Join(m.outputDir, name)

	out := *a
	localPath := path.Join(m.publicPrefix, name)
	out.LocalPath = &localPath
	out.URL = localPath

	if m.store != nil {
		publicURL, err := m.mirror(ctx, finalPath, name, size, ext)
		if err != nil {
			_ = os.Remove(finalPath)
			return nil, newError(ErrMaterialization, op, "mirror to object storage", err)
		}
		out.PublicURL = publicURL
	}

	m.logger.Info().
		Str("filename", a.Filename).
		Str("local_path", localPath).
		Int64("bytes", size).
		Msg("artifact materialized")
	return &out, nil
}

// download streams rawURL into a temp file inside the output directory so
// the final link never crosses filesystems.
func (m *Materializer) download(ctx context.Context, rawURL string) (string, int64, error) {
	body, err := m.downloader.Download(ctx, rawURL)
	if err != nil {
		return "", 0, err
	}
	defer body.Close()

	tmp, err := os.CreateTemp(m.outputDir, ".download-*.part")
	if err != nil {
		return "", 0, err
	}
	size, copyErr := io.Copy(tmp, body)
	syncErr := tmp.Sync()
	closeErr := tmp.Close()
	if err := errors.Join(copyErr, syncErr, closeErr); err != nil {
		_ = os.Remove(tmp.Name())
		return "", 0, err
	}
	return tmp.Name(), size, nil
}

// place links tmpPath under a fresh collision-resistant name. os.Link fails
// when the target exists, so a concurrent writer can never be overwritten.
func (m *Materializer) place(tmpPath, personaID, ext string) (string, error) {
	var lastErr error
	for i := 0; i < maxNameAttempts; i++ {
		name := m.fileName(personaID, ext)
		err := os.Link(tmpPath, filepath.Join(m.outputDir, name))
		if err == nil {
			return name, nil
		}
		lastErr = err
		if !errors.Is(err, os.ErrExist) {
			break
		}
	}
	return "", lastErr
}

func (m *Materializer) fileName(personaID, ext string) string {
	id := strings.ReplaceAll(m.newID(), "-", "")
	if len(id) > shortIDLength {
		id = id[:shortIDLength]
	}
	return fmt.Sprintf("%s_%d_%s%s", personaTag(personaID), m.now().UnixMilli(), id, ext)
}

func (m *Materializer) mirror(ctx context.Context, finalPath, name string, size int64, ext string) (string, error) {
	f, err := os.Open(finalPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	return m.store.Upload(ctx, mirrorKeyPrefix+name, f, size, contentTypeFor(ext))
}

var videoContentTypes = map[string]string{
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".gif":  "image/gif",
}

func contentTypeFor(ext string) string {
	if ct, ok := videoContentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// personaTag reduces a persona id to a filename-safe token.
func personaTag(personaID string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(personaID)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return defaultPersonaTag
	}
	return b.String()
}

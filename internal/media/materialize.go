// Package media downloads the images of retained posts and encodes them as
// inline thumbnails.
package media

import (
	"context"
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ibeckermayer/trendscout/internal/types"
)

// DefaultPause separates consecutive image downloads.
const DefaultPause = 500 * time.Millisecond

// KindImage and KindVideo name media files on disk.
const (
	KindImage = "image"
	KindVideo = "video"
)

// Downloader fetches one media URL to local storage and returns its path.
type Downloader interface {
	DownloadMedia(ctx context.Context, url, kind, keyword, postID string) (string, error)
}

// Materializer downloads post images one at a time with a fixed pause.
type Materializer struct {
	dl    Downloader
	pause time.Duration
	sleep func(ctx context.Context, d time.Duration) error
	log   logrus.FieldLogger
}

// NewMaterializer returns a Materializer pausing for pause after each URL.
func NewMaterializer(dl Downloader, pause time.Duration, log logrus.FieldLogger) *Materializer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Materializer{dl: dl, pause: pause, sleep: sleepCtx, log: log}
}

// Materialize downloads the images of every post that has them and records
// the local paths on copies of the posts. Failed downloads are logged and
// skipped. It returns the updated posts and the number of files written.
func (m *Materializer) Materialize(ctx context.Context, posts []types.Post) ([]types.Post, int) {
	out := make([]types.Post, len(posts))
	copy(out, posts)

	downloaded := 0
	for i := range out {
		p := &out[i]
		if !p.HasImages {
			continue
		}
		p.ImagePaths = slices.Clip(p.ImagePaths)
		paths, err := m.Post(ctx, p)
		downloaded += len(paths)
		if err != nil {
			m.log.WithError(err).Warn("media download interrupted")
			return out, downloaded
		}
	}
	return out, downloaded
}

// Post downloads the images of p and appends the local paths to
// p.ImagePaths. A non-nil error means ctx was cancelled.
func (m *Materializer) Post(ctx context.Context, p *types.Post) ([]string, error) {
	var paths []string
	for _, url := range p.ImageURLs {
		if err := ctx.Err(); err != nil {
			return paths, err
		}
		path, err := m.dl.DownloadMedia(ctx, url, KindImage, p.Keyword, p.ID)
		if err != nil {
			m.log.WithFields(logrus.Fields{
				"keyword": p.Keyword,
				"post_id": p.ID,
				"url":     url,
			}).WithError(err).Warn("failed to download image")
		} else if path != "" {
			paths = append(paths, path)
			p.ImagePaths = append(p.ImagePaths, path)
		}
		if err := m.sleep(ctx, m.pause); err != nil {
			return paths, err
		}
	}
	return paths, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

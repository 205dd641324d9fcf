// Package filter keeps only the recent, media-bearing posts worth scoring.
package filter

import (
	"time"

	"github.com/ibeckermayer/trendscout/internal/timeparse"
	"github.com/ibeckermayer/trendscout/internal/types"
)

// Window is how far back from the reference instant a post may be published.
const Window = 48 * time.Hour

// Recent returns, in input order, the posts published within Window of ref
// that carry at least one image or video. Survivors get PublishedAt set.
// Posts whose timestamp cannot be parsed are dropped.
func Recent(posts []types.Post, ref time.Time) []types.Post {
	cutoff := ref.Add(-Window)

	var kept []types.Post
	for _, p := range posts {
		if !p.HasMedia() {
			continue
		}
		published, ok := timeparse.Normalize(p.PublishTime, ref)
		if !ok {
			continue
		}
		if published.Before(cutoff) || published.After(ref) {
			continue
		}
		p.PublishedAt = published
		kept = append(kept, p)
	}
	return kept
}

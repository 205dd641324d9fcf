package providers

import (
	"context"
	"math"
	"time"
	"unicode/utf8"

	"github.com/ibeckermayer/trendscout/internal/types"
)

// LocalProvider scores posts offline from engagement, media and text length.
type LocalProvider struct {
	now func() time.Time
}

// NewLocalProvider creates the heuristic scorer
func NewLocalProvider() *LocalProvider {
	return &LocalProvider{now: time.Now}
}

func (l *LocalProvider) Name() string { return "local" }

// Score rates every post in 0..100. Topics are the post's #hashtags#.
func (l *LocalProvider) Score(ctx context.Context, posts []types.Post) ([]types.Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := l.now()
	analyses := make([]types.Analysis, len(posts))
	for i, p := range posts {
		analyses[i] = types.Analysis{
			PostID:       p.ID,
			QualityScore: HeuristicScore(p),
			Topics:       Hashtags(p.Content),
			AnalyzedAt:   now,
		}
	}
	return analyses, nil
}

// HeuristicScore weighs likes 40, comments 20, reposts 20, media 10 and text
// length 10. Counters are log scaled: 10k likes or 1k comments saturate.
func HeuristicScore(p types.Post) float64 {
	score := 40*logShare(p.Attitudes, 4) +
		20*logShare(p.Comments, 3) +
		20*logShare(p.Reposts, 3)
	if p.HasMedia() {
		score += 10
	}
	score += 10 * min(1, float64(utf8.RuneCountInString(p.Content))/140)
	return math.Round(score*10) / 10
}

func logShare(n int, decades float64) float64 {
	if n <= 0 {
		return 0
	}
	return min(1, math.Log10(1+float64(n))/decades)
}

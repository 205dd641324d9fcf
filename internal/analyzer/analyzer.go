// Package analyzer scores posts through a Provider and keeps the ones that
// clear the quality and engagement thresholds.
package analyzer

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/ibeckermayer/trendscout/internal/types"
)

// Provider scores a batch of posts. It returns at most one Analysis per
// post; posts it leaves out are treated as unscored.
type Provider interface {
	Name() string
	Score(ctx context.Context, posts []types.Post) ([]types.Analysis, error)
}

// Thresholds a post must meet to be retained. Zero values disable a check.
type Thresholds struct {
	MinScore    float64
	MinLikes    int
	MinComments int
	MinForwards int
}

// Allows reports whether a post with score s clears every threshold.
func (t Thresholds) Allows(p types.Post, s float64) bool {
	return s >= t.MinScore &&
		p.Attitudes >= t.MinLikes &&
		p.Comments >= t.MinComments &&
		p.Reposts >= t.MinForwards
}

// batchesInFlight keeps scoring sequential like the rest of a run.
const batchesInFlight = 1

// Analyzer handles batched post scoring
type Analyzer struct {
	provider  Provider
	batchSize int
}

// New creates an analyzer sending batches of batchSize posts to provider.
func New(provider Provider, batchSize int) *Analyzer {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Analyzer{provider: provider, batchSize: batchSize}
}

// Provider returns the name of the underlying provider.
func (a *Analyzer) Provider() string {
	return a.provider.Name()
}

// AnalyzePosts scores posts in batches, one request at a time, and returns
// the analyses in input order. The first failing batch cancels the rest.
func (a *Analyzer) AnalyzePosts(ctx context.Context, posts []types.Post) ([]types.Analysis, error) {
	if len(posts) == 0 {
		return nil, nil
	}

	// Calculate number of batches
	numBatches := (len(posts) + a.batchSize - 1) / a.batchSize

	// Pre-allocate results slice (one slice per batch)
	results := make([][]types.Analysis, numBatches)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(batchesInFlight)

	for i := 0; i < len(posts) && ctx.Err() == nil; i += a.batchSize {
		batchIdx := i / a.batchSize
		batch := posts[i:min(i+a.batchSize, len(posts))]

		g.Go(func() error {
			analyses, err := a.provider.Score(ctx, batch)
			if err != nil {
				return fmt.Errorf("failed to analyze batch %d: %w", batchIdx, err)
			}
			results[batchIdx] = analyses
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []types.Analysis
	for _, batchResult := range results {
		all = append(all, batchResult...)
	}
	return all, nil
}

// Analyze scores posts and returns those meeting th, in input order, each
// carrying its content score, plus the trending topics of the retained set.
// FilteredPosts is never nil on success.
func (a *Analyzer) Analyze(ctx context.Context, posts []types.Post, th Thresholds) (*types.AnalysisResult, error) {
	analyses, err := a.AnalyzePosts(ctx, posts)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]types.Analysis, len(analyses))
	for _, an := range analyses {
		byID[an.PostID] = an
	}

	result := &types.AnalysisResult{
		OriginalCount:  len(posts),
		FilteredPosts:  []types.Post{},
		TrendingTopics: []types.TrendingTopic{},
	}
	if len(posts) > 0 {
		result.Keyword = posts[0].Keyword
	}

	var kept []types.Analysis
	for _, p := range posts {
		an, ok := byID[p.ID]
		if !ok || !th.Allows(p, an.QualityScore) {
			continue
		}
		score := an.QualityScore
		p.ContentScore = &score
		result.FilteredPosts = append(result.FilteredPosts, p)
		kept = append(kept, an)
	}
	result.FilteredCount = len(result.FilteredPosts)
	result.TrendingTopics = TrendingTopics(kept)
	return result, nil
}

// TrendingTopics groups analyses by topic. A topic's score is the mean
// quality score of the posts mentioning it. Topics are ordered by post count,
// then score, then label.
func TrendingTopics(analyses []types.Analysis) []types.TrendingTopic {
	type agg struct {
		sum   float64
		count int
	}
	totals := make(map[string]*agg)
	var order []string
	for _, an := range analyses {
		seen := make(map[string]bool, len(an.Topics))
		for _, topic := range an.Topics {
			if topic == "" || seen[topic] {
				continue
			}
			seen[topic] = true
			t, ok := totals[topic]
			if !ok {
				t = &agg{}
				totals[topic] = t
				order = append(order, topic)
			}
			t.sum += an.QualityScore
			t.count++
		}
	}

	topics := make([]types.TrendingTopic, 0, len(order))
	for _, label := range order {
		t := totals[label]
		topics = append(topics, types.TrendingTopic{
			Label:     label,
			Score:     t.sum / float64(t.count),
			PostCount: t.count,
		})
	}
	slices.SortStableFunc(topics, func(a, b types.TrendingTopic) int {
		if c := cmp.Compare(b.PostCount, a.PostCount); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Label, b.Label)
	})
	return topics
}

package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ibeckermayer/trendscout/internal/assemble"
	"github.com/ibeckermayer/trendscout/internal/filter"
	"github.com/ibeckermayer/trendscout/internal/store"
	"github.com/ibeckermayer/trendscout/internal/types"
)

// ErrMalformedAnalysis marks a scorer response without filtered posts.
var ErrMalformedAnalysis = errors.New("analysis result has no filtered_posts")

// Status is the outcome of one unit.
type Status string

const (
	StatusOK     Status = "ok"
	StatusEmpty  Status = "empty"
	StatusFailed Status = "failed"
)

// UnitResult is what processing one keyword or one (user, keyword) pair
// produced. Posts is only set for StatusOK.
type UnitResult struct {
	Unit     string
	Keyword  string
	UserURL  string
	Status   Status
	Posts    []types.Post
	Analysis *types.AnalysisResult
	Reason   string
	Err      error

	Fetched    int
	Recent     int
	Downloaded int
	Files      []string
	Duration   time.Duration
}

func okResult(r UnitResult, posts []types.Post) UnitResult {
	r.Status = StatusOK
	r.Posts = posts
	return r
}

func emptyResult(r UnitResult, reason string) UnitResult {
	r.Status = StatusEmpty
	r.Reason = reason
	return r
}

func failedResult(r UnitResult, err error) UnitResult {
	r.Status = StatusFailed
	r.Err = err
	r.Reason = err.Error()
	return r
}

// Collector accumulates unit results. It is safe for concurrent use.
type Collector struct {
	mu      sync.Mutex
	results []UnitResult
}

// Add records r.
func (c *Collector) Add(r UnitResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, r)
}

// Results returns a copy of the recorded results in insertion order.
func (c *Collector) Results() []UnitResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.results)
}

// Posts returns the posts of every successful unit in insertion order.
func (c *Collector) Posts() []types.Post {
	c.mu.Lock()
	defer c.mu.Unlock()
	var posts []types.Post
	for _, r := range c.results {
		if r.Status == StatusOK {
			posts = append(posts, r.Posts...)
		}
	}
	return posts
}

// Counts tallies results by status.
func (c *Collector) Counts() map[Status]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	counts := make(map[Status]int, 3)
	for _, r := range c.results {
		counts[r.Status]++
	}
	return counts
}

// ProcessKeyword runs the full pipeline for one keyword and writes its CSV
// and analysis artifacts. Failures are reported through the result.
func (a *App) ProcessKeyword(ctx context.Context, rc RunContext, keyword string) UnitResult {
	start := time.Now()
	res := a.processKeyword(ctx, rc, keyword)
	res.Duration = time.Since(start)
	return res
}

func (a *App) processKeyword(ctx context.Context, rc RunContext, keyword string) UnitResult {
	res := UnitResult{Unit: keyword, Keyword: keyword}
	cfg := rc.Config
	log := a.log.WithField("keyword", keyword)

	// Step 1: fetch without media; only retained posts get downloaded
	log.WithFields(logrus.Fields{
		"pages": cfg.Fetch.DefaultPages,
		"start": cfg.Fetch.StartPage,
	}).Info("fetching keyword")
	posts, err := a.fetcher.SearchKeyword(ctx, keyword, cfg.Fetch.DefaultPages, cfg.Fetch.StartPage, false)
	if err != nil {
		return failedResult(res, fmt.Errorf("failed to fetch %q: %w", keyword, err))
	}
	res.Fetched = len(posts)
	if len(posts) == 0 {
		return emptyResult(res, "no posts fetched")
	}
	a.cacheStep(store.StepFetched, keyword, posts)

	// Step 2: recency and media filter
	recent := filter.Recent(posts, rc.Now)
	res.Recent = len(recent)
	log.Infof("%d of %d posts are recent and carry media", len(recent), len(posts))
	if len(recent) == 0 {
		return emptyResult(res, "no recent posts with media")
	}
	a.cacheStep(store.StepFiltered, keyword, recent)

	// Step 3: score
	analysis, err := a.scorer.Analyze(ctx, recent, rc.Thresholds())
	if err != nil {
		return failedResult(res, fmt.Errorf("failed to analyze %q: %w", keyword, err))
	}
	if analysis == nil || analysis.FilteredPosts == nil {
		res.Err = ErrMalformedAnalysis
		return emptyResult(res, ErrMalformedAnalysis.Error())
	}
	res.Analysis = analysis
	a.cacheStep(store.StepAnalysis, keyword, analysis)
	if len(analysis.FilteredPosts) == 0 {
		return emptyResult(res, "no posts passed the scorer thresholds")
	}

	// Step 4: category label
	category := a.categories.Classify(keyword)
	retained := make([]types.Post, len(analysis.FilteredPosts))
	for i, p := range analysis.FilteredPosts {
		p.Category = category
		retained[i] = p
	}

	// Step 5: media for the retained set only
	if cfg.Fetch.DownloadMedia && a.materializer != nil {
		retained, res.Downloaded = a.materializer.Materialize(ctx, retained)
		if a.encoder != nil {
			retained = a.encoder.EncodePosts(retained)
		}
		log.Infof("downloaded %d images", res.Downloaded)
	}

	// Step 6: assemble and persist both artifacts together
	table, err := assemble.Posts(retained, assemble.Options{})
	if err != nil {
		log.WithError(err).Warn("failed to clean results, writing them unmodified")
	}
	csvPath := rc.Paths.KeywordCSV(keyword)
	jsonPath := rc.Paths.KeywordAnalysis(keyword)
	if err := store.WriteCSV(csvPath, table.Columns, table.Rows); err != nil {
		return failedResult(res, err)
	}
	// the JSON artifact carries the retained posts with category and media
	artifact := *analysis
	artifact.FilteredPosts = retained
	if err := store.WriteAnalysis(jsonPath, &artifact); err != nil {
		return failedResult(res, err)
	}
	res.Files = []string{csvPath, jsonPath}

	logTopics(log, analysis.TrendingTopics)
	return okResult(res, retained)
}

// ProcessUserKeyword fetches one page of a user's posts for keyword and tags
// them. index is the 1-based position of userURL in the input list and names
// the user when no ID can be extracted.
func (a *App) ProcessUserKeyword(ctx context.Context, rc RunContext, userURL, keyword string, index int) UnitResult {
	start := time.Now()
	res := a.processUserKeyword(ctx, rc, userURL, keyword, index)
	res.Duration = time.Since(start)
	return res
}

func (a *App) processUserKeyword(ctx context.Context, rc RunContext, userURL, keyword string, index int) UnitResult {
	res := UnitResult{Unit: userURL + " " + keyword, Keyword: keyword, UserURL: userURL}

	posts, err := a.fetcher.SearchUser(ctx, userURL, keyword, 1, rc.Config.Fetch.DownloadMedia)
	if err != nil {
		return failedResult(res, fmt.Errorf("failed to fetch %s for %q: %w", userURL, keyword, err))
	}
	res.Fetched = len(posts)
	if len(posts) == 0 {
		return emptyResult(res, "no posts fetched")
	}

	uid, ok := a.fetcher.ExtractUserID(userURL)
	if !ok {
		uid = fmt.Sprintf("user_%d", index)
	}
	tagged := make([]types.Post, len(posts))
	for i, p := range posts {
		p.UserID = uid
		p.Keyword = keyword
		tagged[i] = p
		res.Downloaded += len(p.ImagePaths)
	}
	return okResult(res, tagged)
}

func (a *App) cacheStep(step store.StepName, label string, data any) {
	if a.cache == nil {
		return
	}
	if _, err := store.SaveStepOutput(a.cache, step, label, data); err != nil {
		a.log.WithError(err).WithField("step", step).Warn("failed to cache step output")
	}
}

func logTopics(log logrus.FieldLogger, topics []types.TrendingTopic) {
	if len(topics) == 0 {
		return
	}
	parts := make([]string, 0, min(len(topics), 10))
	for _, t := range topics[:min(len(topics), 10)] {
		parts = append(parts, fmt.Sprintf("%s (%.1f, %d posts)", t.Label, t.Score, t.PostCount))
	}
	log.Infof("trending topics: %s", strings.Join(parts, ", "))
}

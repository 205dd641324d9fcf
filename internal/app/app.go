// Package app runs the keyword and user pipelines unit by unit and writes
// the per-run artifacts.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ibeckermayer/trendscout/internal/analyzer"
	"github.com/ibeckermayer/trendscout/internal/assemble"
	"github.com/ibeckermayer/trendscout/internal/classify"
	"github.com/ibeckermayer/trendscout/internal/gallery"
	"github.com/ibeckermayer/trendscout/internal/metrics"
	"github.com/ibeckermayer/trendscout/internal/store"
	"github.com/ibeckermayer/trendscout/internal/types"
)

// Fetcher retrieves posts. *fetcher.Client implements it.
type Fetcher interface {
	SearchKeyword(ctx context.Context, keyword string, pages, startPage int, download bool) ([]types.Post, error)
	SearchUser(ctx context.Context, userURL, keyword string, pages int, download bool) ([]types.Post, error)
	ExtractUserID(userURL string) (string, bool)
}

// Scorer filters posts by quality. *analyzer.Analyzer implements it.
type Scorer interface {
	Analyze(ctx context.Context, posts []types.Post, th analyzer.Thresholds) (*types.AnalysisResult, error)
}

// Materializer downloads the images of retained posts.
type Materializer interface {
	Materialize(ctx context.Context, posts []types.Post) ([]types.Post, int)
}

// Encoder inlines downloaded images as data URIs.
type Encoder interface {
	EncodePosts(posts []types.Post) []types.Post
}

// History records runs. *store.Store implements it.
type History interface {
	StartRun(mode, stamp string, startedAt time.Time) (store.Run, error)
	RecordUnit(u store.UnitRecord) error
	SavePosts(runID string, posts []types.Post) error
	FinishRun(run store.Run) error
}

// Deps are the collaborators of an App. Fetcher and Scorer are required;
// the rest may be nil.
type Deps struct {
	Fetcher      Fetcher
	Scorer       Scorer
	Categories   classify.CategoryMap
	Materializer Materializer
	Encoder      Encoder
	History      History
	Gallery      *gallery.Builder
	Cache        *store.StepCache
	Logger       logrus.FieldLogger
}

// App holds the application state. It is immutable after New.
type App struct {
	fetcher      Fetcher
	scorer       Scorer
	categories   classify.CategoryMap
	materializer Materializer
	encoder      Encoder
	history      History
	gallery      *gallery.Builder
	cache        *store.StepCache
	log          logrus.FieldLogger
}

// New creates a new App instance.
func New(deps Deps) *App {
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	return &App{
		fetcher:      deps.Fetcher,
		scorer:       deps.Scorer,
		categories:   deps.Categories,
		materializer: deps.Materializer,
		encoder:      deps.Encoder,
		history:      deps.History,
		gallery:      deps.Gallery,
		cache:        deps.Cache,
		log:          deps.Logger,
	}
}

// Summary is what a whole run produced.
type Summary struct {
	Run       store.Run
	Results   []UnitResult
	Aggregate string
	Gallery   string
	Metrics   string
}

// RunKeywords processes every keyword in order. Unit failures are logged
// and skipped; cancellation stops the run between units.
func (a *App) RunKeywords(ctx context.Context, rc RunContext, keywords []string) (*Summary, error) {
	return a.run(ctx, rc, store.ModeKeywords, len(keywords), func(ctx context.Context, i int) []UnitResult {
		return []UnitResult{a.ProcessKeyword(ctx, rc, keywords[i])}
	})
}

// RunUsers processes every (user URL, keyword) pair, users outermost.
func (a *App) RunUsers(ctx context.Context, rc RunContext, userURLs, keywords []string) (*Summary, error) {
	return a.run(ctx, rc, store.ModeUsers, len(userURLs), func(ctx context.Context, i int) []UnitResult {
		var results []UnitResult
		for _, kw := range keywords {
			if ctx.Err() != nil {
				break
			}
			results = append(results, a.ProcessUserKeyword(ctx, rc, userURLs[i], kw, i+1))
		}
		return results
	})
}

func (a *App) run(ctx context.Context, rc RunContext, mode string, n int, unit func(ctx context.Context, i int) []UnitResult) (*Summary, error) {
	log := a.log.WithFields(logrus.Fields{"run": rc.Stamp, "mode": mode})
	log.WithField("thread_pool_size", rc.Config.Fetch.ThreadPoolSize).Infof("starting run over %d inputs", n)

	m := metrics.New()
	run := a.startRun(log, mode, rc)

	var collector Collector
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			log.WithError(err).Warn("run interrupted")
			break
		}
		for _, r := range unit(ctx, i) {
			collector.Add(r)
			a.report(log, mode, run, m, r)
		}
	}

	summary := &Summary{Results: collector.Results()}
	counts := collector.Counts()
	posts := collector.Posts()

	if len(posts) > 0 {
		summary.Aggregate = rc.Paths.Aggregate(mode)
		table, err := assemble.Posts(posts, assemble.Options{SortColumn: assemble.ColAttitudes})
		if err != nil {
			log.WithError(err).Warn("failed to clean aggregate results, writing them unmodified")
		}
		if err := store.WriteCSV(summary.Aggregate, table.Columns, table.Rows); err != nil {
			log.WithError(err).Error("failed to write aggregate results")
			summary.Aggregate = ""
		} else {
			m.Artifacts.WithLabelValues("aggregate").Inc()
			log.Infof("saved %d posts to %s", len(posts), summary.Aggregate)
		}

		if rc.Config.Output.Gallery && a.gallery != nil {
			title := fmt.Sprintf("trendscout %s", rc.Now.Format("2006-01-02 15:04"))
			g, err := a.gallery.Write(rc.Paths.Gallery(mode), posts, title, rc.Now)
			if err != nil {
				log.WithError(err).Info("no gallery generated")
			} else {
				summary.Gallery = g.FilePath
				m.Artifacts.WithLabelValues("gallery").Inc()
				log.Infof("gallery saved to %s (%d images)", g.FilePath, g.ImageCount)
			}
		}
	} else {
		log.Warn("no results in this run")
	}

	run.Units = len(summary.Results)
	run.OK = counts[StatusOK]
	run.Empty = counts[StatusEmpty]
	run.Failed = counts[StatusFailed]
	run.Posts = len(posts)
	summary.Run = a.finishRun(log, run, posts)

	if rc.Config.Output.Metrics {
		m.LastRun.Set(float64(time.Now().Unix()))
		summary.Metrics = rc.Paths.Metrics(mode)
		if err := m.WriteTextfile(summary.Metrics); err != nil {
			log.WithError(err).Warn("failed to write metrics")
			summary.Metrics = ""
		}
	}

	log.WithFields(logrus.Fields{
		"ok":     run.OK,
		"empty":  run.Empty,
		"failed": run.Failed,
		"posts":  run.Posts,
	}).Info("run finished")
	return summary, ctx.Err()
}

// report logs a unit result and records it in history and metrics.
func (a *App) report(log logrus.FieldLogger, mode string, run store.Run, m *metrics.Metrics, r UnitResult) {
	fields := logrus.Fields{"unit": r.Unit, "status": r.Status}
	if r.UserURL != "" {
		fields["user_url"] = r.UserURL
	}
	entry := log.WithFields(fields).WithField("keyword", r.Keyword)
	switch r.Status {
	case StatusOK:
		entry.Infof("unit produced %d posts", len(r.Posts))
	case StatusEmpty:
		entry.Warnf("no output: %s", r.Reason)
	case StatusFailed:
		entry.WithError(r.Err).Error("unit failed")
	}

	m.Units.WithLabelValues(mode, string(r.Status)).Inc()
	m.UnitDuration.WithLabelValues(mode).Observe(r.Duration.Seconds())
	m.Posts.WithLabelValues(metrics.StageFetched).Add(float64(r.Fetched))
	m.Posts.WithLabelValues(metrics.StageRecent).Add(float64(r.Recent))
	m.Posts.WithLabelValues(metrics.StageRetained).Add(float64(len(r.Posts)))
	m.MediaDownloads.Add(float64(r.Downloaded))
	m.Artifacts.WithLabelValues("unit").Add(float64(len(r.Files)))

	if a.history == nil || run.ID == "" {
		return
	}
	err := a.history.RecordUnit(store.UnitRecord{
		RunID:    run.ID,
		Unit:     r.Unit,
		Status:   string(r.Status),
		Posts:    len(r.Posts),
		Reason:   r.Reason,
		Duration: r.Duration,
	})
	if err != nil {
		log.WithError(err).Warn("failed to record unit history")
	}
}

func (a *App) startRun(log logrus.FieldLogger, mode string, rc RunContext) store.Run {
	run := store.Run{Mode: mode, Stamp: rc.Stamp, StartedAt: rc.Now}
	if a.history == nil {
		return run
	}
	started, err := a.history.StartRun(mode, rc.Stamp, rc.Now)
	if err != nil {
		log.WithError(err).Warn("failed to record run start")
		return run
	}
	return started
}

func (a *App) finishRun(log logrus.FieldLogger, run store.Run, posts []types.Post) store.Run {
	run.FinishedAt = time.Now()
	if a.history == nil || run.ID == "" {
		return run
	}
	if err := a.history.SavePosts(run.ID, posts); err != nil {
		log.WithError(err).Warn("failed to save post history")
	}
	if err := a.history.FinishRun(run); err != nil {
		log.WithError(err).Warn("failed to record run end")
	}
	return run
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ibeckermayer/trendscout/internal/analyzer"
	"github.com/ibeckermayer/trendscout/internal/analyzer/providers"
	"github.com/ibeckermayer/trendscout/internal/app"
	"github.com/ibeckermayer/trendscout/internal/classify"
	"github.com/ibeckermayer/trendscout/internal/config"
	"github.com/ibeckermayer/trendscout/internal/fetcher"
	"github.com/ibeckermayer/trendscout/internal/gallery"
	"github.com/ibeckermayer/trendscout/internal/media"
	"github.com/ibeckermayer/trendscout/internal/retry"
	"github.com/ibeckermayer/trendscout/internal/scheduler"
	"github.com/ibeckermayer/trendscout/internal/store"
)

const (
	// galleryMaxPosts caps the posts rendered into one gallery page.
	galleryMaxPosts = 200
	// scorerTimeout bounds one scoring request.
	scorerTimeout = 2 * time.Minute
)

func newKeywordsCmd(s *session) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "keywords [keyword...]",
		Short: "Search each keyword and keep the high-quality recent posts",
		Long: `Search Weibo for every keyword, keep posts from the last 48 hours that carry
images or videos, score them and write per-keyword and aggregate results.

Keywords come from the arguments, or from the configured keywords file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			keywords := args
			if len(keywords) == 0 {
				if file == "" {
					file = s.cfg.Inputs.KeywordsFile
				}
				var err error
				if keywords, err = app.ReadKeywords(file); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runKeywords(ctx, s, keywords, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "keywords file (default from config)")
	return cmd
}

func newUsersCmd(s *session) *cobra.Command {
	var urlsFile, keywordsFile string

	cmd := &cobra.Command{
		Use:   "users",
		Short: "Search each account's posts for each keyword",
		RunE: func(cmd *cobra.Command, args []string) error {
			if urlsFile == "" {
				urlsFile = s.cfg.Inputs.UserURLsFile
			}
			if keywordsFile == "" {
				keywordsFile = s.cfg.Inputs.KeywordsFile
			}
			urls, err := app.ReadUserURLs(urlsFile)
			if err != nil {
				return err
			}
			keywords, err := app.ReadKeywords(keywordsFile)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runUsers(ctx, s, urls, keywords, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&urlsFile, "users", "u", "", "user URLs file (default from config)")
	cmd.Flags().StringVarP(&keywordsFile, "file", "f", "", "keywords file (default from config)")
	return cmd
}

func newScheduleCmd(s *session) *cobra.Command {
	var users, now bool

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the keyword pipeline on the configured cron schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			sched, err := scheduler.New(s.cfg.Schedule.Timezone, s.log)
			if err != nil {
				return err
			}

			// Inputs are re-read on every tick so edits take effect without a restart.
			keywordsJob := func(ctx context.Context) error {
				keywords, err := app.ReadKeywords(s.cfg.Inputs.KeywordsFile)
				if err != nil {
					return err
				}
				return runKeywords(ctx, s, keywords, io.Discard)
			}
			usersJob := func(ctx context.Context) error {
				urls, err := app.ReadUserURLs(s.cfg.Inputs.UserURLsFile)
				if err != nil {
					return err
				}
				keywords, err := app.ReadKeywords(s.cfg.Inputs.KeywordsFile)
				if err != nil {
					return err
				}
				return runUsers(ctx, s, urls, keywords, io.Discard)
			}

			if err := sched.AddJob(store.ModeKeywords, s.cfg.Schedule.Cron, keywordsJob); err != nil {
				return err
			}
			if users {
				if err := sched.AddJob(store.ModeUsers, s.cfg.Schedule.Cron, usersJob); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sched.Start()
			if next, err := sched.NextRun(s.cfg.Schedule.Cron, time.Now()); err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Scheduled %q in %s, next run at %s\n",
					s.cfg.Schedule.Cron, sched.Location(), next.Format(time.DateTime))
			}
			if now {
				go func() {
					if err := sched.RunNow(store.ModeKeywords, keywordsJob); err != nil {
						s.log.WithError(err).Error("immediate run failed")
					}
				}()
			}

			<-ctx.Done()
			<-sched.Stop().Done()
			return nil
		},
	}

	cmd.Flags().BoolVar(&users, "users", false, "also run the user pipeline on the same schedule")
	cmd.Flags().BoolVar(&now, "now", false, "run the keyword pipeline once immediately")
	return cmd
}

func runKeywords(ctx context.Context, s *session, keywords []string, out io.Writer) error {
	a, cleanup, err := buildApp(s, true)
	if err != nil {
		return err
	}
	defer cleanup()

	rc := app.NewRunContext(s.cfg, time.Now())
	summary, err := a.RunKeywords(ctx, rc, keywords)
	printSummary(out, summary)
	return err
}

func runUsers(ctx context.Context, s *session, urls, keywords []string, out io.Writer) error {
	a, cleanup, err := buildApp(s, false)
	if err != nil {
		return err
	}
	defer cleanup()

	rc := app.NewRunContext(s.cfg, time.Now())
	summary, err := a.RunUsers(ctx, rc, urls, keywords)
	printSummary(out, summary)
	return err
}

// buildApp wires the pipeline from the session config. scoring selects
// whether the scorer and category table are needed.
func buildApp(s *session, scoring bool) (*app.App, func(), error) {
	cfg := s.cfg
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	log := s.log
	log.WithField("thread_pool_size", cfg.Fetch.ThreadPoolSize).Debug("units run sequentially")

	var cache *store.StepCache
	if cfg.Output.CacheSteps {
		cache = store.NewStepCache(filepath.Join(cfg.Output.ResultsDir, "cache"))
	}
	retryCfg := retry.Config{MaxRetries: cfg.Fetch.MaxRetries, Delay: cfg.RetryDelayDuration()}

	client, err := fetcher.New(fetcher.Options{
		Cookie:     resolveCookie(s),
		Proxy:      cfg.Fetch.Proxy,
		Timeout:    cfg.Timeout(),
		Retry:      retryCfg,
		MediaDir:   cfg.Output.MediaDir,
		MediaPause: media.DefaultPause,
		Location:   app.NewRunContext(cfg, time.Now()).Location,
		Logger:     log,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create fetcher: %w", err)
	}

	deps := app.Deps{
		Fetcher:      client,
		Materializer: media.NewMaterializer(client, media.DefaultPause, log),
		Encoder:      media.NewEncoder(),
		Cache:        cache,
		Logger:       log,
	}

	if scoring {
		provider, err := providers.New(cfg.Scoring, providers.Deps{
			HTTP:   &http.Client{Timeout: scorerTimeout},
			Retry:  retryCfg,
			Cache:  cache,
			Logger: log,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create scorer: %w", err)
		}
		deps.Scorer = analyzer.New(provider, cfg.Scoring.BatchSize)
		log.WithField("provider", provider.Name()).Info("scorer ready")

		if deps.Categories, err = loadCategories(cfg, log); err != nil {
			return nil, nil, err
		}
	}

	if cfg.Output.Gallery {
		if deps.Gallery, err = gallery.New(galleryMaxPosts, log); err != nil {
			return nil, nil, fmt.Errorf("failed to create gallery builder: %w", err)
		}
	}

	cleanup := func() {}
	if cfg.Output.HistoryDB != "" {
		history, err := store.New(cfg.Output.HistoryDB)
		if err != nil {
			// history is optional; the run still produces its files
			log.WithError(err).Warn("run history disabled")
		} else {
			deps.History = history
			cleanup = func() { history.Close() }
		}
	}

	return app.New(deps), cleanup, nil
}

// loadCategories reads the keyword table. A missing table classifies every
// keyword as unknown.
func loadCategories(cfg *config.Config, log logrus.FieldLogger) (classify.CategoryMap, error) {
	policy, err := classify.ParsePolicy(cfg.Inputs.DuplicatePolicy)
	if err != nil {
		return classify.CategoryMap{}, err
	}
	cats, dups, err := classify.Load(cfg.Inputs.CategoriesFile, policy)
	if errors.Is(err, os.ErrNotExist) {
		log.WithField("file", cfg.Inputs.CategoriesFile).Warn("category table not found, all keywords are unknown")
		return classify.CategoryMap{}, nil
	}
	if err != nil {
		return classify.CategoryMap{}, fmt.Errorf("failed to load categories: %w", err)
	}
	for _, d := range dups {
		log.WithFields(logrus.Fields{
			"keyword": d.Keyword, "kept": d.Kept, "rejected": d.Rejected, "line": d.Line,
		}).Warn("duplicate keyword in category table")
	}
	log.WithField("keywords", cats.Len()).Debug("category table loaded")
	return cats, nil
}

func printSummary(w io.Writer, summary *app.Summary) {
	if summary == nil {
		return
	}
	run := summary.Run
	fmt.Fprintf(w, "Run %s (%s): %d units, %d ok, %d empty, %d failed, %d posts\n",
		run.Stamp, run.Mode, run.Units, run.OK, run.Empty, run.Failed, run.Posts)
	for _, r := range summary.Results {
		switch r.Status {
		case app.StatusOK:
			fmt.Fprintf(w, "  %-6s %s: %d posts\n", r.Status, r.Unit, len(r.Posts))
		default:
			fmt.Fprintf(w, "  %-6s %s: %s\n", r.Status, r.Unit, r.Reason)
		}
	}
	for _, path := range []string{summary.Aggregate, summary.Gallery, summary.Metrics} {
		if path != "" {
			fmt.Fprintf(w, "Wrote %s\n", path)
		}
	}
}

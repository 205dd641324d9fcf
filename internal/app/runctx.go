package app

import (
	"time"
	_ "time/tzdata"

	"github.com/ibeckermayer/trendscout/internal/analyzer"
	"github.com/ibeckermayer/trendscout/internal/config"
	"github.com/ibeckermayer/trendscout/internal/store"
)

// RunContext is the immutable snapshot one run works from. Units receive it
// by value.
type RunContext struct {
	Config   config.Config
	Now      time.Time
	Stamp    string
	Location *time.Location
	Paths    store.ResultPaths
}

// NewRunContext captures cfg and the run instant. now is converted to the
// configured time zone, falling back to the local zone when it is unknown.
func NewRunContext(cfg *config.Config, now time.Time) RunContext {
	loc, err := time.LoadLocation(cfg.Schedule.Timezone)
	if err != nil || cfg.Schedule.Timezone == "" {
		loc = time.Local
	}
	now = now.In(loc)
	stamp := store.Stamp(now)
	return RunContext{
		Config:   *cfg,
		Now:      now,
		Stamp:    stamp,
		Location: loc,
		Paths:    store.ResultPaths{Dir: cfg.Output.ResultsDir, Stamp: stamp},
	}
}

// Thresholds returns the scorer thresholds of the run.
func (rc RunContext) Thresholds() analyzer.Thresholds {
	s := rc.Config.Scoring
	return analyzer.Thresholds{
		MinScore:    s.MinScore,
		MinLikes:    s.MinLikes,
		MinComments: s.MinComments,
		MinForwards: s.MinForwards,
	}
}

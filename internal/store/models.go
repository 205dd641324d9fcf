package store

import "time"

// Run modes
const (
	ModeKeywords = "keywords"
	ModeUsers    = "users"
)

// Run is one invocation of the pipeline over an input file
type Run struct {
	ID         string    `json:"id"`
	Mode       string    `json:"mode"`
	Stamp      string    `json:"stamp"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"` // zero while running
	Units      int       `json:"units"`
	OK         int       `json:"ok"`
	Empty      int       `json:"empty"`
	Failed     int       `json:"failed"`
	Posts      int       `json:"posts"`
}

// UnitRecord is the outcome of a single keyword or user/keyword unit
type UnitRecord struct {
	RunID    string        `json:"run_id"`
	Unit     string        `json:"unit"`
	Status   string        `json:"status"`
	Posts    int           `json:"posts"`
	Reason   string        `json:"reason,omitempty"`
	Duration time.Duration `json:"duration"`
}

// PostRecord tracks a retained post across runs
type PostRecord struct {
	ID           string    `json:"post_id"`
	Keyword      string    `json:"keyword"`
	UserName     string    `json:"user_name"`
	Attitudes    int       `json:"attitudes_count"`
	Comments     int       `json:"comments_count"`
	Reposts      int       `json:"reposts_count"`
	ContentScore *float64  `json:"content_score,omitempty"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	LastRunID    string    `json:"last_run_id"`
	TimesSeen    int       `json:"times_seen"`
}

package types

import "time"

// Post represents a fetched Weibo post
type Post struct {
	ID          string    `json:"post_id"`
	UserID      string    `json:"user_id,omitempty"`
	UserName    string    `json:"user_name"`
	UserLink    string    `json:"user_link,omitempty"`
	Keyword     string    `json:"keyword"`
	Content     string    `json:"content"`
	PublishTime string    `json:"publish_time"`
	Reposts     int       `json:"reposts_count"`
	Comments    int       `json:"comments_count"`
	Attitudes   int       `json:"attitudes_count"`
	HasImages   bool      `json:"has_images"`
	HasVideos   bool      `json:"has_videos"`
	ImageURLs   []string  `json:"image_urls,omitempty"`
	VideoURLs   []string  `json:"video_urls,omitempty"`
	ImagePaths  []string  `json:"image_paths,omitempty"`
	PostLink    string    `json:"post_link,omitempty"`
	Source      string    `json:"source,omitempty"`
	CrawledAt   time.Time `json:"crawl_time"`

	// Set by the pipeline.
	PublishedAt  time.Time `json:"-"`
	Category     string    `json:"category,omitempty"`
	ContentScore *float64  `json:"content_score,omitempty"`
	ImageBase64  []string  `json:"image_base64,omitempty"`
	ImageCount   int       `json:"image_count,omitempty"`
}

// HasMedia reports whether the post carries at least one image or video
func (p Post) HasMedia() bool {
	return p.HasImages || p.HasVideos
}

// Analysis is a scorer's verdict for a single post
type Analysis struct {
	PostID       string    `json:"post_id"`
	QualityScore float64   `json:"quality_score"`
	Topics       []string  `json:"topics"`
	AnalyzedAt   time.Time `json:"analyzed_at"`
}

// TrendingTopic aggregates the posts that mention one topic
type TrendingTopic struct {
	Label     string  `json:"keyword"`
	Score     float64 `json:"score"`
	PostCount int     `json:"post_count"`
}

// AnalysisResult is what the scorer returns for one keyword. FilteredPosts is
// nil when the scorer response did not carry the field at all.
type AnalysisResult struct {
	Keyword        string          `json:"keyword,omitempty"`
	OriginalCount  int             `json:"original_count"`
	FilteredCount  int             `json:"filtered_count"`
	FilteredPosts  []Post          `json:"filtered_posts"`
	TrendingTopics []TrendingTopic `json:"trending_topics"`
}

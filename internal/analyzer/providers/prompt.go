package providers

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ibeckermayer/trendscout/internal/types"
)

// AnalysisResult represents the expected JSON structure from any LLM provider
type AnalysisResult struct {
	PostID       string   `json:"post_id"`
	QualityScore float64  `json:"quality_score"`
	Topics       []string `json:"topics"`
}

// ParseAnalysisResponse parses raw JSON bytes from an LLM provider into Analysis objects.
// Each provider is responsible for assembling the complete JSON before calling this.
func ParseAnalysisResponse(jsonBytes []byte, now time.Time) ([]types.Analysis, error) {
	var results []AnalysisResult
	if err := json.Unmarshal(jsonBytes, &results); err != nil {
		return nil, fmt.Errorf("failed to parse analysis JSON: %w (response was: %.500s)", err, string(jsonBytes))
	}

	analyses := make([]types.Analysis, len(results))
	for i, r := range results {
		analyses[i] = types.Analysis{
			PostID:       r.PostID,
			QualityScore: min(100, max(0, r.QualityScore)),
			Topics:       r.Topics,
			AnalyzedAt:   now,
		}
	}

	return analyses, nil
}

var hashtag = regexp.MustCompile(`#([^#\s]{1,40})#`)

// Hashtags returns the distinct #topic# labels in content, in order.
func Hashtags(content string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range hashtag.FindAllStringSubmatch(content, -1) {
		if t := m[1]; !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// buildPrompt constructs the LLM prompt for scoring posts
func buildPrompt(posts []types.Post) string {
	var sb strings.Builder

	sb.WriteString("You are rating Weibo posts for a trend digest. Rate each post on content quality: ")
	sb.WriteString("originality, informativeness, visual appeal of the attached media and likely audience interest.\n\n")

	sb.WriteString("## Posts to Analyze\n\n")

	for i, p := range posts {
		fmt.Fprintf(&sb, "### Post %d (ID: %s)\n", i+1, p.ID)
		fmt.Fprintf(&sb, "Keyword: %s\n", p.Keyword)
		fmt.Fprintf(&sb, "Author: %s\n", p.UserName)
		fmt.Fprintf(&sb, "Content: %s\n", strings.Join(strings.Fields(p.Content), " "))
		fmt.Fprintf(&sb, "Engagement: %d likes, %d comments, %d reposts\n", p.Attitudes, p.Comments, p.Reposts)
		fmt.Fprintf(&sb, "Media: %d images, %d videos\n", len(p.ImageURLs), len(p.VideoURLs))
		sb.WriteString("\n")
	}

	sb.WriteString("## Task\n\n")
	sb.WriteString("For each post, provide:\n")
	sb.WriteString("1. quality_score (0 to 100): overall content quality\n")
	sb.WriteString("2. topics (array, max 3): short topic labels, reusing #hashtags# from the text when present\n\n")

	sb.WriteString("IMPORTANT: Respond with ONLY a valid JSON array. No markdown, no code blocks, no explanation - just the raw JSON starting with [ and ending with ].\n\n")
	sb.WriteString("Example structure:\n")
	sb.WriteString(`[{"post_id": "...", "quality_score": 85, "topics": ["演唱会", "travel"]}]`)
	sb.WriteString("\n")

	return sb.String()
}

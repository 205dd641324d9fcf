// Package assemble turns pipeline posts into the ordered table written to
// the CSV artifacts.
package assemble

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/ibeckermayer/trendscout/internal/types"
)

// Column names.
const (
	ColCategory     = "category"
	ColKeyword      = "keyword"
	ColUserID       = "user_id"
	ColUserName     = "user_name"
	ColUserLink     = "user_link"
	ColPostID       = "post_id"
	ColContent      = "content"
	ColPublishTime  = "publish_time"
	ColReposts      = "reposts_count"
	ColComments     = "comments_count"
	ColAttitudes    = "attitudes_count"
	ColHasImages    = "has_images"
	ColHasVideos    = "has_videos"
	ColImageURLs    = "image_urls"
	ColVideoURLs    = "video_urls"
	ColImagePaths   = "local_image_paths"
	ColPostLink     = "post_link"
	ColSource       = "source"
	ColCrawlTime    = "crawl_time"
	ColContentScore = "content_score"
	ColImageBase64  = "image_base64"
	ColImageCount   = "image_count"
)

// LinkTemplate builds the canonical link of a post from its ID.
const LinkTemplate = "https://weibo.com/detail/%s"

// Dropped columns never reach an output row.
var Dropped = []string{ColUserID, ColImageURLs, ColImagePaths, ColSource}

// Order is the output column sequence. Columns outside it are dropped.
var Order = []string{
	ColCategory,
	ColKeyword,
	ColUserName,
	ColPostID,
	ColContent,
	ColPublishTime,
	ColReposts,
	ColComments,
	ColAttitudes,
	ColPostLink,
	ColContentScore,
}

// Table is a header plus string rows, the shape the CSV writer consumes.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Index returns the position of col, or -1.
func (t *Table) Index(col string) int {
	return slices.Index(t.Columns, col)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Clone deep-copies the table.
func (t *Table) Clone() *Table {
	out := &Table{
		Columns: slices.Clone(t.Columns),
		Rows:    make([][]string, len(t.Rows)),
	}
	for i, row := range t.Rows {
		out.Rows[i] = slices.Clone(row)
	}
	return out
}

// Options controls assembly.
type Options struct {
	// SortColumn is the engagement counter rows are ordered by, descending.
	// Empty means ColAttitudes.
	SortColumn string
}

// FromPosts builds the raw table for posts. Optional columns (category,
// link, score, local paths, source, encoded images) are present only when at
// least one post carries a value for them.
func FromPosts(posts []types.Post) *Table {
	var hasCategory, hasLink, hasScore, hasPaths, hasSource, hasImages bool
	for _, p := range posts {
		hasCategory = hasCategory || p.Category != ""
		hasLink = hasLink || p.PostLink != ""
		hasScore = hasScore || p.ContentScore != nil
		hasPaths = hasPaths || len(p.ImagePaths) > 0
		hasSource = hasSource || p.Source != ""
		hasImages = hasImages || len(p.ImageBase64) > 0
	}

	type column struct {
		name  string
		value func(types.Post) string
	}
	cols := []column{
		{ColPostID, func(p types.Post) string { return p.ID }},
		{ColUserID, func(p types.Post) string { return p.UserID }},
		{ColUserName, func(p types.Post) string { return p.UserName }},
		{ColUserLink, func(p types.Post) string { return p.UserLink }},
		{ColKeyword, func(p types.Post) string { return p.Keyword }},
		{ColContent, func(p types.Post) string { return p.Content }},
		{ColPublishTime, func(p types.Post) string { return p.PublishTime }},
		{ColReposts, func(p types.Post) string { return strconv.Itoa(p.Reposts) }},
		{ColComments, func(p types.Post) string { return strconv.Itoa(p.Comments) }},
		{ColAttitudes, func(p types.Post) string { return strconv.Itoa(p.Attitudes) }},
		{ColHasImages, func(p types.Post) string { return strconv.FormatBool(p.HasImages) }},
		{ColHasVideos, func(p types.Post) string { return strconv.FormatBool(p.HasVideos) }},
		{ColImageURLs, func(p types.Post) string { return strings.Join(p.ImageURLs, "|") }},
		{ColVideoURLs, func(p types.Post) string { return strings.Join(p.VideoURLs, "|") }},
		{ColCrawlTime, func(p types.Post) string { return p.CrawledAt.Format("2006-01-02 15:04:05") }},
	}
	if hasPaths {
		cols = append(cols, column{ColImagePaths, func(p types.Post) string { return strings.Join(p.ImagePaths, "|") }})
	}
	if hasLink {
		cols = append(cols, column{ColPostLink, func(p types.Post) string { return p.PostLink }})
	}
	if hasSource {
		cols = append(cols, column{ColSource, func(p types.Post) string { return p.Source }})
	}
	if hasCategory {
		cols = append(cols, column{ColCategory, func(p types.Post) string { return p.Category }})
	}
	if hasScore {
		cols = append(cols, column{ColContentScore, func(p types.Post) string {
			if p.ContentScore == nil {
				return ""
			}
			return strconv.FormatFloat(*p.ContentScore, 'f', -1, 64)
		}})
	}
	if hasImages {
		cols = append(cols,
			column{ColImageBase64, func(p types.Post) string { return strings.Join(p.ImageBase64, "|") }},
			column{ColImageCount, func(p types.Post) string { return strconv.Itoa(p.ImageCount) }},
		)
	}

	t := &Table{Columns: make([]string, len(cols)), Rows: make([][]string, 0, len(posts))}
	for i, c := range cols {
		t.Columns[i] = c.name
	}
	for _, p := range posts {
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i] = c.value(p)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// Assemble drops internal columns, derives post links, collapses content
// whitespace, reorders columns and stable-sorts rows descending by the sort
// column. The input is never modified. On failure the input table is
// returned unchanged together with the error.
func Assemble(in *Table, opts Options) (*Table, error) {
	sortCol := opts.SortColumn
	if sortCol == "" {
		sortCol = ColAttitudes
	}

	t := in.Clone()
	for _, col := range Dropped {
		t.dropColumn(col)
	}

	if err := t.deriveLinks(); err != nil {
		return in, err
	}

	if c := t.Index(ColContent); c >= 0 {
		for _, row := range t.Rows {
			row[c] = strings.Join(strings.Fields(row[c]), " ")
		}
	}

	t.reorder(Order)

	if err := t.sortDesc(sortCol); err != nil {
		return in, err
	}
	return t, nil
}

// Posts is FromPosts followed by Assemble.
func Posts(posts []types.Post, opts Options) (*Table, error) {
	return Assemble(FromPosts(posts), opts)
}

func (t *Table) dropColumn(col string) {
	i := t.Index(col)
	if i < 0 {
		return
	}
	t.Columns = slices.Delete(t.Columns, i, i+1)
	for r, row := range t.Rows {
		t.Rows[r] = slices.Delete(row, i, i+1)
	}
}

// deriveLinks adds post_link when missing and fills empty link cells.
func (t *Table) deriveLinks() error {
	id := t.Index(ColPostID)
	link := t.Index(ColPostLink)
	if link < 0 {
		if id < 0 {
			return fmt.Errorf("failed to derive %s: no %s column", ColPostLink, ColPostID)
		}
		t.Columns = append(t.Columns, ColPostLink)
		for r, row := range t.Rows {
			t.Rows[r] = append(row, fmt.Sprintf(LinkTemplate, row[id]))
		}
		return nil
	}
	if id < 0 {
		return nil
	}
	for _, row := range t.Rows {
		if row[link] == "" && row[id] != "" {
			row[link] = fmt.Sprintf(LinkTemplate, row[id])
		}
	}
	return nil
}

func (t *Table) reorder(order []string) {
	var idx []int
	var cols []string
	for _, col := range order {
		if i := t.Index(col); i >= 0 {
			idx = append(idx, i)
			cols = append(cols, col)
		}
	}
	for r, row := range t.Rows {
		out := make([]string, len(idx))
		for j, i := range idx {
			out[j] = row[i]
		}
		t.Rows[r] = out
	}
	t.Columns = cols
}

func (t *Table) sortDesc(col string) error {
	c := t.Index(col)
	if c < 0 {
		return fmt.Errorf("failed to sort: no %s column", col)
	}

	keys := make([]int, len(t.Rows))
	for r, row := range t.Rows {
		n, err := strconv.Atoi(strings.TrimSpace(row[c]))
		if err != nil {
			return fmt.Errorf("failed to sort: row %d has non-numeric %s %q", r, col, row[c])
		}
		keys[r] = n
	}

	order := make([]int, len(t.Rows))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(keys[b], keys[a])
	})

	rows := make([][]string, len(order))
	for i, r := range order {
		rows[i] = t.Rows[r]
	}
	t.Rows = rows
	return nil
}

// Package gallery renders the images retained by a run into a single
// self-contained HTML page.
package gallery

import (
	"bytes"
	"cmp"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ibeckermayer/trendscout/internal/assemble"
	"github.com/ibeckermayer/trendscout/internal/media"
	"github.com/ibeckermayer/trendscout/internal/store"
	"github.com/ibeckermayer/trendscout/internal/types"
)

// Thumbnailer turns a local image into a data URI.
type Thumbnailer interface {
	DataURI(path string) (string, error)
}

// Builder creates gallery pages from result posts
type Builder struct {
	maxPosts int
	thumbs   Thumbnailer
	template *template.Template
	log      logrus.FieldLogger
}

// New creates a new gallery builder. maxPosts <= 0 means no limit.
func New(maxPosts int, log logrus.FieldLogger) (*Builder, error) {
	tmpl, err := template.New("gallery").Parse(defaultTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Builder{
		maxPosts: maxPosts,
		thumbs:   media.GalleryEncoder(),
		template: tmpl,
		log:      log,
	}, nil
}

// Gallery describes a rendered page
type Gallery struct {
	FilePath   string
	PostCount  int
	ImageCount int
	CreatedAt  time.Time
}

// PageData is the template data structure
type PageData struct {
	Title    string
	Date     string
	Sections []SectionData
	Stats    StatsData
}

// SectionData groups the posts of one keyword
type SectionData struct {
	Keyword  string
	Category string
	Posts    []PostData
}

// PostData represents a post in the gallery template
type PostData struct {
	UserName  string
	Content   string
	Images    []template.URL
	Attitudes int
	Comments  int
	Reposts   int
	URL       string
	Score     string
}

// StatsData contains gallery statistics
type StatsData struct {
	TotalPosts  int
	TotalImages int
	Keywords    int
}

// Build renders the posts that have images. Local files are embedded as
// WebP thumbnails; posts without local copies link their remote images.
func (b *Builder) Build(posts []types.Post, title string, now time.Time) ([]byte, StatsData, error) {
	var withImages []types.Post
	for _, p := range posts {
		if len(p.ImagePaths) > 0 || len(p.ImageURLs) > 0 {
			withImages = append(withImages, p)
		}
	}
	if len(withImages) == 0 {
		return nil, StatsData{}, fmt.Errorf("no posts with images to include in gallery")
	}

	// Sort by likes descending
	sort.SliceStable(withImages, func(i, j int) bool {
		return withImages[i].Attitudes > withImages[j].Attitudes
	})
	if b.maxPosts > 0 && len(withImages) > b.maxPosts {
		withImages = withImages[:b.maxPosts]
	}

	data := PageData{
		Title: title,
		Date:  now.Format("2006-01-02 15:04"),
	}

	sections := make(map[string]*SectionData)
	for _, p := range withImages {
		sec, ok := sections[p.Keyword]
		if !ok {
			sec = &SectionData{Keyword: p.Keyword, Category: p.Category}
			sections[p.Keyword] = sec
		}
		pd := PostData{
			UserName:  p.UserName,
			Content:   truncate(strings.Join(strings.Fields(p.Content), " "), 140),
			Images:    b.images(p),
			Attitudes: p.Attitudes,
			Comments:  p.Comments,
			Reposts:   p.Reposts,
			URL:       postURL(p),
		}
		if p.ContentScore != nil {
			pd.Score = fmt.Sprintf("%.0f", *p.ContentScore)
		}
		if len(pd.Images) == 0 {
			continue
		}
		sec.Posts = append(sec.Posts, pd)
		data.Stats.TotalPosts++
		data.Stats.TotalImages += len(pd.Images)
	}

	for _, sec := range sections {
		if len(sec.Posts) > 0 {
			data.Sections = append(data.Sections, *sec)
		}
	}
	slices.SortFunc(data.Sections, func(a, b SectionData) int {
		return cmp.Compare(a.Keyword, b.Keyword)
	})
	data.Stats.Keywords = len(data.Sections)
	if data.Stats.TotalPosts == 0 {
		return nil, StatsData{}, fmt.Errorf("no images could be embedded")
	}

	var htmlBuf bytes.Buffer
	if err := b.template.Execute(&htmlBuf, data); err != nil {
		return nil, StatsData{}, fmt.Errorf("failed to render template: %w", err)
	}
	return htmlBuf.Bytes(), data.Stats, nil
}

// Write renders posts and saves the page to path.
func (b *Builder) Write(path string, posts []types.Post, title string, now time.Time) (*Gallery, error) {
	page, stats, err := b.Build(posts, title, now)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create gallery dir: %w", err)
	}
	if err := os.WriteFile(path, page, 0644); err != nil {
		return nil, fmt.Errorf("failed to write gallery: %w", err)
	}
	return &Gallery{
		FilePath:   path,
		PostCount:  stats.TotalPosts,
		ImageCount: stats.TotalImages,
		CreatedAt:  now,
	}, nil
}

// images returns embeddable sources for p. Data URIs and https URLs are
// marked safe for the src attribute.
func (b *Builder) images(p types.Post) []template.URL {
	var out []template.URL
	for _, path := range p.ImagePaths {
		uri, err := b.thumbs.DataURI(path)
		if err != nil {
			b.log.WithError(err).WithField("path", path).Warn("skipping gallery image")
			continue
		}
		out = append(out, template.URL(uri))
	}
	if len(out) > 0 || len(p.ImagePaths) > 0 {
		return out
	}
	for _, u := range p.ImageURLs {
		if strings.HasPrefix(u, "https://") || strings.HasPrefix(u, "http://") {
			out = append(out, template.URL(u))
		}
	}
	return out
}

func postURL(p types.Post) string {
	if p.PostLink != "" {
		return p.PostLink
	}
	return fmt.Sprintf(assemble.LinkTemplate, p.ID)
}

// GetLatestGallery returns the path to the most recent gallery in dir.
func GetLatestGallery(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "gallery_*.html"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no gallery found in %s", dir)
	}
	// stamps sort chronologically; the mode segment is ignored
	slices.SortFunc(matches, func(a, b string) int {
		if c := strings.Compare(galleryStamp(a), galleryStamp(b)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return matches[len(matches)-1], nil
}

// galleryStamp is the run stamp at the end of a gallery file name.
func galleryStamp(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), ".html")
	if len(name) < len(store.StampLayout) {
		return name
	}
	return name[len(name)-len(store.StampLayout):]
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-1]) + "…"
}

const defaultTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>{{.Title}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'PingFang SC', 'Microsoft YaHei', sans-serif; margin: 0 auto; padding: 20px; background: #f5f5f5; max-width: 1200px; }
        h1 { color: #e6162d; margin-bottom: 5px; }
        h2 { border-bottom: 2px solid #e6162d; padding-bottom: 4px; }
        .category { color: #999; font-size: 14px; font-weight: normal; }
        .date { color: #666; margin-bottom: 20px; }
        .grid { display: grid; grid-template-columns: repeat(auto-fill, minmax(260px, 1fr)); gap: 16px; }
        .card { background: white; border-radius: 8px; padding: 12px; }
        .images { display: flex; flex-wrap: wrap; gap: 4px; }
        .images img { max-width: 100%; border-radius: 4px; }
        .author { font-weight: bold; color: #333; margin-top: 8px; }
        .content { margin: 6px 0; line-height: 1.4; font-size: 14px; }
        .metrics { color: #666; font-size: 13px; }
        .score { background: #fdecee; color: #e6162d; padding: 2px 8px; border-radius: 12px; font-size: 12px; }
        .link { color: #e6162d; text-decoration: none; font-size: 13px; }
        .footer { margin-top: 20px; padding-top: 15px; border-top: 1px solid #ddd; color: #999; font-size: 12px; text-align: center; }
    </style>
</head>
<body>
    <h1>{{.Title}}</h1>
    <div class="date">{{.Date}}</div>

    {{range .Sections}}
    <h2>{{.Keyword}} {{if .Category}}<span class="category">{{.Category}}</span>{{end}}</h2>
    <div class="grid">
        {{range .Posts}}
        <div class="card">
            <div class="images">{{range .Images}}<img src="{{.}}" loading="lazy">{{end}}</div>
            <div class="author">{{.UserName}} {{if .Score}}<span class="score">{{.Score}}</span>{{end}}</div>
            <div class="content">{{.Content}}</div>
            <div class="metrics">{{.Attitudes}} likes · {{.Comments}} comments · {{.Reposts}} reposts</div>
            <a href="{{.URL}}" class="link">View on Weibo →</a>
        </div>
        {{end}}
    </div>
    {{end}}

    <div class="footer">
        {{.Stats.TotalImages}} images from {{.Stats.TotalPosts}} posts across {{.Stats.Keywords}} keywords · Generated by trendscout
    </div>
</body>
</html>`

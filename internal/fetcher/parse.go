package fetcher

import (
	"fmt"
	"io"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/ibeckermayer/trendscout/internal/timeparse"
	"github.com/ibeckermayer/trendscout/internal/types"
)

// Source markers recorded on fetched posts.
const (
	SourceSearch  = "search"
	SourceProfile = "profile"
)

// parseSearchPage extracts the posts on one search result page. Cards
// without content (ads, topic boxes) and IDs already in seen are skipped;
// seen is updated with every post returned.
func parseSearchPage(r io.Reader, keyword string, seen map[string]bool, now time.Time) ([]types.Post, int, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to parse search page: %w", err)
	}

	cards := doc.Find(Card)
	var posts []types.Post
	cards.Each(func(_ int, card *goquery.Selection) {
		if card.Find(CardContent).Length() == 0 {
			return
		}

		from := card.Find(PostFrom).First()
		href, _ := from.Attr("href")
		id := postIDFromHref(href)
		if id == "" || seen[id] {
			return
		}
		seen[id] = true

		name := card.Find(PostUserName).First()
		userLink, _ := name.Attr("href")

		publish := strings.TrimSpace(from.Text())
		if publish == "" {
			publish = timeparse.UnknownTime
		}

		actions := card.Find(PostActions)
		images := extractImages(card)
		videos := extractVideos(card)

		posts = append(posts, types.Post{
			ID:          id,
			UserName:    strings.TrimSpace(name.Text()),
			UserLink:    absoluteURL(userLink),
			Keyword:     keyword,
			Content:     postText(card),
			PublishTime: publish,
			Reposts:     parseMetric(strings.ReplaceAll(actions.Eq(actionReposts).Text(), "转发", "")),
			Comments:    parseMetric(strings.ReplaceAll(actions.Eq(actionComments).Text(), "评论", "")),
			Attitudes:   parseMetric(strings.ReplaceAll(actions.Eq(actionAttitudes).Text(), "赞", "")),
			HasImages:   len(images) > 0,
			HasVideos:   len(videos) > 0,
			ImageURLs:   images,
			VideoURLs:   videos,
			PostLink:    absoluteURL(href),
			Source:      SourceSearch,
			CrawledAt:   now,
		})
	})

	return posts, cards.Length(), nil
}

// postText prefers the expanded text node over the truncated one.
func postText(card *goquery.Selection) string {
	sel := card.Find(PostTextFull).First()
	if sel.Length() == 0 {
		sel = card.Find(PostText).First()
	}
	return strings.TrimSpace(sel.Text())
}

func extractImages(card *goquery.Selection) []string {
	nodes := card.Find(ImageNodes)
	if nodes.Length() == 0 {
		nodes = card.Find(ImageNodesPrev)
	}
	if nodes.Length() == 0 {
		nodes = card.Find(ImageNodesPic)
	}

	var urls []string
	nodes.Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		if !ok || strings.TrimSpace(src) == "" {
			return
		}
		urls = append(urls, LargeImageURL(absoluteURL(src)))
	})
	return urls
}

func extractVideos(card *goquery.Selection) []string {
	var urls []string
	card.Find(VideoNodes).Each(func(_ int, node *goquery.Selection) {
		src, ok := node.Attr("data-url")
		if !ok || src == "" {
			src, ok = node.Find("video").Attr("src")
		}
		if !ok || src == "" {
			src, ok = node.Attr("action-data")
		}
		if ok && src != "" {
			urls = append(urls, absoluteURL(src))
		}
	})
	return urls
}

// LargeImageURL rewrites Weibo thumbnail URLs to the full-size variant.
func LargeImageURL(u string) string {
	switch {
	case strings.Contains(u, "/thumb150/"):
		return strings.Replace(u, "/thumb150/", "/large/", 1)
	case strings.Contains(u, "/bmiddle/"):
		return strings.Replace(u, "/bmiddle/", "/large/", 1)
	case strings.Contains(u, "/orj360/"):
		return strings.Replace(u, "/orj360/", "/large/", 1)
	}
	return u
}

// absoluteURL resolves protocol-relative and site-relative Weibo links.
func absoluteURL(href string) string {
	href = strings.TrimSpace(href)
	switch {
	case href == "":
		return ""
	case strings.HasPrefix(href, "http://"), strings.HasPrefix(href, "https://"):
		return href
	case strings.HasPrefix(href, "//"):
		return "https:" + href
	case strings.HasPrefix(href, "/"):
		return "https://weibo.com" + href
	default:
		return "https://weibo.com/" + href
	}
}

// postIDFromHref returns the last path segment of a post link.
func postIDFromHref(href string) string {
	if href == "" {
		return ""
	}
	u, err := url.Parse(absoluteURL(href))
	if err != nil {
		return ""
	}
	id := path.Base(strings.TrimSuffix(u.Path, "/"))
	if id == "." || id == "/" {
		return ""
	}
	return id
}

// parseMetric converts engagement strings like "1.2万", "3.4K", "5M",
// "1,234" or "423" to integers. Labels and unparsable text count as zero.
func parseMetric(s string) int {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0
	}

	multiplier := 1.0
	switch {
	case strings.HasSuffix(s, "万"):
		multiplier = 10000
		s = strings.TrimSuffix(s, "万")
	case strings.HasSuffix(s, "亿"):
		multiplier = 100000000
		s = strings.TrimSuffix(s, "亿")
	case strings.HasSuffix(strings.ToUpper(s), "K"):
		multiplier = 1000
		s = s[:len(s)-1]
	case strings.HasSuffix(strings.ToUpper(s), "M"):
		multiplier = 1000000
		s = s[:len(s)-1]
	}

	value, err := strconv.ParseFloat(s, 64)
	if err != nil || value < 0 {
		return 0
	}

	return int(value*multiplier + 0.5)
}

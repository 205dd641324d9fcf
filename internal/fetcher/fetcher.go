// Package fetcher retrieves Weibo posts over HTTP: keyword search result
// pages, a user's keyword search through the profile API, and media files.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ibeckermayer/trendscout/internal/media"
	"github.com/ibeckermayer/trendscout/internal/retry"
	"github.com/ibeckermayer/trendscout/internal/store"
	"github.com/ibeckermayer/trendscout/internal/types"
)

const (
	DefaultSearchURL  = "https://s.weibo.com/weibo"
	DefaultProfileURL = "https://weibo.com/ajax/statuses/searchProfile"

	userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	referer   = "https://weibo.com/"
)

// Options configures a Client.
type Options struct {
	Cookie     string
	Proxy      string
	Timeout    time.Duration
	Retry      retry.Config
	MediaDir   string
	PageDelay  time.Duration
	MediaPause time.Duration
	SearchURL  string
	ProfileURL string
	Location   *time.Location
	Logger     logrus.FieldLogger
}

// Client fetches posts from Weibo.
type Client struct {
	opts  Options
	http  *retry.Client
	media *media.Materializer
	log   logrus.FieldLogger
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a client from opts.
func New(opts Options) (*Client, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.SearchURL == "" {
		opts.SearchURL = DefaultSearchURL
	}
	if opts.ProfileURL == "" {
		opts.ProfileURL = DefaultProfileURL
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.MediaDir == "" {
		opts.MediaDir = "media"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if p := strings.TrimSpace(opts.Proxy); p != "" {
		proxyURL, err := url.Parse(p)
		if err != nil || proxyURL.Host == "" {
			return nil, fmt.Errorf("invalid proxy %q", p)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	httpClient := &http.Client{Timeout: opts.Timeout, Transport: transport}

	c := &Client{
		opts:  opts,
		http:  retry.NewClient(httpClient, opts.Retry, opts.Logger),
		log:   opts.Logger,
		now:   time.Now,
		sleep: sleepCtx,
	}
	c.media = media.NewMaterializer(c, opts.MediaPause, opts.Logger)
	return c, nil
}

// SearchKeyword fetches pages result pages for keyword starting at
// startPage, most engaging first. Pages that fail are logged and skipped;
// an error is returned only when every page failed. With download set the
// images of each post are saved under the media directory.
func (c *Client) SearchKeyword(ctx context.Context, keyword string, pages, startPage int, download bool) ([]types.Post, error) {
	if pages < 1 {
		pages = 1
	}
	if startPage < 1 {
		startPage = 1
	}
	log := c.log.WithField("keyword", keyword)

	seen := make(map[string]bool)
	var posts []types.Post
	var lastErr error
	failed := 0

	for page := startPage; page < startPage+pages; page++ {
		if err := ctx.Err(); err != nil {
			return posts, err
		}
		if page > startPage {
			if err := c.sleep(ctx, c.opts.PageDelay); err != nil {
				return posts, err
			}
		}

		q := url.Values{}
		q.Set("q", keyword)
		q.Set("xsort", "hot")
		q.Set("page", strconv.Itoa(page))

		pagePosts, cards, err := c.searchPage(ctx, c.opts.SearchURL+"?"+q.Encode(), keyword, seen)
		if err != nil {
			failed++
			lastErr = err
			log.WithField("page", page).WithError(err).Warn("failed to fetch search page")
			continue
		}
		if cards == 0 {
			log.WithField("page", page).Warn("no result cards on page, the cookie may need refreshing")
			continue
		}

		if download {
			for i := range pagePosts {
				if _, err := c.media.Post(ctx, &pagePosts[i]); err != nil {
					return append(posts, pagePosts...), err
				}
			}
		}

		log.WithFields(logrus.Fields{"page": page, "posts": len(pagePosts)}).Debug("fetched search page")
		posts = append(posts, pagePosts...)
	}

	if failed == pages {
		return nil, fmt.Errorf("failed to fetch any page for %q: %w", keyword, lastErr)
	}
	return posts, nil
}

func (c *Client) searchPage(ctx context.Context, pageURL, keyword string, seen map[string]bool) ([]types.Post, int, error) {
	resp, err := c.http.Do(ctx, c.request(http.MethodGet, pageURL))
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	return parseSearchPage(resp.Body, keyword, seen, c.now())
}

// SearchUser fetches pages pages of posts by the user at userURL that match
// keyword. Every post is tagged with the user's ID.
func (c *Client) SearchUser(ctx context.Context, userURL, keyword string, pages int, download bool) ([]types.Post, error) {
	uid, ok := ExtractUserID(userURL)
	if !ok {
		return nil, fmt.Errorf("no user id in %q", userURL)
	}
	if pages < 1 {
		pages = 1
	}

	seen := make(map[string]bool)
	var posts []types.Post
	for page := 1; page <= pages; page++ {
		if page > 1 {
			if err := c.sleep(ctx, c.opts.PageDelay); err != nil {
				return posts, err
			}
		}

		q := url.Values{}
		q.Set("uid", uid)
		q.Set("q", keyword)
		q.Set("page", strconv.Itoa(page))

		resp, err := c.http.Do(ctx, c.request(http.MethodGet, c.opts.ProfileURL+"?"+q.Encode()))
		if err != nil {
			return posts, fmt.Errorf("failed to search user %s: %w", uid, err)
		}
		pagePosts, err := parseProfilePage(resp.Body, keyword, uid, seen, c.now(), c.opts.Location)
		resp.Body.Close()
		if err != nil {
			return posts, err
		}

		if download {
			for i := range pagePosts {
				if _, err := c.media.Post(ctx, &pagePosts[i]); err != nil {
					return append(posts, pagePosts...), err
				}
			}
		}
		posts = append(posts, pagePosts...)
	}
	return posts, nil
}

// mediaExts are the extensions kept from media URLs; anything else is
// saved as jpg.
var mediaExts = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "gif": true, "webp": true, "mp4": true, "mov": true,
}

// MediaExt returns the file extension to save rawURL under.
func MediaExt(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
	if !mediaExts[ext] {
		return "jpg"
	}
	return ext
}

// DownloadMedia saves rawURL to media/{keyword}/{kind}_{postID}_{unix}.{ext}
// and returns the path. When that name is taken, a "_N" suffix is added to
// the stem so earlier files are never overwritten.
func (c *Client) DownloadMedia(ctx context.Context, rawURL, kind, keyword, postID string) (string, error) {
	dir := filepath.Join(c.opts.MediaDir, store.SafeName(keyword))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create media dir: %w", err)
	}

	resp, err := c.http.Do(ctx, c.request(http.MethodGet, rawURL))
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	stem := fmt.Sprintf("%s_%s_%d", kind, store.SafeName(postID), c.now().Unix())
	f, dst, err := createUnique(dir, stem, MediaExt(rawURL))
	if err != nil {
		return "", fmt.Errorf("failed to create media file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(dst)
		return "", fmt.Errorf("failed to write media file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to write media file: %w", err)
	}

	c.log.WithFields(logrus.Fields{"keyword": keyword, "file": filepath.Base(dst)}).Debug("downloaded media")
	return dst, nil
}

// maxNameAttempts bounds the suffixes createUnique tries.
const maxNameAttempts = 1000

// createUnique creates dir/stem.ext, or dir/stem_N.ext for the first free N.
func createUnique(dir, stem, ext string) (*os.File, string, error) {
	for i := 0; i < maxNameAttempts; i++ {
		name := stem + "." + ext
		if i > 0 {
			name = fmt.Sprintf("%s_%d.%s", stem, i, ext)
		}
		dst := filepath.Join(dir, name)
		f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return nil, "", err
		}
		return f, dst, nil
	}
	return nil, "", fmt.Errorf("no free file name for %s.%s", stem, ext)
}

// request returns a builder for a request carrying the session cookie.
func (c *Client) request(method, target string) func(ctx context.Context) (*http.Request, error) {
	return func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, method, target, nil)
		if err != nil {
			return nil, err
		}
		c.setHeaders(req)
		return req, nil
	}
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/json;q=0.8,*/*;q=0.7")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	req.Header.Set("Referer", referer)
	if c.opts.Cookie != "" {
		req.Header.Set("Cookie", c.opts.Cookie)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package fetcher

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/ibeckermayer/trendscout/internal/timeparse"
	"github.com/ibeckermayer/trendscout/internal/types"
)

var (
	userPathID = regexp.MustCompile(`^/(?:u/)?(\d+)(?:/|$)`)
	uidParam   = regexp.MustCompile(`^\d+$`)
)

// ExtractUserID returns the numeric Weibo user ID in a profile URL such as
// https://weibo.com/u/1234567890 or https://weibo.com/1234567890?refer=x.
func ExtractUserID(userURL string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(userURL))
	if err != nil {
		return "", false
	}
	if uid := u.Query().Get("uid"); uidParam.MatchString(uid) {
		return uid, true
	}
	if m := userPathID.FindStringSubmatch(u.Path); m != nil {
		return m[1], true
	}
	return "", false
}

// ExtractUserID is ExtractUserID as a method, for callers holding a Client
// behind an interface.
func (c *Client) ExtractUserID(userURL string) (string, bool) {
	return ExtractUserID(userURL)
}

// profileResponse is the subset of the profile search API response we use.
type profileResponse struct {
	OK   int `json:"ok"`
	Data struct {
		List []profileStatus `json:"list"`
	} `json:"data"`
	Msg string `json:"msg"`
}

type profileStatus struct {
	IDStr          string `json:"idstr"`
	MblogID        string `json:"mblogid"`
	CreatedAt      string `json:"created_at"`
	Text           string `json:"text"`
	TextRaw        string `json:"text_raw"`
	Source         string `json:"source"`
	RepostsCount   int    `json:"reposts_count"`
	CommentsCount  int    `json:"comments_count"`
	AttitudesCount int    `json:"attitudes_count"`
	User           struct {
		IDStr      string `json:"idstr"`
		ScreenName string `json:"screen_name"`
	} `json:"user"`
	PicIDs   []string `json:"pic_ids"`
	PicInfos map[string]struct {
		Large struct {
			URL string `json:"url"`
		} `json:"large"`
	} `json:"pic_infos"`
	PageInfo *struct {
		ObjectType string `json:"object_type"`
		MediaInfo  *struct {
			StreamURL   string `json:"stream_url"`
			StreamURLHD string `json:"stream_url_hd"`
		} `json:"media_info"`
	} `json:"page_info"`
}

// parseProfilePage decodes one page of a user's keyword search.
func parseProfilePage(r io.Reader, keyword, uid string, seen map[string]bool, now time.Time, loc *time.Location) ([]types.Post, error) {
	var resp profileResponse
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode profile response: %w", err)
	}
	if resp.OK != 1 {
		return nil, fmt.Errorf("profile search rejected: %s", resp.Msg)
	}

	var posts []types.Post
	for _, s := range resp.Data.List {
		if s.IDStr == "" || seen[s.IDStr] {
			continue
		}
		seen[s.IDStr] = true

		images := make([]string, 0, len(s.PicIDs))
		for _, id := range s.PicIDs {
			if info, ok := s.PicInfos[id]; ok && info.Large.URL != "" {
				images = append(images, info.Large.URL)
			}
		}
		var videos []string
		if s.PageInfo != nil && s.PageInfo.ObjectType == "video" && s.PageInfo.MediaInfo != nil {
			v := s.PageInfo.MediaInfo.StreamURLHD
			if v == "" {
				v = s.PageInfo.MediaInfo.StreamURL
			}
			if v != "" {
				videos = append(videos, v)
			}
		}

		content := strings.TrimSpace(s.TextRaw)
		if content == "" {
			content = StripHTML(s.Text)
		}

		userID := s.User.IDStr
		if userID == "" {
			userID = uid
		}
		link := ""
		if s.MblogID != "" {
			link = fmt.Sprintf("https://weibo.com/%s/%s", userID, s.MblogID)
		}

		posts = append(posts, types.Post{
			ID:          s.IDStr,
			UserID:      userID,
			UserName:    s.User.ScreenName,
			UserLink:    "https://weibo.com/u/" + userID,
			Keyword:     keyword,
			Content:     content,
			PublishTime: profileTime(s.CreatedAt, loc),
			Reposts:     max(0, s.RepostsCount),
			Comments:    max(0, s.CommentsCount),
			Attitudes:   max(0, s.AttitudesCount),
			HasImages:   len(images) > 0,
			HasVideos:   len(videos) > 0,
			ImageURLs:   images,
			VideoURLs:   videos,
			PostLink:    link,
			Source:      SourceProfile,
			CrawledAt:   now,
		})
	}
	return posts, nil
}

// profileTime renders the API's created_at in the absolute form the time
// normalizer understands.
func profileTime(createdAt string, loc *time.Location) string {
	t, err := time.Parse(time.RubyDate, strings.TrimSpace(createdAt))
	if err != nil {
		return timeparse.UnknownTime
	}
	return t.In(loc).Format("2006-01-02 15:04")
}

// StripHTML returns the visible text of an HTML fragment with whitespace
// runs collapsed.
func StripHTML(fragment string) string {
	z := html.NewTokenizer(strings.NewReader(fragment))
	var sb strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(sb.String()), " ")
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
			}
		case html.StartTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style":
				skip++
			case "br", "p", "div":
				sb.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style":
				if skip > 0 {
					skip--
				}
			case "p", "div":
				sb.WriteByte(' ')
			}
		case html.SelfClosingTagToken:
			sb.WriteByte(' ')
		}
	}
}

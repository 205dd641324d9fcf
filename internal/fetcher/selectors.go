package fetcher

// Weibo search result selectors.
// These are isolated here because Weibo changes its markup from time to time.
// Update these when parsing breaks.

const (
	// Cards
	Card        = `div.card-wrap`
	CardContent = `div.content`

	// Post fields
	PostFrom     = `div.from a`
	PostUserName = `a.name`
	PostTextFull = `p[node-type="feed_list_content_full"]`
	PostText     = `p.txt`
	PostActions  = `div.card-act ul li`

	// Media
	ImageNodes     = `div[class*="media-pic"] img`
	ImageNodesPrev = `div[node-type="feed_list_media_prev"] img`
	ImageNodesPic  = `img.pic`
	VideoNodes     = `div[class*="media-video"]`
)

// Action bar positions inside PostActions.
const (
	actionReposts   = 1
	actionComments  = 2
	actionAttitudes = 3
)

// Markers used by the cookie probe.
var (
	LoginMarkers   = []string{"passport.weibo.com", "请先登录", "loginBtn", "login_form"}
	CaptchaMarkers = []string{"验证码", "captcha"}
)

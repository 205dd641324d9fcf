// Package browser provides the chromedp configuration for the interactive
// login window.
package browser

import (
	"strings"

	"github.com/chromedp/chromedp"
)

// DefaultUserAgent matches the user agent of the HTTP fetcher so captured
// cookies are used from the same client profile.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// Options returns chromedp allocator options. proxy, when set, is passed to
// Chrome as its proxy server.
func Options(headless bool, proxy string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.UserAgent(DefaultUserAgent),
		chromedp.WindowSize(1280, 900),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)

	if p := strings.TrimSpace(proxy); p != "" {
		opts = append(opts, chromedp.ProxyServer(p))
	}

	if headless {
		opts = append(opts, chromedp.Flag("disable-gpu", true))
	}

	return opts
}

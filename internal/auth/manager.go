// Package auth captures Weibo session cookies through a browser login and
// keeps them on disk for the HTTP fetcher.
package auth

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"github.com/ibeckermayer/trendscout/internal/browser"
)

// LoginURL is where the login window starts.
const LoginURL = "https://passport.weibo.com/sso/signin?entry=miniblog&source=miniblog&url=https%3A%2F%2Fweibo.com%2F"

// Manager handles Weibo authentication
type Manager struct {
	cookieStore *CookieStore
	log         logrus.FieldLogger

	// Timeout bounds how long the user has to finish logging in.
	Timeout time.Duration
	// Proxy is handed to the browser.
	Proxy string
}

// NewManager creates a new auth manager
func NewManager(cookieStore *CookieStore, log logrus.FieldLogger) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{cookieStore: cookieStore, log: log, Timeout: 5 * time.Minute}
}

// IsAuthenticated checks if we have valid stored credentials
func (m *Manager) IsAuthenticated() bool {
	return m.cookieStore.IsValid()
}

// Login opens a browser window for the user to log in to Weibo and stores
// the resulting cookies.
func (m *Manager) Login(ctx context.Context) error {
	allocCtx, cancel := chromedp.NewExecAllocator(ctx, browser.Options(false, m.Proxy)...)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	if err := chromedp.Run(browserCtx, chromedp.Navigate(LoginURL)); err != nil {
		return fmt.Errorf("failed to navigate to login page: %w", err)
	}
	m.log.Info("waiting for login in the browser window")

	cookies, err := m.waitForLogin(browserCtx)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	if err := m.cookieStore.Save(cookies); err != nil {
		return fmt.Errorf("failed to save cookies: %w", err)
	}
	m.log.WithField("path", m.cookieStore.Path()).Info("login successful, cookies saved")
	return nil
}

// waitForLogin polls until the browser has left the passport pages with a
// session cookie set.
func (m *Manager) waitForLogin(ctx context.Context) ([]*network.Cookie, error) {
	timeout := time.After(m.Timeout)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			return nil, fmt.Errorf("login timeout exceeded")
		case <-ticker.C:
			var location string
			if err := chromedp.Run(ctx, chromedp.Location(&location)); err != nil {
				continue
			}
			cookies, err := extractCookies(ctx)
			if err != nil {
				continue
			}
			if LoggedIn(location, cookies) {
				return cookies, nil
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// LoggedIn reports whether a page at location with cookies belongs to a
// logged-in session.
func LoggedIn(location string, cookies []*network.Cookie) bool {
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if !(host == "weibo.com" || strings.HasSuffix(host, ".weibo.com")) || strings.HasPrefix(host, "passport.") {
		return false
	}
	return hasSession(weiboCookies(cookies))
}

// extractCookies gets all cookies from the browser
func extractCookies(ctx context.Context) ([]*network.Cookie, error) {
	var cookies []*network.Cookie

	err := chromedp.Run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = storage.GetCookies().Do(ctx)
			return err
		}),
	)

	return cookies, err
}

// Logout clears stored credentials
func (m *Manager) Logout() error {
	return m.cookieStore.Clear()
}

// CookieHeader returns the stored cookies as a request header value. stale
// is true when they are older than MaxAge; they are still returned.
func (m *Manager) CookieHeader() (header string, stale bool, err error) {
	stored, err := m.cookieStore.Load()
	if err != nil {
		return "", false, err
	}
	return stored.Header(), stored.IsExpired(m.cookieStore.now()), nil
}

package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
)

// MaxAge is how long a captured cookie set is trusted before a new login is
// suggested.
const MaxAge = 24 * time.Hour

// SessionCookie is the Weibo login session cookie.
const SessionCookie = "SUB"

// CookieStore handles storage of Weibo session cookies
type CookieStore struct {
	path string
	now  func() time.Time
}

// StoredCookies represents the persisted cookie data
type StoredCookies struct {
	Cookies    []*network.Cookie `json:"cookies"`
	CapturedAt time.Time         `json:"update_time"`
}

// ExpiresAt is when the stored set stops being trusted.
func (s *StoredCookies) ExpiresAt() time.Time {
	return s.CapturedAt.Add(MaxAge)
}

// IsExpired reports whether the set is older than MaxAge at now.
func (s *StoredCookies) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt())
}

// Header returns the cookies as a Cookie request header value.
func (s *StoredCookies) Header() string {
	return CookieString(s.Cookies)
}

// NewCookieStore creates a cookie store at the given path
func NewCookieStore(path string) *CookieStore {
	return &CookieStore{path: path, now: time.Now}
}

// PathFor returns the cookie file kept next to the config file.
func PathFor(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "cookies.json")
}

// Path returns the file backing the store.
func (cs *CookieStore) Path() string {
	return cs.path
}

// Save persists the Weibo cookies among cookies to disk
func (cs *CookieStore) Save(cookies []*network.Cookie) error {
	dir := filepath.Dir(cs.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	stored := StoredCookies{
		Cookies:    weiboCookies(cookies),
		CapturedAt: cs.now(),
	}
	if len(stored.Cookies) == 0 {
		return errors.New("no weibo cookies to save")
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(cs.path, data, 0600)
}

// SaveString parses a "k=v; k2=v2" header value and persists it.
func (cs *CookieStore) SaveString(header string) error {
	cookies := ParseCookieString(header)
	if len(cookies) == 0 {
		return fmt.Errorf("no cookies found in %q", header)
	}
	return cs.Save(cookies)
}

// Load retrieves cookies from disk
func (cs *CookieStore) Load() (*StoredCookies, error) {
	data, err := os.ReadFile(cs.path)
	if err != nil {
		return nil, err
	}

	var stored StoredCookies
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", cs.path, err)
	}

	return &stored, nil
}

// IsValid checks if stored cookies are fresh and carry a session
func (cs *CookieStore) IsValid() bool {
	stored, err := cs.Load()
	if err != nil {
		return false
	}
	if stored.IsExpired(cs.now()) {
		return false
	}
	return hasSession(stored.Cookies)
}

// Clear removes stored cookies
func (cs *CookieStore) Clear() error {
	err := os.Remove(cs.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// CookieString joins cookies into a Cookie header value. Empty names are
// skipped.
func CookieString(cookies []*network.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		if c == nil || c.Name == "" {
			continue
		}
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// ParseCookieString splits a "k=v; k2=v2" header value into cookies scoped
// to .weibo.com. Later duplicates replace earlier ones.
func ParseCookieString(header string) []*network.Cookie {
	var cookies []*network.Cookie
	index := make(map[string]int)
	for _, part := range strings.Split(header, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			continue
		}
		c := &network.Cookie{Name: name, Value: strings.TrimSpace(value), Domain: ".weibo.com", Path: "/"}
		if i, dup := index[name]; dup {
			cookies[i] = c
			continue
		}
		index[name] = len(cookies)
		cookies = append(cookies, c)
	}
	return cookies
}

func weiboCookies(cookies []*network.Cookie) []*network.Cookie {
	var out []*network.Cookie
	for _, c := range cookies {
		if c == nil {
			continue
		}
		d := strings.TrimPrefix(c.Domain, ".")
		if d == "weibo.com" || strings.HasSuffix(d, ".weibo.com") || d == "weibo.cn" || strings.HasSuffix(d, ".weibo.cn") {
			out = append(out, withEnums(c))
		}
	}
	return out
}

// withEnums fills the enum fields cdproto refuses to decode when empty.
func withEnums(c *network.Cookie) *network.Cookie {
	cp := *c
	if cp.Priority == "" {
		cp.Priority = network.CookiePriorityMedium
	}
	if cp.SourceScheme == "" {
		cp.SourceScheme = network.CookieSourceSchemeUnset
	}
	return &cp
}

func hasSession(cookies []*network.Cookie) bool {
	for _, c := range cookies {
		if c.Name == SessionCookie && c.Value != "" {
			return true
		}
	}
	return false
}

package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCookieString(t *testing.T) {
	cookies := ParseCookieString(" SUB=abc; SUBP=x=y ;bad; =novalue; SUB=def")
	require.Len(t, cookies, 2)
	assert.Equal(t, "SUB", cookies[0].Name)
	assert.Equal(t, "def", cookies[0].Value)
	assert.Equal(t, "x=y", cookies[1].Value)
	assert.Equal(t, ".weibo.com", cookies[0].Domain)

	assert.Equal(t, "SUB=def; SUBP=x=y", CookieString(cookies))
	assert.Empty(t, ParseCookieString(""))
}

func newTestStore(t *testing.T, now time.Time) *CookieStore {
	t.Helper()
	cs := NewCookieStore(filepath.Join(t.TempDir(), "sub", "cookies.json"))
	cs.now = func() time.Time { return now }
	return cs
}

func TestCookieStore_SaveLoad(t *testing.T) {
	now := time.Date(2024, 5, 23, 12, 0, 0, 0, time.UTC)
	cs := newTestStore(t, now)

	require.NoError(t, cs.Save([]*network.Cookie{
		{Name: "SUB", Value: "abc", Domain: ".weibo.com"},
		{Name: "other", Value: "1", Domain: "example.com"},
		{Name: "WBPSESS", Value: "p", Domain: "m.weibo.cn"},
	}))

	info, err := os.Stat(cs.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	stored, err := cs.Load()
	require.NoError(t, err)
	assert.Equal(t, "SUB=abc; WBPSESS=p", stored.Header())
	assert.True(t, stored.CapturedAt.Equal(now))
	assert.True(t, stored.ExpiresAt().Equal(now.Add(24*time.Hour)))
	assert.True(t, cs.IsValid())
}

func TestCookieStore_Expiry(t *testing.T) {
	now := time.Date(2024, 5, 23, 12, 0, 0, 0, time.UTC)
	cs := newTestStore(t, now)
	require.NoError(t, cs.SaveString("SUB=abc"))

	cs.now = func() time.Time { return now.Add(MaxAge) }
	assert.True(t, cs.IsValid(), "valid up to and including MaxAge")

	cs.now = func() time.Time { return now.Add(MaxAge + time.Second) }
	assert.False(t, cs.IsValid())

	m := NewManager(cs, nil)
	header, stale, err := m.CookieHeader()
	require.NoError(t, err)
	assert.Equal(t, "SUB=abc", header)
	assert.True(t, stale)
}

func TestCookieStore_NeedsSession(t *testing.T) {
	cs := newTestStore(t, time.Now())
	require.NoError(t, cs.SaveString("SUBP=only"))
	assert.False(t, cs.IsValid())
}

func TestCookieStore_Errors(t *testing.T) {
	cs := newTestStore(t, time.Now())
	assert.False(t, cs.IsValid())
	assert.Error(t, cs.SaveString("   "))
	assert.Error(t, cs.Save([]*network.Cookie{{Name: "a", Value: "b", Domain: "x.com"}}))
	assert.NoError(t, cs.Clear(), "clearing a missing file is fine")

	require.NoError(t, cs.SaveString("SUB=1"))
	require.NoError(t, cs.Clear())
	_, err := cs.Load()
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoggedIn(t *testing.T) {
	session := []*network.Cookie{{Name: "SUB", Value: "abc", Domain: ".weibo.com"}}

	assert.True(t, LoggedIn("https://weibo.com/", session))
	assert.True(t, LoggedIn("https://www.weibo.com/u/1", session))
	assert.False(t, LoggedIn("https://passport.weibo.com/sso/signin", session))
	assert.False(t, LoggedIn("https://example.com/", session))
	assert.False(t, LoggedIn("https://weibo.com/", nil))
}

func TestPathFor(t *testing.T) {
	assert.Equal(t, filepath.Join("conf", "cookies.json"), PathFor(filepath.Join("conf", "config.toml")))
	assert.Equal(t, "cookies.json", PathFor("config.toml"))
}

package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ibeckermayer/trendscout/internal/auth"
	"github.com/ibeckermayer/trendscout/internal/fetcher"
	"github.com/ibeckermayer/trendscout/internal/retry"
)

// errUnhealthy is returned by check-cookie when any probe reports an issue.
var errUnhealthy = errors.New("cookie check failed")

func (s *session) authManager() *auth.Manager {
	m := auth.NewManager(auth.NewCookieStore(auth.PathFor(s.cfgPath)), s.log)
	m.Proxy = s.cfg.Fetch.Proxy
	return m
}

// resolveCookie prefers the configured cookie and falls back to the one
// captured by login. A stale capture is used with a warning.
func resolveCookie(s *session) string {
	if s.cfg.Fetch.Cookie != "" {
		return s.cfg.Fetch.Cookie
	}
	header, stale, err := s.authManager().CookieHeader()
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.log.Warn("no cookie configured and none captured, run `trendscout login`")
		return ""
	case err != nil:
		s.log.WithError(err).Warn("could not read captured cookies")
		return ""
	case stale:
		s.log.Warn("captured cookies are more than a day old, consider `trendscout login`")
	}
	return header
}

func newLoginCmd(s *session) *cobra.Command {
	var cookie string
	var logout bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Capture Weibo session cookies",
		Long: `Open a browser window on the Weibo login page and store the session cookies
once the login completes.

Examples:
  trendscout login                          # log in through the browser
  trendscout login --cookie "SUB=...; ..."  # import a copied Cookie header
  trendscout login --logout                 # forget captured cookies
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m := s.authManager()
			path := auth.PathFor(s.cfgPath)

			if logout {
				if err := m.Logout(); err != nil {
					return fmt.Errorf("failed to clear cookies: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Cookies cleared.")
				return nil
			}

			if cookie != "" {
				if err := auth.NewCookieStore(path).SaveString(cookie); err != nil {
					return fmt.Errorf("failed to save cookies: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cookies saved to %s\n", path)
				return nil
			}

			if m.IsAuthenticated() {
				fmt.Fprintln(cmd.OutOrStdout(), "Already logged in; logging in again refreshes the cookies.")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if timeout > 0 {
				m.Timeout = timeout
			}
			if err := m.Login(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in, cookies saved to %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&cookie, "cookie", "", "import a \"k=v; k2=v2\" cookie string instead of opening a browser")
	cmd.Flags().BoolVar(&logout, "logout", false, "remove captured cookies")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "how long to wait for the login to complete (default 5m)")
	return cmd
}

func newCheckCookieCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "check-cookie",
		Short: "Probe Weibo with the current cookie and report what each page returns",
		RunE: func(cmd *cobra.Command, args []string) error {
			cookie := resolveCookie(s)
			if cookie == "" {
				return errors.New("no cookie to check")
			}

			client, err := fetcher.New(fetcher.Options{
				Cookie:  cookie,
				Proxy:   s.cfg.Fetch.Proxy,
				Timeout: s.cfg.Timeout(),
				Retry:   retry.Config{},
				Logger:  s.log,
			})
			if err != nil {
				return err
			}

			results := client.Probe(cmd.Context(), fetcher.DefaultProbeTargets())
			out := cmd.OutOrStdout()
			for _, r := range results {
				status := "ok"
				if issue := r.Issue(); issue != "" {
					status = issue
				}
				fmt.Fprintf(out, "%-7s %-20s status=%d bytes=%d url=%s\n",
					r.Target.Name, status, r.Status, r.Length, r.FinalURL)
			}

			if !fetcher.Healthy(results) {
				return errUnhealthy
			}
			fmt.Fprintln(out, "Cookie looks healthy.")
			return nil
		},
	}
}

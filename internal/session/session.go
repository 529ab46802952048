// Package session implements the authenticated request primitive for the
// platform.
//
// The platform authenticates browser traffic with two cookies (see the
// creds package) and rotates the session cookie on most responses. State
// mutating requests additionally require an anti-forgery token that is
// delivered as a cookie and must be echoed back in a header. The Session
// type tracks all of that: it builds the cookie header for every outbound
// request, captures rotations from every response, bootstraps the
// anti-forgery token on demand, and detects session expiry.
//
// Redirects are never followed transparently. The platform signals a
// stale session with a redirect to its login page at least as often as
// with a 401, so 3xx responses have to be inspected, not chased.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/covale/dealbridge/internal/config"
	"github.com/covale/dealbridge/internal/creds"
	"github.com/covale/dealbridge/internal/httpkit"
)

// CookieCSRF is the anti-forgery cookie name; HeaderCSRF is the header
// that must echo its value on mutating requests.
const (
	CookieCSRF = "dl_csrf"
	HeaderCSRF = "X-CSRF-Token"
)

// csrfBootstrapPath is a lightweight endpoint whose only job here is to
// hand out cookies. The bootstrap GET against it goes through the plain
// HTTP client, never through Do, so fetching the anti-forgery token can
// not recurse into a call that itself wants the token.
const csrfBootstrapPath = "/api/ping"

// ErrSessionExpired means the platform rejected the session (401 or a
// redirect to the login page). All cached credentials have been cleared;
// the caller must supply fresh ones.
var ErrSessionExpired = errors.New("platform session expired, re-authenticate and update credentials")

// UpstreamError reports a non-2xx platform response that is not an
// authentication failure.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("platform returned HTTP %d", e.Status)
	}
	return fmt.Sprintf("platform returned HTTP %d: %s", e.Status, e.Body)
}

// Session is one logical authenticated session against the platform.
// It is safe for concurrent use; overlapping token rotations are
// last-writer-wins, matching the platform's acceptance of any recently
// issued session token.
type Session struct {
	baseURL string
	store   *creds.Store
	client  *http.Client
	logger  *slog.Logger

	mu   sync.Mutex
	csrf string
}

// New creates a session against baseURL (scheme + host, no trailing
// slash) using the given credential store.
func New(baseURL string, store *creds.Store, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		baseURL: strings.TrimRight(baseURL, "/"),
		store:   store,
		client: httpkit.NewClient(
			httpkit.WithTimeout(30*time.Second),
			httpkit.WithoutRedirects(),
		),
		logger: logger,
	}
}

// BaseURL returns the platform origin this session talks to.
func (s *Session) BaseURL() string { return s.baseURL }

// Do issues an authenticated request against the platform. path is
// relative to the session's base URL. The response is returned as-is for
// any status except the two expiry signals; callers interpret remaining
// non-2xx statuses as domain errors.
func (s *Session) Do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	pair, err := s.store.Resolve()
	if err != nil {
		return nil, err
	}

	mutating := isMutating(method)
	if mutating && s.CSRF() == "" {
		if err := s.bootstrapCSRF(ctx, pair); err != nil {
			return nil, err
		}
		// The bootstrap may have rotated the session cookie.
		if pair, err = s.store.Resolve(); err != nil {
			return nil, err
		}
	}

	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Cookie", s.cookieHeader(pair))
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if mutating {
		req.Header.Set("Content-Type", "application/json")
		if csrf := s.CSRF(); csrf != "" {
			req.Header.Set(HeaderCSRF, csrf)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s: %w", method, path, err)
	}

	s.captureCookies(resp)

	if resp.StatusCode == http.StatusUnauthorized {
		httpkit.DrainAndClose(resp.Body, 4096)
		s.expire()
		return nil, fmt.Errorf("%s %s: %w", method, path, ErrSessionExpired)
	}
	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		loc := resp.Header.Get("Location")
		if isLoginRedirect(loc) {
			httpkit.DrainAndClose(resp.Body, 4096)
			s.expire()
			return nil, fmt.Errorf("%s %s redirected to %s: %w", method, path, loc, ErrSessionExpired)
		}
	}

	return resp, nil
}

// CSRF returns the current anti-forgery token, or "" if none is known.
func (s *Session) CSRF() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.csrf
}

// bootstrapCSRF fetches cookies from the bootstrap endpoint using the
// current credential pair. It deliberately bypasses Do.
func (s *Session) bootstrapCSRF(ctx context.Context, pair creds.Pair) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+csrfBootstrapPath, nil)
	if err != nil {
		return fmt.Errorf("build bootstrap request: %w", err)
	}
	req.Header.Set("Cookie", s.cookieHeader(pair))
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("anti-forgery bootstrap: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	s.captureCookies(resp)
	s.logger.Debug("anti-forgery bootstrap complete",
		"status", resp.StatusCode,
		"have_token", s.CSRF() != "",
	)
	return nil
}

// cookieHeader builds the outbound cookie header from the current pair
// and, when known, the anti-forgery token.
func (s *Session) cookieHeader(pair creds.Pair) string {
	var b strings.Builder
	b.WriteString(creds.CookieToken + "=" + pair.Token)
	b.WriteString("; " + creds.CookieSession + "=" + pair.Session)
	if csrf := s.CSRF(); csrf != "" {
		b.WriteString("; " + CookieCSRF + "=" + csrf)
	}
	return b.String()
}

// captureCookies records any rotated session or anti-forgery token from
// a response's Set-Cookie headers.
func (s *Session) captureCookies(resp *http.Response) {
	for _, c := range resp.Cookies() {
		switch c.Name {
		case creds.CookieSession:
			if c.Value != "" {
				s.store.SetSession(c.Value)
				s.logger.Log(context.Background(), config.LevelTrace,
					"session token rotated")
			}
		case CookieCSRF:
			if c.Value != "" {
				s.mu.Lock()
				s.csrf = c.Value
				s.mu.Unlock()
				s.logger.Log(context.Background(), config.LevelTrace,
					"anti-forgery token refreshed")
			}
		}
	}
}

// expire clears all cached session state after a detected expiry.
func (s *Session) expire() {
	s.store.Clear()
	s.mu.Lock()
	s.csrf = ""
	s.mu.Unlock()
	s.logger.Warn("platform session expired, cached credentials cleared")
}

// isMutating reports whether a method changes server state and therefore
// needs the anti-forgery token.
func isMutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

// isLoginRedirect reports whether a redirect target is the platform's
// login or sign-in surface.
func isLoginRedirect(location string) bool {
	if location == "" {
		return false
	}
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	p := strings.ToLower(u.Path)
	return strings.HasPrefix(p, "/login") ||
		strings.HasPrefix(p, "/signin") ||
		strings.HasPrefix(p, "/sign-in") ||
		strings.HasPrefix(p, "/auth/")
}
